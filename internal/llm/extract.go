package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a model response contains no decodable JSON value.
var ErrNoJSON = errors.New("no JSON found in model response")

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ExtractJSON pulls the JSON value out of a model response. It accepts a bare
// value, a value inside a markdown code fence, or the outermost object or
// array embedded in surrounding prose.
func ExtractJSON(content string) ([]byte, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrNoJSON
	}
	if json.Valid([]byte(content)) {
		return []byte(content), nil
	}
	if m := fencedBlock.FindStringSubmatch(content); m != nil && json.Valid([]byte(m[1])) {
		return []byte(m[1]), nil
	}
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(content, pair[0])
		end := strings.LastIndex(content, pair[1])
		if start >= 0 && end > start {
			candidate := content[start : end+1]
			if json.Valid([]byte(candidate)) {
				return []byte(candidate), nil
			}
		}
	}
	return nil, ErrNoJSON
}
