package finding

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Shape names one known wire layout of an analyzer response.
type Shape string

const (
	// Static analyzer shapes.
	ShapeSonarBackend Shape = "sonar-backend/v1"
	ShapeSonarQube    Shape = "sonarqube/v1"
	ShapeFindings     Shape = "findings/v1"

	// Semantic reviewer shapes.
	ShapeIssues       Shape = "issues/v1"
	ShapeKeyIssues    Shape = "key-issues/v1"
	ShapeCodeFeedback Shape = "code-feedback/v1"
	ShapeArray        Shape = "array/v1"
)

var (
	// ErrUnknownShape is returned when a payload matches none of the known layouts.
	ErrUnknownShape = errors.New("unknown response shape")
	// ErrAmbiguousShape is returned when more than one known top-level key carries records.
	ErrAmbiguousShape = errors.New("ambiguous response shape")
)

// StaticPayload is a decoded static-analysis response. Records that could
// not be decoded are kept as issues carrying DecodeErr so normalization
// skips and counts them.
type StaticPayload struct {
	Shape  Shape
	Issues []StaticIssue
}

// Malformed returns the number of records that failed to decode.
func (p StaticPayload) Malformed() int {
	n := 0
	for _, i := range p.Issues {
		if i.DecodeErr != nil {
			n++
		}
	}
	return n
}

// SemanticPayload is a decoded semantic-review response, with undecodable
// records kept the same way as in StaticPayload.
type SemanticPayload struct {
	Shape  Shape
	Issues []SemanticIssue
}

// Malformed returns the number of records that failed to decode.
func (p SemanticPayload) Malformed() int {
	n := 0
	for _, i := range p.Issues {
		if i.DecodeErr != nil {
			n++
		}
	}
	return n
}

// shapeKey pairs a top-level key with the shape it announces. Order breaks
// ties between keys that are present but empty.
type shapeKey struct {
	key   string
	shape Shape
}

var staticKeys = []shapeKey{
	{"findings", ShapeFindings},
	{"issues", ShapeSonarQube},
	{"vulnerabilities", ShapeSonarBackend},
}

var semanticKeys = []shapeKey{
	{"code_feedback", ShapeCodeFeedback},
	{"issues", ShapeIssues},
	{"review", ShapeKeyIssues},
}

// DecodeStatic decodes a static-analysis response in any of its known shapes.
// A record with bad field types fails alone; the rest of the list survives.
func DecodeStatic(data []byte) (StaticPayload, error) {
	top, err := topLevel(data)
	if err != nil {
		return StaticPayload{}, err
	}
	shape, err := detectShape(top, staticKeys)
	if err != nil {
		return StaticPayload{}, err
	}

	var issues []StaticIssue
	switch shape {
	case ShapeSonarBackend:
		issues, err = decodeList(top["vulnerabilities"], sonarBackendIssue.issue, badStatic)
	case ShapeSonarQube:
		issues, err = decodeList(top["issues"], sonarQubeIssue.issue, badStatic)
	case ShapeFindings:
		issues, err = decodeList(top["findings"], genericStaticFinding.issue, badStatic)
	default:
		return StaticPayload{}, fmt.Errorf("static analyzer: %w: %s", ErrUnknownShape, shape)
	}
	if err != nil {
		return StaticPayload{}, fmt.Errorf("decoding %s: %w", shape, err)
	}
	return StaticPayload{Shape: shape, Issues: issues}, nil
}

// DecodeSemantic decodes a semantic-review response in any of its known shapes.
// A record with bad field types fails alone; the rest of the list survives.
func DecodeSemantic(data []byte) (SemanticPayload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		issues, err := decodeList(trimmed, semanticIssueV1.issue, badSemantic)
		if err != nil {
			return SemanticPayload{}, fmt.Errorf("decoding %s: %w", ShapeArray, err)
		}
		return SemanticPayload{Shape: ShapeArray, Issues: issues}, nil
	}

	top, err := topLevel(trimmed)
	if err != nil {
		return SemanticPayload{}, err
	}
	shape, err := detectShape(top, semanticKeys)
	if err != nil {
		return SemanticPayload{}, err
	}

	var issues []SemanticIssue
	switch shape {
	case ShapeIssues:
		issues, err = decodeList(top["issues"], semanticIssueV1.issue, badSemantic)
	case ShapeKeyIssues:
		var review struct {
			KeyIssues json.RawMessage `json:"key_issues_to_review"`
		}
		if raw, ok := top["review"]; ok && !isNull(raw) {
			if err := json.Unmarshal(raw, &review); err != nil {
				return SemanticPayload{}, fmt.Errorf("decoding %s: %w", shape, err)
			}
		}
		issues, err = decodeList(review.KeyIssues, keyIssue.issue, badSemantic)
	case ShapeCodeFeedback:
		issues, err = decodeList(top["code_feedback"], codeFeedback.issue, badSemantic)
	default:
		return SemanticPayload{}, fmt.Errorf("semantic reviewer: %w: %s", ErrUnknownShape, shape)
	}
	if err != nil {
		return SemanticPayload{}, fmt.Errorf("decoding %s: %w", shape, err)
	}
	return SemanticPayload{Shape: shape, Issues: issues}, nil
}

// decodeList decodes a JSON array record by record. Only a list that is not
// an array fails as a whole; a record that does not decode becomes bad(err).
func decodeList[W any, I any](raw json.RawMessage, convert func(W) I, bad func(error) I) ([]I, error) {
	if len(raw) == 0 || isNull(raw) {
		return nil, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	out := make([]I, 0, len(records))
	for i, rec := range records {
		var w W
		if err := json.Unmarshal(rec, &w); err != nil {
			out = append(out, bad(fmt.Errorf("record %d: %w", i, err)))
			continue
		}
		out = append(out, convert(w))
	}
	return out, nil
}

func badStatic(err error) StaticIssue { return StaticIssue{DecodeErr: err} }
func badSemantic(err error) SemanticIssue { return SemanticIssue{DecodeErr: err} }

func topLevel(data []byte) (map[string]json.RawMessage, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	return top, nil
}

// detectShape picks the layout from an explicit "schema" field or, failing
// that, from the known top-level keys. Only keys carrying records count
// toward ambiguity; when every known key is empty the first one present wins.
func detectShape(top map[string]json.RawMessage, keys []shapeKey) (Shape, error) {
	if raw, ok := top["schema"]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("schema field: %w", err)
		}
		for _, k := range keys {
			if string(k.shape) == s {
				return k.shape, nil
			}
		}
		return "", fmt.Errorf("%w: schema %q", ErrUnknownShape, s)
	}

	var present, populated []Shape
	for _, k := range keys {
		raw, ok := top[k.key]
		if !ok || isNull(raw) {
			continue
		}
		present = append(present, k.shape)
		if !isEmpty(raw) {
			populated = append(populated, k.shape)
		}
	}
	switch {
	case len(populated) == 1:
		return populated[0], nil
	case len(populated) > 1:
		return "", fmt.Errorf("%w: %v", ErrAmbiguousShape, populated)
	case len(present) > 0:
		return present[0], nil
	default:
		return "", ErrUnknownShape
	}
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// isEmpty reports whether raw holds no records: null, an empty array, or an
// object whose members are all empty.
func isEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || isNull(trimmed) {
		return true
	}
	switch trimmed[0] {
	case '[':
		var arr []json.RawMessage
		return json.Unmarshal(trimmed, &arr) == nil && len(arr) == 0
	case '{':
		var obj map[string]json.RawMessage
		if json.Unmarshal(trimmed, &obj) != nil {
			return false
		}
		for _, v := range obj {
			if !isEmpty(v) {
				return false
			}
		}
		return true
	}
	return false
}

// flexInt accepts a JSON number or a numeric string; models often quote line numbers.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
		if s == "" {
			*n = 0
			return nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*n = flexInt(f)
	return nil
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (x *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*x = flexFloat(f)
	return nil
}

// sonarBackendIssue is the record layout of the scanner backend.
type sonarBackendIssue struct {
	Key       string  `json:"key"`
	Rule      string  `json:"rule"`
	Severity  string  `json:"severity"`
	Component string  `json:"component"`
	Line      flexInt `json:"line"`
	Message   string  `json:"message"`
	Type      string  `json:"type"`
}

func (s sonarBackendIssue) issue() StaticIssue {
	return StaticIssue{
		Key:       s.Key,
		Component: s.Component,
		Line:      int(s.Line),
		Rule:      s.Rule,
		Severity:  s.Severity,
		Type:      s.Type,
		Message:   s.Message,
	}
}

// sonarQubeIssue is the record layout of the SonarQube web API.
type sonarQubeIssue struct {
	Key       string  `json:"key"`
	Rule      string  `json:"rule"`
	Severity  string  `json:"severity"`
	Component string  `json:"component"`
	Line      flexInt `json:"line"`
	TextRange *struct {
		StartLine flexInt `json:"startLine"`
		EndLine   flexInt `json:"endLine"`
	} `json:"textRange"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Effort  string `json:"effort"`
}

func (s sonarQubeIssue) issue() StaticIssue {
	out := StaticIssue{
		Key:       s.Key,
		Component: s.Component,
		Line:      int(s.Line),
		Rule:      s.Rule,
		Severity:  s.Severity,
		Type:      s.Type,
		Message:   s.Message,
		Effort:    s.Effort,
	}
	if s.TextRange != nil {
		if out.Line == 0 {
			out.Line = int(s.TextRange.StartLine)
		}
		out.EndLine = int(s.TextRange.EndLine)
	}
	return out
}

// genericStaticFinding is the flat layout used by alternative scanner backends.
type genericStaticFinding struct {
	RuleID            string  `json:"rule_id"`
	File              string  `json:"file"`
	Line              flexInt `json:"line"`
	EndLine           flexInt `json:"end_line"`
	Severity          string  `json:"severity"`
	IssueType         string  `json:"issue_type"`
	Message           string  `json:"message"`
	Snippet           string  `json:"snippet"`
	FixRecommendation string  `json:"fix_recommendation"`
}

func (g genericStaticFinding) issue() StaticIssue {
	return StaticIssue{
		File:              g.File,
		Line:              int(g.Line),
		EndLine:           int(g.EndLine),
		Rule:              g.RuleID,
		Severity:          g.Severity,
		Type:              g.IssueType,
		Message:           g.Message,
		CodeSnippet:       g.Snippet,
		FixRecommendation: g.FixRecommendation,
	}
}

// semanticIssueV1 is the layout requested by the review prompt.
type semanticIssueV1 struct {
	File         string     `json:"file"`
	StartLine    flexInt    `json:"start_line"`
	EndLine      flexInt    `json:"end_line"`
	Type         string     `json:"type"`
	Severity     string     `json:"severity"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Suggestion   string     `json:"suggestion"`
	OriginalCode string     `json:"original_code"`
	FixedCode    string     `json:"fixed_code"`
	Explanation  string     `json:"explanation"`
	CodeSnippet  string     `json:"code_snippet"`
	Confidence   *flexFloat `json:"confidence"`
}

func (r semanticIssueV1) issue() SemanticIssue {
	out := SemanticIssue{
		File:         r.File,
		StartLine:    int(r.StartLine),
		EndLine:      int(r.EndLine),
		Type:         r.Type,
		Severity:     r.Severity,
		Title:        r.Title,
		Description:  r.Description,
		Suggestion:   r.Suggestion,
		OriginalCode: r.OriginalCode,
		FixedCode:    r.FixedCode,
		Explanation:  r.Explanation,
		CodeSnippet:  r.CodeSnippet,
	}
	if r.Confidence != nil {
		c := float64(*r.Confidence)
		out.Confidence = &c
	}
	return out
}

// keyIssue is the "key issues to review" layout of structured review output.
type keyIssue struct {
	RelevantFile string  `json:"relevant_file"`
	StartLine    flexInt `json:"start_line"`
	EndLine      flexInt `json:"end_line"`
	IssueHeader  string  `json:"issue_header"`
	IssueContent string  `json:"issue_content"`
}

func (k keyIssue) issue() SemanticIssue {
	return SemanticIssue{
		File:        k.RelevantFile,
		StartLine:   int(k.StartLine),
		EndLine:     int(k.EndLine),
		Type:        k.IssueHeader,
		Title:       k.IssueHeader,
		Description: k.IssueContent,
	}
}

// codeFeedback is the per-suggestion layout of code improvement output.
type codeFeedback struct {
	RelevantFile       string  `json:"relevant_file"`
	StartLine          flexInt `json:"start_line"`
	EndLine            flexInt `json:"end_line"`
	Label              string  `json:"label"`
	OneSentenceSummary string  `json:"one_sentence_summary"`
	SuggestionContent  string  `json:"suggestion_content"`
	ExistingCode       string  `json:"existing_code"`
	ImprovedCode       string  `json:"improved_code"`
}

func (c codeFeedback) issue() SemanticIssue {
	return SemanticIssue{
		File:         c.RelevantFile,
		StartLine:    int(c.StartLine),
		EndLine:      int(c.EndLine),
		Type:         c.Label,
		Title:        c.OneSentenceSummary,
		Description:  c.SuggestionContent,
		OriginalCode: c.ExistingCode,
		FixedCode:    c.ImprovedCode,
		CodeSnippet:  c.ExistingCode,
	}
}
