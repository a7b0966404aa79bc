package output

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONWriter outputs the full report as indented JSON.
type JSONWriter struct{}

func (j *JSONWriter) Write(w io.Writer, report *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("writing JSON: %w", err)
	}
	return nil
}
