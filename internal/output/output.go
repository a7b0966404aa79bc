package output

import (
	"fmt"
	"io"
	"os"

	"github.com/dshills/tandem/internal/reconcile"
)

// Report is an analysis result plus the run metadata shown in reports.
type Report struct {
	Tool    string                    `json:"tool"`
	Version string                    `json:"version"`
	Mode    string                    `json:"mode,omitempty"`
	Repo    string                    `json:"repo,omitempty"`
	Branch  string                    `json:"branch,omitempty"`
	Result  *reconcile.AnalysisResult `json:"result"`
}

// Writer writes a report in a specific format.
type Writer interface {
	Write(w io.Writer, report *Report) error
}

// Formats lists the supported format names.
var Formats = []string{"text", "json", "sarif"}

// GetWriter returns a writer for the specified format.
func GetWriter(format string) (Writer, error) {
	switch format {
	case "text":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "sarif":
		return &SARIFWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteReport writes the report to outPath, or stdout when outPath is empty.
func WriteReport(report *Report, format, outPath string) error {
	writer, err := GetWriter(format)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return writer.Write(w, report)
}
