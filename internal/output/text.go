package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/dshills/tandem/internal/finding"
	"github.com/dshills/tandem/internal/reconcile"
)

// TextWriter outputs a human-readable text report.
type TextWriter struct{}

func (t *TextWriter) Write(w io.Writer, report *Report) error {
	ew := &errWriter{w: w}
	res := report.Result
	if res == nil {
		res = &reconcile.AnalysisResult{}
	}

	ew.printf("Tandem Code Review")
	if report.Mode != "" {
		ew.printf(" (%s)", report.Mode)
	}
	ew.println("")
	if report.Repo != "" {
		ew.printf("Repository: %s (branch: %s)\n", report.Repo, report.Branch)
	}
	ew.println(strings.Repeat("=", 60))

	if res.Error != "" {
		ew.printf("Analysis failed: %s\n", res.Error)
		return ew.err
	}

	sum := res.Summary
	ew.printf("Findings: %d total", sum.Total)
	if sum.Total > 0 {
		var parts []string
		for _, sev := range finding.Severities {
			if n := sum.BySeverity[sev]; n > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", n, sev))
			}
		}
		ew.printf(" (%s)", strings.Join(parts, ", "))
	}
	ew.println("")
	ew.printf("Quality gate: %s\n", strings.ToUpper(string(sum.QualityGate)))
	for _, ae := range res.AnalyzerErrors {
		state := "failed"
		if ae.TimedOut {
			state = "timed out"
		}
		ew.printf("Warning: %s analyzer %s: %s\n", ae.Analyzer, state, ae.Message)
	}
	ew.println(strings.Repeat("=", 60))

	if sum.Total == 0 {
		ew.println("\nNo issues found.")
		ew.println("")
		writeFooter(ew, res)
		return ew.err
	}

	// Findings arrive sorted by severity, so a header prints once per group.
	var current finding.Severity
	for _, f := range res.Findings {
		if f.Severity != current {
			current = f.Severity
			ew.printf("\n%s %s\n", severityIcon(current), strings.ToUpper(string(current)))
			ew.println(strings.Repeat("-", 40))
		}
		ew.printf("\n  %s:%d-%d  %s\n", f.Location.File, f.Location.StartLine, f.Location.EndLine, f.Title)
		ew.printf("  %s | %s | confidence %.0f%%\n", f.Category, sources(f), f.Confidence*100)
		for _, line := range wrapText(f.Description, 70) {
			ew.printf("    %s\n", line)
		}
		if f.HasFix() {
			ew.println("  Fix:")
			for _, line := range strings.Split(strings.TrimRight(f.Fix.FixedCode, "\n"), "\n") {
				ew.printf("    | %s\n", line)
			}
			if f.Fix.Explanation != "" {
				for _, line := range wrapText(f.Fix.Explanation, 70) {
					ew.printf("    %s\n", line)
				}
			}
		}
	}

	ew.printf("\n%s\n", strings.Repeat("-", 60))
	writeFooter(ew, res)
	return ew.err
}

func writeFooter(ew *errWriter, res *reconcile.AnalysisResult) {
	ew.printf("Fixes: %d generated, %d failed, %d skipped\n", res.Fixes.Generated, res.Fixes.Failed, res.Fixes.Skipped)
	ew.printf("Completed in %dms\n", res.ExecutionTimeMs)
}

func sources(f finding.Finding) string {
	names := []string{string(f.Source)}
	for _, s := range f.AlsoFoundBy {
		if s != f.Source {
			names = append(names, string(s))
		}
	}
	return strings.Join(names, "+")
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func severityIcon(s finding.Severity) string {
	switch s {
	case finding.SeverityCritical:
		return "[!!!]"
	case finding.SeverityHigh:
		return "[!!]"
	case finding.SeverityMedium:
		return "[!]"
	case finding.SeverityLow:
		return "[-]"
	default:
		return "[i]"
	}
}

func wrapText(text string, width int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= width {
		return []string{text}
	}
	var lines []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if current.Len()+len(word)+1 > width && current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
