package reconcile

import (
	"github.com/google/uuid"

	"github.com/dshills/tandem/internal/finding"
)

// AnalyzerError records a branch that failed or timed out without failing the run.
type AnalyzerError struct {
	Analyzer string `json:"analyzer"`
	Message  string `json:"message"`
	TimedOut bool   `json:"timedOut,omitempty"`
}

// FixStats reports what the fix backfill pass did.
type FixStats struct {
	Attempted int `json:"attempted"`
	Generated int `json:"generated"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// AnalysisResult is the output of one full run. Treat it as immutable once built.
type AnalysisResult struct {
	RunID           string                 `json:"runId"`
	Findings        []finding.Finding      `json:"findings"`
	Summary         Summary                `json:"summary"`
	ExecutionTimeMs int64                  `json:"executionTimeMs"`
	AnalyzerErrors  []AnalyzerError        `json:"analyzerErrors,omitempty"`
	Skipped         map[finding.Source]int `json:"skipped,omitempty"`
	Fixes           FixStats               `json:"fixes"`
	Error           string                 `json:"error,omitempty"`
}

// NewResult sorts the final deduplicated findings and derives the summary.
func NewResult(final []finding.Finding) *AnalysisResult {
	findings := make([]finding.Finding, len(final))
	copy(findings, final)
	SortFindings(findings)
	return &AnalysisResult{
		RunID:    NewRunID(),
		Findings: findings,
		Summary:  Summarize(findings),
	}
}

// Failure builds the result recorded for a failed run.
func Failure(msg string) *AnalysisResult {
	return &AnalysisResult{RunID: NewRunID(), Error: msg, Findings: []finding.Finding{}}
}

// NewRunID returns a random run identifier.
func NewRunID() string {
	return uuid.NewString()
}
