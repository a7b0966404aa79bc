package reconcile

import (
	"sort"

	"github.com/dshills/tandem/internal/finding"
)

// Gate is the quality-gate verdict of a run.
type Gate string

const (
	GatePassed  Gate = "passed"
	GateWarning Gate = "warning"
	GateFailed  Gate = "failed"
)

// warningHighCount is the number of high findings a run may carry before the gate warns.
const warningHighCount = 2

// Summary provides an overview of findings.
type Summary struct {
	Total           int                      `json:"total"`
	WithFix         int                      `json:"withFix"`
	BySource        map[finding.Source]int   `json:"bySource"`
	BySeverity      map[finding.Severity]int `json:"bySeverity"`
	ByCategory      map[finding.Category]int `json:"byCategory"`
	HighestSeverity finding.Severity         `json:"highestSeverity,omitempty"`
	QualityGate     Gate                     `json:"qualityGate"`
}

// Summarize computes the summary of a final, deduplicated finding list.
func Summarize(findings []finding.Finding) Summary {
	s := Summary{
		Total:      len(findings),
		BySource:   make(map[finding.Source]int),
		BySeverity: make(map[finding.Severity]int),
		ByCategory: make(map[finding.Category]int),
	}
	for _, f := range findings {
		s.BySource[f.Source]++
		s.BySeverity[f.Severity]++
		s.ByCategory[f.Category]++
		if f.HasFix() {
			s.WithFix++
		}
		if finding.SeverityRank(f.Severity) > finding.SeverityRank(s.HighestSeverity) {
			s.HighestSeverity = f.Severity
		}
	}
	s.QualityGate = QualityGate(findings)
	return s
}

// QualityGate fails on any critical or security finding, warns on more than
// two high findings, and passes otherwise.
func QualityGate(findings []finding.Finding) Gate {
	var high int
	for _, f := range findings {
		if f.Severity == finding.SeverityCritical || f.Category == finding.CategorySecurity {
			return GateFailed
		}
		if f.Severity == finding.SeverityHigh {
			high++
		}
	}
	if high > warningHighCount {
		return GateWarning
	}
	return GatePassed
}

// SortFindings sorts findings by severity (most severe first), then file, then line.
func SortFindings(findings []finding.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		ri := finding.SeverityRank(findings[i].Severity)
		rj := finding.SeverityRank(findings[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if findings[i].Location.File != findings[j].Location.File {
			return findings[i].Location.File < findings[j].Location.File
		}
		return findings[i].Location.StartLine < findings[j].Location.StartLine
	})
}
