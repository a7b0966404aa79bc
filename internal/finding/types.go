package finding

import "strings"

// Source identifies the analyzer that produced a finding.
type Source string

const (
	SourceSemantic Source = "semantic"
	SourceStatic   Source = "static"
	SourceManual   Source = "manual"
)

// Severity represents the severity level of a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// SeverityRank returns a numeric rank for sorting (higher = more severe).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// ParseSeverity maps a case-insensitive severity name onto the enum.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if SeverityRank(sev) == 0 {
		return "", false
	}
	return sev, true
}

// MeetsThreshold returns true if severity is at or above the threshold.
func MeetsThreshold(s Severity, threshold string) bool {
	if threshold == "none" || threshold == "" {
		return false
	}
	t, ok := ParseSeverity(threshold)
	if !ok {
		return false
	}
	return SeverityRank(s) >= SeverityRank(t)
}

// Category represents the type of finding.
type Category string

const (
	CategorySecurity        Category = "security"
	CategoryBug             Category = "bug"
	CategoryLogic           Category = "logic"
	CategoryStyle           Category = "style"
	CategoryPerformance     Category = "performance"
	CategoryMaintainability Category = "maintainability"
)

// Location is a 1-indexed inclusive line range within a file.
type Location struct {
	File      string `json:"file" validate:"required"`
	StartLine int    `json:"startLine" validate:"min=1"`
	EndLine   int    `json:"endLine" validate:"gtefield=StartLine"`
}

// Fix is a machine-generated replacement for the code a finding points at.
type Fix struct {
	OriginalCode string `json:"originalCode"`
	FixedCode    string `json:"fixedCode"`
	Explanation  string `json:"explanation"`
	Applicable   bool   `json:"applicable"`
}

// Valid reports whether the fix carries replacement code.
func (f *Fix) Valid() bool {
	return f != nil && strings.TrimSpace(f.FixedCode) != ""
}

// Finding represents a single normalized code review finding.
type Finding struct {
	ID           string   `json:"id" validate:"required"`
	Source       Source   `json:"source" validate:"source"`
	Category     Category `json:"category" validate:"category"`
	Severity     Severity `json:"severity" validate:"severity"`
	Location     Location `json:"location"`
	Title        string   `json:"title" validate:"required"`
	Description  string   `json:"description"`
	CodeSnippet  string   `json:"codeSnippet,omitempty"`
	Fix          *Fix     `json:"fix,omitempty"`
	SourceRuleID string   `json:"sourceRuleId,omitempty"`
	Confidence   float64  `json:"confidence" validate:"gte=0,lte=1"`
	Tags         []string `json:"tags,omitempty"`
	AlsoFoundBy  []Source `json:"alsoFoundBy,omitempty"`
}

// HasFix reports whether the finding carries a usable fix.
func (f Finding) HasFix() bool {
	return f.Fix.Valid()
}

// Clone returns a deep copy so callers can mutate slices and the fix freely.
func (f Finding) Clone() Finding {
	c := f
	if f.Fix != nil {
		fix := *f.Fix
		c.Fix = &fix
	}
	if f.Tags != nil {
		c.Tags = append([]string(nil), f.Tags...)
	}
	if f.AlsoFoundBy != nil {
		c.AlsoFoundBy = append([]Source(nil), f.AlsoFoundBy...)
	}
	return c
}
