package finding

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// StaticConfidence is assigned to every static finding; the scanner is deterministic.
	StaticConfidence = 0.95
	// SemanticConfidence is the default for semantic findings that carry no score.
	SemanticConfidence = 0.75

	maxTitleRunes = 100
	idHexWidth    = 12
)

// ErrMissingFile is returned when a raw issue cannot be tied to a file.
var ErrMissingFile = errors.New("raw issue has no file")

// ErrMalformed is returned for a raw issue whose wire record did not decode.
var ErrMalformed = errors.New("malformed raw issue")

// StaticIssue is one decoded record from the static-analysis service.
type StaticIssue struct {
	Key               string
	Component         string
	File              string
	Line              int
	EndLine           int
	Rule              string
	Severity          string
	Type              string
	Message           string
	Effort            string
	FixRecommendation string
	CodeSnippet       string

	// DecodeErr is set when the wire record could not be decoded.
	DecodeErr error
}

// SemanticIssue is one decoded record from the semantic reviewer.
type SemanticIssue struct {
	File         string
	StartLine    int
	EndLine      int
	Type         string
	Severity     string
	Title        string
	Description  string
	Suggestion   string
	OriginalCode string
	FixedCode    string
	Explanation  string
	CodeSnippet  string
	Confidence   *float64

	// DecodeErr is set when the wire record could not be decoded.
	DecodeErr error
}

var staticCategories = map[string]Category{
	"BUG":              CategoryBug,
	"VULNERABILITY":    CategorySecurity,
	"SECURITY_HOTSPOT": CategorySecurity,
	"CODE_SMELL":       CategoryMaintainability,
}

var staticSeverities = map[string]Severity{
	"BLOCKER":  SeverityCritical,
	"CRITICAL": SeverityCritical,
	"MAJOR":    SeverityHigh,
	"MINOR":    SeverityMedium,
	"INFO":     SeverityLow,
}

var semanticCategories = map[string]Category{
	"bug":             CategoryBug,
	"error":           CategoryBug,
	"possible_bug":    CategoryBug,
	"possible_issue":  CategoryBug,
	"logic":           CategoryLogic,
	"logical_error":   CategoryLogic,
	"security":        CategorySecurity,
	"style":           CategoryStyle,
	"performance":     CategoryPerformance,
	"maintainability": CategoryMaintainability,
}

// StaticCategory maps a scanner issue type onto a category, defaulting to bug.
func StaticCategory(issueType string) Category {
	if c, ok := staticCategories[strings.ToUpper(strings.TrimSpace(issueType))]; ok {
		return c
	}
	return CategoryBug
}

// StaticSeverity maps a scanner severity onto the canonical scale, defaulting to medium.
func StaticSeverity(sev string) Severity {
	if s, ok := staticSeverities[strings.ToUpper(strings.TrimSpace(sev))]; ok {
		return s
	}
	return SeverityMedium
}

// SemanticCategory maps a free-text issue type onto a category, defaulting to bug.
func SemanticCategory(issueType string) Category {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(issueType)), " ", "_")
	if c, ok := semanticCategories[key]; ok {
		return c
	}
	return CategoryBug
}

// NormalizeStatic converts a static-analysis record into a Finding.
func NormalizeStatic(raw StaticIssue) (Finding, error) {
	if raw.DecodeErr != nil {
		return Finding{}, fmt.Errorf("%w: %w", ErrMalformed, raw.DecodeErr)
	}
	file := raw.File
	if file == "" {
		file = raw.Component
	}
	if i := strings.LastIndex(file, ":"); i >= 0 {
		file = file[i+1:]
	}
	file = strings.TrimSpace(file)
	if file == "" {
		return Finding{}, fmt.Errorf("static issue %q: %w", raw.Key, ErrMissingFile)
	}

	rule := strings.TrimSpace(raw.Rule)
	if rule == "" {
		rule = "unknown"
	}
	start, end := lineRange(raw.Line, raw.EndLine)

	title := truncateRunes(strings.TrimSpace(raw.Message), maxTitleRunes)
	if title == "" {
		title = "Static analysis finding"
	}
	desc := raw.Message
	if raw.Effort != "" {
		desc += "\n\nEstimated effort: " + raw.Effort
	}
	if raw.FixRecommendation != "" {
		desc += "\n\nRecommendation: " + raw.FixRecommendation
	}

	issueType := strings.ToUpper(strings.TrimSpace(raw.Type))
	if issueType == "" {
		issueType = "CODE_SMELL"
	}

	f := Finding{
		ID:           "static-" + shortHash(rule, file, fmt.Sprint(start)),
		Source:       SourceStatic,
		Category:     StaticCategory(issueType),
		Severity:     StaticSeverity(raw.Severity),
		Location:     Location{File: file, StartLine: start, EndLine: end},
		Title:        title,
		Description:  desc,
		CodeSnippet:  raw.CodeSnippet,
		SourceRuleID: rule,
		Confidence:   StaticConfidence,
		Tags:         []string{strings.ToLower(issueType), rule},
	}
	if err := Validate(f); err != nil {
		return Finding{}, err
	}
	return f, nil
}

// NormalizeSemantic converts a semantic-review record into a Finding.
func NormalizeSemantic(raw SemanticIssue) (Finding, error) {
	if raw.DecodeErr != nil {
		return Finding{}, fmt.Errorf("%w: %w", ErrMalformed, raw.DecodeErr)
	}
	file := strings.TrimSpace(raw.File)
	if file == "" {
		return Finding{}, fmt.Errorf("semantic issue %q: %w", raw.Title, ErrMissingFile)
	}
	start, end := lineRange(raw.StartLine, raw.EndLine)

	title := truncateRunes(strings.TrimSpace(raw.Title), maxTitleRunes)
	if title == "" {
		title = "Issue detected"
	}
	sev, ok := ParseSeverity(raw.Severity)
	if !ok {
		sev = SeverityMedium
	}
	confidence := SemanticConfidence
	if raw.Confidence != nil {
		confidence = clamp01(*raw.Confidence)
	}
	category := SemanticCategory(raw.Type)

	f := Finding{
		ID:          "semantic-" + shortHash(file, fmt.Sprint(start), title),
		Source:      SourceSemantic,
		Category:    category,
		Severity:    sev,
		Location:    Location{File: file, StartLine: start, EndLine: end},
		Title:       title,
		Description: raw.Description,
		CodeSnippet: raw.CodeSnippet,
		Confidence:  confidence,
		Tags:        []string{string(category), "ai-detected"},
	}
	if raw.Suggestion != "" || raw.FixedCode != "" {
		f.Fix = &Fix{
			OriginalCode: firstNonEmpty(raw.OriginalCode, raw.CodeSnippet),
			FixedCode:    firstNonEmpty(raw.FixedCode, raw.Suggestion),
			Explanation:  firstNonEmpty(raw.Explanation, raw.Description),
			Applicable:   true,
		}
	}
	if err := Validate(f); err != nil {
		return Finding{}, err
	}
	return f, nil
}

// Batch is the outcome of normalizing a whole analyzer response.
type Batch struct {
	Findings []Finding
	Skipped  int
	Errors   []error
}

// NormalizeStaticAll normalizes every record, counting the ones it has to skip.
func NormalizeStaticAll(issues []StaticIssue) Batch {
	var b Batch
	for _, raw := range issues {
		f, err := NormalizeStatic(raw)
		if err != nil {
			b.Skipped++
			b.Errors = append(b.Errors, err)
			continue
		}
		b.Findings = append(b.Findings, f)
	}
	return b
}

// NormalizeSemanticAll normalizes every record, counting the ones it has to skip.
func NormalizeSemanticAll(issues []SemanticIssue) Batch {
	var b Batch
	for _, raw := range issues {
		f, err := NormalizeSemantic(raw)
		if err != nil {
			b.Skipped++
			b.Errors = append(b.Errors, err)
			continue
		}
		b.Findings = append(b.Findings, f)
	}
	return b
}

func lineRange(start, end int) (int, int) {
	if start < 1 {
		start = 1
	}
	if end < start {
		end = start
	}
	return start, end
}

func shortHash(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%x", h)[:idHexWidth]
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
