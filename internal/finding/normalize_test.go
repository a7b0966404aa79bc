package finding

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeStatic_BlockerVulnerability(t *testing.T) {
	raw := StaticIssue{
		Component: "proj:src/a.py",
		Line:      10,
		Rule:      "S6334",
		Severity:  "BLOCKER",
		Type:      "VULNERABILITY",
		Message:   "secret exposed",
	}
	f, err := NormalizeStatic(raw)
	if err != nil {
		t.Fatalf("NormalizeStatic error: %v", err)
	}
	if f.Category != CategorySecurity {
		t.Errorf("Category = %q, want security", f.Category)
	}
	if f.Severity != SeverityCritical {
		t.Errorf("Severity = %q, want critical", f.Severity)
	}
	if f.SourceRuleID != "S6334" {
		t.Errorf("SourceRuleID = %q, want S6334", f.SourceRuleID)
	}
	if f.Confidence != StaticConfidence {
		t.Errorf("Confidence = %v, want %v", f.Confidence, StaticConfidence)
	}
	if f.Location.File != "src/a.py" {
		t.Errorf("File = %q, want src/a.py", f.Location.File)
	}
	if f.Location.StartLine != 10 || f.Location.EndLine != 10 {
		t.Errorf("Lines = %d-%d, want 10-10", f.Location.StartLine, f.Location.EndLine)
	}
	if f.Source != SourceStatic {
		t.Errorf("Source = %q, want static", f.Source)
	}
	if !strings.HasPrefix(f.ID, "static-") || len(f.ID) != len("static-")+12 {
		t.Errorf("ID = %q, want static- prefix and 12 hex chars", f.ID)
	}
	if f.Fix != nil {
		t.Error("static findings should not carry a fix")
	}
}

func TestNormalizeStatic_IdempotentID(t *testing.T) {
	raw := StaticIssue{Component: "p:main.go", Line: 3, Rule: "go:S100", Severity: "MAJOR", Type: "BUG", Message: "x"}
	a, err := NormalizeStatic(raw)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NormalizeStatic(raw)
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != b.ID {
		t.Errorf("IDs differ across runs: %q vs %q", a.ID, b.ID)
	}

	raw.Line = 4
	c, _ := NormalizeStatic(raw)
	if c.ID == a.ID {
		t.Error("different line should produce a different id")
	}
}

func TestNormalizeStatic_Tables(t *testing.T) {
	tests := []struct {
		sev, typ string
		wantSev  Severity
		wantCat  Category
	}{
		{"BLOCKER", "BUG", SeverityCritical, CategoryBug},
		{"CRITICAL", "VULNERABILITY", SeverityCritical, CategorySecurity},
		{"MAJOR", "SECURITY_HOTSPOT", SeverityHigh, CategorySecurity},
		{"MINOR", "CODE_SMELL", SeverityMedium, CategoryMaintainability},
		{"INFO", "CODE_SMELL", SeverityLow, CategoryMaintainability},
		{"minor", "bug", SeverityMedium, CategoryBug},
		{"WHATEVER", "UNKNOWN_TYPE", SeverityMedium, CategoryBug},
		{"", "", SeverityMedium, CategoryMaintainability},
	}
	for _, tt := range tests {
		t.Run(tt.sev+"/"+tt.typ, func(t *testing.T) {
			f, err := NormalizeStatic(StaticIssue{File: "a.go", Line: 1, Rule: "r", Severity: tt.sev, Type: tt.typ, Message: "m"})
			if err != nil {
				t.Fatalf("NormalizeStatic error: %v", err)
			}
			if f.Severity != tt.wantSev {
				t.Errorf("Severity = %q, want %q", f.Severity, tt.wantSev)
			}
			if f.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", f.Category, tt.wantCat)
			}
		})
	}
}

func TestNormalizeStatic_Fallbacks(t *testing.T) {
	f, err := NormalizeStatic(StaticIssue{File: "lib/x.js", EndLine: -3})
	if err != nil {
		t.Fatalf("NormalizeStatic error: %v", err)
	}
	if f.SourceRuleID != "unknown" {
		t.Errorf("SourceRuleID = %q, want unknown", f.SourceRuleID)
	}
	if f.Location.StartLine != 1 || f.Location.EndLine != 1 {
		t.Errorf("Lines = %d-%d, want 1-1", f.Location.StartLine, f.Location.EndLine)
	}
	if f.Title != "Static analysis finding" {
		t.Errorf("Title = %q", f.Title)
	}
}

func TestNormalizeStatic_DescriptionExtras(t *testing.T) {
	f, err := NormalizeStatic(StaticIssue{File: "a.go", Line: 2, Message: "msg", Effort: "5min", FixRecommendation: "do it"})
	if err != nil {
		t.Fatal(err)
	}
	want := "msg\n\nEstimated effort: 5min\n\nRecommendation: do it"
	if f.Description != want {
		t.Errorf("Description = %q, want %q", f.Description, want)
	}
}

func TestNormalizeStatic_TitleTruncated(t *testing.T) {
	msg := strings.Repeat("é", 150)
	f, err := NormalizeStatic(StaticIssue{File: "a.go", Line: 1, Message: msg})
	if err != nil {
		t.Fatal(err)
	}
	if got := len([]rune(f.Title)); got != 100 {
		t.Errorf("title runes = %d, want 100", got)
	}
	if f.Description != msg {
		t.Error("description should keep the full message")
	}
}

func TestNormalizeStatic_MissingFile(t *testing.T) {
	_, err := NormalizeStatic(StaticIssue{Component: "proj:", Rule: "r"})
	if !errors.Is(err, ErrMissingFile) {
		t.Errorf("err = %v, want ErrMissingFile", err)
	}
}

func TestNormalizeSemantic_Defaults(t *testing.T) {
	f, err := NormalizeSemantic(SemanticIssue{
		File:      "svc/handler.go",
		StartLine: 42,
		Type:      "Possible Bug",
		Severity:  "urgent",
		Title:     "nil map write",
	})
	if err != nil {
		t.Fatalf("NormalizeSemantic error: %v", err)
	}
	if f.Category != CategoryBug {
		t.Errorf("Category = %q, want bug", f.Category)
	}
	if f.Severity != SeverityMedium {
		t.Errorf("Severity = %q, want medium", f.Severity)
	}
	if f.Confidence != SemanticConfidence {
		t.Errorf("Confidence = %v, want %v", f.Confidence, SemanticConfidence)
	}
	if f.Location.EndLine != 42 {
		t.Errorf("EndLine = %d, want 42", f.Location.EndLine)
	}
	if !strings.HasPrefix(f.ID, "semantic-") {
		t.Errorf("ID = %q, want semantic- prefix", f.ID)
	}
	if f.Fix != nil {
		t.Error("no suggestion means no fix")
	}
}

func TestSemanticCategory(t *testing.T) {
	tests := map[string]Category{
		"bug":             CategoryBug,
		"error":           CategoryBug,
		"possible_issue":  CategoryBug,
		"logic":           CategoryLogic,
		"Logical Error":   CategoryLogic,
		"SECURITY":        CategorySecurity,
		"style":           CategoryStyle,
		"performance":     CategoryPerformance,
		"maintainability": CategoryMaintainability,
		"typo":            CategoryBug,
		"":                CategoryBug,
	}
	for in, want := range tests {
		if got := SemanticCategory(in); got != want {
			t.Errorf("SemanticCategory(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeSemantic_FixFromSuggestion(t *testing.T) {
	conf := 1.7
	f, err := NormalizeSemantic(SemanticIssue{
		File:        "a.py",
		StartLine:   5,
		EndLine:     7,
		Severity:    "HIGH",
		Title:       "unchecked index",
		Description: "index may be out of range",
		Suggestion:  "if i < len(xs):",
		CodeSnippet: "xs[i]",
		Confidence:  &conf,
	})
	if err != nil {
		t.Fatal(err)
	}
	if f.Severity != SeverityHigh {
		t.Errorf("Severity = %q, want high", f.Severity)
	}
	if f.Confidence != 1 {
		t.Errorf("Confidence = %v, want clamped 1", f.Confidence)
	}
	if f.Fix == nil {
		t.Fatal("expected a fix")
	}
	if f.Fix.FixedCode != "if i < len(xs):" || f.Fix.OriginalCode != "xs[i]" {
		t.Errorf("Fix = %+v", f.Fix)
	}
	if f.Fix.Explanation != "index may be out of range" || !f.Fix.Applicable {
		t.Errorf("Fix = %+v", f.Fix)
	}
}

func TestNormalizeSemantic_StableID(t *testing.T) {
	raw := SemanticIssue{File: "a.go", StartLine: 3, Title: "t"}
	a, _ := NormalizeSemantic(raw)
	raw.Description = "different text"
	b, _ := NormalizeSemantic(raw)
	if a.ID != b.ID {
		t.Errorf("id should depend only on file, line, title: %q vs %q", a.ID, b.ID)
	}
}

func TestNormalizeSemanticAll_CountsSkipped(t *testing.T) {
	batch := NormalizeSemanticAll([]SemanticIssue{
		{File: "a.go", StartLine: 1, Title: "one"},
		{Title: "no file"},
		{File: "b.go", StartLine: 2, Title: "two"},
	})
	if len(batch.Findings) != 2 {
		t.Errorf("findings = %d, want 2", len(batch.Findings))
	}
	if batch.Skipped != 1 || len(batch.Errors) != 1 {
		t.Errorf("skipped = %d errors = %d, want 1/1", batch.Skipped, len(batch.Errors))
	}
}

func TestNormalizeStaticAll_CountsSkipped(t *testing.T) {
	batch := NormalizeStaticAll([]StaticIssue{{Component: "p:a.go", Line: 1}, {}})
	if len(batch.Findings) != 1 || batch.Skipped != 1 {
		t.Errorf("findings=%d skipped=%d, want 1/1", len(batch.Findings), batch.Skipped)
	}
}

func TestMeetsThreshold(t *testing.T) {
	tests := []struct {
		sev       Severity
		threshold string
		want      bool
	}{
		{SeverityCritical, "high", true},
		{SeverityHigh, "high", true},
		{SeverityMedium, "high", false},
		{SeverityInfo, "info", true},
		{SeverityCritical, "none", false},
		{SeverityCritical, "", false},
		{SeverityCritical, "bogus", false},
	}
	for _, tt := range tests {
		if got := MeetsThreshold(tt.sev, tt.threshold); got != tt.want {
			t.Errorf("MeetsThreshold(%q, %q) = %v, want %v", tt.sev, tt.threshold, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	good := Finding{
		ID:         "x",
		Source:     SourceManual,
		Category:   CategoryStyle,
		Severity:   SeverityInfo,
		Location:   Location{File: "a", StartLine: 2, EndLine: 3},
		Title:      "t",
		Confidence: 0.5,
	}
	if err := Validate(good); err != nil {
		t.Fatalf("Validate(good) = %v", err)
	}

	bad := good
	bad.Location.EndLine = 1
	if err := Validate(bad); err == nil {
		t.Error("end before start should fail")
	}
	bad = good
	bad.Severity = "severe"
	if err := Validate(bad); err == nil {
		t.Error("unknown severity should fail")
	}
	bad = good
	bad.Confidence = 1.5
	if err := Validate(bad); err == nil {
		t.Error("confidence above 1 should fail")
	}
}

func TestClone(t *testing.T) {
	f := Finding{Fix: &Fix{FixedCode: "a"}, Tags: []string{"t"}, AlsoFoundBy: []Source{SourceStatic}}
	c := f.Clone()
	c.Fix.FixedCode = "b"
	c.Tags[0] = "u"
	c.AlsoFoundBy[0] = SourceManual
	if f.Fix.FixedCode != "a" || f.Tags[0] != "t" || f.AlsoFoundBy[0] != SourceStatic {
		t.Error("Clone shares memory with the original")
	}
}
