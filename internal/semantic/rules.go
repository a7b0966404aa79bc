package semantic

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/tandem/internal/finding"
)

// Rules is a repository review policy: areas to prioritize, severities to
// force per category, and checks the reviewer must always evaluate.
type Rules struct {
	Focus             []string                    `yaml:"focus,omitempty"`
	SeverityOverrides map[finding.Category]string `yaml:"severityOverrides,omitempty"`
	Required          []RequiredCheck             `yaml:"required,omitempty"`
}

// RequiredCheck is a policy check that is always part of the prompt.
type RequiredCheck struct {
	ID   string `yaml:"id"`
	Text string `yaml:"text"`
}

// LoadRules reads a rules file. An empty path yields nil rules.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parsing rules file %s: %w", path, err)
	}
	for cat, sev := range rules.SeverityOverrides {
		if _, ok := finding.ParseSeverity(sev); !ok {
			return nil, fmt.Errorf("rules file %s: invalid severity %q for %s", path, sev, cat)
		}
	}
	return &rules, nil
}

// PromptSection renders the rules as extra system prompt instructions.
func (r *Rules) PromptSection() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	if len(r.Focus) > 0 {
		fmt.Fprintf(&b, "\nFocus areas: %s. Prioritize findings in these areas.\n", strings.Join(r.Focus, ", "))
	}
	if len(r.SeverityOverrides) > 0 {
		cats := make([]string, 0, len(r.SeverityOverrides))
		for cat := range r.SeverityOverrides {
			cats = append(cats, string(cat))
		}
		sort.Strings(cats)
		b.WriteString("\nSeverity policy:\n")
		for _, cat := range cats {
			fmt.Fprintf(&b, "- %s findings should be rated as %s severity.\n", cat, r.SeverityOverrides[finding.Category(cat)])
		}
	}
	if len(r.Required) > 0 {
		b.WriteString("\nRequired checks (always evaluate these):\n")
		for _, req := range r.Required {
			fmt.Fprintf(&b, "- [%s] %s\n", req.ID, req.Text)
		}
	}
	return b.String()
}

// Apply forces the configured severity onto issues whose type maps to an
// overridden category. Issues are modified in place.
func (r *Rules) Apply(issues []finding.SemanticIssue) []finding.SemanticIssue {
	if r == nil || len(r.SeverityOverrides) == 0 {
		return issues
	}
	for i := range issues {
		if sev, ok := r.SeverityOverrides[finding.SemanticCategory(issues[i].Type)]; ok {
			issues[i].Severity = sev
		}
	}
	return issues
}
