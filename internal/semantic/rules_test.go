package semantic

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tandem/internal/finding"
	"github.com/dshills/tandem/internal/orchestrator"
	"github.com/dshills/tandem/internal/redact"
)

const rulesYAML = `focus:
  - security
  - concurrency
severityOverrides:
  logic: critical
  style: info
required:
  - id: SEC-1
    text: Every handler checks authorization.
`

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRules(t *testing.T) {
	rules, err := LoadRules(writeRules(t, rulesYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"security", "concurrency"}, rules.Focus)
	assert.Equal(t, "critical", rules.SeverityOverrides[finding.CategoryLogic])
	require.Len(t, rules.Required, 1)
	assert.Equal(t, "SEC-1", rules.Required[0].ID)
}

func TestLoadRules_EmptyPath(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	assert.Nil(t, rules)
}

func TestLoadRules_Errors(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadRules(writeRules(t, "focus: [unterminated"))
	assert.Error(t, err)

	_, err = LoadRules(writeRules(t, "severityOverrides:\n  bug: urgent\n"))
	assert.ErrorContains(t, err, "urgent")
}

func TestRules_PromptSection(t *testing.T) {
	var none *Rules
	assert.Empty(t, none.PromptSection())

	rules, err := LoadRules(writeRules(t, rulesYAML))
	require.NoError(t, err)
	section := rules.PromptSection()
	assert.Contains(t, section, "Focus areas: security, concurrency.")
	assert.Contains(t, section, "- [SEC-1] Every handler checks authorization.")
	assert.Less(t, strings.Index(section, "- logic"), strings.Index(section, "- style"))
}

func TestReview_AppliesRules(t *testing.T) {
	rules, err := LoadRules(writeRules(t, rulesYAML))
	require.NoError(t, err)
	client := &scriptedClient{replies: []string{oneIssue}}
	r := NewReviewer(client, redact.Policy{}, nil).WithRules(rules)

	issues, err := r.Review(context.Background(), orchestrator.SemanticRequest{Diff: "+x", ChangedFiles: []string{"app/auth.py"}})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "critical", issues[0].Severity)
	assert.Contains(t, client.requests[0].SystemPrompt, "Required checks")
}
