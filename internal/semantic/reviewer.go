package semantic

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/tandem/internal/finding"
	"github.com/dshills/tandem/internal/llm"
	"github.com/dshills/tandem/internal/orchestrator"
	"github.com/dshills/tandem/internal/redact"
)

const (
	reviewTemperature = 0.2
	reviewMaxTokens   = 8192
)

// Reviewer runs an LLM review over a diff and returns the raw issues.
type Reviewer struct {
	client llm.Client
	policy redact.Policy
	rules  *Rules
	logger *zap.Logger
}

// NewReviewer wires a reviewer to a provider client. policy scrubs the
// prompt before it is sent.
func NewReviewer(client llm.Client, policy redact.Policy, logger *zap.Logger) *Reviewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reviewer{client: client, policy: policy, logger: logger}
}

// WithRules attaches a repository rules pack. Nil clears it.
func (r *Reviewer) WithRules(rules *Rules) *Reviewer {
	r.rules = rules
	return r
}

// Review sends one review request. An unparseable reply gets exactly one
// repair round trip before the review fails.
func (r *Reviewer) Review(ctx context.Context, req orchestrator.SemanticRequest) ([]finding.SemanticIssue, error) {
	contexts := make(map[string]string, len(req.Contexts))
	for file, c := range req.Contexts {
		contexts[file] = r.policy.File(file, c)
	}
	prompt := BuildUserPrompt(r.policy.Diff(req.Diff), req.ChangedFiles, contexts)
	system := systemPrompt + r.rules.PromptSection()

	resp, err := r.client.Complete(ctx, llm.Request{
		SystemPrompt: system,
		UserPrompt:   prompt,
		MaxTokens:    reviewMaxTokens,
		Temperature:  reviewTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%s review: %w", r.client.Name(), err)
	}

	issues, perr := Parse(resp.Content)
	if perr == nil {
		r.logger.Debug("semantic review parsed",
			zap.Int("issues", len(issues)),
			zap.Int("tokens", resp.TokensUsed))
		return r.rules.Apply(issues), nil
	}
	r.logger.Warn("semantic review reply unparseable, retrying once", zap.Error(perr))

	repaired, err := r.client.Complete(ctx, llm.Request{
		SystemPrompt: system,
		UserPrompt:   repairPrompt + truncateDiff(resp.Content, MaxDiffChars),
		MaxTokens:    reviewMaxTokens,
		Temperature:  0,
	})
	if err != nil {
		return nil, fmt.Errorf("%s review repair: %w", r.client.Name(), err)
	}
	issues, err = Parse(repaired.Content)
	if err != nil {
		return nil, fmt.Errorf("parsing review response: %w", errors.Join(perr, err))
	}
	return r.rules.Apply(issues), nil
}

// Parse extracts and decodes the JSON payload of a reviewer reply.
func Parse(content string) ([]finding.SemanticIssue, error) {
	raw, err := llm.ExtractJSON(content)
	if err != nil {
		return nil, err
	}
	payload, err := finding.DecodeSemantic(raw)
	if err != nil {
		return nil, err
	}
	return payload.Issues, nil
}
