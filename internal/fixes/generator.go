package fixes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/tandem/internal/cache"
	"github.com/dshills/tandem/internal/finding"
	"github.com/dshills/tandem/internal/llm"
	"github.com/dshills/tandem/internal/redact"
)

const (
	// MaxContextChars bounds the related-code context in a fix prompt.
	MaxContextChars = 2000

	fixTemperature = 0.1
	fixMaxTokens   = 2048
)

// ErrNoFix is returned when the model replied without usable fixed code.
var ErrNoFix = errors.New("model returned no fixed code")

// Request is everything a generator may use to propose a fix.
type Request struct {
	Finding     finding.Finding
	FileContent string
	Snippet     string
	Context     string
}

// Generator proposes a fix for one finding.
type Generator interface {
	Generate(ctx context.Context, req Request) (*finding.Fix, error)
}

// LLMGenerator asks a model for fixes and caches the raw replies.
type LLMGenerator struct {
	client llm.Client
	model  string
	cache  *cache.Cache
	policy redact.Policy
	logger *zap.Logger
}

// NewLLMGenerator builds a generator. A nil cache disables caching.
func NewLLMGenerator(client llm.Client, model string, c *cache.Cache, policy redact.Policy, logger *zap.Logger) *LLMGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMGenerator{client: client, model: model, cache: c, policy: policy, logger: logger}
}

type fixReply struct {
	OriginalCode string `json:"original_code"`
	FixedCode    string `json:"fixed_code"`
	Explanation  string `json:"explanation"`
}

// Generate returns a fix or an error; it never returns a nil fix with a nil error.
func (g *LLMGenerator) Generate(ctx context.Context, req Request) (*finding.Fix, error) {
	prompt := g.policy.Text(BuildPrompt(req))
	key := cache.Key(g.client.Name(), g.model, prompt)

	if g.cache != nil {
		if cached, ok := g.cache.Get(key); ok {
			if fix, err := parseFix(cached, req.Snippet); err == nil {
				g.logger.Debug("fix cache hit", zap.String("finding", req.Finding.ID))
				return fix, nil
			}
		}
	}

	resp, err := g.client.Complete(ctx, llm.Request{
		UserPrompt:  prompt,
		MaxTokens:   fixMaxTokens,
		Temperature: fixTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("%s fix: %w", g.client.Name(), err)
	}
	fix, err := parseFix(resp.Content, req.Snippet)
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		if err := g.cache.Put(key, resp.Content); err != nil {
			g.logger.Warn("caching fix response", zap.Error(err))
		}
	}
	return fix, nil
}

func parseFix(content, snippet string) (*finding.Fix, error) {
	raw, err := llm.ExtractJSON(content)
	if err != nil {
		return nil, err
	}
	var reply fixReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("decoding fix reply: %w", err)
	}
	if strings.TrimSpace(reply.FixedCode) == "" {
		return nil, ErrNoFix
	}
	original := reply.OriginalCode
	if original == "" {
		original = snippet
	}
	return &finding.Fix{
		OriginalCode: original,
		FixedCode:    reply.FixedCode,
		Explanation:  reply.Explanation,
		Applicable:   true,
	}, nil
}

// BuildPrompt renders the fix request for one finding.
func BuildPrompt(req Request) string {
	f := req.Finding
	var b strings.Builder
	b.WriteString("Generate a fix for this code issue.\n\n")
	fmt.Fprintf(&b, "Issue Type: %s\n", f.Category)
	fmt.Fprintf(&b, "Severity: %s\n", f.Severity)
	fmt.Fprintf(&b, "File: %s\n", f.Location.File)
	fmt.Fprintf(&b, "Line: %d\n\n", f.Location.StartLine)
	fmt.Fprintf(&b, "Issue: %s\n", f.Title)
	fmt.Fprintf(&b, "Description: %s\n\n", f.Description)

	b.WriteString("Problematic Code:\n```\n")
	b.WriteString(req.Snippet)
	b.WriteString("\n```\n\n")

	if c := truncate(req.Context, MaxContextChars); c != "" {
		b.WriteString("Related Code Context:\n")
		b.WriteString(c)
		b.WriteString("\n\n")
	}
	if f.SourceRuleID != "" {
		fmt.Fprintf(&b, "Rule: %s\n\n", f.SourceRuleID)
	}

	b.WriteString(`Respond with a JSON object containing:
- original_code: the exact code to replace
- fixed_code: the corrected code
- explanation: why this fix works

Respond with ONLY valid JSON.`)
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
