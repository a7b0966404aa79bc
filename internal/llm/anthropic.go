package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
)

// Anthropic implements Client for the Anthropic Messages API.
type Anthropic struct {
	apiKey string
	model  string
	url    string
	retry  RetryPolicy
	client *http.Client
}

// NewAnthropic creates an Anthropic client.
func NewAnthropic(apiKey string, opts Options) *Anthropic {
	url := opts.BaseURL
	if url == "" {
		url = anthropicAPIURL
	}
	return &Anthropic{
		apiKey: apiKey,
		model:  opts.Model,
		url:    url,
		retry:  opts.Retry,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Complete(ctx context.Context, req Request) (Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	body := anthropicRequest{
		Model:     a.model,
		MaxTokens: maxTokens,
		System:    req.SystemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: req.UserPrompt}},
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicAPIVersion,
	}
	var resp Response
	err = retryWithBackoff(ctx, a.retry, func() error {
		raw, err := postJSON(ctx, a.client, a.url, headers, payload)
		if err != nil {
			return err
		}
		var result anthropicResponse
		if err := json.Unmarshal(raw, &result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		var content strings.Builder
		for _, block := range result.Content {
			if block.Type == "text" {
				content.WriteString(block.Text)
			}
		}
		resp = Response{
			Content:    content.String(),
			TokensUsed: result.Usage.InputTokens + result.Usage.OutputTokens,
		}
		return nil
	})
	return resp, err
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicBlock `json:"content"`
	Usage   anthropicUsage   `json:"usage"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
