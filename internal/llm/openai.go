package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const defaultOpenAIURL = "https://api.openai.com/v1/chat/completions"

// OpenAI implements Client for the OpenAI chat completions API and any
// server that speaks the same protocol.
type OpenAI struct {
	apiKey  string
	model   string
	baseURL string
	retry   RetryPolicy
	client  *http.Client
}

// NewOpenAI creates an OpenAI-compatible client.
func NewOpenAI(apiKey string, opts Options) *OpenAI {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}
	return &OpenAI{
		apiKey:  apiKey,
		model:   opts.Model,
		baseURL: baseURL,
		retry:   opts.Retry,
		client:  &http.Client{Timeout: opts.Timeout},
	}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Complete(ctx context.Context, req Request) (Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	var messages []openaiMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: req.UserPrompt})

	body := openaiRequest{Model: o.model, Messages: messages, MaxTokens: maxTokens}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	headers := map[string]string{}
	if o.apiKey != "" {
		headers["Authorization"] = "Bearer " + o.apiKey
	}
	var resp Response
	err = retryWithBackoff(ctx, o.retry, func() error {
		raw, err := postJSON(ctx, o.client, o.baseURL, headers, payload)
		if err != nil {
			return err
		}
		var result openaiResponse
		if err := json.Unmarshal(raw, &result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		if len(result.Choices) == 0 {
			return fmt.Errorf("no choices in response")
		}
		if result.Choices[0].Message.Content == "" {
			return fmt.Errorf("empty text content in API response")
		}
		resp = Response{
			Content:    result.Choices[0].Message.Content,
			TokensUsed: result.Usage.TotalTokens,
		}
		return nil
	})
	return resp, err
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Message openaiMessage `json:"message"`
}

type openaiUsage struct {
	TotalTokens int `json:"total_tokens"`
}
