package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const geminiAPIURL = "https://generativelanguage.googleapis.com/v1beta/models"

// Gemini implements Client for Google's generateContent API.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
	retry   RetryPolicy
	client  *http.Client
}

// NewGemini creates a Gemini client. BaseURL replaces the models endpoint prefix.
func NewGemini(apiKey string, opts Options) *Gemini {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = geminiAPIURL
	}
	return &Gemini{
		apiKey:  apiKey,
		model:   opts.Model,
		baseURL: strings.TrimRight(baseURL, "/"),
		retry:   opts.Retry,
		client:  &http.Client{Timeout: opts.Timeout},
	}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Complete(ctx context.Context, req Request) (Response, error) {
	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.UserPrompt}}}},
		GenerationConfig: &geminiGenConfig{
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}
	if body.GenerationConfig.MaxOutputTokens == 0 {
		body.GenerationConfig.MaxOutputTokens = 4096
	}
	if req.Temperature > 0 {
		body.GenerationConfig.Temperature = &req.Temperature
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent", g.baseURL, g.model)
	headers := map[string]string{"x-goog-api-key": g.apiKey}
	var resp Response
	err = retryWithBackoff(ctx, g.retry, func() error {
		raw, err := postJSON(ctx, g.client, url, headers, payload)
		if err != nil {
			return err
		}
		var result geminiResponse
		if err := json.Unmarshal(raw, &result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
			return fmt.Errorf("no content in response")
		}
		var content strings.Builder
		for _, part := range result.Candidates[0].Content.Parts {
			content.WriteString(part.Text)
		}
		resp = Response{
			Content:    content.String(),
			TokensUsed: result.UsageMetadata.TotalTokenCount,
		}
		return nil
	})
	return resp, err
}

type geminiRequest struct {
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata geminiUsage       `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

type geminiUsage struct {
	TotalTokenCount int `json:"totalTokenCount"`
}
