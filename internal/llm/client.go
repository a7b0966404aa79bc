package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrMissingAPIKey is returned by New when the provider's key variable is unset.
var ErrMissingAPIKey = errors.New("API key environment variable is not set")

// Request contains the prompts sent to a model.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// Response contains the raw text returned by a model.
type Response struct {
	Content    string
	TokensUsed int
}

// Client is the provider abstraction used by the semantic reviewer and the fix generator.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Name() string
}

// Options configures a provider client.
type Options struct {
	Provider string
	Model    string
	// BaseURL overrides the provider endpoint; OpenAI-compatible local servers use it.
	BaseURL string
	Timeout time.Duration
	Retry   RetryPolicy
}

// New creates a provider client by name.
func New(opts Options) (Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetryPolicy()
	}
	switch opts.Provider {
	case "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY: %w", ErrMissingAPIKey)
		}
		return NewAnthropic(key, opts), nil
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY: %w", ErrMissingAPIKey)
		}
		return NewOpenAI(key, opts), nil
	case "gemini":
		key := os.Getenv("GEMINI_API_KEY")
		if key == "" {
			key = os.Getenv("GOOGLE_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY (or GOOGLE_API_KEY): %w", ErrMissingAPIKey)
		}
		return NewGemini(key, opts), nil
	case "ollama", "lmstudio":
		if opts.BaseURL == "" {
			opts.BaseURL = defaultLocalURL(opts.Provider)
		}
		return NewOpenAI(os.Getenv("OPENAI_API_KEY"), opts), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", opts.Provider)
	}
}

func defaultLocalURL(provider string) string {
	if provider == "lmstudio" {
		return "http://localhost:1234/v1/chat/completions"
	}
	return "http://localhost:11434/v1/chat/completions"
}
