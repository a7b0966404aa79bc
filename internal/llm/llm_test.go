package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

// rewriteTransport redirects every request to the test server.
type rewriteTransport struct {
	base    http.RoundTripper
	baseURL string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	target, _ := url.Parse(t.baseURL)
	req.URL.Scheme = target.Scheme
	req.URL.Host = target.Host
	return t.base.RoundTrip(req)
}

var fastRetry = RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func TestAnthropic_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Error("Missing API key header")
		}
		if r.Header.Get("anthropic-version") != anthropicAPIVersion {
			t.Error("Missing anthropic-version header")
		}
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Temperature == nil || *req.Temperature != 0.1 {
			t.Errorf("temperature = %v, want 0.1", req.Temperature)
		}
		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicBlock{{Type: "text", Text: `{"issues":`}, {Type: "tool_use"}, {Type: "text", Text: `[]}`}},
			Usage:   anthropicUsage{InputTokens: 100, OutputTokens: 10},
		})
	}))
	defer server.Close()

	a := NewAnthropic("test-key", Options{Model: "claude-sonnet-4-20250514", Retry: fastRetry})
	a.client = &http.Client{Transport: &rewriteTransport{base: server.Client().Transport, baseURL: server.URL}}

	resp, err := a.Complete(context.Background(), Request{SystemPrompt: "s", UserPrompt: "u", Temperature: 0.1})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if resp.Content != `{"issues":[]}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.TokensUsed != 110 {
		t.Errorf("TokensUsed = %d, want 110", resp.TokensUsed)
	}
}

func TestAnthropic_AuthErrorNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer server.Close()

	a := NewAnthropic("bad", Options{BaseURL: server.URL, Retry: fastRetry})
	_, err := a.Complete(context.Background(), Request{UserPrompt: "u"})
	if !IsAuthError(err) {
		t.Fatalf("err = %v, want auth error", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestOpenAI_RetriesRateLimitAndServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		switch attempts {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
			return
		case 2:
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("Missing or wrong Authorization header")
		}
		json.NewEncoder(w).Encode(openaiResponse{
			Choices: []openaiChoice{{Message: openaiMessage{Role: "assistant", Content: "[]"}}},
			Usage:   openaiUsage{TotalTokens: 50},
		})
	}))
	defer server.Close()

	o := NewOpenAI("test-key", Options{Model: "gpt-4o", BaseURL: server.URL, Retry: fastRetry})
	resp, err := o.Complete(context.Background(), Request{SystemPrompt: "s", UserPrompt: "u"})
	if err != nil {
		t.Fatalf("Complete error after retries: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if resp.Content != "[]" || resp.TokensUsed != 50 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestOpenAI_RetryExhausted(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}
	o := NewOpenAI("k", Options{BaseURL: server.URL, Retry: policy})
	_, err := o.Complete(context.Background(), Request{UserPrompt: "u"})
	if !IsRateLimited(err) {
		t.Fatalf("err = %v, want rate limit", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestOpenAI_NoKeyOmitsAuthorization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("local servers should not receive an Authorization header")
		}
		json.NewEncoder(w).Encode(openaiResponse{Choices: []openaiChoice{{Message: openaiMessage{Content: "ok"}}}})
	}))
	defer server.Close()

	o := NewOpenAI("", Options{BaseURL: server.URL, Retry: fastRetry})
	if _, err := o.Complete(context.Background(), Request{UserPrompt: "u"}); err != nil {
		t.Fatal(err)
	}
}

func TestOpenAI_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	o := NewOpenAI("k", Options{BaseURL: server.URL, Retry: fastRetry})
	if _, err := o.Complete(context.Background(), Request{UserPrompt: "u"}); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retryWithBackoff(ctx, RetryPolicy{MaxRetries: 5, BaseDelay: time.Hour}, func() error {
		calls++
		cancel()
		return &rateLimitError{}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryPolicy_DelayCapped(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 4 * time.Second}
	if got := p.delay(0); got != time.Second {
		t.Errorf("delay(0) = %v", got)
	}
	if got := p.delay(5); got != 4*time.Second {
		t.Errorf("delay(5) = %v, want cap", got)
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(Options{Provider: "unknown"}); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

func TestNew_MissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := New(Options{Provider: "anthropic"})
	if err == nil {
		t.Fatal("Expected error for missing key")
	}
	if !IsAuthError(err) {
		t.Errorf("missing key should count as an auth error, got %v", err)
	}
}

func TestNew_LocalProviderDefaults(t *testing.T) {
	c, err := New(Options{Provider: "ollama", Model: "llama3"})
	if err != nil {
		t.Fatal(err)
	}
	o, ok := c.(*OpenAI)
	if !ok {
		t.Fatalf("client type = %T, want *OpenAI", c)
	}
	if o.baseURL != "http://localhost:11434/v1/chat/completions" {
		t.Errorf("baseURL = %q", o.baseURL)
	}
	if o.retry != DefaultRetryPolicy() {
		t.Errorf("retry = %+v, want default", o.retry)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"bare array", " [1,2] ", `[1,2]`, false},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"fenced plain", "here:\n```\n[]\n```\nthanks", `[]`, false},
		{"prose around object", `Sure! {"issues":[]} Hope this helps.`, `{"issues":[]}`, false},
		{"prose around array", `Result: [{"x":1}] done`, `[{"x":1}]`, false},
		{"no json", "nothing to see", "", true},
		{"empty", "  ", "", true},
		{"broken", `{"a":`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrNoJSON) {
					t.Errorf("err = %v, want ErrNoJSON", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGemini_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gemini-2.5-flash:generateContent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "g-key" {
			t.Error("Missing API key header")
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "sys" {
			t.Errorf("system instruction = %+v", req.SystemInstruction)
		}
		json.NewEncoder(w).Encode(geminiResponse{
			Candidates:    []geminiCandidate{{Content: geminiContent{Parts: []geminiPart{{Text: `{"issues"`}, {Text: `:[]}`}}}}},
			UsageMetadata: geminiUsage{TotalTokenCount: 42},
		})
	}))
	defer server.Close()

	g := NewGemini("g-key", Options{Model: "gemini-2.5-flash", BaseURL: server.URL + "/", Retry: fastRetry})
	resp, err := g.Complete(context.Background(), Request{SystemPrompt: "sys", UserPrompt: "u"})
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if resp.Content != `{"issues":[]}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.TokensUsed != 42 {
		t.Errorf("TokensUsed = %d, want 42", resp.TokensUsed)
	}
}

func TestGemini_EmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	g := NewGemini("k", Options{Model: "m", BaseURL: server.URL, Retry: RetryPolicy{}})
	if _, err := g.Complete(context.Background(), Request{UserPrompt: "u"}); err == nil {
		t.Error("expected error for empty candidates")
	}
}

func TestNew_GeminiFallsBackToGoogleKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google")
	c, err := New(Options{Provider: "gemini", Model: "gemini-2.5-pro"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Name() != "gemini" {
		t.Errorf("Name = %q, want gemini", c.Name())
	}
}
