package static

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/tandem/internal/finding"
)

// DefaultTimeout bounds one upload-and-scan round trip when the caller's
// context carries no deadline.
const DefaultTimeout = 120 * time.Second

// maxResponseBytes caps how much of a scanner response is read.
const maxResponseBytes = 32 << 20

// ErrNoServiceURL is returned by Scan when no scanner endpoint is configured.
var ErrNoServiceURL = errors.New("static analyzer service URL is not configured")

// Client uploads workspace archives to a static-analysis service.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for the scanner at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Scan POSTs the archive as multipart field "file" to {baseURL}/analyze and
// decodes the response. Any non-200 status is an error.
func (c *Client) Scan(ctx context.Context, archivePath string) ([]finding.StaticIssue, error) {
	if c.baseURL == "" {
		return nil, ErrNoServiceURL
	}
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", "repo.zip")
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("static analyzer request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading static analyzer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("static analyzer returned status %d: %s", resp.StatusCode, snippet(body))
	}

	payload, err := finding.DecodeStatic(body)
	if err != nil {
		return nil, fmt.Errorf("decoding static analyzer response: %w", err)
	}
	c.logger.Debug("static scan finished",
		zap.String("shape", string(payload.Shape)),
		zap.Int("issues", len(payload.Issues)),
		zap.Int("malformed", payload.Malformed()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return payload.Issues, nil
}

func snippet(body []byte) string {
	const n = 200
	s := strings.TrimSpace(string(body))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
