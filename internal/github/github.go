package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/dshills/tandem/internal/finding"
	"github.com/dshills/tandem/internal/reconcile"
)

const (
	defaultAPIURL = "https://api.github.com"
	// maxBodyChars keeps the review body under GitHub's 65536 character limit.
	maxBodyChars = 60000
)

// ErrMissingToken is returned by NewClient when GITHUB_TOKEN is unset.
var ErrMissingToken = errors.New("GITHUB_TOKEN environment variable is not set")

// Client provides access to the pull request endpoints of the GitHub REST API.
type Client struct {
	token   string
	apiURL  string
	httpCli *http.Client
}

// NewClient creates a client from GITHUB_TOKEN and the optional GITHUB_API_URL.
func NewClient() (*Client, error) {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return nil, ErrMissingToken
	}
	apiURL := os.Getenv("GITHUB_API_URL")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Client{
		token:   token,
		apiURL:  strings.TrimRight(apiURL, "/"),
		httpCli: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// PR identifies a pull request.
type PR struct {
	Owner  string
	Repo   string
	Number int
}

func (p PR) String() string {
	return fmt.Sprintf("%s/%s#%d", p.Owner, p.Repo, p.Number)
}

// ReviewComment is an inline comment anchored to a line range of the PR head.
type ReviewComment struct {
	Path      string `json:"path"`
	Line      int    `json:"line"`
	StartLine int    `json:"start_line,omitempty"`
	Body      string `json:"body"`
}

// ReviewRequest is the payload of POST /pulls/{n}/reviews.
type ReviewRequest struct {
	Body     string          `json:"body"`
	Event    string          `json:"event"`
	Comments []ReviewComment `json:"comments"`
}

// Files lists the paths changed by the pull request.
func (c *Client) Files(ctx context.Context, pr PR) ([]string, error) {
	var names []string
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files?per_page=100&page=%d", c.apiURL, pr.Owner, pr.Repo, pr.Number, page)
		body, err := c.do(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("listing files of %s: %w", pr, err)
		}
		var files []struct {
			Filename string `json:"filename"`
		}
		if err := json.Unmarshal(body, &files); err != nil {
			return nil, fmt.Errorf("parsing response: %w", err)
		}
		for _, f := range files {
			names = append(names, f.Filename)
		}
		if len(files) < 100 {
			return names, nil
		}
	}
}

// PostReview posts a pull request review with inline comments.
func (c *Client) PostReview(ctx context.Context, pr PR, review ReviewRequest) error {
	payload, err := json.Marshal(review)
	if err != nil {
		return fmt.Errorf("marshaling review: %w", err)
	}
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/reviews", c.apiURL, pr.Owner, pr.Repo, pr.Number)
	if _, err := c.do(ctx, http.MethodPost, url, payload); err != nil {
		return fmt.Errorf("posting review to %s: %w", pr, err)
	}
	return nil
}

// Publish posts res as a review on pr. Findings outside the PR's files are
// listed in the review body instead of inline.
func (c *Client) Publish(ctx context.Context, pr PR, res *reconcile.AnalysisResult) error {
	files, err := c.Files(ctx, pr)
	if err != nil {
		return err
	}
	inDiff := make(map[string]bool, len(files))
	for _, f := range files {
		inDiff[f] = true
	}
	return c.PostReview(ctx, pr, BuildReview(res, inDiff))
}

func (c *Client) do(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("not found: %s", string(data))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("authentication failed (status %d): %s", resp.StatusCode, string(data))
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("GitHub rejected request (422): %s", string(data))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("GitHub API error (status %d): %s", resp.StatusCode, string(data))
	}
	return data, nil
}

// BuildReview converts an analysis result into a review request. diffFiles is
// the set of paths GitHub will accept inline comments on.
func BuildReview(res *reconcile.AnalysisResult, diffFiles map[string]bool) ReviewRequest {
	var general []string
	comments := []ReviewComment{}

	for _, f := range res.Findings {
		loc := f.Location
		if loc.File == "" || loc.StartLine == 0 || !diffFiles[loc.File] {
			general = append(general, formatFindingBody(f))
			continue
		}
		c := ReviewComment{Path: loc.File, Line: loc.StartLine, Body: formatInlineComment(f)}
		if loc.EndLine > loc.StartLine {
			c.StartLine = loc.StartLine
			c.Line = loc.EndLine
		}
		comments = append(comments, c)
	}

	var sb strings.Builder
	sb.WriteString("## tandem review\n\n")
	fmt.Fprintf(&sb, "Quality gate: **%s** (%d findings, %d with fixes)\n\n", res.Summary.QualityGate, res.Summary.Total, res.Summary.WithFix)
	sb.WriteString("| Severity | Count |\n|----------|-------|\n")
	for _, sev := range finding.Severities {
		fmt.Fprintf(&sb, "| %s | %d |\n", sev, res.Summary.BySeverity[sev])
	}
	sb.WriteString("\n")
	for _, ae := range res.AnalyzerErrors {
		fmt.Fprintf(&sb, "> %s analyzer unavailable: %s\n", ae.Analyzer, ae.Message)
	}
	if len(general) > 0 {
		sb.WriteString("\n### General findings\n\n")
		for _, g := range general {
			sb.WriteString(g)
			sb.WriteString("\n")
		}
	}

	body := sb.String()
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars] + "\n\n_(truncated)_\n"
	}
	return ReviewRequest{Body: body, Event: "COMMENT", Comments: comments}
}

func formatInlineComment(f finding.Finding) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s** (%s, %s, %s)\n\n", f.Title, f.Severity, f.Category, sources(f))
	sb.WriteString(f.Description)
	if f.HasFix() && f.Fix.Applicable {
		fmt.Fprintf(&sb, "\n\n```suggestion\n%s\n```", strings.TrimRight(f.Fix.FixedCode, "\n"))
		if f.Fix.Explanation != "" {
			fmt.Fprintf(&sb, "\n%s", f.Fix.Explanation)
		}
	}
	return sb.String()
}

func formatFindingBody(f finding.Finding) string {
	where := f.Location.File
	if where != "" && f.Location.StartLine > 0 {
		where = fmt.Sprintf("%s:%d", where, f.Location.StartLine)
	}
	if where == "" {
		where = "(no location)"
	}
	return fmt.Sprintf("- **%s** (%s, %s) `%s`: %s", f.Title, f.Severity, f.Category, where, firstLine(f.Description))
}

func sources(f finding.Finding) string {
	parts := []string{string(f.Source)}
	for _, s := range f.AlsoFoundBy {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, "+")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

var (
	httpsRemoteRe = regexp.MustCompile(`https?://[^/]+/([^/]+)/([^/.\s]+)`)
	sshRemoteRe   = regexp.MustCompile(`[^@]+@[^:]+:([^/]+)/([^/.\s]+)`)
)

// ParseRemoteURL extracts owner/repo from a git remote URL.
func ParseRemoteURL(url string) (owner, repo string, err error) {
	url = strings.TrimSuffix(strings.TrimSpace(url), ".git")
	if m := httpsRemoteRe.FindStringSubmatch(url); len(m) == 3 {
		return m[1], m[2], nil
	}
	if m := sshRemoteRe.FindStringSubmatch(url); len(m) == 3 {
		return m[1], m[2], nil
	}
	return "", "", fmt.Errorf("cannot parse owner/repo from remote URL: %s", url)
}
