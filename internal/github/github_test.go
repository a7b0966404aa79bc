package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dshills/tandem/internal/finding"
	"github.com/dshills/tandem/internal/reconcile"
)

func testClient(url string) *Client {
	return &Client{token: "test-token", apiURL: url, httpCli: http.DefaultClient}
}

func testResult() *reconcile.AnalysisResult {
	return reconcile.NewResult([]finding.Finding{
		{
			ID:          "a1",
			Source:      finding.SourceSemantic,
			Category:    finding.CategoryBug,
			Severity:    finding.SeverityHigh,
			Location:    finding.Location{File: "main.go", StartLine: 10, EndLine: 12},
			Title:       "Nil dereference",
			Description: "cfg may be nil\nwhen the file is missing",
			Fix:         &finding.Fix{FixedCode: "if cfg == nil {\n\treturn nil\n}\n", Applicable: true},
			AlsoFoundBy: []finding.Source{finding.SourceStatic},
		},
		{
			ID:          "b2",
			Source:      finding.SourceStatic,
			Category:    finding.CategorySecurity,
			Severity:    finding.SeverityCritical,
			Location:    finding.Location{File: "vendor/lib.go", StartLine: 3, EndLine: 3},
			Title:       "Hardcoded credential",
			Description: "password literal",
		},
	})
}

func TestNewClient(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	if _, err := NewClient(); err != ErrMissingToken {
		t.Fatalf("err = %v, want ErrMissingToken", err)
	}

	t.Setenv("GITHUB_TOKEN", "tok")
	t.Setenv("GITHUB_API_URL", "https://ghe.example.com/api/v3/")
	c, err := NewClient()
	if err != nil {
		t.Fatal(err)
	}
	if c.apiURL != "https://ghe.example.com/api/v3" {
		t.Errorf("apiURL = %q", c.apiURL)
	}
}

func TestFiles_Paginates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.URL.Path != "/repos/acme/widgets/pulls/7/files" {
			t.Errorf("Path = %q", r.URL.Path)
		}
		n := 100
		if r.URL.Query().Get("page") == "2" {
			n = 1
		}
		files := make([]map[string]string, n)
		for i := range files {
			files[i] = map[string]string{"filename": fmt.Sprintf("f%s-%d.go", r.URL.Query().Get("page"), i)}
		}
		json.NewEncoder(w).Encode(files)
	}))
	defer server.Close()

	files, err := testClient(server.URL).Files(context.Background(), PR{Owner: "acme", Repo: "widgets", Number: 7})
	if err != nil {
		t.Fatalf("Files error: %v", err)
	}
	if len(files) != 101 {
		t.Fatalf("got %d files, want 101", len(files))
	}
	if files[100] != "f2-0.go" {
		t.Errorf("last file = %q", files[100])
	}
}

func TestPostReview_Errors(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusUnauthorized, "authentication failed"},
		{http.StatusNotFound, "not found"},
		{http.StatusUnprocessableEntity, "rejected"},
		{http.StatusBadGateway, "status 502"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"message":"nope"}`))
			}))
			defer server.Close()

			err := testClient(server.URL).PostReview(context.Background(), PR{Owner: "o", Repo: "r", Number: 1}, ReviewRequest{})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestPublish(t *testing.T) {
	var posted ReviewRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/files"):
			w.Write([]byte(`[{"filename":"main.go"}]`))
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/pulls/3/reviews"):
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
			}
			if err := json.NewDecoder(r.Body).Decode(&posted); err != nil {
				t.Errorf("decoding review: %v", err)
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"id":1}`))
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer server.Close()

	if err := testClient(server.URL).Publish(context.Background(), PR{Owner: "o", Repo: "r", Number: 3}, testResult()); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if len(posted.Comments) != 1 || posted.Comments[0].Path != "main.go" {
		t.Errorf("Comments = %+v, want one inline comment on main.go", posted.Comments)
	}
}

func TestBuildReview(t *testing.T) {
	review := BuildReview(testResult(), map[string]bool{"main.go": true})

	if review.Event != "COMMENT" {
		t.Errorf("Event = %q, want COMMENT", review.Event)
	}
	if len(review.Comments) != 1 {
		t.Fatalf("got %d inline comments, want 1", len(review.Comments))
	}
	c := review.Comments[0]
	if c.StartLine != 10 || c.Line != 12 {
		t.Errorf("range = %d-%d, want 10-12", c.StartLine, c.Line)
	}
	if !strings.Contains(c.Body, "```suggestion\nif cfg == nil {\n\treturn nil\n}\n```") {
		t.Errorf("inline body missing suggestion block:\n%s", c.Body)
	}
	if !strings.Contains(c.Body, "semantic+static") {
		t.Errorf("inline body should credit both sources:\n%s", c.Body)
	}

	for _, want := range []string{
		"Quality gate: **failed**",
		"| critical | 1 |",
		"| high | 1 |",
		"Hardcoded credential",
		"`vendor/lib.go:3`",
	} {
		if !strings.Contains(review.Body, want) {
			t.Errorf("body missing %q:\n%s", want, review.Body)
		}
	}
}

func TestBuildReview_SingleLineAndNoFix(t *testing.T) {
	res := reconcile.NewResult([]finding.Finding{{
		ID:          "c3",
		Source:      finding.SourceSemantic,
		Category:    finding.CategoryStyle,
		Severity:    finding.SeverityLow,
		Location:    finding.Location{File: "a.go", StartLine: 4, EndLine: 4},
		Title:       "Naming",
		Description: "rename",
		Fix:         &finding.Fix{FixedCode: "x := 1", Applicable: false},
	}})
	review := BuildReview(res, map[string]bool{"a.go": true})
	if len(review.Comments) != 1 {
		t.Fatalf("got %d comments, want 1", len(review.Comments))
	}
	c := review.Comments[0]
	if c.StartLine != 0 || c.Line != 4 {
		t.Errorf("StartLine=%d Line=%d, want 0 and 4", c.StartLine, c.Line)
	}
	if strings.Contains(c.Body, "suggestion") {
		t.Error("non-applicable fix should not become a suggestion")
	}
	if strings.Contains(review.Body, "General findings") {
		t.Error("no general findings expected")
	}
}

func TestParseRemoteURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{name: "HTTPS", url: "https://github.com/acme/widgets.git", wantOwner: "acme", wantRepo: "widgets"},
		{name: "HTTPS no .git", url: "https://github.com/acme/widgets", wantOwner: "acme", wantRepo: "widgets"},
		{name: "SSH", url: "git@github.com:acme/widgets.git", wantOwner: "acme", wantRepo: "widgets"},
		{name: "SSH trailing newline", url: "git@github.com:acme/widgets\n", wantOwner: "acme", wantRepo: "widgets"},
		{name: "Invalid", url: "not-a-url", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := ParseRemoteURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if owner != tt.wantOwner || repo != tt.wantRepo {
				t.Errorf("got %s/%s, want %s/%s", owner, repo, tt.wantOwner, tt.wantRepo)
			}
		})
	}
}
