package static

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tandem/internal/finding"
)

func writeArchive(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repo.zip")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScan_UploadsMultipart(t *testing.T) {
	var gotName, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotName, gotBody = hdr.Filename, string(b)
		w.Write([]byte(`{"vulnerabilities":[{"key":"k1","rule":"python:S2077","severity":"BLOCKER","component":"proj:src/db.py","line":42,"message":"SQL injection","type":"VULNERABILITY"}],"total_count":1}`))
	}))
	defer srv.Close()

	issues, err := New(srv.URL+"/").Scan(context.Background(), writeArchive(t, "ZIPDATA"))
	require.NoError(t, err)

	assert.Equal(t, "repo.zip", gotName)
	assert.Equal(t, "ZIPDATA", gotBody)
	require.Len(t, issues, 1)
	assert.Equal(t, "python:S2077", issues[0].Rule)
	assert.Equal(t, 42, issues[0].Line)

	f, err := finding.NormalizeStatic(issues[0])
	require.NoError(t, err)
	assert.Equal(t, "src/db.py", f.Location.File)
}

func TestScan_Non200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		http.Error(w, "scanner exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Scan(context.Background(), writeArchive(t, "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestScan_UnknownShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(`{"something":"else"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Scan(context.Background(), writeArchive(t, "x"))
	assert.ErrorIs(t, err, finding.ErrUnknownShape)
}

func TestScan_EmptyResultIsValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(`{"issues":[]}`))
	}))
	defer srv.Close()

	issues, err := New(srv.URL).Scan(context.Background(), writeArchive(t, "x"))
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestScan_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(srv.URL).Scan(ctx, writeArchive(t, "x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScan_NotConfigured(t *testing.T) {
	_, err := New("").Scan(context.Background(), "unused")
	assert.ErrorIs(t, err, ErrNoServiceURL)
}

func TestScan_MissingArchive(t *testing.T) {
	_, err := New("http://127.0.0.1:1").Scan(context.Background(), filepath.Join(t.TempDir(), "none.zip"))
	assert.Error(t, err)
}
