package gitctx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dshills/tandem/internal/redact"
)

// Mode selects which changes a diff covers.
type Mode string

const (
	ModeUnstaged Mode = "unstaged"
	ModeStaged   Mode = "staged"
	ModeRange    Mode = "range"
)

// DiffOptions controls how diffs are gathered.
type DiffOptions struct {
	Mode         Mode
	Base         string // revision compared against HEAD in ModeRange
	ContextLines int
	MaxDiffBytes int
	Exclude      []string
}

// DiffResult holds the collected diff and the files it touches.
type DiffResult struct {
	Diff  string
	Files []string
	Mode  Mode
	Repo  RepoMeta
}

// RepoMeta contains git repository metadata.
type RepoMeta struct {
	Root   string
	Head   string
	Branch string
}

// Repo runs git in a working directory. An empty Dir uses the process cwd.
type Repo struct {
	Dir string
}

// Meta collects repository metadata.
func (r Repo) Meta(ctx context.Context) (RepoMeta, error) {
	root, err := r.git(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return RepoMeta{}, fmt.Errorf("not a git repository: %w", err)
	}
	// A repo without commits has no HEAD; both stay empty.
	head, _ := r.git(ctx, "rev-parse", "HEAD")
	branch, _ := r.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	return RepoMeta{
		Root:   strings.TrimSpace(root),
		Head:   strings.TrimSpace(head),
		Branch: strings.TrimSpace(branch),
	}, nil
}

// HooksDir returns the repository's hooks directory, honoring core.hooksPath.
func (r Repo) HooksDir(ctx context.Context) (string, error) {
	out, err := r.git(ctx, "rev-parse", "--git-path", "hooks")
	if err != nil {
		return "", fmt.Errorf("not a git repository: %w", err)
	}
	dir := strings.TrimSpace(out)
	if !filepath.IsAbs(dir) && r.Dir != "" {
		dir = filepath.Join(r.Dir, dir)
	}
	return dir, nil
}

// RemoteURL returns the fetch URL of the named remote.
func (r Repo) RemoteURL(ctx context.Context, name string) (string, error) {
	out, err := r.git(ctx, "remote", "get-url", name)
	if err != nil {
		return "", fmt.Errorf("reading remote %s: %w", name, err)
	}
	return strings.TrimSpace(out), nil
}

// Diff collects the diff selected by opts.Mode.
func (r Repo) Diff(ctx context.Context, opts DiffOptions) (DiffResult, error) {
	args := []string{"diff"}
	switch opts.Mode {
	case ModeUnstaged, "":
		opts.Mode = ModeUnstaged
	case ModeStaged:
		args = append(args, "--cached")
	case ModeRange:
		if opts.Base == "" {
			return DiffResult{}, errors.New("range diff requires a base revision")
		}
		args = append(args, opts.Base+"...HEAD")
	default:
		return DiffResult{}, fmt.Errorf("unknown diff mode %q", opts.Mode)
	}
	if opts.ContextLines > 0 {
		args = append(args, fmt.Sprintf("-U%d", opts.ContextLines))
	}
	args = append(args, "--")

	diff, err := r.git(ctx, args...)
	if err != nil {
		return DiffResult{}, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	meta, err := r.Meta(ctx)
	if err != nil {
		return DiffResult{}, err
	}
	res := buildResult(diff, opts)
	res.Repo = meta
	return res, nil
}

func buildResult(diff string, opts DiffOptions) DiffResult {
	// Exclusion runs before truncation so excluded files don't consume the budget.
	if len(opts.Exclude) > 0 {
		diff = filterExcluded(diff, opts.Exclude)
	}
	files := ChangedFiles(diff)
	if opts.MaxDiffBytes > 0 && len(diff) > opts.MaxDiffBytes {
		diff = diff[:opts.MaxDiffBytes] + "\n... (diff truncated at max-diff-bytes limit)\n"
	}
	return DiffResult{Diff: diff, Files: files, Mode: opts.Mode}
}

// ChangedFiles lists the post-image paths of a unified diff in order of
// appearance. Deleted files are not included.
func ChangedFiles(diff string) []string {
	var files []string
	seen := make(map[string]bool)
	for _, line := range strings.Split(diff, "\n") {
		if !strings.HasPrefix(line, "+++ b/") {
			continue
		}
		f := strings.TrimSpace(strings.TrimPrefix(line, "+++ b/"))
		if f != "" && !seen[f] {
			seen[f] = true
			files = append(files, f)
		}
	}
	return files
}

func filterExcluded(diff string, excludes []string) string {
	var kept strings.Builder
	for _, section := range splitDiffSections(diff) {
		path := sectionPath(section)
		if path == "" || !redact.MatchPath(path, excludes) {
			kept.WriteString(section)
		}
	}
	return kept.String()
}

func splitDiffSections(diff string) []string {
	var sections []string
	var current strings.Builder
	for _, line := range strings.SplitAfter(diff, "\n") {
		if strings.HasPrefix(line, "diff --git") && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		sections = append(sections, current.String())
	}
	return sections
}

func sectionPath(section string) string {
	for _, line := range strings.Split(section, "\n") {
		if strings.HasPrefix(line, "+++ b/") {
			return strings.TrimPrefix(line, "+++ b/")
		}
	}
	return ""
}

func (r Repo) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return string(out), fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}
