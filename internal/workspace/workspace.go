package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrEmpty is returned by Validate when the tree holds no regular files.
	ErrEmpty = errors.New("workspace contains no files")
	// ErrOutsideRoot is returned for relative paths that escape the root.
	ErrOutsideRoot = errors.New("path escapes workspace root")
)

// Workspace is a directory tree under analysis. An owned workspace is a temp
// directory created for one run and removed by Close; a borrowed one is a
// caller's checkout and is never deleted.
type Workspace struct {
	root  string
	owned bool

	once     sync.Once
	closeErr error
}

// Borrow wraps an existing directory.
func Borrow(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}
	return &Workspace{root: abs}, nil
}

// NewTemp creates an owned, empty workspace under the system temp dir.
func NewTemp(prefix string) (*Workspace, error) {
	if prefix == "" {
		prefix = "tandem-"
	}
	dir, err := os.MkdirTemp("", prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	return &Workspace{root: dir, owned: true}, nil
}

func (w *Workspace) Root() string { return w.root }

func (w *Workspace) Owned() bool { return w.owned }

// Validate checks the root is a directory containing at least one file.
func (w *Workspace) Validate() error {
	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("workspace %s: %w", w.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("workspace %s is not a directory", w.root)
	}
	found := errors.New("found")
	err = filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != w.root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if d.Type().IsRegular() {
			return found
		}
		return nil
	})
	if errors.Is(err, found) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("scanning workspace: %w", err)
	}
	return ErrEmpty
}

// Path resolves a workspace-relative path, rejecting escapes.
func (w *Workspace) Path(rel string) (string, error) {
	return within(w.root, rel)
}

// ReadFile reads a workspace-relative file.
func (w *Workspace) ReadFile(rel string) (string, error) {
	path, err := w.Path(rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", rel, err)
	}
	return string(data), nil
}

// Close removes an owned workspace. It is safe to call more than once.
func (w *Workspace) Close() error {
	w.once.Do(func() {
		if w.owned {
			w.closeErr = os.RemoveAll(w.root)
		}
	})
	return w.closeErr
}

func within(root, rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	return filepath.Join(root, clean), nil
}
