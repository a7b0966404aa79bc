package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// Archive limits for uploaded trees.
const (
	MaxArchiveEntries   = 50000
	MaxDecompressedSize = 1 << 30
)

var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	"venv":         true,
	".venv":        true,
}

func skipDir(name string) bool { return skippedDirs[name] }

// Archive zips the workspace into a new temp file and returns its path. The
// caller removes the file. Dependency and VCS directories are left out.
func (w *Workspace) Archive() (string, error) {
	f, err := os.CreateTemp("", "tandem-archive-*.zip")
	if err != nil {
		return "", fmt.Errorf("creating archive: %w", err)
	}
	path := f.Name()

	zw := zip.NewWriter(f)
	walkErr := filepath.WalkDir(w.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != w.root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(w.root, p)
		if err != nil {
			return err
		}
		return addFile(zw, p, filepath.ToSlash(rel))
	})

	closeErr := errors.Join(zw.Close(), f.Close())
	if err := errors.Join(walkErr, closeErr); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("archiving workspace: %w", err)
	}
	return path, nil
}

func addFile(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

// Extract unpacks a zip archive into an owned temp workspace. Entries that
// would land outside the workspace are rejected.
func Extract(archivePath string) (*Workspace, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	if len(r.File) > MaxArchiveEntries {
		return nil, fmt.Errorf("too many files in archive: %d > %d", len(r.File), MaxArchiveEntries)
	}

	ws, err := NewTemp("tandem-ws-")
	if err != nil {
		return nil, err
	}
	if err := extractAll(ws.root, r.File); err != nil {
		ws.Close()
		return nil, err
	}
	return ws, nil
}

func extractAll(root string, files []*zip.File) error {
	var total uint64
	for _, f := range files {
		dest, err := within(root, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}
			continue
		}
		total += f.UncompressedSize64
		if total > MaxDecompressedSize {
			return fmt.Errorf("archive exceeds %d bytes uncompressed", MaxDecompressedSize)
		}
		if err := extractFile(dest, f); err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractFile(dest string, f *zip.File) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	//nolint:gosec // G110: bounded by the declared size, checked against MaxDecompressedSize
	_, err = io.Copy(dst, io.LimitReader(src, int64(f.UncompressedSize64)+1))
	return errors.Join(err, dst.Close())
}
