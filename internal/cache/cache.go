package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const entryExt = ".json"

// Entry is one cached model response on disk.
type Entry struct {
	Key       string    `json:"key"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"createdAt"`
}

// Cache is a directory of JSON entries, one per key, with a shared TTL.
// A disabled Cache misses every lookup and ignores writes.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
	now     func() time.Time
}

// New opens (creating if needed) a cache directory. An empty dir selects the
// platform cache directory.
func New(enabled bool, dir string, ttl time.Duration) (*Cache, error) {
	if !enabled {
		return &Cache{now: time.Now}, nil
	}
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Cache{dir: dir, ttl: ttl, enabled: true, now: time.Now}, nil
}

// Get returns the cached response for key. Expired entries are removed.
func (c *Cache) Get(key string) (string, bool) {
	if !c.enabled {
		return "", false
	}
	path := c.entryPath(key)
	entry, err := readEntry(path)
	if err != nil {
		return "", false
	}
	if c.expired(entry) {
		_ = os.Remove(path)
		return "", false
	}
	return entry.Response, true
}

// Put stores response under key. The write goes through a temp file so a
// concurrent reader never sees a partial entry.
func (c *Cache) Put(key, response string) error {
	if !c.enabled {
		return nil
	}
	data, err := json.Marshal(Entry{
		Key:       Key(key),
		Response:  response,
		CreatedAt: c.now(),
	})
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, "entry-*.tmp")
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.entryPath(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry and reports how many were deleted.
func (c *Cache) Clear() (int, error) {
	var removed int
	err := c.walk(func(path string, _ fs.DirEntry) {
		if os.Remove(path) == nil {
			removed++
		}
	})
	return removed, err
}

// Prune removes only expired entries.
func (c *Cache) Prune() (int, error) {
	var removed int
	err := c.walk(func(path string, _ fs.DirEntry) {
		entry, err := readEntry(path)
		if err != nil || c.expired(entry) {
			if os.Remove(path) == nil {
				removed++
			}
		}
	})
	return removed, err
}

// Stats describes the cache contents.
type Stats struct {
	Dir        string `json:"dir"`
	Enabled    bool   `json:"enabled"`
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"totalBytes"`
	Expired    int    `json:"expired"`
}

// Stats scans the cache directory.
func (c *Cache) Stats() (Stats, error) {
	stats := Stats{Dir: c.dir, Enabled: c.enabled}
	err := c.walk(func(path string, d fs.DirEntry) {
		info, err := d.Info()
		if err != nil {
			return
		}
		stats.Entries++
		stats.TotalBytes += info.Size()
		if entry, err := readEntry(path); err == nil && c.expired(entry) {
			stats.Expired++
		}
	})
	return stats, err
}

func (c *Cache) Dir() string { return c.dir }

func (c *Cache) Enabled() bool { return c.enabled }

// Key hashes key material into a file-safe identifier.
func Key(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}

// DefaultDir is $XDG_CACHE_HOME/tandem or the platform equivalent.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "tandem"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "tandem"), nil
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "tandem", "cache"), nil
		}
		return filepath.Join(home, "AppData", "Local", "tandem", "cache"), nil
	default:
		return filepath.Join(home, ".cache", "tandem"), nil
	}
}

func (c *Cache) expired(e Entry) bool {
	return c.ttl > 0 && c.now().Sub(e.CreatedAt) > c.ttl
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, Key(key)+entryExt)
}

func (c *Cache) walk(fn func(path string, d fs.DirEntry)) error {
	if !c.enabled || c.dir == "" {
		return nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading cache directory: %w", err)
	}
	for _, d := range entries {
		if d.IsDir() || filepath.Ext(d.Name()) != entryExt {
			continue
		}
		fn(filepath.Join(c.dir, d.Name()), d)
	}
	return nil
}

func readEntry(path string) (Entry, error) {
	var entry Entry
	data, err := os.ReadFile(path)
	if err != nil {
		return entry, err
	}
	err = json.Unmarshal(data, &entry)
	return entry, err
}
