package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileCache implements Cache with one JSON file per key under a directory.
// This is the default backend: the dashboard runs on a single-board computer
// where surviving restarts matters more than lookup speed. A corrupted or
// unreadable file is treated as a miss, never an error surfaced to callers.
type FileCache[T any] struct {
	dir string
}

// NewFileCache creates the cache directory if needed and returns a cache
// rooted at it.
func NewFileCache[T any](dir string) (*FileCache[T], error) {
	if dir == "" {
		return nil, fmt.Errorf("file cache: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file cache: create %s: %w", dir, err)
	}
	return &FileCache[T]{dir: dir}, nil
}

// Get retrieves cached data for the key if the entry file exists and is not
// expired. Missing, unreadable, and corrupted files all report a miss.
func (c *FileCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if ctx.Err() != nil {
		return zero, false, ctx.Err()
	}
	entry, ok := c.read(key)
	if !ok || !entry.fresh(time.Now()) {
		return zero, false, nil
	}
	return entry.Payload, true, nil
}

// GetStale retrieves cached data even when expired, as long as the entry's
// age does not exceed maxStaleAge.
func (c *FileCache[T]) GetStale(ctx context.Context, key string, maxStaleAge time.Duration) (T, bool, error) {
	var zero T
	if ctx.Err() != nil {
		return zero, false, ctx.Err()
	}
	entry, ok := c.read(key)
	if !ok || !entry.withinStaleWindow(time.Now(), maxStaleAge) {
		return zero, false, nil
	}
	return entry.Payload, true, nil
}

// Set writes the entry to a temp file and renames it into place, so a crash
// mid-write leaves the previous entry intact rather than a truncated file.
func (c *FileCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	now := time.Now()
	raw, err := json.Marshal(envelope[T]{
		FetchedAt: now,
		ExpiresAt: now.Add(ttl),
		Payload:   value,
	})
	if err != nil {
		return fmt.Errorf("file cache: marshal %s: %w", key, err)
	}
	path := c.path(key)
	tmp, err := os.CreateTemp(c.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("file cache: temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("file cache: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("file cache: close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("file cache: rename %s: %w", key, err)
	}
	return nil
}

func (c *FileCache[T]) read(key string) (envelope[T], bool) {
	raw, err := os.ReadFile(c.path(key))
	if err != nil {
		return envelope[T]{}, false
	}
	var entry envelope[T]
	if err := json.Unmarshal(raw, &entry); err != nil {
		return envelope[T]{}, false
	}
	return entry, true
}

func (c *FileCache[T]) path(key string) string {
	return filepath.Join(c.dir, sanitizeKey(key)+".json")
}

// sanitizeKey maps a cache key to a safe file name. Keys are internal
// (e.g. "current:10022"), so collisions after substitution are not a concern.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, key)
}
