package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache implements Cache using an in-memory map. Expired entries are
// retained until they also fall out of the stale window requested by a
// GetStale call; Set overwrites in place. Safe for concurrent use.
type MemoryCache[T any] struct {
	mu   sync.RWMutex
	data map[string]envelope[T]
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache[T any]() *MemoryCache[T] {
	return &MemoryCache[T]{
		data: make(map[string]envelope[T]),
	}
}

// Get retrieves cached data for the key if present and not expired.
// Returns (data, true, nil) on a fresh hit, (zero, false, nil) otherwise.
func (c *MemoryCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if ctx.Err() != nil {
		return zero, false, ctx.Err()
	}
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok || !entry.fresh(time.Now()) {
		return zero, false, nil
	}
	return entry.Payload, true, nil
}

// GetStale retrieves cached data even when expired, as long as the entry's
// age does not exceed maxStaleAge. Entries beyond the window are deleted.
func (c *MemoryCache[T]) GetStale(ctx context.Context, key string, maxStaleAge time.Duration) (T, bool, error) {
	var zero T
	if ctx.Err() != nil {
		return zero, false, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok {
		return zero, false, nil
	}
	if !entry.withinStaleWindow(time.Now(), maxStaleAge) {
		delete(c.data, key)
		return zero, false, nil
	}
	return entry.Payload, true, nil
}

// Set stores data with the specified TTL, replacing any previous entry.
func (c *MemoryCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	now := time.Now()
	c.mu.Lock()
	c.data[key] = envelope[T]{
		FetchedAt: now,
		ExpiresAt: now.Add(ttl),
		Payload:   value,
	}
	c.mu.Unlock()
	return nil
}
