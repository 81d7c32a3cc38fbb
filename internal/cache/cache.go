package cache

import (
	"context"
	"time"
)

// Cache defines the interface for data-source caching implementations.
// Get returns cached data if present and not expired. GetStale additionally
// accepts expired entries whose age is still within maxStaleAge, so callers
// can fall back to old data when an upstream fetch fails. Set stores data
// with TTL, overwriting any previous entry; there is no eviction beyond that.
type Cache[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	GetStale(ctx context.Context, key string, maxStaleAge time.Duration) (T, bool, error)
	Set(ctx context.Context, key string, value T, ttl time.Duration) error
}

// envelope is the stored form of a cache entry. An entry is fresh exactly
// while age <= TTL, i.e. until ExpiresAt; after that it is stale but may
// still be served by GetStale until FetchedAt+maxStaleAge.
type envelope[T any] struct {
	FetchedAt time.Time `json:"fetchedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Payload   T         `json:"payload"`
}

func (e envelope[T]) fresh(now time.Time) bool {
	return !now.After(e.ExpiresAt)
}

func (e envelope[T]) withinStaleWindow(now time.Time, maxStaleAge time.Duration) bool {
	return now.Sub(e.FetchedAt) <= maxStaleAge
}
