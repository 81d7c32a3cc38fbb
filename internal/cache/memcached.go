package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcachedCache implements Cache using memcached. The stored item carries
// the fetch/expiry envelope so GetStale can distinguish expired-but-usable
// entries; the memcached item expiration is therefore ttl plus the stale
// window, not the ttl itself.
type MemcachedCache[T any] struct {
	client      *memcache.Client
	keyPrefix   string
	staleWindow time.Duration
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). keyPrefix namespaces
// the two data sources sharing one memcached instance. staleWindow bounds how
// long past expiry an entry stays retrievable via GetStale.
func NewMemcachedCache[T any](addrs, keyPrefix string, timeout time.Duration, maxIdleConns int, staleWindow time.Duration) (*MemcachedCache[T], error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	if keyPrefix == "" {
		return nil, fmt.Errorf("memcached cache: key prefix is required")
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache[T]{client: client, keyPrefix: keyPrefix, staleWindow: staleWindow}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache[T]) key(k string) string {
	return c.keyPrefix + ":" + k
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	entry, ok, err := c.fetch(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	if !entry.fresh(time.Now()) {
		return zero, false, nil
	}
	return entry.Payload, true, nil
}

// GetStale implements Cache.GetStale.
func (c *MemcachedCache[T]) GetStale(ctx context.Context, key string, maxStaleAge time.Duration) (T, bool, error) {
	var zero T
	entry, ok, err := c.fetch(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	if !entry.withinStaleWindow(time.Now(), maxStaleAge) {
		return zero, false, nil
	}
	return entry.Payload, true, nil
}

func (c *MemcachedCache[T]) fetch(ctx context.Context, key string) (envelope[T], bool, error) {
	if ctx.Err() != nil {
		return envelope[T]{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return envelope[T]{}, false, nil
		}
		return envelope[T]{}, false, err
	}
	var entry envelope[T]
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		return envelope[T]{}, false, err
	}
	return entry, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
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
		return err
	}
	expSec := int32((ttl + c.staleWindow).Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600 // fallback 1h if invalid
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expSec,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache[T]) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache[T]) Close() error {
	return c.client.Close()
}
