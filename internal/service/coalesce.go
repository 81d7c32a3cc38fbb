package service

import (
	"context"
	"sync"
	"time"
)

// call tracks one in-flight upstream fetch. done is closed once val and err
// are final.
type call[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// coalescer deduplicates concurrent fetches for the same key. The first
// caller runs fn; later callers for the same key block on the same result.
// Every browser tab refreshing on the same interval hits upstream once.
type coalescer[T any] struct {
	mu       sync.Mutex
	inFlight map[string]*call[T]
	timeout  time.Duration
}

func newCoalescer[T any](timeout time.Duration) *coalescer[T] {
	return &coalescer[T]{
		inFlight: make(map[string]*call[T]),
		timeout:  timeout,
	}
}

// Do runs fn for key, or waits for an already running fn with the same key.
// Waiters respect ctx cancellation and the coalescer timeout.
func (c *coalescer[T]) Do(ctx context.Context, key string, fn func() (T, error)) (T, error) {
	c.mu.Lock()
	if existing, ok := c.inFlight[key]; ok {
		c.mu.Unlock()
		return c.wait(ctx, existing)
	}

	cl := &call[T]{done: make(chan struct{})}
	c.inFlight[key] = cl
	c.mu.Unlock()

	cl.val, cl.err = fn()

	c.mu.Lock()
	delete(c.inFlight, key)
	c.mu.Unlock()
	close(cl.done)

	return cl.val, cl.err
}

func (c *coalescer[T]) wait(ctx context.Context, cl *call[T]) (T, error) {
	waitCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	select {
	case <-cl.done:
		return cl.val, cl.err
	case <-waitCtx.Done():
		var zero T
		return zero, waitCtx.Err()
	}
}
