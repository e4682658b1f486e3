package ingestor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lueurxax/ticker-sentiment-bot/internal/platform/worker"
)

// call is one in-flight operation. val and err are written before done closes.
type call[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// group runs at most one operation per key. Later callers for the same key
// join the running operation and observe its result.
type group[T any] struct {
	mu    sync.Mutex
	calls map[string]*call[T]
}

func newGroup[T any]() *group[T] {
	return &group[T]{calls: make(map[string]*call[T])}
}

// acquireOrJoin returns the running call for key, or registers a new one.
// leader is true when the caller must run the operation and release it.
func (g *group[T]) acquireOrJoin(key string) (c *call[T], leader bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.calls[key]; ok {
		return c, false
	}

	c = &call[T]{done: make(chan struct{})}
	g.calls[key] = c

	return c, true
}

// release clears key and wakes every waiter.
func (g *group[T]) release(key string, c *call[T]) {
	g.mu.Lock()
	if g.calls[key] == c {
		delete(g.calls, key)
	}
	g.mu.Unlock()

	close(c.done)
}

// inFlight reports whether key has a running operation.
func (g *group[T]) inFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.calls[key]

	return ok
}

// do runs fn once per key. The operation runs detached from the caller's
// cancellation, bounded by timeout, so a canceled caller never fails joiners.
// Callers stop waiting when their own ctx ends. joined reports whether the
// caller attached to an operation started by someone else.
func (g *group[T]) do(ctx context.Context, key string, timeout time.Duration, fn func(context.Context) (T, error)) (val T, joined bool, err error) {
	c, leader := g.acquireOrJoin(key)

	if leader {
		runCtx := context.WithoutCancel(ctx)

		go func() {
			defer g.release(key, c)

			c.err = worker.Capture(func() error {
				return worker.RunWithTimeout(runCtx, timeout, func(ctx context.Context) error {
					v, err := fn(ctx)
					c.val = v

					return err
				})
			})
		}()
	}

	select {
	case <-c.done:
		return c.val, !leader, c.err
	case <-ctx.Done():
		var zero T

		return zero, !leader, fmt.Errorf("waiting for %s: %w", key, ctx.Err())
	}
}
