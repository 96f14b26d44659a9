// Package singleflight coalesces concurrent calls for the same key so the
// underlying work runs at most once while every caller shares the result.
package singleflight

import (
	"context"
	"sync"
)

// Group deduplicates concurrent invocations of fn per key K. The first
// caller for a key becomes the leader and runs fn; followers block on the
// shared result. Publishing (val, err) happens-before close(done), so reads
// after <-done observe the final values.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done chan struct{} // closed once val/err are published
	val  V
	err  error
}

// Do runs fn once for key; concurrent callers with the same key wait for the
// shared result. Cancelling ctx unblocks only that follower — it does not
// stop the leader's fn. Thread ctx into fn if the work itself must be
// cancellable.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (V, error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		done := c.done
		g.mu.Unlock()

		select {
		case <-done:
			return c.val, c.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	// Run fn outside the lock, then publish and wake followers.
	c.val, c.err = fn()
	close(c.done)

	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()

	return c.val, c.err
}
