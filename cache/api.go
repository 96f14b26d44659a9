package cache

import (
	"context"
	"time"
)

// Cache is a multi-tier object cache: an authoritative in-memory index with
// optional persistent mirror tiers, transparent compression/encryption, a
// byte-budget LRU, TTL expiry and tag invalidation.
//
// All methods are safe for concurrent use. Reads and writes are fail-soft:
// internal errors surface as misses or dropped writes, never as panics or
// errors to presentation-layer callers.
type Cache[V any] interface {
	// Get returns the value for key and a presence flag. Misses cover
	// absence, expiry, and any transform or decode failure (a corrupted
	// entry is removed on detection). On hit the entry is promoted to MRU
	// and its access statistics updated.
	Get(key string) (V, bool)

	// GetOrLoad returns the value for key, loading it via Options.Loader
	// on miss. Concurrent loads for the same key are coalesced
	// (singleflight). Returns ErrNoLoader when no Loader is configured.
	GetOrLoad(ctx context.Context, key string) (V, error)

	// Set inserts or updates key with the default TTL and options.
	// Concurrent Sets for the same key race; the last index write wins.
	Set(key string, v V)

	// SetWithTTL is Set with a per-entry TTL. Negative disables expiry for
	// this entry.
	SetWithTTL(key string, v V, ttl time.Duration)

	// SetWith is Set with the full per-call option set.
	SetWith(key string, v V, opts SetOptions)

	// Has reports whether key is resident and unexpired, without promoting
	// it or counting a hit/miss.
	Has(key string) bool

	// TTL returns the remaining lifetime of key. ok is false for absent or
	// expired keys; a zero duration with ok=true means no deadline.
	TTL(key string) (ttl time.Duration, ok bool)

	// Delete removes key from memory and, best-effort, from every
	// persistent tier. Reports whether the in-memory removal removed
	// anything.
	Delete(key string) bool

	// Clear empties the index and all persistent tiers and resets
	// statistics.
	Clear()

	// InvalidateByTag removes every live entry carrying tag and returns
	// how many were removed.
	InvalidateByTag(tag string) int

	// Preload fetches and stores every key not already cached, tagging the
	// results "preloaded". Loader calls run with bounded concurrency;
	// per-key failures are logged and isolated. Preload returns after
	// every key has been attempted.
	Preload(ctx context.Context, keys []string, loader func(ctx context.Context, key string) (V, error))

	// Warm runs the given warmers concurrently, isolating failures.
	Warm(ctx context.Context, warmers ...func(ctx context.Context) error)

	// Stats returns a point-in-time statistics snapshot.
	Stats() Stats

	// Subscribe registers fn to receive a Stats snapshot after every
	// mutating operation. The returned cancel unregisters it.
	Subscribe(fn func(Stats)) (cancel func())

	// Len returns the number of resident entries.
	Len() int

	// Close stops the TTL sweep, waits for in-flight mirror writes, and
	// closes owned resources. Operations after Close are no-ops.
	Close() error
}

// PreloadTag labels entries stored by Preload.
const PreloadTag = "preloaded"
