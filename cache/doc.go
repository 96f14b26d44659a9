// Package cache provides a client-side, multi-tier, generic object cache
// with optional compression and encryption, a byte-budget LRU, TTL expiry
// and tag-based bulk invalidation.
//
// # Design
//
//   - Tiers: a fast in-memory index is the single source of truth for
//     hit/miss decisions. Persistent tiers (store/blob, store/sqlite) hold
//     best-effort mirrors, written asynchronously; on disagreement the
//     index wins and tiers are re-synced at construction. Tiers are
//     namespaced by Config.Version so schema bumps never read stale state.
//
//   - Storage: the index keeps a map[string]*entry for lookups and an
//     intrusive MRU<->LRU doubly linked list for ordering. All operations
//     are O(1) expected; eviction pops from the tail until the byte budget
//     admits the incoming entry, before it is installed.
//
//   - Transforms: values are serialized, then optionally gzip-compressed
//     (above Config.CompressionThreshold, on a worker pool with a bounded
//     round-trip timeout) and encrypted (XChaCha20-Poly1305, random nonce
//     prepended). Reads reverse the stages: decrypt, then decompress. A
//     failed stage on write falls back to the untransformed payload; a
//     failed stage on read is a miss and the corrupted entry is removed.
//
//   - TTL: per-entry deadlines (UnixNano). Expiry is lazy on read, and a
//     background sweep on Config.SweepInterval bounds growth from entries
//     that are never read again.
//
//   - Failure model: nothing in Get/Set surfaces an error to callers. The
//     worst case is a silent miss, which is always safe — the cache holds
//     no authoritative data a caller could not recompute.
//
//   - GetOrLoad coalesces concurrent loads per key using singleflight.
//
//   - Observability: Options.Metrics receives Hit/Miss/Evict/Size signals
//     (NoopMetrics by default; a Prometheus adapter lives in metrics/prom).
//     Subscribe pushes a Stats snapshot after every mutating operation.
//
// # Basic usage
//
//	c := cache.New[[]string](cache.Options[[]string]{
//	    Config: cache.Config{Enabled: true, MaxSize: 10 << 20, DefaultTTL: time.Hour},
//	})
//	defer c.Close()
//
//	c.Set("user:7:sessions", []string{"a", "b"})
//	if v, ok := c.Get("user:7:sessions"); ok {
//	    _ = v
//	}
//
// # With persistent tiers
//
//	tierA, _ := blob.New(blob.Config{Dir: dir, Version: "v1", MaxEntries: 100})
//	tierB, _ := sqlite.New(sqlite.Config{Dir: dir, Version: "v1"})
//	c := cache.New[Payload](cache.Options[Payload]{
//	    Config: cfg,
//	    Stores: []store.Store{tierA, tierB}, // later tiers win at load
//	})
//
// # Concurrency
//
// All methods are safe for concurrent use. Concurrent Sets for different
// keys do not interfere; concurrent Sets for the same key race and the last
// index write wins — there is no per-key sequencing. Access statistics may
// under-count under contention; they are monitoring signals.
package cache
