package cache

import (
	"sync"

	"github.com/IvanBrykalov/tiercache/internal/util"
)

// index is the authoritative in-memory tier: a map for lookups plus an
// intrusive doubly linked list ordered by last access (head=MRU, tail=LRU).
// Persistent tiers mirror it; on disagreement the index wins.
//
// A single lock covers every structural change, so eviction and sweeps are
// fully sequenced before control returns to callers — a mutating pass can
// never observe its own partial state through reentrancy.
type index struct {
	// ---- guarded by mu ----
	mu    sync.RWMutex
	m     map[string]*entry
	head  *entry // MRU
	tail  *entry // LRU
	count int
	bytes int64 // sum of entry.size over resident entries

	// Measured compression accounting over resident compressed entries.
	compRaw    int64
	compStored int64

	maxBytes int64

	metrics Metrics
	// onEvict runs under the lock for every eviction (capacity, TTL, tag).
	// Keep it lightweight; the manager only spawns mirror deletes from it.
	onEvict func(e *entry, reason EvictReason)

	// ---- hot counters (own cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.PaddedAtomicInt64
	misses util.PaddedAtomicInt64
	evicts util.PaddedAtomicUint64
}

func newIndex(maxBytes int64, metrics Metrics, onEvict func(*entry, EvictReason)) *index {
	return &index{
		m:        make(map[string]*entry),
		maxBytes: maxBytes,
		metrics:  metrics,
		onEvict:  onEvict,
	}
}

// get returns the stored payload and transform flags, promoting the entry to
// MRU and updating its access fields. Expired entries are evicted and
// reported as misses (lazy expiry).
func (ix *index) get(key string, now int64) (data []byte, compressed, encrypted bool, ok bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	e, found := ix.m[key]
	if !found {
		ix.misses.Add(1)
		ix.metrics.Miss()
		return nil, false, false, false
	}
	if e.expired(now) {
		ix.evictLocked(e, EvictTTL)
		ix.misses.Add(1)
		ix.metrics.Miss()
		return nil, false, false, false
	}

	ix.moveToFront(e)
	e.accessCount++
	e.lastAccessed = now
	ix.hits.Add(1)
	ix.metrics.Hit()
	return e.data, e.compressed, e.encrypted, true
}

// set installs e, evicting from the LRU tail first until the byte budget
// admits it. Returns false when the entry alone exceeds the budget — the
// invariant that resident bytes never exceed maxBytes holds after every set.
func (ix *index) set(e *entry) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if e.size > ix.maxBytes {
		return false
	}

	if old, exists := ix.m[e.key]; exists {
		ix.unlinkLocked(old)
		delete(ix.m, old.key)
	}

	// Evict before insert, never after.
	for ix.bytes+e.size > ix.maxBytes {
		tail := ix.tail
		if tail == nil {
			break
		}
		ix.evictLocked(tail, EvictCapacity)
	}

	ix.m[e.key] = e
	ix.linkFrontLocked(e)
	ix.metrics.Size(ix.count, ix.bytes)
	return true
}

// remove deletes key if present. Explicit removal is not counted as an
// eviction and does not fire onEvict; the manager handles its own mirrors.
func (ix *index) remove(key string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	e, ok := ix.m[key]
	if !ok {
		return false
	}
	ix.unlinkLocked(e)
	delete(ix.m, key)
	ix.metrics.Size(ix.count, ix.bytes)
	return true
}

// has reports whether key is resident and unexpired, without promoting it or
// touching counters.
func (ix *index) has(key string, now int64) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	e, ok := ix.m[key]
	return ok && !e.expired(now)
}

// remainingTTL returns the nanoseconds until key expires. ok is false for
// absent or expired keys; a zero duration with ok=true means no deadline.
func (ix *index) remainingTTL(key string, now int64) (int64, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	e, ok := ix.m[key]
	if !ok || e.expired(now) {
		return 0, false
	}
	if e.exp == 0 {
		return 0, true
	}
	return e.exp - now, true
}

// invalidateTag evicts every entry carrying tag and returns how many.
func (ix *index) invalidateTag(tag string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	removed := 0
	for e := ix.head; e != nil; {
		next := e.next
		if e.hasTag(tag) {
			ix.evictLocked(e, EvictTag)
			removed++
		}
		e = next
	}
	if removed > 0 {
		ix.metrics.Size(ix.count, ix.bytes)
	}
	return removed
}

// sweep evicts every expired entry. Runs on a fixed interval so entries that
// are set and never read again cannot accumulate.
func (ix *index) sweep(now int64) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	removed := 0
	for e := ix.head; e != nil; {
		next := e.next
		if e.expired(now) {
			ix.evictLocked(e, EvictTTL)
			removed++
		}
		e = next
	}
	if removed > 0 {
		ix.metrics.Size(ix.count, ix.bytes)
	}
	return removed
}

// clear drops every entry and resets the hot counters.
func (ix *index) clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.m = make(map[string]*entry)
	ix.head, ix.tail = nil, nil
	ix.count = 0
	ix.bytes = 0
	ix.compRaw, ix.compStored = 0, 0
	ix.hits.Store(0)
	ix.misses.Store(0)
	ix.evicts.Store(0)
	ix.metrics.Size(0, 0)
}

func (ix *index) len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.count
}

// usage returns the resident entry count, byte total, and the raw/stored
// byte sums over compressed entries (for the measured compression ratio).
func (ix *index) usage() (entries int, bytes, compRaw, compStored int64) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.count, ix.bytes, ix.compRaw, ix.compStored
}

// -------------------- internals (mu held) --------------------

func (ix *index) evictLocked(e *entry, reason EvictReason) {
	ix.unlinkLocked(e)
	delete(ix.m, e.key)
	ix.evicts.Add(1)
	ix.metrics.Evict(reason)
	if ix.onEvict != nil {
		ix.onEvict(e, reason)
	}
}

// linkFrontLocked inserts e at MRU in O(1) and updates byte accounting.
func (ix *index) linkFrontLocked(e *entry) {
	e.prev = nil
	e.next = ix.head
	if ix.head != nil {
		ix.head.prev = e
	}
	ix.head = e
	if ix.tail == nil {
		ix.tail = e
	}
	ix.count++
	ix.bytes += e.size
	if e.compressed {
		ix.compRaw += e.rawSize
		ix.compStored += e.size
	}
}

// moveToFront promotes e to MRU in O(1).
func (ix *index) moveToFront(e *entry) {
	if e == ix.head {
		return
	}
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if ix.tail == e {
		ix.tail = e.prev
	}
	e.prev = nil
	e.next = ix.head
	if ix.head != nil {
		ix.head.prev = e
	}
	ix.head = e
	if ix.tail == nil {
		ix.tail = e
	}
}

// unlinkLocked detaches e and updates byte accounting in O(1).
func (ix *index) unlinkLocked(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if ix.head == e {
		ix.head = e.next
	}
	if ix.tail == e {
		ix.tail = e.prev
	}
	e.prev, e.next = nil, nil
	ix.count--
	ix.bytes -= e.size
	if e.compressed {
		ix.compRaw -= e.rawSize
		ix.compStored -= e.size
	}
	if ix.bytes < 0 {
		ix.bytes = 0
	}
}
