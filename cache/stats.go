package cache

import (
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Hits      int64
	Misses    int64
	Sets      int64
	Deletes   int64
	Evictions uint64

	TotalEntries int
	TotalSize    int64

	// HitRate is Hits / (Hits + Misses); zero before any traffic.
	HitRate float64

	// AvgAccessTime is the running mean latency of successful Gets,
	// including inverse transforms and decoding.
	AvgAccessTime time.Duration

	// CompressionRatio is measured, not estimated: raw bytes over stored
	// bytes across resident compressed entries. Zero when nothing is
	// compressed; values above 1 mean compression is paying off.
	CompressionRatio float64
}

// tracker accumulates manager-level counters that the index does not own.
// Access statistics may under-count under extreme contention; they are a
// monitoring signal, not a consistency-critical value.
type tracker struct {
	mu          sync.Mutex
	sets        int64
	deletes     int64
	accessTotal time.Duration
	accessCount int64
}

func (t *tracker) recordSet() {
	t.mu.Lock()
	t.sets++
	t.mu.Unlock()
}

func (t *tracker) recordDelete(n int64) {
	t.mu.Lock()
	t.deletes += n
	t.mu.Unlock()
}

func (t *tracker) recordAccess(d time.Duration) {
	t.mu.Lock()
	t.accessTotal += d
	t.accessCount++
	t.mu.Unlock()
}

func (t *tracker) reset() {
	t.mu.Lock()
	t.sets, t.deletes = 0, 0
	t.accessTotal, t.accessCount = 0, 0
	t.mu.Unlock()
}

func (t *tracker) snapshot() (sets, deletes int64, avg time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.accessCount > 0 {
		avg = t.accessTotal / time.Duration(t.accessCount)
	}
	return t.sets, t.deletes, avg
}

// observers is the Subscribe fan-out. Callbacks run synchronously after a
// mutating operation, outside the index lock.
type observers struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Stats)
}

func (o *observers) add(fn func(Stats)) (cancel func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.subs == nil {
		o.subs = make(map[int]func(Stats))
	}
	id := o.next
	o.next++
	o.subs[id] = fn
	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

func (o *observers) notify(s Stats) {
	o.mu.Lock()
	fns := make([]func(Stats), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

func (o *observers) empty() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs) == 0
}
