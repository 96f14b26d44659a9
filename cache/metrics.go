package cache

// EvictReason explains why an entry left the index.
type EvictReason int

const (
	// EvictCapacity — removed by the LRU sweep to satisfy the byte budget.
	EvictCapacity EvictReason = iota
	// EvictTTL — expired (lazily on read or by the background sweep).
	EvictTTL
	// EvictTag — removed by tag invalidation.
	EvictTag
)

// Metrics exposes cache-level observability hooks. NoopMetrics is used when
// no backend is configured; a Prometheus adapter lives in metrics/prom.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int, bytes int64)
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                          {}
func (NoopMetrics) Miss()                         {}
func (NoopMetrics) Evict(EvictReason)             {}
func (NoopMetrics) Size(entries int, bytes int64) {}

var _ Metrics = NoopMetrics{}
