// Package prom exports cache metrics to Prometheus.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/tiercache/cache"
)

// Adapter implements cache.Metrics on top of Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evicts    *prometheus.CounterVec
	sizeEnt   prometheus.Gauge
	sizeBytes prometheus.Gauge
}

// New constructs the adapter and registers its collectors.
//   - reg:         registry (nil => prometheus.DefaultRegisterer)
//   - ns, sub:     Prometheus namespace and subsystem
//   - constLabels: static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "hits_total",
			Help:        "Cache hits",
			ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Cache evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		sizeEnt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident entries",
			ConstLabels: constLabels,
		}),
		sizeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_bytes",
			Help:        "Resident payload bytes (after transforms)",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.sizeEnt, a.sizeBytes)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) {
	a.evicts.WithLabelValues(reason(r)).Inc()
}

// Size updates the entry-count and byte gauges.
func (a *Adapter) Size(entries int, bytes int64) {
	a.sizeEnt.Set(float64(entries))
	a.sizeBytes.Set(float64(bytes))
}

// reason maps EvictReason to a stable label value.
func reason(r cache.EvictReason) string {
	switch r {
	case cache.EvictTTL:
		return "ttl"
	case cache.EvictTag:
		return "tag"
	default:
		return "capacity"
	}
}

// Compile-time check: Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
