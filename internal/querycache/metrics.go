package querycache

import "github.com/prometheus/client_golang/prometheus"

// Fetch outcomes recorded on the fetches counter.
const (
	outcomeSuccess    = "success"
	outcomeError      = "error"
	outcomeCancelled  = "cancelled"
	outcomeSuperseded = "superseded"
)

type metrics struct {
	hits          prometheus.Counter
	staleHits     prometheus.Counter
	misses        prometheus.Counter
	fetches       *prometheus.CounterVec
	retries       prometheus.Counter
	invalidations prometheus.Counter
	evictions     prometheus.Counter
	entries       prometheus.Gauge
}

// newMetrics builds the cache collectors and registers them with reg when
// reg is non-nil.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "benrt",
			Subsystem: "querycache",
			Name:      "hits_total",
			Help:      "Reads served from fresh cached data.",
		}),
		staleHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "benrt",
			Subsystem: "querycache",
			Name:      "stale_hits_total",
			Help:      "Reads served from stale cached data.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "benrt",
			Subsystem: "querycache",
			Name:      "misses_total",
			Help:      "Reads that had to wait for a fetch.",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "benrt",
			Subsystem: "querycache",
			Name:      "fetches_total",
			Help:      "Settled fetches by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "benrt",
			Subsystem: "querycache",
			Name:      "retries_total",
			Help:      "Fetch attempts repeated after a failure.",
		}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "benrt",
			Subsystem: "querycache",
			Name:      "invalidations_total",
			Help:      "Entries marked stale by prefix invalidation.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "benrt",
			Subsystem: "querycache",
			Name:      "evictions_total",
			Help:      "Entries removed by garbage collection.",
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "benrt",
			Subsystem: "querycache",
			Name:      "entries",
			Help:      "Entries currently held.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.hits, m.staleHits, m.misses, m.fetches, m.retries,
			m.invalidations, m.evictions, m.entries)
	}
	return m
}
