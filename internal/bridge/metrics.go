package bridge

import "github.com/prometheus/client_golang/prometheus"

// Event outcomes recorded on the events counter.
const (
	outcomeApplied = "applied"
	outcomeStale   = "stale"
	outcomeDropped = "dropped"
)

type metrics struct {
	events        *prometheus.CounterVec
	invalidations prometheus.Counter
	refreshes     *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "benrt",
			Subsystem: "bridge",
			Name:      "events_total",
			Help:      "Push events handled, by topic and outcome.",
		}, []string{"topic", "outcome"}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "benrt",
			Subsystem: "bridge",
			Name:      "scan_invalidations_total",
			Help:      "Completed scans that invalidated library reads.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "benrt",
			Subsystem: "bridge",
			Name:      "scan_refreshes_total",
			Help:      "Scan state refreshes after a terminal progress event, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.events, m.invalidations, m.refreshes)
	}
	return m
}
