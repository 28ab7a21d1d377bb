package explorer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the explorer's Prometheus collectors. One instance is shared
// by every explorer of a process.
type Metrics struct {
	// leafFetches counts leaf bucket fetches.
	// Labels: result (ok, error, stale)
	leafFetches *prometheus.CounterVec

	// leafFetchDuration measures leaf fetch latency in seconds.
	leafFetchDuration prometheus.Histogram

	// cacheLookups counts EnsureLoaded calls.
	// Labels: result (hit, miss)
	cacheLookups *prometheus.CounterVec

	// mutations counts create and edit round trips.
	// Labels: op (create, edit), result (ok, error)
	mutations *prometheus.CounterVec

	// reconcileErrors counts edits whose record was not in its bucket.
	reconcileErrors prometheus.Counter

	// invalidations counts buckets dropped because a parent entity was deleted.
	invalidations prometheus.Counter

	// sessions tracks the number of live explorer sessions.
	sessions prometheus.Gauge
}

// NewMetrics registers the collectors with reg. A nil reg creates unregistered
// collectors, which is what tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		leafFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadboard",
			Subsystem: "explorer",
			Name:      "leaf_fetches_total",
			Help:      "Total leaf bucket fetches by result",
		}, []string{"result"}),
		leafFetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "leadboard",
			Subsystem: "explorer",
			Name:      "leaf_fetch_duration_seconds",
			Help:      "Leaf bucket fetch latency in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadboard",
			Subsystem: "explorer",
			Name:      "cache_lookups_total",
			Help:      "Leaf cache lookups by result",
		}, []string{"result"}),
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadboard",
			Subsystem: "explorer",
			Name:      "mutations_total",
			Help:      "Lead metric writes issued by the explorer",
		}, []string{"op", "result"}),
		reconcileErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "leadboard",
			Subsystem: "explorer",
			Name:      "reconcile_errors_total",
			Help:      "Edits whose record was missing from its cached bucket",
		}),
		invalidations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "leadboard",
			Subsystem: "explorer",
			Name:      "invalidated_buckets_total",
			Help:      "Cached buckets dropped after a parent entity was deleted",
		}),
		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "leadboard",
			Subsystem: "explorer",
			Name:      "sessions",
			Help:      "Live explorer sessions",
		}),
	}
}
