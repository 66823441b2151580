package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes Prometheus-compatible counters, gauges, and histograms
// for the enforcement engine, grounded on graph.PrometheusMetrics's
// gauge/histogram/counter split and its promauto.With(registry) registration
// style.
//
// Metrics exposed (namespaced "libcallsandbox_"):
//   - violations_total (counter, label pid): policy violations observed.
//   - frontier_size (gauge, label pid): active NFA states of each pid
//     after its most recent observation.
//   - loads_total (counter): successful policy loads.
//   - observe_duration_seconds (histogram): time spent in Observe,
//     including epsilon closure.
//   - load_duration_seconds (histogram): time spent in Load.
type Metrics struct {
	violations      *prometheus.CounterVec
	frontierSize    *prometheus.GaugeVec
	loads           prometheus.Counter
	observeDuration prometheus.Histogram
	loadDuration    prometheus.Histogram
}

// NewMetrics creates and registers the engine's metrics with registry
// (use prometheus.DefaultRegisterer for the global registry).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	f := promauto.With(registry)
	return &Metrics{
		violations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libcallsandbox",
			Name:      "violations_total",
			Help:      "Total number of policy violations observed, by pid.",
		}, []string{"pid"}),
		frontierSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "libcallsandbox",
			Name:      "frontier_size",
			Help:      "Number of active NFA states of each pid after its most recent observation.",
		}, []string{"pid"}),
		loads: f.NewCounter(prometheus.CounterOpts{
			Namespace: "libcallsandbox",
			Name:      "loads_total",
			Help:      "Total number of successful policy loads.",
		}),
		observeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "libcallsandbox",
			Name:      "observe_duration_seconds",
			Help:      "Time spent in Observe, including epsilon closure.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		loadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "libcallsandbox",
			Name:      "load_duration_seconds",
			Help:      "Time spent in Load.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
