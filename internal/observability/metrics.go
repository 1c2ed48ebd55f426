// Package observability holds the Prometheus instrumentation for the tree
// operations. Metrics are exposed on /metrics by the HTTP layer.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "arbor"

// Metrics bundles the per-operation counters and histograms plus a gauge of
// the stored node count. All operations are thread-safe via Prometheus's
// internal locking.
type Metrics struct {
	// RequestsTotal counts operations by name and outcome.
	// Labels: operation (get_tree, get_all_flat, replace_tree,
	// update_node_data, delete_subtree), status (ok, client_error, error).
	RequestsTotal *prometheus.CounterVec

	// DurationSeconds observes wall time per operation.
	DurationSeconds *prometheus.HistogramVec

	// NodesStored tracks the current node count, refreshed after mutations.
	NodesStored prometheus.Gauge
}

// New registers the metric set on the given registerer. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Tree operations by operation and status.",
		}, []string{"operation", "status"}),
		DurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Wall time per tree operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		NodesStored: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes_stored",
			Help:      "Current number of stored tree nodes.",
		}),
	}
}

// Observe records one completed operation.
func (m *Metrics) Observe(operation, status string, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(operation, status).Inc()
	m.DurationSeconds.WithLabelValues(operation).Observe(elapsed.Seconds())
}
