// Package metrics exposes Prometheus metrics for registry operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for reconciliation, rollback, and moderation.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Operation outcomes by operation and outcome ("ok", "validation", "conflict", ...)
	Operations *prometheus.CounterVec

	// Operation latency by operation
	OperationLatency *prometheus.HistogramVec

	// Versions written by change type
	VersionsWritten *prometheus.CounterVec

	// Conflicts by code
	Conflicts *prometheus.CounterVec

	// Batches currently holding a limiter slot
	ActiveBatches prometheus.Gauge

	// Snapshot sizes in rows
	SnapshotRows prometheus.Histogram
}

// New creates a Metrics instance registered with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_operations_total",
			Help: "Total registry operations by operation and outcome",
		}, []string{"operation", "outcome"}),

		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "registry_operation_duration_seconds",
			Help:    "Duration of registry operations",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),

		VersionsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_versions_written_total",
			Help: "Person versions written by change type",
		}, []string{"change_type"}),

		Conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_conflicts_total",
			Help: "Conflicts surfaced to callers by code",
		}, []string{"code"}),

		ActiveBatches: factory.NewGauge(prometheus.GaugeOpts{
			Name: "registry_active_batches",
			Help: "Snapshot batches currently being planned or applied",
		}),

		SnapshotRows: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "registry_snapshot_rows",
			Help:    "Rows per parsed snapshot",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		}),
	}
}

// ObserveOperation records one finished operation.
func (m *Metrics) ObserveOperation(operation, outcome string, start time.Time) {
	if m != nil {
		m.Operations.WithLabelValues(operation, outcome).Inc()
		m.OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// AddVersions records versions written by a committed operation.
func (m *Metrics) AddVersions(inserted, updated, deleted int) {
	if m != nil {
		m.VersionsWritten.WithLabelValues("INSERT").Add(float64(inserted))
		m.VersionsWritten.WithLabelValues("UPDATE").Add(float64(updated))
		m.VersionsWritten.WithLabelValues("DELETE").Add(float64(deleted))
	}
}

// IncrementConflict records a conflict returned to a caller.
func (m *Metrics) IncrementConflict(code string) {
	if m != nil {
		m.Conflicts.WithLabelValues(code).Inc()
	}
}

// SetActiveBatches records the limiter's active count.
func (m *Metrics) SetActiveBatches(n int) {
	if m != nil {
		m.ActiveBatches.Set(float64(n))
	}
}

// ObserveSnapshotRows records the size of a parsed snapshot.
func (m *Metrics) ObserveSnapshotRows(n int) {
	if m != nil {
		m.SnapshotRows.Observe(float64(n))
	}
}
