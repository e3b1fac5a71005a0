package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOperation("apply", "ok", time.Now())
	m.ObserveOperation("apply", "conflict", time.Now())
	m.ObserveOperation("apply", "ok", time.Now())
	m.AddVersions(3, 2, 1)
	m.IncrementConflict("CFL002")
	m.SetActiveBatches(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Operations.WithLabelValues("apply", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("apply", "conflict")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.VersionsWritten.WithLabelValues("INSERT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VersionsWritten.WithLabelValues("DELETE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Conflicts.WithLabelValues("CFL002")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveBatches))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("apply", "ok", time.Now())
		m.AddVersions(1, 1, 1)
		m.IncrementConflict("CFL001")
		m.SetActiveBatches(1)
		m.ObserveSnapshotRows(10)
	})
}

func TestNewRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) }, "duplicate registration should panic")
}
