package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagersUseSeparateRegistries(t *testing.T) {
	first := NewManager()
	second := NewManager()

	first.GetPrometheusMetrics().RecordAddressProcessed(OutcomeEOA)

	assert.Equal(t, float64(1), testutil.ToFloat64(first.GetPrometheusMetrics().AddressesProcessedTotal.WithLabelValues(OutcomeEOA)))
	assert.Equal(t, float64(0), testutil.ToFloat64(second.GetPrometheusMetrics().AddressesProcessedTotal.WithLabelValues(OutcomeEOA)))
}

func TestNewPrometheusMetricsRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusMetrics(reg)

	assert.Panics(t, func() { NewPrometheusMetrics(reg) })
}

func TestRecordEnrichmentMetrics(t *testing.T) {
	pm := NewManager().GetPrometheusMetrics()

	pm.UpdateAddressesLoaded(5)
	pm.UpdateAddressesRemaining(3)
	pm.RecordAddressProcessed(OutcomeContract)
	pm.RecordAddressProcessed(OutcomeContract)
	pm.RecordExplorerRequest("getsourcecode", "error", 20*time.Millisecond)
	pm.RecordDatabaseOperation("upsert", "addresses", "success", time.Millisecond)
	pm.RecordRunDuration(time.Second)

	assert.Equal(t, float64(5), testutil.ToFloat64(pm.AddressesLoaded))
	assert.Equal(t, float64(3), testutil.ToFloat64(pm.AddressesRemaining))
	assert.Equal(t, float64(2), testutil.ToFloat64(pm.AddressesProcessedTotal.WithLabelValues(OutcomeContract)))
	assert.Equal(t, float64(1), testutil.ToFloat64(pm.ExplorerRequestsTotal.WithLabelValues("getsourcecode", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(pm.DatabaseOperationsTotal.WithLabelValues("upsert", "addresses", "success")))
}

func TestUpdateSystemMetrics(t *testing.T) {
	m := NewManager()
	m.UpdateSystemMetrics()

	assert.Greater(t, testutil.ToFloat64(m.GetPrometheusMetrics().GoroutineCount), float64(0))
	assert.Greater(t, testutil.ToFloat64(m.GetPrometheusMetrics().MemoryUsage), float64(0))

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["go_goroutines"])
	assert.True(t, names["address_enricher_goroutines"])
}
