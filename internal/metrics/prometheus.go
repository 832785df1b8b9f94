package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "address_enricher"

// PrometheusMetrics contains all Prometheus metrics for the address enricher
type PrometheusMetrics struct {
	// Enrichment metrics
	AddressesProcessedTotal *prometheus.CounterVec
	AddressesRemaining      prometheus.Gauge
	AddressesLoaded         prometheus.Gauge
	RunDuration             prometheus.Histogram

	// Explorer API metrics
	ExplorerRequestsTotal   *prometheus.CounterVec
	ExplorerRequestDuration *prometheus.HistogramVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates all metrics and registers them with reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		AddressesProcessedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "addresses_processed_total",
				Help:      "Total number of addresses handled, by outcome",
			},
			[]string{"outcome"},
		),

		AddressesRemaining: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "addresses_remaining",
				Help:      "Number of loaded addresses not yet handled in the current run",
			},
		),

		AddressesLoaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "addresses_loaded",
				Help:      "Number of unique addresses extracted from traces",
			},
		),

		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of complete enrichment runs",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
			},
		),

		ExplorerRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "explorer_requests_total",
				Help:      "Total number of block-explorer API requests",
			},
			[]string{"action", "status"},
		),

		ExplorerRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "explorer_request_duration_seconds",
				Help:      "Duration of block-explorer API requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action"},
		),

		DatabaseOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "database_operations_total",
				Help:      "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "database_operation_duration_seconds",
				Help:      "Duration of database operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of requests served by the status server",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of requests served by the status server",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "uptime_seconds",
				Help:      "Application uptime in seconds",
			},
		),

		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage in bytes",
			},
		),

		GoroutineCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goroutines",
				Help:      "Current number of goroutines",
			},
		),
	}
}

// RecordAddressProcessed increments the counter for one handled address
func (m *PrometheusMetrics) RecordAddressProcessed(outcome string) {
	m.AddressesProcessedTotal.WithLabelValues(outcome).Inc()
}

// UpdateAddressesLoaded sets the loaded and remaining gauges at the start of a run
func (m *PrometheusMetrics) UpdateAddressesLoaded(count int) {
	m.AddressesLoaded.Set(float64(count))
	m.AddressesRemaining.Set(float64(count))
}

// UpdateAddressesRemaining sets the remaining gauge
func (m *PrometheusMetrics) UpdateAddressesRemaining(count int) {
	m.AddressesRemaining.Set(float64(count))
}

// RecordRunDuration records the duration of a complete run
func (m *PrometheusMetrics) RecordRunDuration(duration time.Duration) {
	m.RunDuration.Observe(duration.Seconds())
}

// RecordExplorerRequest records one explorer API request
func (m *PrometheusMetrics) RecordExplorerRequest(action, status string, duration time.Duration) {
	m.ExplorerRequestsTotal.WithLabelValues(action, status).Inc()
	m.ExplorerRequestDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordDatabaseOperation records one database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordHTTPRequest records one request to the status server
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the uptime gauge
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateMemoryUsage updates the memory usage gauge
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine gauge
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
