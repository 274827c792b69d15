package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the ingestion pipeline, the export
// engine, the PowerBI optimizer's caches, and the HTTP API surface that
// fronts them.

var (
	// Ingestion Pipeline Metrics (C5)
	IngestionAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestion_attempts_total",
			Help: "Total number of single-dataset ingestion runs, counted once per terminal outcome",
		},
		[]string{"dataset_id", "outcome"}, // outcome: success, skipped, failed
	)

	IngestionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingestion_duration_seconds",
			Help:    "Duration of a single-dataset ingestion attempt",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"dataset_id"},
	)

	IngestionRecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestion_records_processed_total",
			Help: "Total number of observations persisted by the ingestion pipeline",
		},
		[]string{"dataset_id"},
	)

	IngestionRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestion_retries_total",
			Help: "Total number of retry attempts issued after a transient upstream failure",
		},
		[]string{"dataset_id"},
	)

	IngestionBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingestion_batch_duration_seconds",
			Help:    "Duration of a full priority-set batch run",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// Export Engine Metrics (C6)
	ExportRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "export_requests_total",
			Help: "Total number of export requests",
		},
		[]string{"dataset_id", "format", "mode"}, // mode: buffered, streaming
	)

	ExportRowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "export_rows_written_total",
			Help: "Total number of rows written across all export requests",
		},
		[]string{"dataset_id", "format"},
	)

	ExportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "export_duration_seconds",
			Help:    "Duration of an export request from query to final byte",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"format"},
	)

	// PowerBI Optimizer Cache Metrics (C7)
	StarSchemaCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "powerbi_star_schema_cache_hits_total",
			Help: "Total number of star-schema cache hits",
		},
	)

	StarSchemaCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "powerbi_star_schema_cache_misses_total",
			Help: "Total number of star-schema cache misses (derivation performed)",
		},
	)

	DaxMeasureCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "powerbi_dax_measure_cache_hits_total",
			Help: "Total number of DAX measure-set cache hits",
		},
	)

	DaxMeasureCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "powerbi_dax_measure_cache_misses_total",
			Help: "Total number of DAX measure-set cache misses (generation performed)",
		},
	)

	// Incremental Refresh Metrics (C8)
	RefreshExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "incremental_refresh_executions_total",
			Help: "Total number of incremental refresh executions",
		},
		[]string{"dataset_id", "outcome"}, // outcome: applied, skipped (no changes); no-policy and disabled-policy runs are not counted
	)

	RefreshPushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "incremental_refresh_push_failures_total",
			Help: "Total number of best-effort PowerBI push failures during refresh",
		},
	)

	// Generic Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"}, // "preference", "star_schema", "dax_measures"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Circuit Breaker Metrics (wraps the SDMX client call)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through the circuit breaker",
		},
		[]string{"name", "result"}, // result: success, failure (open-breaker rejections count as failure)
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Audit Metrics
	AuditEventsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_written_total",
			Help: "Total number of audit events persisted",
		},
		[]string{"action", "success"},
	)
)

// RecordIngestionAttempt records the terminal outcome of a single-dataset
// ingestion attempt.
func RecordIngestionAttempt(datasetID, outcome string, duration time.Duration) {
	IngestionAttempts.WithLabelValues(datasetID, outcome).Inc()
	IngestionDuration.WithLabelValues(datasetID).Observe(duration.Seconds())
}

// RecordExportRequest records one export request's shape and row count.
func RecordExportRequest(datasetID, format, mode string, rows int, duration time.Duration) {
	ExportRequestsTotal.WithLabelValues(datasetID, format, mode).Inc()
	ExportRowsWritten.WithLabelValues(datasetID, format).Add(float64(rows))
	ExportDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight API request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordAuditEvent records an audit write outcome.
func RecordAuditEvent(action string, success bool) {
	successStr := "true"
	if !success {
		successStr = "false"
	}
	AuditEventsWritten.WithLabelValues(action, successStr).Inc()
}
