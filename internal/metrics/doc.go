// Package metrics provides Prometheus instrumentation for the ingestion
// pipeline, the export engine, the PowerBI optimizer's caches, the
// categorization engine, and the HTTP API surface that fronts them.
//
// # Metrics endpoint
//
// Metrics are exposed at /metrics in Prometheus text format by wiring
// promhttp.Handler() into the router in cmd/server/main.go:
//
//	curl http://localhost:8080/metrics
//
// # Available metrics
//
// Ingestion pipeline (C5):
//   - ingestion_attempts_total{dataset_id,outcome}: success, skipped, failed
//   - ingestion_duration_seconds{dataset_id}: single-dataset attempt latency
//   - ingestion_records_processed_total{dataset_id}: observations persisted
//   - ingestion_retries_total{dataset_id}: retry attempts after transient failure
//   - ingestion_batch_duration_seconds: full priority-set batch run duration
//
// Export engine (C6):
//   - export_requests_total{dataset_id,format,mode}: mode is buffered or streaming
//   - export_rows_written_total{dataset_id,format}
//   - export_duration_seconds{format}
//
// PowerBI optimizer (C7):
//   - powerbi_star_schema_cache_{hits,misses}_total
//   - powerbi_dax_measure_cache_{hits,misses}_total
//
// Incremental refresh (C8):
//   - incremental_refresh_executions_total{dataset_id,outcome}
//   - incremental_refresh_push_failures_total
//
// Generic in-process cache (the optimizer's star-schema and DAX caches):
//   - cache_hits_total{cache_type}, cache_misses_total{cache_type}
//
// Ingestion circuit breaker (gobreaker wrapping the SDMX client):
//   - circuit_breaker_state{name}: 0=closed, 1=half-open, 2=open
//   - circuit_breaker_requests_total{name,result}
//
// HTTP API:
//   - api_requests_total{method,endpoint,status_code}
//   - api_request_duration_seconds{method,endpoint}
//   - api_active_requests
//   - api_rate_limit_hits_total{endpoint}
//
// Audit logger (C12):
//   - audit_events_written_total{action,success}
//
// # Usage
//
//	metrics.RecordIngestionAttempt(datasetID, "success", elapsed)
//	metrics.RecordExportRequest(datasetID, "csv", "streaming", rowCount, elapsed)
//	metrics.RecordAPIRequest(r.Method, route, strconv.Itoa(status), elapsed)
//
// All recording functions are thread-safe; the prometheus client library
// handles synchronization internally.
package metrics
