// Package analytics implements the append-oriented observation store
// (C2): bulk ingestion and bounded point queries over the single
// istat_observations table, backed by DuckDB. It owns observations
// exclusively — dataset metadata lives in internal/metadata.
package analytics
