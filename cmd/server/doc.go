/*
Command server is the entry point for Osservatorio: an ingestion and
serving platform for ISTAT's SDMX statistical datasets, exposing the
data through a REST export API and through PowerBI-optimized artifacts.

# Architecture

Initialization order:

 1. Configuration: koanf v2, layered defaults < config.yaml < environment
    (OSSERVATORIO_ prefix).
 2. Logging: zerolog, JSON in production, console in development.
 3. Metadata store (C1): SQLite, WAL journaling, schema bootstrap.
 4. Analytics store (C2): DuckDB, observation table.
 5. Unified repository (C3): composes both stores behind a facade with
    a short-lived preference cache.
 6. Ingestion pipeline (C5): wraps the SDMX HTTP client with a circuit
    breaker and a token-bucket rate limiter.
 7. PowerBI components (C7-C10): star-schema/DAX optimizer, incremental
    refresh manager, .pbit template generator, metadata bridge.
 8. HTTP server: chi router under internal/api, plus /metrics.

# Configuration

See internal/config for the full surface. Notable environment variables:

	OSSERVATORIO_DATABASE_SQLITE_PATH
	OSSERVATORIO_DATABASE_DUCKDB_PATH
	OSSERVATORIO_API_ISTAT_BASE_URL
	OSSERVATORIO_API_ISTAT_RATE_LIMIT
	OSSERVATORIO_API_ISTAT_TIMEOUT
	OSSERVATORIO_INGESTION_PRIORITY_DATASETS
	OSSERVATORIO_POWERBI_PUSH_URL      # optional, enables best-effort PowerBI Service push
	OSSERVATORIO_POWERBI_PUSH_TOKEN
	OSSERVATORIO_CORS_ORIGINS
	PORT                                # HTTP listen port, default 8080

# Signal handling

SIGINT/SIGTERM trigger a graceful shutdown: the HTTP server stops
accepting new connections and waits up to 10s for in-flight requests,
then both stores are closed in reverse-acquisition order via deferred
Close calls.

# See also

  - cmd/ingest: a one-shot CLI for cron-triggered batch ingestion
  - internal/api: HTTP handlers and routing
  - internal/ingestion: the priority-dataset ingestion pipeline
*/
package main
