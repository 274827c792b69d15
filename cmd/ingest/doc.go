/*
Command ingest is the cron-friendly counterpart to cmd/server's
POST /api/ingestion/run: it opens the metadata and analytics stores,
builds the same ingestion.Pipeline the server uses, runs
IngestAllPriorityDatasets once against cfg.Ingestion.PriorityDatasets,
and prints the resulting BatchResult as JSON to stdout before exiting.

# Usage

	osservatorio-ingest

Configuration is read the same way as cmd/server (see internal/config):
koanf defaults, an optional config.yaml, then OSSERVATORIO_-prefixed
environment variables. There is no HTTP server and no /metrics endpoint
in this process; Prometheus counters updated during the run are
discarded when the process exits.

# Exit status

Exit status is 0 when every priority dataset ingested successfully, 1
when BatchResult.Failed is non-zero, or when the batch itself returns a
fatal error (store unreachable, pipeline construction failure).

# See also

  - cmd/server: the long-running HTTP server, which exposes the same
    pipeline over POST /api/ingestion/run
  - internal/ingestion: the pipeline and its retry/circuit-breaker logic
*/
package main
