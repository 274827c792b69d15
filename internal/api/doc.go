// Package api implements the HTTP surface: the export engine's CSV/JSON/
// Parquet endpoints, the ingestion status/trigger endpoints, and the
// PowerBI-facing endpoints over C7-C10. Routing is go-chi based; bearer
// credentials are verified against the metadata store's api_credentials
// table and rate-limited per credential with go-chi/httprate.
package api
