// Package ingestion implements the priority-dataset batch orchestrator
// (C5): skip-if-fresh, fetch, parse (C4), persist (C2), update metadata
// and audit (C1), with retries, per-dataset locking, circuit-breaking,
// and rate limiting in front of the external SDMX client.
package ingestion

import "context"

// FetchResult mirrors the external SDMX client's documented response
// shape from spec §4.5 step 2: {success, data:{status, content, size},
// error_message}. Content carries the raw XML bytes on success.
type FetchResult struct {
	Success      bool
	Status       string
	Content      []byte
	Size         int
	ErrorMessage string
}

// Client is the external SDMX HTTP client collaborator — out of scope
// per spec §1, specified only at this interface. Implementations fetch
// the current dataflow payload for datasetID.
type Client interface {
	Fetch(ctx context.Context, datasetID string) (FetchResult, error)
}
