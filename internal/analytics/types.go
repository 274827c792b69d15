package analytics

import "time"

// Observation is a single SDMX data point. Rows are append-only; no
// referential constraint ties a row back to a dataset registration, and
// duplicates are possible — idempotency is enforced at the dataset
// level by the ingestion pipeline's skip-if-fresh precondition, not here.
type Observation struct {
	DatasetID            string
	RecordID              int64
	ObsValue               string
	TimePeriod             string
	AdditionalAttributes   map[string]any
	IngestionTimestamp     time.Time
}

// QueryFilter narrows Query results to a dataset and, optionally, a
// time_period range and a limit/offset page. Columns is carried but
// Query does not apply it; rows always come back with every column.
type QueryFilter struct {
	DatasetID     string
	TimePeriodGTE string
	TimePeriodLTE string
	Columns       []string
	Limit         int
	Offset        int
}
