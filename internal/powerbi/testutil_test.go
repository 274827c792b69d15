package powerbi

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/osservatorio-istat/osservatorio/internal/analytics"
	"github.com/osservatorio-istat/osservatorio/internal/metadata"
)

func setupStores(t *testing.T) (*metadata.Store, *analytics.Store) {
	t.Helper()
	dir := t.TempDir()

	meta, err := metadata.New(context.Background(), filepath.Join(dir, "meta.db"))
	if err != nil {
		t.Fatalf("metadata.New: %v", err)
	}
	t.Cleanup(func() { meta.Close() })

	store, err := analytics.New(context.Background(), analytics.Config{
		Path:      filepath.Join(dir, "analytics.duckdb"),
		MaxMemory: "512MB",
		Threads:   1,
	})
	if err != nil {
		t.Fatalf("analytics.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return meta, store
}

func registerDataset(t *testing.T, meta *metadata.Store, d metadata.Dataset) {
	t.Helper()
	ctx := context.Background()
	if _, err := meta.Datasets().Register(ctx, d); err != nil {
		t.Fatalf("register dataset %s: %v", d.DatasetID, err)
	}
}

func insertObservations(t *testing.T, store *analytics.Store, rows []analytics.Observation) {
	t.Helper()
	if _, err := store.BulkInsert(context.Background(), rows); err != nil {
		t.Fatalf("bulk insert: %v", err)
	}
}

func obs(datasetID string, recordID int64, value, timePeriod string, attrs map[string]any, ts time.Time) analytics.Observation {
	return analytics.Observation{
		DatasetID:            datasetID,
		RecordID:             recordID,
		ObsValue:             value,
		TimePeriod:           timePeriod,
		AdditionalAttributes: attrs,
		IngestionTimestamp:   ts,
	}
}

type fakePushClient struct {
	pushedRows  []map[string]any
	pushErr     error
	reportCount int
	dashCount   int
	usageErr    error
}

func (f *fakePushClient) PushDelta(ctx context.Context, powerBIDatasetID string, rows []map[string]any) error {
	f.pushedRows = rows
	return f.pushErr
}

func (f *fakePushClient) UsageStats(ctx context.Context, powerBIDatasetID string) (int, int, error) {
	return f.reportCount, f.dashCount, f.usageErr
}
