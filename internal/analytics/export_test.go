package analytics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCopyToParquetWritesFile(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.BulkInsert(ctx, sampleObservations("101_1015", 20)); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}

	out := filepath.Join(t.TempDir(), "export.parquet")
	err := s.CopyToParquet(ctx, out,
		`SELECT dataset_id, record_id, obs_value, time_period FROM istat_observations WHERE dataset_id = ?`,
		"101_1015")
	if err != nil {
		t.Fatalf("CopyToParquet: %v", err)
	}

	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("expected export file to exist: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected non-empty parquet export")
	}
}
