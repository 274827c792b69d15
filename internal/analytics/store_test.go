package analytics

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dir := t.TempDir()
	s, err := New(context.Background(), Config{
		Path:                   filepath.Join(dir, "analytics.duckdb"),
		MaxMemory:              "512MB",
		Threads:                2,
		PreserveInsertionOrder: true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func sampleObservations(datasetID string, n int) []Observation {
	now := time.Now().UTC()
	out := make([]Observation, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Observation{
			DatasetID:          datasetID,
			RecordID:           int64(i),
			ObsValue:           "123.45",
			TimePeriod:         "2024",
			AdditionalAttributes: map[string]any{"unit": "index"},
			IngestionTimestamp: now,
		})
	}
	return out
}

func TestEnsureObservationTableIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	if err := s.ensureObservationTable(context.Background()); err != nil {
		t.Fatalf("second ensureObservationTable call: %v", err)
	}
}

func TestBulkInsertAndCountByDataset(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	n, err := s.BulkInsert(ctx, sampleObservations("101_1015", 10))
	if err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}
	if n != 10 {
		t.Fatalf("expected 10 rows inserted, got %d", n)
	}

	count, err := s.CountByDataset(ctx, "101_1015")
	if err != nil {
		t.Fatalf("CountByDataset: %v", err)
	}
	if count != 10 {
		t.Fatalf("expected count 10, got %d", count)
	}

	other, err := s.CountByDataset(ctx, "no-such-dataset")
	if err != nil {
		t.Fatalf("CountByDataset other: %v", err)
	}
	if other != 0 {
		t.Fatalf("expected count 0 for unknown dataset, got %d", other)
	}
}

func TestBulkInsertEmptyIsNoop(t *testing.T) {
	s := setupTestStore(t)
	n, err := s.BulkInsert(context.Background(), nil)
	if err != nil {
		t.Fatalf("BulkInsert nil: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 inserted, got %d", n)
	}
}

func TestQueryFiltersByTimePeriodAndPaginates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rows := []Observation{
		{DatasetID: "101_1015", RecordID: 1, ObsValue: "1", TimePeriod: "2022", IngestionTimestamp: time.Now()},
		{DatasetID: "101_1015", RecordID: 2, ObsValue: "2", TimePeriod: "2023", IngestionTimestamp: time.Now()},
		{DatasetID: "101_1015", RecordID: 3, ObsValue: "3", TimePeriod: "2024", IngestionTimestamp: time.Now()},
	}
	if _, err := s.BulkInsert(ctx, rows); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}

	results, err := s.Query(ctx, QueryFilter{DatasetID: "101_1015", TimePeriodGTE: "2023"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 rows with time_period >= 2023, got %d", len(results))
	}

	paged, err := s.Query(ctx, QueryFilter{DatasetID: "101_1015", Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Query paginated: %v", err)
	}
	if len(paged) != 1 || paged[0].RecordID != 2 {
		t.Fatalf("expected second row via limit/offset, got %+v", paged)
	}
}

func TestExecuteQueryReturnsColumnMaps(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.BulkInsert(ctx, sampleObservations("101_1015", 3)); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}

	rows, err := s.ExecuteQuery(ctx,
		`SELECT dataset_id, COUNT(*) as n FROM istat_observations WHERE dataset_id = ? GROUP BY dataset_id`,
		"101_1015")
	if err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 aggregated row, got %d", len(rows))
	}
	if rows[0]["dataset_id"] != "101_1015" {
		t.Fatalf("expected dataset_id column present, got %+v", rows[0])
	}
}

func TestDeleteByDataset(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.BulkInsert(ctx, sampleObservations("101_1015", 5)); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}

	n, err := s.DeleteByDataset(ctx, "101_1015")
	if err != nil {
		t.Fatalf("DeleteByDataset: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 rows deleted, got %d", n)
	}

	count, err := s.CountByDataset(ctx, "101_1015")
	if err != nil {
		t.Fatalf("CountByDataset: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 remaining rows, got %d", count)
	}
}
