package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/osservatorio-istat/osservatorio/internal/analytics"
)

func setupTestEngine(t *testing.T) (*Engine, *analytics.Store) {
	t.Helper()
	store, err := analytics.New(context.Background(), analytics.Config{
		Path:      filepath.Join(t.TempDir(), "export.duckdb"),
		MaxMemory: "512MB",
		Threads:   2,
	})
	if err != nil {
		t.Fatalf("analytics.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store), store
}

// seed inserts n observations whose time_period runs 2020, 2021, ...
// time_period is the first column export.findDateColumn will match, so it
// drives the date-range filter tests.
func seed(t *testing.T, store *analytics.Store, datasetID string, n int) {
	t.Helper()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]analytics.Observation, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, analytics.Observation{
			DatasetID:  datasetID,
			RecordID:   int64(i + 1),
			ObsValue:   "1.0",
			TimePeriod: fmt.Sprintf("%d", 2020+i),
			AdditionalAttributes: map[string]any{
				"quality": "good",
			},
			IngestionTimestamp: now,
		})
	}
	if _, err := store.BulkInsert(context.Background(), rows); err != nil {
		t.Fatalf("BulkInsert: %v", err)
	}
}

func TestExportCSVIncludesHeaderAndRows(t *testing.T) {
	e, store := setupTestEngine(t)
	seed(t, store, "ds1", 3)

	res, err := e.Export(context.Background(), "ds1", FormatCSV, Filter{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(res.Data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header + 3 rows, got %d records", len(records))
	}
	if records[0][0] != "dataset_id" {
		t.Errorf("expected first column dataset_id, got %q", records[0][0])
	}
}

func TestExportCSVEmptyDataIsEmptyPayload(t *testing.T) {
	e, _ := setupTestEngine(t)

	res, err := e.Export(context.Background(), "missing", FormatCSV, Filter{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(res.Data) != 0 {
		t.Errorf("expected empty CSV payload, got %d bytes", len(res.Data))
	}
}

func TestExportJSONEnvelopeShape(t *testing.T) {
	e, store := setupTestEngine(t)
	seed(t, store, "ds2", 2)

	res, err := e.Export(context.Background(), "ds2", FormatJSON, Filter{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	var env jsonEnvelope
	if err := json.Unmarshal(res.Data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.Metadata.DatasetID != "ds2" || env.Metadata.TotalRecords != 2 {
		t.Errorf("unexpected metadata: %+v", env.Metadata)
	}
	if len(env.Data) != 2 {
		t.Errorf("expected 2 records, got %d", len(env.Data))
	}
}

func TestExportJSONEmptyDataHasEmptyArray(t *testing.T) {
	e, _ := setupTestEngine(t)

	res, err := e.Export(context.Background(), "missing", FormatJSON, Filter{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(string(res.Data), `"total_records":0`) {
		t.Errorf("expected total_records:0 in %s", res.Data)
	}
	if !strings.Contains(string(res.Data), `"data":[]`) {
		t.Errorf("expected empty data array in %s", res.Data)
	}
}

func TestExportColumnProjectionIgnoresInvalidNames(t *testing.T) {
	e, store := setupTestEngine(t)
	seed(t, store, "ds3", 2)

	res, err := e.Export(context.Background(), "ds3", FormatCSV, Filter{Columns: []string{"time_period", "bogus_column"}})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(res.Data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records[0]) != 1 || records[0][0] != "time_period" {
		t.Fatalf("expected projection to [time_period], got %v", records[0])
	}
}

func TestExportDateFilterExcludesOutOfRange(t *testing.T) {
	e, store := setupTestEngine(t)
	seed(t, store, "ds4", 5) // time_period: 2020..2024

	res, err := e.Export(context.Background(), "ds4", FormatJSON, Filter{StartDate: "2022", EndDate: "2023"})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	var env jsonEnvelope
	if err := json.Unmarshal(res.Data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Metadata.TotalRecords != 2 {
		t.Fatalf("expected 2 rows within [2022,2023], got %d: %+v", env.Metadata.TotalRecords, env.Data)
	}
}

func TestExportLimitCapsRows(t *testing.T) {
	e, store := setupTestEngine(t)
	seed(t, store, "ds5", 10)

	res, err := e.Export(context.Background(), "ds5", FormatJSON, Filter{Limit: 3})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	var env jsonEnvelope
	if err := json.Unmarshal(res.Data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Metadata.TotalRecords != 3 {
		t.Fatalf("expected 3 rows, got %d", env.Metadata.TotalRecords)
	}
}

func TestExportParquetProducesNonEmptyFile(t *testing.T) {
	e, store := setupTestEngine(t)
	seed(t, store, "ds6", 4)

	res, err := e.Export(context.Background(), "ds6", FormatParquet, Filter{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(res.Data) == 0 {
		t.Fatal("expected non-empty parquet payload")
	}
}

func TestExportParquetFilteredUsesArrowWriter(t *testing.T) {
	e, store := setupTestEngine(t)
	seed(t, store, "ds7", 4)

	res, err := e.Export(context.Background(), "ds7", FormatParquet, Filter{Columns: []string{"time_period"}})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(res.Data) == 0 {
		t.Fatal("expected non-empty parquet payload for filtered export")
	}
}

func TestExportStreamCSVMatchesBufferedContent(t *testing.T) {
	e, store := setupTestEngine(t)
	seed(t, store, "ds8", 3)

	buffered, err := e.Export(context.Background(), "ds8", FormatCSV, Filter{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	var streamed bytes.Buffer
	if err := e.ExportStream(context.Background(), &streamed, "ds8", FormatCSV, Filter{}); err != nil {
		t.Fatalf("ExportStream: %v", err)
	}
	if !bytes.Equal(buffered.Data, streamed.Bytes()) {
		t.Errorf("streamed CSV differs from buffered:\nbuffered=%q\nstreamed=%q", buffered.Data, streamed.Bytes())
	}
}

func TestEstimateSizeRecommendsStreamingAboveThreshold(t *testing.T) {
	e, store := setupTestEngine(t)
	seed(t, store, "ds9", 10)

	est, err := e.EstimateSize(context.Background(), "ds9")
	if err != nil {
		t.Fatalf("EstimateSize: %v", err)
	}
	if est.RowCount != 10 {
		t.Errorf("expected row count 10, got %d", est.RowCount)
	}
	if est.RecommendedStreaming {
		t.Error("10 rows should not recommend streaming")
	}
	if est.EstimatedSizes["csv_mb"] <= 0 {
		t.Error("expected a positive csv_mb estimate")
	}
}
