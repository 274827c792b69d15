package ingestion

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/osservatorio-istat/osservatorio/internal/analytics"
	"github.com/osservatorio-istat/osservatorio/internal/metadata"
)

const sampleSDMX = `<GenericData>
  <Obs>
    <ObsDimension id="TIME_PERIOD" value="2024"/>
    <ObsValue value="42.0"/>
  </Obs>
  <Obs>
    <ObsDimension id="TIME_PERIOD" value="2025"/>
    <ObsValue value="43.5"/>
  </Obs>
</GenericData>`

type fakeClient struct {
	results map[string]FetchResult
	errs    map[string]error
	calls   int
}

func (f *fakeClient) Fetch(ctx context.Context, datasetID string) (FetchResult, error) {
	f.calls++
	if err, ok := f.errs[datasetID]; ok {
		return FetchResult{}, err
	}
	return f.results[datasetID], nil
}

func setupTestPipeline(t *testing.T, client Client, cfg Config) (*Pipeline, *metadata.Store, *analytics.Store) {
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
		Threads:   2,
	})
	if err != nil {
		t.Fatalf("analytics.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg.RequestsPerHour = 1_000_000
	p := New(meta, store, client, cfg)
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p, meta, store
}

func TestIngestSingleDatasetSuccess(t *testing.T) {
	client := &fakeClient{
		results: map[string]FetchResult{
			"101_1015": {Success: true, Status: "success", Content: []byte(sampleSDMX), Size: len(sampleSDMX)},
		},
	}
	p, meta, store := setupTestPipeline(t, client, Config{Retries: 3})
	ctx := context.Background()

	meta.Datasets().Register(ctx, metadata.Dataset{DatasetID: "101_1015", Name: "Test", Category: "economia"})

	res, err := p.IngestSingleDataset(ctx, "101_1015", 3)
	if err != nil {
		t.Fatalf("IngestSingleDataset: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.RecordsProcessed != 2 {
		t.Errorf("expected 2 records processed, got %d", res.RecordsProcessed)
	}

	count, err := store.CountByDataset(ctx, "101_1015")
	if err != nil {
		t.Fatalf("CountByDataset: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 persisted rows, got %d", count)
	}
}

func TestIngestSingleDatasetSkipsWhenFresh(t *testing.T) {
	client := &fakeClient{results: map[string]FetchResult{
		"101_1015": {Success: true, Status: "success", Content: []byte(sampleSDMX), Size: len(sampleSDMX)},
	}}
	p, meta, _ := setupTestPipeline(t, client, Config{Retries: 3})
	ctx := context.Background()

	meta.Datasets().Register(ctx, metadata.Dataset{DatasetID: "101_1015", Name: "Test", Category: "economia"})
	if _, err := p.IngestSingleDataset(ctx, "101_1015", 3); err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	callsBefore := client.calls
	res, err := p.IngestSingleDataset(ctx, "101_1015", 3)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if !res.Skipped {
		t.Fatalf("expected skip on second call, got %+v", res)
	}
	if client.calls != callsBefore {
		t.Errorf("expected no additional fetch calls, got %d new calls", client.calls-callsBefore)
	}
}

func TestIngestSingleDatasetRetriesThenFails(t *testing.T) {
	client := &fakeClient{
		errs: map[string]error{"101_1015": context.DeadlineExceeded},
	}
	p, meta, _ := setupTestPipeline(t, client, Config{Retries: 3})
	ctx := context.Background()

	meta.Datasets().Register(ctx, metadata.Dataset{DatasetID: "101_1015", Name: "Test", Category: "economia"})

	var sleeps []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	res, err := p.IngestSingleDataset(ctx, "101_1015", 3)
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if res.Success {
		t.Fatalf("expected failure result, got %+v", res)
	}
	if res.Attempts != 4 {
		t.Errorf("expected 4 attempts (1 initial + 3 retries), got %d", res.Attempts)
	}
	if client.calls != 4 {
		t.Errorf("expected 4 fetch calls, got %d", client.calls)
	}
	wantSleeps := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(sleeps) != len(wantSleeps) {
		t.Fatalf("expected %d backoff sleeps, got %d: %v", len(wantSleeps), len(sleeps), sleeps)
	}
	for i, want := range wantSleeps {
		if sleeps[i] != want {
			t.Errorf("sleep %d: expected %v, got %v", i, want, sleeps[i])
		}
	}
}

func TestIngestSingleDatasetEmptySuccessWritesSentinel(t *testing.T) {
	client := &fakeClient{
		results: map[string]FetchResult{"101_1015": {Success: true, Status: "empty", Size: 0}},
	}
	p, meta, store := setupTestPipeline(t, client, Config{Retries: 1})
	ctx := context.Background()

	meta.Datasets().Register(ctx, metadata.Dataset{DatasetID: "101_1015", Name: "Test", Category: "economia"})

	res, err := p.IngestSingleDataset(ctx, "101_1015", 1)
	if err != nil {
		t.Fatalf("IngestSingleDataset: %v", err)
	}
	if !res.Success || res.RecordsProcessed != 1 {
		t.Fatalf("expected a single sentinel row, got %+v", res)
	}

	count, _ := store.CountByDataset(ctx, "101_1015")
	if count != 1 {
		t.Errorf("expected 1 persisted sentinel row, got %d", count)
	}
}

func TestIngestAllPriorityDatasetsAggregates(t *testing.T) {
	client := &fakeClient{
		results: map[string]FetchResult{
			"a": {Success: true, Status: "success", Content: []byte(sampleSDMX), Size: len(sampleSDMX)},
		},
		errs: map[string]error{"b": context.DeadlineExceeded},
	}
	p, meta, _ := setupTestPipeline(t, client, Config{
		PriorityDatasets: []string{"a", "b"},
		Retries:          1,
		MaxConcurrent:    2,
	})
	ctx := context.Background()
	meta.Datasets().Register(ctx, metadata.Dataset{DatasetID: "a", Name: "A", Category: "economia"})
	meta.Datasets().Register(ctx, metadata.Dataset{DatasetID: "b", Name: "B", Category: "economia"})

	result, err := p.IngestAllPriorityDatasets(ctx, "test")
	if err != nil {
		t.Fatalf("IngestAllPriorityDatasets: %v", err)
	}
	if result.Successful != 1 || result.Failed != 1 {
		t.Fatalf("expected 1 success and 1 failure, got %+v", result)
	}

	status := p.GetIngestionStatus()
	if status.DatasetsProcessed != 2 {
		t.Errorf("expected 2 datasets processed, got %d", status.DatasetsProcessed)
	}
	if len(status.Errors) != 1 {
		t.Errorf("expected 1 recorded error, got %d", len(status.Errors))
	}

	runs, err := meta.Jobs().ListBatchRuns(ctx, 1)
	if err != nil {
		t.Fatalf("ListBatchRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Successful != 1 || runs[0].Failed != 1 {
		t.Fatalf("expected persisted batch run to match result, got %+v", runs)
	}
}

func TestHealthCheckDoesNotFetch(t *testing.T) {
	client := &fakeClient{}
	p, _, _ := setupTestPipeline(t, client, Config{Retries: 3})

	if err := p.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if client.calls != 0 {
		t.Errorf("expected HealthCheck not to perform a fetch, got %d calls", client.calls)
	}
}
