package metadata

import (
	"context"
	"testing"
)

func TestJobStartAndFinish(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.Jobs().Start(ctx, "cron")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero batch run id")
	}

	if err := s.Jobs().Finish(ctx, id, 5, 2); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	runs, err := s.Jobs().ListBatchRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListBatchRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 batch run, got %d", len(runs))
	}
	if runs[0].Successful != 5 || runs[0].Failed != 2 {
		t.Errorf("unexpected counters: %+v", runs[0])
	}
	if runs[0].TriggeredBy != "cron" {
		t.Errorf("TriggeredBy = %q", runs[0].TriggeredBy)
	}
	if runs[0].FinishedAt == nil {
		t.Error("expected FinishedAt to be set")
	}
}

func TestJobStartDefaultsTriggeredBy(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.Jobs().Start(ctx, "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	runs, err := s.Jobs().ListBatchRuns(ctx, 1)
	if err != nil {
		t.Fatalf("ListBatchRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != id {
		t.Fatalf("expected the started run to be listed, got %+v", runs)
	}
	if runs[0].TriggeredBy != "scheduler" {
		t.Errorf("TriggeredBy = %q, want scheduler default", runs[0].TriggeredBy)
	}
}

func TestListBatchRunsOrdersNewestFirst(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first, _ := s.Jobs().Start(ctx, "cron")
	s.Jobs().Finish(ctx, first, 1, 0)
	second, _ := s.Jobs().Start(ctx, "manual")
	s.Jobs().Finish(ctx, second, 2, 0)

	runs, err := s.Jobs().ListBatchRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListBatchRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != second {
		t.Errorf("expected most recent run first, got id %d", runs[0].ID)
	}
}
