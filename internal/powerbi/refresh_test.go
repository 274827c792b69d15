package powerbi

import (
	"context"
	"testing"
	"time"

	"github.com/osservatorio-istat/osservatorio/internal/analytics"
	"github.com/osservatorio-istat/osservatorio/internal/metadata"
)

func TestCreateRefreshPolicyAppliesDefaults(t *testing.T) {
	meta, store := setupStores(t)
	ctx := context.Background()
	rm := NewRefreshManager(meta, store, nil)

	policy, err := rm.CreateRefreshPolicy(ctx, "101_1015", 0, 0, "")
	if err != nil {
		t.Fatalf("CreateRefreshPolicy: %v", err)
	}
	if policy.IncrementalWindowDays != 30 {
		t.Errorf("expected default incremental window 30, got %d", policy.IncrementalWindowDays)
	}
	if policy.HistoricalWindowYears != 2 {
		t.Errorf("expected default historical window 2, got %d", policy.HistoricalWindowYears)
	}
	if policy.RefreshFrequency != "daily" {
		t.Errorf("expected default refresh frequency daily, got %q", policy.RefreshFrequency)
	}
	if !policy.Enabled {
		t.Errorf("expected new policy to be enabled")
	}

	got, err := rm.GetRefreshPolicy(ctx, "101_1015")
	if err != nil {
		t.Fatalf("GetRefreshPolicy: %v", err)
	}
	if got == nil || got.DatasetID != "101_1015" {
		t.Fatalf("expected stored policy to round-trip, got %+v", got)
	}
}

func TestExecuteIncrementalRefreshNoPolicy(t *testing.T) {
	meta, store := setupStores(t)
	rm := NewRefreshManager(meta, store, nil)

	result, err := rm.ExecuteIncrementalRefresh(context.Background(), "does_not_exist", "", false)
	if err != nil {
		t.Fatalf("ExecuteIncrementalRefresh: %v", err)
	}
	if result.Error != "no policy" {
		t.Errorf("expected 'no policy' error, got %+v", result)
	}
}

func TestExecuteIncrementalRefreshDetectsChanges(t *testing.T) {
	meta, store := setupStores(t)
	ctx := context.Background()
	registerDataset(t, meta, metadata.Dataset{DatasetID: "115_333", Name: "prezzi", Category: "economia", Priority: 8, IsActive: true})

	rm := NewRefreshManager(meta, store, nil)
	if _, err := rm.CreateRefreshPolicy(ctx, "115_333", 30, 2, "daily"); err != nil {
		t.Fatalf("CreateRefreshPolicy: %v", err)
	}

	now := time.Now().UTC()
	insertObservations(t, store, []analytics.Observation{
		obs("115_333", 1, "100", "2024", map[string]any{"obsdimension_value": "IT"}, now),
		obs("115_333", 2, "105", "2024", map[string]any{"obsdimension_value": "IT"}, now),
	})

	result, err := rm.ExecuteIncrementalRefresh(ctx, "115_333", "", false)
	if err != nil {
		t.Fatalf("ExecuteIncrementalRefresh: %v", err)
	}
	if !result.HasChanges {
		t.Fatalf("expected changes to be detected, got %+v", result)
	}
	if result.RecordsProcessed != 2 {
		t.Errorf("expected 2 records processed, got %d", result.RecordsProcessed)
	}
	if len(result.TopTerritories) != 1 || result.TopTerritories[0].Territory != "IT" {
		t.Errorf("expected single IT territory breakdown, got %+v", result.TopTerritories)
	}
}

func TestExecuteIncrementalRefreshSkipsWithoutChanges(t *testing.T) {
	meta, store := setupStores(t)
	ctx := context.Background()
	registerDataset(t, meta, metadata.Dataset{DatasetID: "115_334", Name: "inflazione", Category: "economia", Priority: 8, IsActive: true})

	rm := NewRefreshManager(meta, store, nil)
	if _, err := rm.CreateRefreshPolicy(ctx, "115_334", 30, 2, "daily"); err != nil {
		t.Fatalf("CreateRefreshPolicy: %v", err)
	}

	result, err := rm.ExecuteIncrementalRefresh(ctx, "115_334", "", false)
	if err != nil {
		t.Fatalf("ExecuteIncrementalRefresh: %v", err)
	}
	if result.Skipped != "no changes" {
		t.Errorf("expected skip when no observations exist, got %+v", result)
	}
}

func TestExecuteIncrementalRefreshSkipsWhenDisabled(t *testing.T) {
	meta, store := setupStores(t)
	ctx := context.Background()
	registerDataset(t, meta, metadata.Dataset{DatasetID: "115_335", Name: "commercio estero", Category: "economia", Priority: 8, IsActive: true})

	rm := NewRefreshManager(meta, store, nil)
	policy, err := rm.CreateRefreshPolicy(ctx, "115_335", 30, 2, "daily")
	if err != nil {
		t.Fatalf("CreateRefreshPolicy: %v", err)
	}
	policy.Enabled = false
	if err := meta.SetJSON(ctx, refreshPolicyKey("115_335"), policy); err != nil {
		t.Fatalf("disable policy: %v", err)
	}

	result, err := rm.ExecuteIncrementalRefresh(ctx, "115_335", "", false)
	if err != nil {
		t.Fatalf("ExecuteIncrementalRefresh: %v", err)
	}
	if result.Skipped != "policy disabled" {
		t.Errorf("expected skip for disabled policy, got %+v", result)
	}

	forced, err := rm.ExecuteIncrementalRefresh(ctx, "115_335", "", true)
	if err != nil {
		t.Fatalf("ExecuteIncrementalRefresh forced: %v", err)
	}
	if forced.Skipped == "policy disabled" {
		t.Errorf("expected force=true to bypass a disabled policy")
	}
}

func TestExecuteIncrementalRefreshPushesDelta(t *testing.T) {
	meta, store := setupStores(t)
	ctx := context.Background()
	registerDataset(t, meta, metadata.Dataset{DatasetID: "149_319", Name: "forze di lavoro", Category: "lavoro", Priority: 8, IsActive: true})

	push := &fakePushClient{}
	rm := NewRefreshManager(meta, store, push)
	if _, err := rm.CreateRefreshPolicy(ctx, "149_319", 30, 2, "daily"); err != nil {
		t.Fatalf("CreateRefreshPolicy: %v", err)
	}

	now := time.Now().UTC()
	insertObservations(t, store, []analytics.Observation{
		obs("149_319", 1, "63.1", "2024", map[string]any{"obsdimension_value": "IT"}, now),
	})

	result, err := rm.ExecuteIncrementalRefresh(ctx, "149_319", "powerbi-dataset-1", false)
	if err != nil {
		t.Fatalf("ExecuteIncrementalRefresh: %v", err)
	}
	if !result.PushAttempted {
		t.Errorf("expected push to be attempted when powerBIDatasetID is set")
	}
	if result.PushError != "" {
		t.Errorf("unexpected push error: %s", result.PushError)
	}
	if len(push.pushedRows) != 1 {
		t.Errorf("expected 1 pushed row, got %d", len(push.pushedRows))
	}
}

func TestGetRefreshStatusNoPolicy(t *testing.T) {
	meta, store := setupStores(t)
	rm := NewRefreshManager(meta, store, nil)

	status, err := rm.GetRefreshStatus(context.Background(), "does_not_exist")
	if err != nil {
		t.Fatalf("GetRefreshStatus: %v", err)
	}
	if status.Policy != nil {
		t.Errorf("expected nil policy for unconfigured dataset")
	}
}

func TestGetRefreshStatusComputesNextScheduledRefresh(t *testing.T) {
	meta, store := setupStores(t)
	ctx := context.Background()
	registerDataset(t, meta, metadata.Dataset{DatasetID: "101_1015", Name: "popolazione", Category: "popolazione", Priority: 8, IsActive: true})

	rm := NewRefreshManager(meta, store, nil)
	if _, err := rm.CreateRefreshPolicy(ctx, "101_1015", 30, 2, "weekly"); err != nil {
		t.Fatalf("CreateRefreshPolicy: %v", err)
	}

	status, err := rm.GetRefreshStatus(ctx, "101_1015")
	if err != nil {
		t.Fatalf("GetRefreshStatus: %v", err)
	}
	if status.Policy == nil || status.Policy.RefreshFrequency != "weekly" {
		t.Fatalf("expected weekly policy, got %+v", status.Policy)
	}
	if status.LastRefresh == nil || status.NextScheduledRefresh == nil {
		t.Fatalf("expected last/next refresh to be populated, got %+v", status)
	}
	if !status.NextScheduledRefresh.After(*status.LastRefresh) {
		t.Errorf("expected next scheduled refresh after last refresh")
	}
}
