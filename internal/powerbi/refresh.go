package powerbi

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/osservatorio-istat/osservatorio/internal/analytics"
	"github.com/osservatorio-istat/osservatorio/internal/logging"
	"github.com/osservatorio-istat/osservatorio/internal/metadata"
	"github.com/osservatorio-istat/osservatorio/internal/metrics"
)

// RefreshManager is the Incremental Refresh Manager (C8): per-dataset
// refresh policies and the delta-detection/push algorithm that acts on
// them.
type RefreshManager struct {
	meta      *metadata.Store
	analytics *analytics.Store
	push      PushClient
	now       func() time.Time
}

// NewRefreshManager builds a RefreshManager. push may be nil — every
// refresh still completes its local bookkeeping; only the best-effort
// PowerBI Service push step is skipped.
func NewRefreshManager(meta *metadata.Store, analyticsStore *analytics.Store, push PushClient) *RefreshManager {
	return &RefreshManager{meta: meta, analytics: analyticsStore, push: push, now: func() time.Time { return time.Now().UTC() }}
}

// CreateRefreshPolicy persists a new RefreshPolicy for id, applying the
// documented defaults for any zero-valued argument.
func (r *RefreshManager) CreateRefreshPolicy(ctx context.Context, datasetID string, incrementalWindowDays, historicalWindowYears int, refreshFrequency string) (*RefreshPolicy, error) {
	if datasetID == "" {
		return nil, fmt.Errorf("dataset_id is required")
	}
	if incrementalWindowDays <= 0 {
		incrementalWindowDays = 30
	}
	if historicalWindowYears <= 0 {
		historicalWindowYears = 2
	}
	if refreshFrequency == "" {
		refreshFrequency = "daily"
	}

	policy := &RefreshPolicy{
		DatasetID:             datasetID,
		IncrementalWindowDays: incrementalWindowDays,
		HistoricalWindowYears: historicalWindowYears,
		RefreshFrequency:      refreshFrequency,
		Enabled:               true,
		CreatedAt:             r.now(),
	}
	if err := r.meta.SetJSON(ctx, refreshPolicyKey(datasetID), policy); err != nil {
		return nil, fmt.Errorf("create refresh policy for %s: %w", datasetID, err)
	}
	return policy, nil
}

// GetRefreshPolicy returns the stored policy for id, or nil if none exists.
func (r *RefreshManager) GetRefreshPolicy(ctx context.Context, datasetID string) (*RefreshPolicy, error) {
	var policy RefreshPolicy
	found, err := r.meta.GetJSON(ctx, refreshPolicyKey(datasetID), &policy)
	if err != nil {
		return nil, fmt.Errorf("get refresh policy for %s: %w", datasetID, err)
	}
	if !found {
		return nil, nil
	}
	return &policy, nil
}

func (r *RefreshManager) getLastRefresh(ctx context.Context, datasetID string) (time.Time, error) {
	var rec lastRefreshRecord
	found, err := r.meta.GetJSON(ctx, lastRefreshKey(datasetID), &rec)
	if err != nil {
		return time.Time{}, err
	}
	if !found {
		return r.now().Add(-30 * 24 * time.Hour), nil
	}
	return rec.LastRefresh, nil
}

func (r *RefreshManager) setLastRefresh(ctx context.Context, datasetID string, at time.Time) error {
	return r.meta.SetJSON(ctx, lastRefreshKey(datasetID), lastRefreshRecord{LastRefresh: at})
}

// detectChanges counts observations ingested after since and groups them
// by a best-effort territory/year key for the top-10 breakdown. The
// analytics store's ingestion_timestamp column is the append-only
// store's equivalent of a created_at column.
func detectChanges(rows []analytics.Observation, since time.Time) (changed []analytics.Observation, breakdown []TerritoryCount) {
	counts := map[[2]string]int64{}
	for _, o := range rows {
		if !o.IngestionTimestamp.After(since) {
			continue
		}
		changed = append(changed, o)

		territory := territoryFromAttributes(o.AdditionalAttributes)
		if territory == "" {
			territory = "unknown"
		}
		year := o.TimePeriod
		if y, ok := yearFromPeriod(o.TimePeriod); ok {
			year = fmt.Sprintf("%d", y)
		}
		counts[[2]string{territory, year}]++
	}

	for key, count := range counts {
		breakdown = append(breakdown, TerritoryCount{Territory: key[0], Year: key[1], Count: count})
	}
	sort.Slice(breakdown, func(i, j int) bool { return breakdown[i].Count > breakdown[j].Count })
	if len(breakdown) > 10 {
		breakdown = breakdown[:10]
	}
	return changed, breakdown
}

// ExecuteIncrementalRefresh runs the §4.8 refresh algorithm for datasetID.
func (r *RefreshManager) ExecuteIncrementalRefresh(ctx context.Context, datasetID string, powerBIDatasetID string, force bool) (*RefreshResult, error) {
	policy, err := r.GetRefreshPolicy(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return &RefreshResult{Error: "no policy"}, nil
	}
	if !policy.Enabled && !force {
		return &RefreshResult{Skipped: "policy disabled"}, nil
	}

	lastRefresh, err := r.getLastRefresh(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("execute incremental refresh for %s: %w", datasetID, err)
	}

	rows, err := r.analytics.Query(ctx, analytics.QueryFilter{DatasetID: datasetID})
	if err != nil {
		return nil, fmt.Errorf("execute incremental refresh for %s: %w", datasetID, err)
	}
	changed, breakdown := detectChanges(rows, lastRefresh)
	hasChanges := len(changed) > 0

	checkedAt := r.now()
	if !hasChanges && !force {
		metrics.RefreshExecutions.WithLabelValues(datasetID, "skipped").Inc()
		lr := lastRefresh
		return &RefreshResult{Skipped: "no changes", LastRefresh: &lr, CheckedAt: &checkedAt}, nil
	}

	result := &RefreshResult{
		RecordsProcessed: int64(len(changed)),
		HasChanges:       hasChanges,
		NewCount:         int64(len(changed)),
		UpdatedCount:     int64(len(changed)),
		TopTerritories:   breakdown,
	}

	if r.push != nil && powerBIDatasetID != "" {
		result.PushAttempted = true
		deltaRows := make([]map[string]any, 0, len(changed))
		for _, o := range changed {
			deltaRows = append(deltaRows, map[string]any{
				"dataset_id":           o.DatasetID,
				"record_id":            o.RecordID,
				"obs_value":            o.ObsValue,
				"time_period":          o.TimePeriod,
				"ingestion_timestamp":  o.IngestionTimestamp,
			})
		}
		if err := r.push.PushDelta(ctx, powerBIDatasetID, deltaRows); err != nil {
			logging.Warn().Err(err).Str("dataset_id", datasetID).Msg("powerbi push failed, local refresh bookkeeping still applied")
			result.PushError = err.Error()
			metrics.RefreshPushFailures.Inc()
		}
	}

	now := r.now()
	if err := r.setLastRefresh(ctx, datasetID, now); err != nil {
		return nil, fmt.Errorf("execute incremental refresh for %s: %w", datasetID, err)
	}
	result.LastRefresh = &now

	if _, err := r.meta.Audit().LogAction(ctx, metadata.AuditEvent{
		Action:       "incremental_refresh",
		ResourceType: "dataset",
		ResourceID:   &datasetID,
		Success:      true,
	}); err != nil {
		logging.Warn().Err(err).Str("dataset_id", datasetID).Msg("audit incremental_refresh failed")
	}

	metrics.RefreshExecutions.WithLabelValues(datasetID, "applied").Inc()
	return result, nil
}

// nextScheduledRefresh adds refresh_frequency's interval to lastRefresh.
func nextScheduledRefresh(frequency string, lastRefresh time.Time) time.Time {
	switch frequency {
	case "weekly":
		return lastRefresh.Add(7 * 24 * time.Hour)
	case "monthly":
		return lastRefresh.AddDate(0, 1, 0)
	default: // daily
		return lastRefresh.Add(24 * time.Hour)
	}
}

// GetRefreshStatus reports a dataset's policy state, last/next refresh
// timestamps, and the count of changes in the trailing 7-day window.
func (r *RefreshManager) GetRefreshStatus(ctx context.Context, datasetID string) (*RefreshStatus, error) {
	policy, err := r.GetRefreshPolicy(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	status := &RefreshStatus{Policy: policy}
	if policy == nil {
		return status, nil
	}

	lastRefresh, err := r.getLastRefresh(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("get refresh status for %s: %w", datasetID, err)
	}
	status.LastRefresh = &lastRefresh
	next := nextScheduledRefresh(policy.RefreshFrequency, lastRefresh)
	status.NextScheduledRefresh = &next

	rows, err := r.analytics.Query(ctx, analytics.QueryFilter{DatasetID: datasetID})
	if err != nil {
		return nil, fmt.Errorf("get refresh status for %s: %w", datasetID, err)
	}
	changed, _ := detectChanges(rows, r.now().Add(-7*24*time.Hour))
	status.RecentChanges = int64(len(changed))

	return status, nil
}
