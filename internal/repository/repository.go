package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/osservatorio-istat/osservatorio/internal/analytics"
	"github.com/osservatorio-istat/osservatorio/internal/cache"
	"github.com/osservatorio-istat/osservatorio/internal/metadata"
)

// Repository is the unified repository (C3). It holds non-owning
// references to both stores — neither is closed by Repository.Close,
// the caller that opened them owns their lifetime.
type Repository struct {
	meta      *metadata.Store
	analytics *analytics.Store

	prefCache    *cache.Cache
	prefCacheTTL time.Duration
}

// New composes meta and analyticsStore into a Repository. defaultCacheTTL
// is used when GetUserPreference is called with cacheMinutes <= 0.
func New(meta *metadata.Store, analyticsStore *analytics.Store, defaultCacheTTL time.Duration) *Repository {
	if defaultCacheTTL <= 0 {
		defaultCacheTTL = 5 * time.Minute
	}
	return &Repository{
		meta:         meta,
		analytics:    analyticsStore,
		prefCache:    cache.New(defaultCacheTTL),
		prefCacheTTL: defaultCacheTTL,
	}
}

// Close releases the preference cache's background sweep goroutine. It
// does not close the underlying stores.
func (r *Repository) Close() {
	r.prefCache.Close()
}

// Metadata exposes the underlying metadata store for callers that need
// operations the repository facade doesn't cover (e.g. the ingestion
// pipeline's UpdateStats call).
func (r *Repository) Metadata() *metadata.Store { return r.meta }

// Analytics exposes the underlying analytics store for the same reason.
func (r *Repository) Analytics() *analytics.Store { return r.analytics }

// RegisterDatasetComplete registers d in the metadata store. The
// analytics observation table is ensured once at Store.New time, so no
// further schema action is needed here — registration is atomic with
// respect to the metadata write alone, per §4.3.
func (r *Repository) RegisterDatasetComplete(ctx context.Context, d metadata.Dataset) (bool, error) {
	return r.meta.Datasets().Register(ctx, d)
}

// DatasetComplete augments a metadata.Dataset with analytics presence
// and summary stats.
type DatasetComplete struct {
	metadata.Dataset
	HasAnalyticsData bool
	AnalyticsStats   *AnalyticsStats
}

// AnalyticsStats summarizes a dataset's observation rows.
type AnalyticsStats struct {
	Count         int64
	MinTimePeriod string
	MaxTimePeriod string
}

// GetDatasetComplete returns the metadata registration for id augmented
// with analytics presence and stats, or nil if the dataset isn't
// registered.
func (r *Repository) GetDatasetComplete(ctx context.Context, id string) (*DatasetComplete, error) {
	d, err := r.meta.Datasets().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", id, err)
	}
	if d == nil {
		return nil, nil
	}

	count, err := r.analytics.CountByDataset(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count analytics rows for %s: %w", id, err)
	}

	out := &DatasetComplete{Dataset: *d, HasAnalyticsData: count > 0}
	if count > 0 {
		rows, err := r.analytics.ExecuteQuery(ctx,
			`SELECT MIN(time_period) as min_period, MAX(time_period) as max_period FROM istat_observations WHERE dataset_id = ?`, id)
		if err != nil {
			return nil, fmt.Errorf("summarize analytics rows for %s: %w", id, err)
		}
		stats := &AnalyticsStats{Count: count}
		if len(rows) == 1 {
			if v, ok := rows[0]["min_period"].(string); ok {
				stats.MinTimePeriod = v
			}
			if v, ok := rows[0]["max_period"].(string); ok {
				stats.MaxTimePeriod = v
			}
		}
		out.AnalyticsStats = stats
	}
	return out, nil
}

// ListDatasetsComplete passes through to the metadata dataset manager.
func (r *Repository) ListDatasetsComplete(ctx context.Context, category string, activeOnly bool, limit, offset int) ([]metadata.Dataset, error) {
	return r.meta.Datasets().List(ctx, category, activeOnly, limit, offset)
}

// ExecuteAnalyticsQuery passes query through to the analytics store and
// emits an audit event tagged action="analytics_query", per §4.3.
func (r *Repository) ExecuteAnalyticsQuery(ctx context.Context, query string, userID string, params ...any) ([]map[string]any, error) {
	rows, err := r.analytics.ExecuteQuery(ctx, query, params...)

	var userIDPtr *string
	if userID != "" {
		userIDPtr = &userID
	}
	success := err == nil
	var errMsg *string
	if err != nil {
		m := err.Error()
		errMsg = &m
	}

	_, auditErr := r.meta.Audit().LogAction(ctx, metadata.AuditEvent{
		UserID:       userIDPtr,
		Action:       "analytics_query",
		ResourceType: "analytics_query",
		Success:      success,
		ErrorMessage: errMsg,
	})

	if err != nil {
		return nil, fmt.Errorf("execute analytics query: %w", err)
	}
	if auditErr != nil {
		return rows, fmt.Errorf("log analytics_query audit event: %w", auditErr)
	}
	return rows, nil
}

// Transaction runs fn inside a scoped metadata transaction, committing
// on success and rolling back on any error or panic along every exit
// path, per §4.3.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return r.meta.WithTx(ctx, fn)
}

// LogUserActivity is a convenience wrapper over AuditManager.LogAction.
func (r *Repository) LogUserActivity(ctx context.Context, userID, action string, details map[string]any) (bool, error) {
	return r.meta.Audit().LogAction(ctx, metadata.AuditEvent{
		UserID:       &userID,
		Action:       action,
		ResourceType: "user_activity",
		Details:      details,
		Success:      true,
	})
}
