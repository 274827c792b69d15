// Package powerbi implements the PowerBI-facing surface (C7-C10): star
// schema and DAX measure derivation, incremental refresh policies, .pbit
// template packaging, and cross-cutting governance artifacts (lineage,
// usage analytics, quality propagation). Every artifact this package
// produces is a well-typed record serialized to JSON and persisted
// through the metadata store's configuration keyspace rather than
// dedicated tables, per the data model's "weak reference" ownership rule.
package powerbi

import (
	"context"
	"fmt"
	"time"
)

// Dimension is one star-schema dimension table.
type Dimension struct {
	Name string `json:"name"`
}

// Relationship is a many-to-one link from the fact table to a dimension.
type Relationship struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
	Key  string `json:"key"`
}

// StarSchemaDescriptor is the derived star schema for a dataset (C7).
type StarSchemaDescriptor struct {
	DatasetID     string         `json:"dataset_id"`
	FactTable     string         `json:"fact_table"`
	Dimensions    []Dimension    `json:"dimensions"`
	Relationships []Relationship `json:"relationships"`
	GeneratedAt   time.Time      `json:"generated_at"`
}

// DaxMeasureSet is the generated DAX measure library for a dataset (C7).
type DaxMeasureSet struct {
	DatasetID   string            `json:"dataset_id"`
	Measures    map[string]string `json:"measures"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// PerformanceEstimate is the result of estimate_performance (C7).
type PerformanceEstimate struct {
	TotalRecords                    int64   `json:"total_records"`
	Territories                     int     `json:"territories"`
	StartYear                       int     `json:"start_year"`
	EndYear                         int     `json:"end_year"`
	AvgQualityScore                 float64 `json:"avg_quality_score"`
	EstimatedPowerBILoadTimeMs      float64 `json:"estimated_powerbi_load_time_ms"`
	RecommendedRefreshFrequency     string  `json:"recommended_refresh_frequency"`
	StarSchemaOptimizationPotential float64 `json:"star_schema_optimization_potential"`
}

// Visual is a single structured visualization descriptor for a template
// page.
type Visual struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	XAxis       string `json:"x_axis,omitempty"`
	YAxis       string `json:"y_axis,omitempty"`
	Legend      string `json:"legend,omitempty"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

// TemplateDescriptor records a generated .pbit template's contents and
// where it was written (C9).
type TemplateDescriptor struct {
	DatasetID   string        `json:"dataset_id"`
	StarSchema  StarSchemaDescriptor `json:"star_schema"`
	Measures    DaxMeasureSet `json:"measures"`
	Visuals     []Visual      `json:"visuals"`
	Path        string        `json:"path"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// RefreshPolicy controls a dataset's incremental refresh behavior (C8).
type RefreshPolicy struct {
	DatasetID             string    `json:"dataset_id"`
	IncrementalWindowDays int       `json:"incremental_window_days"`
	HistoricalWindowYears int       `json:"historical_window_years"`
	RefreshFrequency      string    `json:"refresh_frequency"`
	Enabled               bool      `json:"enabled"`
	CreatedAt             time.Time `json:"created_at"`
}

// lastRefreshRecord wraps the last-refresh timestamp so it round-trips
// through the configuration store's JSON codec as an object, not a bare
// string literal, which decodeTypedValue's map[string]any assumption
// cannot hold.
type lastRefreshRecord struct {
	LastRefresh time.Time `json:"last_refresh"`
}

// TerritoryCount is one row of a refresh delta's top-10 breakdown.
type TerritoryCount struct {
	Territory string `json:"territory"`
	Year      string `json:"year"`
	Count     int64  `json:"count"`
}

// RefreshResult is the outcome of execute_incremental_refresh.
type RefreshResult struct {
	Error            string           `json:"error,omitempty"`
	Skipped          string           `json:"skipped,omitempty"`
	LastRefresh      *time.Time       `json:"last_refresh,omitempty"`
	CheckedAt        *time.Time       `json:"checked_at,omitempty"`
	RecordsProcessed int64            `json:"records_processed"`
	HasChanges       bool             `json:"has_changes"`
	NewCount         int64            `json:"new_count"`
	UpdatedCount     int64            `json:"updated_count"`
	TopTerritories   []TerritoryCount `json:"top_territories,omitempty"`
	PushAttempted    bool             `json:"push_attempted"`
	PushError        string           `json:"push_error,omitempty"`
}

// RefreshStatus is the result of get_refresh_status.
type RefreshStatus struct {
	Policy               *RefreshPolicy `json:"policy"`
	LastRefresh          *time.Time     `json:"last_refresh"`
	NextScheduledRefresh *time.Time     `json:"next_scheduled_refresh"`
	RecentChanges        int64          `json:"recent_changes"`
}

// LineageRecord is the governance lineage artifact (C10).
type LineageRecord struct {
	DatasetID           string    `json:"dataset_id"`
	SourceSystem        string    `json:"source_system"`
	SourceDatasets      []string  `json:"source_datasets,omitempty"`
	TransformationSteps []string  `json:"transformation_steps"`
	CreatedAt           time.Time `json:"created_at"`
}

// UsageMetrics is the governance usage artifact (C10).
type UsageMetrics struct {
	DatasetID      string    `json:"dataset_id"`
	ReportCount    int       `json:"report_count"`
	DashboardCount int       `json:"dashboard_count"`
	SyncedAt       time.Time `json:"synced_at"`
}

// QualityMetadata is the governance quality artifact (C10).
type QualityMetadata struct {
	DatasetID          string             `json:"dataset_id"`
	PerTerritoryScores map[string]float64 `json:"per_territory_scores"`
	Measures           map[string]string  `json:"measures"`
	ComputedAt         time.Time          `json:"computed_at"`
}

// DatasetGovernance is one dataset's row in a governance rollup.
type DatasetGovernance struct {
	DatasetID         string  `json:"dataset_id"`
	HasLineage        bool    `json:"has_lineage"`
	HasUsageData      bool    `json:"has_usage_data"`
	QualityScore      float64 `json:"quality_score"`
	PowerBIIntegrated bool    `json:"powerbi_integrated"`
}

// GovernanceReport is the result of get_governance_report.
type GovernanceReport struct {
	Datasets               []DatasetGovernance `json:"datasets"`
	TotalDatasets          int                 `json:"total_datasets"`
	WithLineage            int                 `json:"with_lineage"`
	WithUsageData          int                 `json:"with_usage_data"`
	PowerBIIntegratedCount int                 `json:"powerbi_integrated_count"`
}

// PushClient is the optional external PowerBI Service integration. A nil
// PushClient disables pushes entirely; callers never need a nil check
// before use since every method on RefreshManager/Bridge already treats
// an absent client as a no-op success.
type PushClient interface {
	PushDelta(ctx context.Context, powerBIDatasetID string, rows []map[string]any) error
	UsageStats(ctx context.Context, powerBIDatasetID string) (reportCount, dashboardCount int, err error)
}

func starSchemaKey(id string) string   { return fmt.Sprintf("dataset.%s.powerbi_star_schema", id) }
func daxMeasuresKey(id string) string  { return fmt.Sprintf("dataset.%s.powerbi_dax_measures", id) }
func templateKey(id string) string     { return fmt.Sprintf("dataset.%s.powerbi_template", id) }
func lineageKey(id string) string      { return fmt.Sprintf("dataset.%s.powerbi_lineage", id) }
func usageKey(id string) string        { return fmt.Sprintf("dataset.%s.powerbi_usage_metrics", id) }
func qualityKey(id string) string      { return fmt.Sprintf("dataset.%s.powerbi_quality_metadata", id) }
func refreshPolicyKey(id string) string {
	return fmt.Sprintf("dataset.%s.incremental_refresh_policy", id)
}
func lastRefreshKey(id string) string { return fmt.Sprintf("dataset.%s.last_incremental_refresh", id) }
