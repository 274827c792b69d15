package powerbi

import (
	"context"
	"fmt"
	"time"

	"github.com/osservatorio-istat/osservatorio/internal/analytics"
	"github.com/osservatorio-istat/osservatorio/internal/logging"
	"github.com/osservatorio-istat/osservatorio/internal/metadata"
)

// Bridge is the Metadata Bridge (C10): cross-cutting governance
// artifacts that span the star schema, usage analytics, and quality
// scoring of a dataset.
type Bridge struct {
	meta      *metadata.Store
	analytics *analytics.Store
	optimizer *Optimizer
	push      PushClient
	now       func() time.Time
}

// NewBridge builds a Bridge. push may be nil.
func NewBridge(meta *metadata.Store, analyticsStore *analytics.Store, optimizer *Optimizer, push PushClient) *Bridge {
	return &Bridge{meta: meta, analytics: analyticsStore, optimizer: optimizer, push: push, now: func() time.Time { return time.Now().UTC() }}
}

// standardTransformationSteps are always prepended to a lineage record's
// transformation list, per §4.10.
var standardTransformationSteps = []string{"data_extraction", "data_validation", "quality_scoring"}

// CreateDatasetLineage records a dataset's source system, dependencies,
// and transformation history, always prefixed by the three standard
// pipeline steps.
func (b *Bridge) CreateDatasetLineage(ctx context.Context, datasetID string, sourceDatasets, transformationSteps []string) (*LineageRecord, error) {
	if datasetID == "" {
		return nil, fmt.Errorf("dataset_id is required")
	}

	steps := make([]string, 0, len(standardTransformationSteps)+len(transformationSteps))
	steps = append(steps, standardTransformationSteps...)
	steps = append(steps, transformationSteps...)

	rec := &LineageRecord{
		DatasetID:           datasetID,
		SourceSystem:        "ISTAT SDMX",
		SourceDatasets:      sourceDatasets,
		TransformationSteps: steps,
		CreatedAt:           b.now(),
	}
	if err := b.meta.SetJSON(ctx, lineageKey(datasetID), rec); err != nil {
		return nil, fmt.Errorf("create dataset lineage for %s: %w", datasetID, err)
	}
	return rec, nil
}

// GetDatasetLineage returns the stored lineage record for id, or nil.
func (b *Bridge) GetDatasetLineage(ctx context.Context, datasetID string) (*LineageRecord, error) {
	var rec LineageRecord
	found, err := b.meta.GetJSON(ctx, lineageKey(datasetID), &rec)
	if err != nil {
		return nil, fmt.Errorf("get dataset lineage for %s: %w", datasetID, err)
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// SyncUsageAnalytics fetches a dataset's report/dashboard counts from
// the external PowerBI Service client, if configured, and persists them.
// An absent client or powerBIDatasetID yields a zero-count record rather
// than an error.
func (b *Bridge) SyncUsageAnalytics(ctx context.Context, datasetID, powerBIDatasetID string) (*UsageMetrics, error) {
	metrics := &UsageMetrics{DatasetID: datasetID, SyncedAt: b.now()}

	if b.push != nil && powerBIDatasetID != "" {
		reports, dashboards, err := b.push.UsageStats(ctx, powerBIDatasetID)
		if err != nil {
			logging.Warn().Err(err).Str("dataset_id", datasetID).Msg("sync usage analytics failed, recording zero counts")
		} else {
			metrics.ReportCount = reports
			metrics.DashboardCount = dashboards
		}
	}

	if err := b.meta.SetJSON(ctx, usageKey(datasetID), metrics); err != nil {
		return nil, fmt.Errorf("sync usage analytics for %s: %w", datasetID, err)
	}
	return metrics, nil
}

// GetUsageMetrics returns the stored usage record for id, or nil.
func (b *Bridge) GetUsageMetrics(ctx context.Context, datasetID string) (*UsageMetrics, error) {
	var rec UsageMetrics
	found, err := b.meta.GetJSON(ctx, usageKey(datasetID), &rec)
	if err != nil {
		return nil, fmt.Errorf("get usage metrics for %s: %w", datasetID, err)
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

func qualityGrade(score float64) string {
	switch {
	case score >= 0.9:
		return "A"
	case score >= 0.8:
		return "B"
	case score >= 0.7:
		return "C"
	case score >= 0.6:
		return "D"
	default:
		return "F"
	}
}

// PropagateQualityScores computes per-territory quality averages over a
// dataset's observations and derives the Quality Score/Grade/Trend DAX
// measures from them, persisting the result.
func (b *Bridge) PropagateQualityScores(ctx context.Context, datasetID string) (*QualityMetadata, error) {
	rows, err := b.analytics.Query(ctx, analytics.QueryFilter{DatasetID: datasetID})
	if err != nil {
		return nil, fmt.Errorf("propagate quality scores for %s: %w", datasetID, err)
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	for _, o := range rows {
		territory := territoryFromAttributes(o.AdditionalAttributes)
		if territory == "" {
			territory = "unknown"
		}
		score := observationQualityScore(o)
		sums[territory] += score
		counts[territory]++
	}

	perTerritory := make(map[string]float64, len(sums))
	var overallSum float64
	for territory, sum := range sums {
		avg := sum / float64(counts[territory])
		perTerritory[territory] = avg
		overallSum += avg
	}
	overall := 0.85
	if len(perTerritory) > 0 {
		overall = overallSum / float64(len(perTerritory))
	}

	trend := "stable"
	if d, err := b.meta.Datasets().Get(ctx, datasetID); err == nil && d != nil {
		switch {
		case overall > d.QualityScore:
			trend = "improving"
		case overall < d.QualityScore:
			trend = "declining"
		}
	}

	measures := map[string]string{
		"Quality Score": fmt.Sprintf("Quality Score = %.4f", overall),
		"Quality Grade": fmt.Sprintf("Quality Grade = \"%s\"", qualityGrade(overall)),
		"Quality Trend": fmt.Sprintf("Quality Trend = \"%s\"", trend),
	}

	meta := &QualityMetadata{
		DatasetID:          datasetID,
		PerTerritoryScores: perTerritory,
		Measures:           measures,
		ComputedAt:         b.now(),
	}
	if err := b.meta.SetJSON(ctx, qualityKey(datasetID), meta); err != nil {
		return nil, fmt.Errorf("propagate quality scores for %s: %w", datasetID, err)
	}

	if _, err := b.meta.Datasets().UpdateStats(ctx, datasetID, nil, &overall, nil); err != nil {
		logging.Warn().Err(err).Str("dataset_id", datasetID).Msg("update dataset quality_score after propagation failed")
	}
	return meta, nil
}

// observationQualityScore is a per-row placeholder quality signal: a
// fully-populated observation (non-empty obs_value and time_period)
// scores 1.0, a partial one scores 0.5, matching the source's
// placeholder-0.85-as-fallback behavior at the aggregate level while
// giving PropagateQualityScores a real per-row signal to average.
func observationQualityScore(o analytics.Observation) float64 {
	score := 0.0
	if o.ObsValue != "" {
		score += 0.5
	}
	if o.TimePeriod != "" {
		score += 0.5
	}
	return score
}

// GetQualityMetadata returns the stored quality record for id, or nil.
func (b *Bridge) GetQualityMetadata(ctx context.Context, datasetID string) (*QualityMetadata, error) {
	var rec QualityMetadata
	found, err := b.meta.GetJSON(ctx, qualityKey(datasetID), &rec)
	if err != nil {
		return nil, fmt.Errorf("get quality metadata for %s: %w", datasetID, err)
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// datasetGovernance computes one dataset's governance rollup row.
func (b *Bridge) datasetGovernance(ctx context.Context, datasetID string) (DatasetGovernance, error) {
	lineage, err := b.GetDatasetLineage(ctx, datasetID)
	if err != nil {
		return DatasetGovernance{}, err
	}
	usage, err := b.GetUsageMetrics(ctx, datasetID)
	if err != nil {
		return DatasetGovernance{}, err
	}
	quality, err := b.GetQualityMetadata(ctx, datasetID)
	if err != nil {
		return DatasetGovernance{}, err
	}

	var qualityScore float64
	if quality != nil {
		for _, v := range quality.PerTerritoryScores {
			qualityScore += v
		}
		if len(quality.PerTerritoryScores) > 0 {
			qualityScore /= float64(len(quality.PerTerritoryScores))
		}
	}

	hasTemplate, err := b.meta.GetJSON(ctx, templateKey(datasetID), &TemplateDescriptor{})
	if err != nil {
		return DatasetGovernance{}, err
	}

	return DatasetGovernance{
		DatasetID:         datasetID,
		HasLineage:        lineage != nil,
		HasUsageData:      usage != nil && (usage.ReportCount > 0 || usage.DashboardCount > 0),
		QualityScore:      qualityScore,
		PowerBIIntegrated: hasTemplate,
	}, nil
}

// GetGovernanceReport returns a single-dataset rollup when datasetID is
// non-empty, or an aggregate report over every dataset that has either
// a stored template or a stored lineage record.
func (b *Bridge) GetGovernanceReport(ctx context.Context, datasetID string) (*GovernanceReport, error) {
	if datasetID != "" {
		row, err := b.datasetGovernance(ctx, datasetID)
		if err != nil {
			return nil, err
		}
		return summarize([]DatasetGovernance{row}), nil
	}

	datasets, err := b.meta.Datasets().List(ctx, "", false, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("get governance report: %w", err)
	}

	var rows []DatasetGovernance
	for _, d := range datasets {
		lineage, err := b.GetDatasetLineage(ctx, d.DatasetID)
		if err != nil {
			return nil, err
		}
		hasTemplate, err := b.meta.GetJSON(ctx, templateKey(d.DatasetID), &TemplateDescriptor{})
		if err != nil {
			return nil, err
		}
		if lineage == nil && !hasTemplate {
			continue
		}
		row, err := b.datasetGovernance(ctx, d.DatasetID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return summarize(rows), nil
}

func summarize(rows []DatasetGovernance) *GovernanceReport {
	report := &GovernanceReport{Datasets: rows, TotalDatasets: len(rows)}
	for _, r := range rows {
		if r.HasLineage {
			report.WithLineage++
		}
		if r.HasUsageData {
			report.WithUsageData++
		}
		if r.PowerBIIntegrated {
			report.PowerBIIntegratedCount++
		}
	}
	return report
}
