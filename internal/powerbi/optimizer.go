package powerbi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/osservatorio-istat/osservatorio/internal/analytics"
	"github.com/osservatorio-istat/osservatorio/internal/apperrors"
	"github.com/osservatorio-istat/osservatorio/internal/cache"
	"github.com/osservatorio-istat/osservatorio/internal/logging"
	"github.com/osservatorio-istat/osservatorio/internal/metadata"
	"github.com/osservatorio-istat/osservatorio/internal/metrics"
)

// Optimizer is the PowerBI Optimizer (C7): star-schema derivation, DAX
// measure generation, and load-time estimation, each backed by its own
// in-process cache so repeated requests for the same dataset within the
// TTL window skip re-derivation entirely.
type Optimizer struct {
	meta      *metadata.Store
	analytics *analytics.Store

	starCache *cache.Cache
	daxCache  *cache.Cache
	starTTL   time.Duration
	daxTTL    time.Duration

	now func() time.Time
}

// NewOptimizer builds an Optimizer. starTTL/daxTTL come from
// config.PowerBIConfig.
func NewOptimizer(meta *metadata.Store, analyticsStore *analytics.Store, starTTL, daxTTL time.Duration) *Optimizer {
	if starTTL <= 0 {
		starTTL = 24 * time.Hour
	}
	if daxTTL <= 0 {
		daxTTL = 6 * time.Hour
	}
	return &Optimizer{
		meta:      meta,
		analytics: analyticsStore,
		starCache: cache.New(starTTL),
		daxCache:  cache.New(daxTTL),
		starTTL:   starTTL,
		daxTTL:    daxTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Close stops both caches' background sweep goroutines.
func (o *Optimizer) Close() {
	o.starCache.Close()
	o.daxCache.Close()
}

// InvalidateDataset drops the cached star schema and DAX set for id,
// e.g. after an ingestion run that may have changed its category.
func (o *Optimizer) InvalidateDataset(id string) {
	o.starCache.Delete(id)
	o.daxCache.Delete(id)
}

// GenerateStarSchema derives (or returns the cached) star schema for id.
func (o *Optimizer) GenerateStarSchema(ctx context.Context, datasetID string) (*StarSchemaDescriptor, error) {
	if cached, ok := o.starCache.Get(datasetID); ok {
		metrics.StarSchemaCacheHits.Inc()
		metrics.CacheHits.WithLabelValues("star_schema").Inc()
		return cached.(*StarSchemaDescriptor), nil
	}
	metrics.StarSchemaCacheMisses.Inc()
	metrics.CacheMisses.WithLabelValues("star_schema").Inc()

	d, err := o.meta.Datasets().Get(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("generate star schema for %s: %w", datasetID, err)
	}
	if d == nil {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, fmt.Sprintf("dataset %s is not registered", datasetID), apperrors.ErrNotFound)
	}

	desc := deriveStarSchema(*d, o.now())
	o.starCache.SetWithTTL(datasetID, desc, o.starTTL)

	if err := o.meta.SetJSON(ctx, starSchemaKey(datasetID), desc); err != nil {
		logging.Warn().Err(err).Str("dataset_id", datasetID).Msg("persist derived star schema failed")
	}
	return desc, nil
}

// deriveStarSchema is a pure function of the dataset's registered
// metadata, per §4.7: the fact table and dimension set depend only on
// dataset_id and category.
func deriveStarSchema(d metadata.Dataset, now time.Time) *StarSchemaDescriptor {
	fact := "fact_" + strings.ToLower(d.DatasetID)
	dims := []Dimension{
		{Name: "dim_time"},
		{Name: "dim_territory"},
		{Name: "dim_measure"},
		{Name: "dim_dataset_metadata"},
	}
	switch d.Category {
	case "popolazione":
		dims = append(dims, Dimension{Name: "dim_age_group"}, Dimension{Name: "dim_gender"})
	case "economia":
		dims = append(dims, Dimension{Name: "dim_economic_indicator"}, Dimension{Name: "dim_sector"})
	case "lavoro":
		dims = append(dims, Dimension{Name: "dim_occupation"}, Dimension{Name: "dim_employment_status"})
	}

	rels := make([]Relationship, 0, 3)
	for _, dimName := range []string{"dim_time", "dim_territory", "dim_measure"} {
		key := strings.TrimPrefix(dimName, "dim_") + "_key"
		rels = append(rels, Relationship{From: fact, To: dimName, Type: "many_to_one", Key: key})
	}

	return &StarSchemaDescriptor{
		DatasetID:     d.DatasetID,
		FactTable:     fact,
		Dimensions:    dims,
		Relationships: rels,
		GeneratedAt:   now,
	}
}

// baseDaxMeasures is the template library's set shared by every dataset,
// regardless of category.
func baseDaxMeasures(fact string) map[string]string {
	return map[string]string{
		"Total Observations": fmt.Sprintf("Total Observations = COUNTROWS('%s')", fact),
		"Average Value":      fmt.Sprintf("Average Value = AVERAGE('%s'[obs_value])", fact),
		"Latest Period":      fmt.Sprintf("Latest Period = MAX('%s'[time_period])", fact),
		"Quality Score":      "Quality Score = AVERAGE('dim_dataset_metadata'[quality_score])",
		"YoY Growth": "YoY Growth = DIVIDE([Total Observations] - CALCULATE([Total Observations], SAMEPERIODLASTYEAR('dim_time'[date])), CALCULATE([Total Observations], SAMEPERIODLASTYEAR('dim_time'[date])))",
		"Data Freshness Days": fmt.Sprintf("Data Freshness Days = DATEDIFF(MAX('%s'[ingestion_timestamp]), TODAY(), DAY)", fact),
	}
}

// categoryDaxMeasures returns the category-specific measures merged over
// the base set.
func categoryDaxMeasures(category, fact string) map[string]string {
	switch category {
	case "popolazione":
		return map[string]string{
			"Population Density": fmt.Sprintf("Population Density = DIVIDE(SUM('%s'[obs_value]), [Territory Area])", fact),
			"Age Group Share":    "Age Group Share = DIVIDE([Total Observations], CALCULATE([Total Observations], ALL('dim_age_group')))",
		}
	case "economia":
		return map[string]string{
			"Economic Index Change": "Economic Index Change = [Average Value] - CALCULATE([Average Value], SAMEPERIODLASTYEAR('dim_time'[date]))",
			"Sector Contribution":   "Sector Contribution = DIVIDE([Average Value], CALCULATE([Average Value], ALL('dim_sector')))",
		}
	case "lavoro":
		return map[string]string{
			"Employment Rate":    "Employment Rate = DIVIDE(CALCULATE([Total Observations], 'dim_employment_status'[status] = \"occupato\"), [Total Observations])",
			"Unemployment Trend": "Unemployment Trend = [Average Value] - CALCULATE([Average Value], SAMEPERIODLASTYEAR('dim_time'[date]))",
		}
	default:
		return nil
	}
}

// GenerateDaxMeasures derives (or returns the cached) DAX measure set for id.
func (o *Optimizer) GenerateDaxMeasures(ctx context.Context, datasetID string) (*DaxMeasureSet, error) {
	if cached, ok := o.daxCache.Get(datasetID); ok {
		metrics.DaxMeasureCacheHits.Inc()
		metrics.CacheHits.WithLabelValues("dax_measures").Inc()
		return cached.(*DaxMeasureSet), nil
	}
	metrics.DaxMeasureCacheMisses.Inc()
	metrics.CacheMisses.WithLabelValues("dax_measures").Inc()

	d, err := o.meta.Datasets().Get(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("generate dax measures for %s: %w", datasetID, err)
	}
	if d == nil {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, fmt.Sprintf("dataset %s is not registered", datasetID), apperrors.ErrNotFound)
	}

	fact := "fact_" + strings.ToLower(d.DatasetID)
	measures := baseDaxMeasures(fact)
	for name, dax := range categoryDaxMeasures(d.Category, fact) {
		measures[name] = dax
	}

	set := &DaxMeasureSet{DatasetID: datasetID, Measures: measures, GeneratedAt: o.now()}
	o.daxCache.SetWithTTL(datasetID, set, o.daxTTL)

	if err := o.meta.SetJSON(ctx, daxMeasuresKey(datasetID), set); err != nil {
		logging.Warn().Err(err).Str("dataset_id", datasetID).Msg("persist generated dax measures failed")
	}
	return set, nil
}

// EstimatePerformance computes the §4.7 performance estimate. Territory
// and year breakdowns are derived from each observation's opaque
// additional_attributes, since the analytics schema carries no dedicated
// territory/date columns (§9 open question on schema heterogeneity).
func (o *Optimizer) EstimatePerformance(ctx context.Context, datasetID string) (*PerformanceEstimate, error) {
	d, err := o.meta.Datasets().Get(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("estimate performance for %s: %w", datasetID, err)
	}
	if d == nil {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, fmt.Sprintf("dataset %s is not registered", datasetID), apperrors.ErrNotFound)
	}

	count, err := o.analytics.CountByDataset(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("estimate performance for %s: %w", datasetID, err)
	}

	obs, err := o.analytics.Query(ctx, analytics.QueryFilter{DatasetID: datasetID})
	if err != nil {
		return nil, fmt.Errorf("estimate performance for %s: %w", datasetID, err)
	}

	territories := map[string]struct{}{}
	startYear, endYear := 0, 0
	for _, row := range obs {
		if t := territoryFromAttributes(row.AdditionalAttributes); t != "" {
			territories[t] = struct{}{}
		}
		if y, ok := yearFromPeriod(row.TimePeriod); ok {
			if startYear == 0 || y < startYear {
				startYear = y
			}
			if y > endYear {
				endYear = y
			}
		}
	}

	quality := d.QualityScore
	if quality <= 0 {
		quality = 0.85
	}

	updateFrequency := "monthly"
	if v, ok := d.Metadata["update_frequency"].(string); ok && v != "" {
		updateFrequency = v
	}
	refreshFrequency := updateFrequency
	switch {
	case d.Priority >= 8:
		refreshFrequency = "daily"
	case d.Priority >= 6:
		refreshFrequency = "weekly"
	}

	numTerritories := len(territories)
	optimizationPotential := (float64(count) / 100000) * (float64(numTerritories) / 100)
	if optimizationPotential > 0.5 {
		optimizationPotential = 0.5
	}

	return &PerformanceEstimate{
		TotalRecords:                    count,
		Territories:                     numTerritories,
		StartYear:                       startYear,
		EndYear:                         endYear,
		AvgQualityScore:                 quality,
		EstimatedPowerBILoadTimeMs:      100 + 0.01*float64(count),
		RecommendedRefreshFrequency:     refreshFrequency,
		StarSchemaOptimizationPotential: optimizationPotential,
	}, nil
}

// territoryKeyCandidates is checked in order against a decoded
// observation's additional_attributes map for a best-effort territory
// label. The SDMX parser keys repeated ObsDimension children on the
// same "obsdimension_<attr>" name, so the last dimension parsed wins
// when more than one is present — an approximation, not an exact
// territory extraction.
var territoryKeyCandidates = []string{"territory", "ref_area", "obsdimension_value"}

func territoryFromAttributes(attrs map[string]any) string {
	for _, key := range territoryKeyCandidates {
		if v, ok := attrs[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// yearFromPeriod extracts a 4-digit year from an SDMX time_period
// literal such as "2024", "2024-Q2", or "2024-03".
func yearFromPeriod(period string) (int, bool) {
	if len(period) < 4 {
		return 0, false
	}
	y, err := strconv.Atoi(period[:4])
	if err != nil {
		return 0, false
	}
	return y, true
}
