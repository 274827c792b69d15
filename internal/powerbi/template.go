package powerbi

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/osservatorio-istat/osservatorio/internal/metadata"
)

// TemplateGenerator is the Template Generator (C9): it assembles a
// dataset's star schema, DAX measures and a category-driven visual set
// into a .pbit-shaped ZIP archive on disk.
type TemplateGenerator struct {
	meta         *metadata.Store
	optimizer    *Optimizer
	templatesDir string
	now          func() time.Time
}

// NewTemplateGenerator builds a TemplateGenerator. templatesDir comes
// from config.PowerBIConfig.TemplatesDir.
func NewTemplateGenerator(meta *metadata.Store, optimizer *Optimizer, templatesDir string) *TemplateGenerator {
	return &TemplateGenerator{meta: meta, optimizer: optimizer, templatesDir: templatesDir, now: func() time.Time { return time.Now().UTC() }}
}

// populationVisuals, economyVisuals, employmentVisuals are the curated
// sets named in §4.9; any other category falls back to genericVisuals.
var populationVisuals = []Visual{
	{Type: "line_chart", Title: "Popolazione nel tempo", XAxis: "time_period", YAxis: "obs_value", Description: "Andamento della popolazione residente per periodo"},
	{Type: "map", Title: "Distribuzione territoriale", Legend: "territory", Value: "obs_value", Description: "Popolazione residente per territorio"},
	{Type: "bar_chart", Title: "Popolazione per fascia d'eta", XAxis: "age_group", YAxis: "obs_value"},
	{Type: "card", Title: "Popolazione totale", Value: "Total Observations"},
}

var economyVisuals = []Visual{
	{Type: "line_chart", Title: "Andamento economico", XAxis: "time_period", YAxis: "obs_value"},
	{Type: "bar_chart", Title: "Confronto settoriale", XAxis: "sector", YAxis: "obs_value"},
	{Type: "card", Title: "Crescita anno su anno", Value: "YoY Growth"},
	{Type: "table", Title: "Dettaglio indicatori economici", Description: "Tabella degli indicatori grezzi"},
}

var employmentVisuals = []Visual{
	{Type: "line_chart", Title: "Occupazione nel tempo", XAxis: "time_period", YAxis: "obs_value"},
	{Type: "donut_chart", Title: "Stato occupazionale", Legend: "employment_status", Value: "obs_value"},
	{Type: "card", Title: "Tasso di occupazione", Value: "Employment Rate"},
}

var genericVisuals = []Visual{
	{Type: "line_chart", Title: "Valori nel tempo", XAxis: "time_period", YAxis: "obs_value"},
	{Type: "card", Title: "Totale osservazioni", Value: "Total Observations"},
	{Type: "card", Title: "Indice di qualita", Value: "Quality Score"},
}

func visualsForCategory(category string) []Visual {
	switch category {
	case "popolazione":
		return populationVisuals
	case "economia":
		return economyVisuals
	case "lavoro":
		return employmentVisuals
	default:
		return genericVisuals
	}
}

// GenerateTemplate derives (or reuses) a dataset's star schema and DAX
// measures, assembles a visual set for its category, writes the .pbit
// ZIP to the templates directory, and persists the resulting descriptor.
func (g *TemplateGenerator) GenerateTemplate(ctx context.Context, datasetID string) (*TemplateDescriptor, error) {
	d, err := g.meta.Datasets().Get(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("generate template for %s: %w", datasetID, err)
	}
	if d == nil {
		return nil, fmt.Errorf("dataset %s is not registered", datasetID)
	}

	star, err := g.optimizer.GenerateStarSchema(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	dax, err := g.optimizer.GenerateDaxMeasures(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	visuals := visualsForCategory(d.Category)

	if err := os.MkdirAll(g.templatesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create templates directory: %w", err)
	}
	path := filepath.Join(g.templatesDir, datasetID+".pbit")
	generatedAt := g.now()
	if err := writePbit(path, datasetID, *star, *dax, visuals, generatedAt); err != nil {
		return nil, fmt.Errorf("write pbit for %s: %w", datasetID, err)
	}

	desc := &TemplateDescriptor{
		DatasetID:   datasetID,
		StarSchema:  *star,
		Measures:    *dax,
		Visuals:     visuals,
		Path:        path,
		GeneratedAt: generatedAt,
	}
	if err := g.meta.SetJSON(ctx, templateKey(datasetID), desc); err != nil {
		return nil, fmt.Errorf("persist template descriptor for %s: %w", datasetID, err)
	}
	return desc, nil
}

const visualsPerPage = 6
const columnsPerPage = 3

// buildLayout lays visuals out three-per-row on a grid page, with
// overflow beyond visualsPerPage spilling onto a second "Dettagli" page
// at two columns, per §4.9.
func buildLayout(visuals []Visual) map[string]any {
	primary := visuals
	overflow := []Visual{}
	if len(visuals) > visualsPerPage {
		primary = visuals[:visualsPerPage]
		overflow = visuals[visualsPerPage:]
	}

	pages := []map[string]any{
		{"name": "Dashboard", "columns": columnsPerPage, "visuals": placeVisuals(primary, columnsPerPage)},
	}
	if len(overflow) > 0 {
		pages = append(pages, map[string]any{"name": "Dettagli", "columns": 2, "visuals": placeVisuals(overflow, 2)})
	}
	return map[string]any{"pages": pages}
}

func placeVisuals(visuals []Visual, columns int) []map[string]any {
	out := make([]map[string]any, 0, len(visuals))
	for i, v := range visuals {
		out = append(out, map[string]any{
			"visual": v,
			"row":    i / columns,
			"column": i % columns,
		})
	}
	return out
}

func buildDataModel(star StarSchemaDescriptor, dax DaxMeasureSet) map[string]any {
	return map[string]any{
		"tables":        append([]Dimension{{Name: star.FactTable}}, star.Dimensions...),
		"relationships": star.Relationships,
		"measures":      dax.Measures,
		"cultures":      []string{"it-IT"},
	}
}

func buildMetadata(datasetID string, generatedAt time.Time) map[string]any {
	return map[string]any{
		"version":      "1.0",
		"timestamp":    generatedAt.Format(time.RFC3339),
		"locale":       "it-IT",
		"datasetId":    datasetID,
		"requirements": map[string]any{"minPowerBIDesktopVersion": "2.120"},
	}
}

func buildConnections(datasetID string) map[string]any {
	return map[string]any{
		"connections": []map[string]any{
			{"name": "metadata_store", "kind": "sqlite", "dataset_id": datasetID},
			{"name": "analytics_store", "kind": "duckdb", "dataset_id": datasetID},
		},
		"refresh_policy_stub": map[string]any{"dataset_id": datasetID, "configured": false},
	}
}

// writePbit writes a .pbit-shaped ZIP archive at path: the entries a
// real PowerBI Desktop template carries, each a JSON document here since
// this core never has to round-trip through actual PowerBI Desktop.
func writePbit(path, datasetID string, star StarSchemaDescriptor, dax DaxMeasureSet, visuals []Visual, generatedAt time.Time) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create pbit file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(f)
	defer func() {
		if cerr := zw.Close(); err == nil {
			err = cerr
		}
	}()

	entries := map[string]any{
		"Report/Layout": buildLayout(visuals),
		"DataModel":     buildDataModel(star, dax),
		"Metadata":      buildMetadata(datasetID, generatedAt),
		"Connections":   buildConnections(datasetID),
	}
	for _, name := range []string{"Report/Layout", "DataModel", "Metadata", "Connections"} {
		if err = addJSONEntry(zw, name, entries[name]); err != nil {
			return fmt.Errorf("add %s entry: %w", name, err)
		}
	}
	return nil
}

func addJSONEntry(zw *zip.Writer, name string, v any) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(bytes.TrimSpace(b))
	return err
}
