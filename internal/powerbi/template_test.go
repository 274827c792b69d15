package powerbi

import (
	"archive/zip"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/osservatorio-istat/osservatorio/internal/metadata"
)

func TestGenerateTemplateWritesPbitArchive(t *testing.T) {
	meta, store := setupStores(t)
	ctx := context.Background()
	registerDataset(t, meta, metadata.Dataset{DatasetID: "101_1015", Name: "popolazione residente", Category: "popolazione", Priority: 8, IsActive: true})

	opt := NewOptimizer(meta, store, time.Hour, time.Hour)
	defer opt.Close()

	dir := t.TempDir()
	gen := NewTemplateGenerator(meta, opt, dir)

	desc, err := gen.GenerateTemplate(ctx, "101_1015")
	if err != nil {
		t.Fatalf("GenerateTemplate: %v", err)
	}
	if desc.Path != filepath.Join(dir, "101_1015.pbit") {
		t.Errorf("unexpected template path %q", desc.Path)
	}
	if len(desc.Visuals) == 0 {
		t.Fatalf("expected population visuals to be assigned")
	}

	zr, err := zip.OpenReader(desc.Path)
	if err != nil {
		t.Fatalf("open pbit archive: %v", err)
	}
	defer zr.Close()

	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"Report/Layout", "DataModel", "Metadata", "Connections"} {
		if !names[want] {
			t.Errorf("expected pbit entry %q, got %+v", want, names)
		}
	}
}

func TestGenerateTemplatePersistsDescriptor(t *testing.T) {
	meta, store := setupStores(t)
	ctx := context.Background()
	registerDataset(t, meta, metadata.Dataset{DatasetID: "149_319", Name: "forze di lavoro", Category: "lavoro", Priority: 7, IsActive: true})

	opt := NewOptimizer(meta, store, time.Hour, time.Hour)
	defer opt.Close()
	gen := NewTemplateGenerator(meta, opt, t.TempDir())

	if _, err := gen.GenerateTemplate(ctx, "149_319"); err != nil {
		t.Fatalf("GenerateTemplate: %v", err)
	}

	var stored TemplateDescriptor
	found, err := meta.GetJSON(ctx, templateKey("149_319"), &stored)
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if !found {
		t.Fatalf("expected template descriptor to be persisted")
	}
	if stored.DatasetID != "149_319" {
		t.Errorf("expected stored descriptor for 149_319, got %+v", stored)
	}
}

func TestGenerateTemplateUnknownDataset(t *testing.T) {
	meta, store := setupStores(t)
	opt := NewOptimizer(meta, store, time.Hour, time.Hour)
	defer opt.Close()
	gen := NewTemplateGenerator(meta, opt, t.TempDir())

	if _, err := gen.GenerateTemplate(context.Background(), "does_not_exist"); err == nil {
		t.Fatalf("expected error for unregistered dataset")
	}
}

func TestVisualsForCategoryFallsBackToGeneric(t *testing.T) {
	visuals := visualsForCategory("territorio")
	if len(visuals) != len(genericVisuals) {
		t.Errorf("expected generic visual set for unrecognized category, got %+v", visuals)
	}
}

func TestBuildLayoutOverflowsToSecondPage(t *testing.T) {
	visuals := make([]Visual, 0, 8)
	for i := 0; i < 8; i++ {
		visuals = append(visuals, Visual{Type: "card", Title: "v"})
	}
	layout := buildLayout(visuals)
	pages, ok := layout["pages"].([]map[string]any)
	if !ok || len(pages) != 2 {
		t.Fatalf("expected 2 pages for 8 visuals, got %+v", layout)
	}
	if pages[1]["name"] != "Dettagli" {
		t.Errorf("expected overflow page named Dettagli, got %+v", pages[1])
	}
}
