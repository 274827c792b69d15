package categorize

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/osservatorio-istat/osservatorio/internal/metadata"
)

func setupTestStore(t *testing.T) *metadata.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := metadata.New(context.Background(), filepath.Join(dir, "metadata.db"))
	if err != nil {
		t.Fatalf("metadata.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestClassifyMatchesSeededRule(t *testing.T) {
	s := setupTestStore(t)
	e := New(s)
	ctx := context.Background()

	res, err := e.Classify(ctx, "Popolazione residente per comune", "Dati su natalita e mortalita")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !res.Matched {
		t.Fatalf("expected a match")
	}
	if res.Category != "popolazione" {
		t.Errorf("expected category popolazione, got %q", res.Category)
	}
}

func TestClassifyMultiWordKeyword(t *testing.T) {
	s := setupTestStore(t)
	e := New(s)
	ctx := context.Background()

	res, err := e.Classify(ctx, "Indagine sulla tensione contrattuale", "")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Category != "lavoro" {
		t.Errorf("expected category lavoro for multi-word keyword match, got %q", res.Category)
	}
}

func TestClassifyFallsBackToDefaultCategory(t *testing.T) {
	s := setupTestStore(t)
	e := New(s)
	ctx := context.Background()

	res, err := e.Classify(ctx, "Qualcosa di completamente diverso", "nessuna parola chiave nota")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Matched {
		t.Fatalf("expected no match")
	}
	if res.Category != DefaultCategory {
		t.Errorf("expected default category %q, got %q", DefaultCategory, res.Category)
	}
}

func TestClassifyDoesNotMatchMidWordSubstring(t *testing.T) {
	s := setupTestStore(t)
	e := New(s)
	ctx := context.Background()

	// "pil" is a keyword under economia; "pillola" must not trigger it.
	res, err := e.Classify(ctx, "Distribuzione della pillola anticoncezionale", "")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Matched && res.Category == "economia" {
		t.Errorf("expected pillola to not match the pil keyword, got category %q", res.Category)
	}
}

func TestClassifyAndStorePersistsCategory(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	if _, err := s.Datasets().Register(ctx, metadata.Dataset{
		DatasetID: "101_1015", Name: "Popolazione residente", Description: "natalita e mortalita",
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	e := New(s)
	res, err := e.ClassifyAndStore(ctx, "101_1015", "Popolazione residente", "natalita e mortalita")
	if err != nil {
		t.Fatalf("ClassifyAndStore: %v", err)
	}
	if res.Category != "popolazione" {
		t.Fatalf("expected popolazione, got %q", res.Category)
	}

	d, err := s.Datasets().Get(ctx, "101_1015")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.Category != "popolazione" {
		t.Errorf("expected stored category popolazione, got %q", d.Category)
	}
}

func TestRefreshPicksUpNewRule(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	e := New(s)

	if _, err := e.Classify(ctx, "Un testo qualsiasi", ""); err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if err := s.Categorization().Create(ctx, metadata.CategorizationRule{
		RuleID: "ambiente", Category: "ambiente", Priority: 20, IsActive: true,
		Keywords: []string{"inquinamento", "clima"},
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := e.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	res, err := e.Classify(ctx, "Livelli di inquinamento atmosferico", "")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Category != "ambiente" {
		t.Errorf("expected newly created rule to win, got %q", res.Category)
	}
}
