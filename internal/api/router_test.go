package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/osservatorio-istat/osservatorio/internal/analytics"
	"github.com/osservatorio-istat/osservatorio/internal/export"
	"github.com/osservatorio-istat/osservatorio/internal/ingestion"
	"github.com/osservatorio-istat/osservatorio/internal/metadata"
	"github.com/osservatorio-istat/osservatorio/internal/powerbi"
	"github.com/osservatorio-istat/osservatorio/internal/repository"
)

func setupRouter(t *testing.T) (http.Handler, *metadata.Store) {
	t.Helper()
	dir := t.TempDir()

	meta, err := metadata.New(context.Background(), filepath.Join(dir, "meta.db"))
	if err != nil {
		t.Fatalf("metadata.New: %v", err)
	}
	t.Cleanup(func() { meta.Close() })

	store, err := analytics.New(context.Background(), analytics.Config{Path: filepath.Join(dir, "analytics.duckdb"), Threads: 1})
	if err != nil {
		t.Fatalf("analytics.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	repo := repository.New(meta, store, time.Minute)
	t.Cleanup(repo.Close)

	exportEngine := export.New(store)
	pipeline := ingestion.New(meta, store, nil, ingestion.Config{})

	opt := powerbi.NewOptimizer(meta, store, time.Hour, time.Hour)
	t.Cleanup(opt.Close)
	refresh := powerbi.NewRefreshManager(meta, store, nil)
	templateGen := powerbi.NewTemplateGenerator(meta, opt, t.TempDir())
	bridge := powerbi.NewBridge(meta, store, opt, nil)

	router := NewRouter(meta, repo, exportEngine, pipeline, opt, refresh, templateGen, bridge, Config{})
	return router, meta
}

func TestFormatsEndpointIsPublic(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/datasets/export/formats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestExportRequiresCredential(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/datasets/101_1015/export?format=csv", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a bearer credential, got %d", rec.Code)
	}
}

func TestExportWithValidCredentialAndUnknownDataset(t *testing.T) {
	router, meta := setupRouter(t)
	ctx := context.Background()

	if err := meta.Users().StoreAPICredentials(ctx, "powerbi", "secret-key", "", "", 0, nil); err != nil {
		t.Fatalf("StoreAPICredentials: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/datasets/does_not_exist/export?format=csv", nil)
	req.Header.Set("Authorization", "Bearer powerbi:secret-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unregistered dataset, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestExportWithWrongCredential(t *testing.T) {
	router, meta := setupRouter(t)
	ctx := context.Background()

	if err := meta.Users().StoreAPICredentials(ctx, "powerbi", "secret-key", "", "", 0, nil); err != nil {
		t.Fatalf("StoreAPICredentials: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/datasets/101_1015/export?format=csv", nil)
	req.Header.Set("Authorization", "Bearer powerbi:wrong-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for mismatched credential, got %d", rec.Code)
	}
}

func TestExportSucceedsEndToEnd(t *testing.T) {
	router, meta := setupRouter(t)
	ctx := context.Background()

	if err := meta.Users().StoreAPICredentials(ctx, "powerbi", "secret-key", "", "", 0, nil); err != nil {
		t.Fatalf("StoreAPICredentials: %v", err)
	}
	if _, err := meta.Datasets().Register(ctx, metadata.Dataset{DatasetID: "101_1015", Name: "popolazione", IsActive: true}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/datasets/101_1015/export?format=csv", nil)
	req.Header.Set("Authorization", "Bearer powerbi:secret-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got == "" {
		t.Errorf("expected Content-Disposition header to be set")
	}
}

func TestPowerBIStarSchemaEndpoint(t *testing.T) {
	router, meta := setupRouter(t)
	ctx := context.Background()

	if err := meta.Users().StoreAPICredentials(ctx, "powerbi", "secret-key", "", "", 0, nil); err != nil {
		t.Fatalf("StoreAPICredentials: %v", err)
	}
	if _, err := meta.Datasets().Register(ctx, metadata.Dataset{DatasetID: "101_1015", Name: "popolazione", Category: "popolazione", IsActive: true}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/powerbi/datasets/101_1015/star-schema", nil)
	req.Header.Set("Authorization", "Bearer powerbi:secret-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
