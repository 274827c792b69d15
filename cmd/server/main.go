// Command server wires configuration, both stores, the unified
// repository, the ingestion pipeline, and the PowerBI components behind
// an HTTP API, then serves it until a shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osservatorio-istat/osservatorio/internal/analytics"
	"github.com/osservatorio-istat/osservatorio/internal/api"
	"github.com/osservatorio-istat/osservatorio/internal/config"
	"github.com/osservatorio-istat/osservatorio/internal/export"
	"github.com/osservatorio-istat/osservatorio/internal/ingestion"
	"github.com/osservatorio-istat/osservatorio/internal/logging"
	"github.com/osservatorio-istat/osservatorio/internal/metadata"
	"github.com/osservatorio-istat/osservatorio/internal/powerbi"
	"github.com/osservatorio-istat/osservatorio/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logging.Info().Msg("Starting Osservatorio")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	meta, err := metadata.New(ctx, cfg.Database.SQLitePath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open metadata store")
	}
	defer func() {
		if err := meta.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing metadata store")
		}
	}()
	logging.Info().Str("path", cfg.Database.SQLitePath).Msg("Metadata store ready")

	analyticsStore, err := analytics.New(ctx, analytics.Config{
		Path:      cfg.Database.DuckDBPath,
		MaxMemory: cfg.Database.MaxMemory,
		Threads:   cfg.Database.Threads,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open analytics store")
	}
	defer func() {
		if err := analyticsStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing analytics store")
		}
	}()
	logging.Info().Str("path", cfg.Database.DuckDBPath).Msg("Analytics store ready")

	repo := repository.New(meta, analyticsStore, cfg.Cache.DefaultTTL)
	defer repo.Close()

	sdmxClient := ingestion.NewHTTPClient(cfg.Istat.BaseURL, cfg.Istat.Timeout)
	pipeline := ingestion.New(meta, analyticsStore, sdmxClient, ingestion.Config{
		PriorityDatasets: cfg.Ingestion.PriorityDatasets,
		Retries:          cfg.Ingestion.Retries,
		MaxConcurrent:    cfg.Ingestion.MaxConcurrent,
		RequestsPerHour:  cfg.Istat.RateLimit,
	})

	optimizer := powerbi.NewOptimizer(meta, analyticsStore, cfg.PowerBI.StarSchemaCacheTTL, cfg.PowerBI.DaxCacheTTL)
	defer optimizer.Close()

	// PowerBI Service push is best-effort and optional (§4.8 step 7,
	// §9 OQ4); nil means "not configured", never an error.
	var pushClient powerbi.PushClient
	if url := os.Getenv("OSSERVATORIO_POWERBI_PUSH_URL"); url != "" {
		pushClient = powerbi.NewHTTPPushClient(url, os.Getenv("OSSERVATORIO_POWERBI_PUSH_TOKEN"))
		logging.Info().Msg("PowerBI push client configured")
	}

	refreshMgr := powerbi.NewRefreshManager(meta, analyticsStore, pushClient)
	templateGen := powerbi.NewTemplateGenerator(meta, optimizer, cfg.PowerBI.TemplatesDir)
	bridge := powerbi.NewBridge(meta, analyticsStore, optimizer, pushClient)

	exportEngine := export.New(analyticsStore)

	router := api.NewRouter(meta, repo, exportEngine, pipeline, optimizer, refreshMgr, templateGen, bridge, api.Config{
		CORSAllowedOrigins: corsOrigins(),
		RateLimitPerHour:   cfg.Istat.RateLimit * 10,
	})

	mux := http.NewServeMux()
	mux.Handle("/", router)
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%s", port())
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  cfg.Istat.Timeout,
		WriteTimeout: 0, // no write deadline: export streaming has no wall-clock cap per §5
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			logging.Error().Err(err).Msg("HTTP server error")
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Error during graceful shutdown")
	}

	logging.Info().Msg("Osservatorio stopped gracefully")
}

func port() string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return "8080"
}

func corsOrigins() []string {
	v := os.Getenv("OSSERVATORIO_CORS_ORIGINS")
	if v == "" {
		return []string{"*"}
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
