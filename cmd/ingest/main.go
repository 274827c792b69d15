// Command ingest is a one-shot, cron-friendly CLI that opens both
// stores, runs ingest_all_priority_datasets once, prints the batch
// summary, and exits — for deployments that trigger ingestion from an
// external scheduler instead of the server's POST /api/ingestion/run.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/osservatorio-istat/osservatorio/internal/analytics"
	"github.com/osservatorio-istat/osservatorio/internal/config"
	"github.com/osservatorio-istat/osservatorio/internal/ingestion"
	"github.com/osservatorio-istat/osservatorio/internal/logging"
	"github.com/osservatorio-istat/osservatorio/internal/metadata"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	meta, err := metadata.New(ctx, cfg.Database.SQLitePath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open metadata store")
	}
	defer meta.Close()

	analyticsStore, err := analytics.New(ctx, analytics.Config{
		Path:      cfg.Database.DuckDBPath,
		MaxMemory: cfg.Database.MaxMemory,
		Threads:   cfg.Database.Threads,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open analytics store")
	}
	defer analyticsStore.Close()

	client := ingestion.NewHTTPClient(cfg.Istat.BaseURL, cfg.Istat.Timeout)
	pipeline := ingestion.New(meta, analyticsStore, client, ingestion.Config{
		PriorityDatasets: cfg.Ingestion.PriorityDatasets,
		Retries:          cfg.Ingestion.Retries,
		MaxConcurrent:    cfg.Ingestion.MaxConcurrent,
		RequestsPerHour:  cfg.Istat.RateLimit,
	})

	result, err := pipeline.IngestAllPriorityDatasets(ctx, "cmd/ingest")
	if err != nil {
		logging.Fatal().Err(err).Msg("Batch ingestion failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logging.Error().Err(err).Msg("Failed to encode batch result")
	}

	if result.Failed > 0 {
		fmt.Fprintf(os.Stderr, "ingestion completed with %d failure(s)\n", result.Failed)
		os.Exit(1)
	}
}
