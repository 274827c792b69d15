package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

// Config mirrors the fields of config.DatabaseConfig the analytics store
// needs, kept narrow so this package doesn't import internal/config.
type Config struct {
	Path                   string
	MaxMemory              string
	Threads                int
	PreserveInsertionOrder bool
}

// Store is the analytics store (C2): an append-oriented observation
// table backed by DuckDB, queried through parameterized SQL.
type Store struct {
	conn *sql.DB
}

// New opens (creating if necessary) the DuckDB database at cfg.Path,
// configures the connection pool the way the teacher's
// configureConnectionPool does, and ensures the observation schema
// exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create analytics directory %s: %w", dir, err)
		}
	}

	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "2GB"
	}
	preserveOrder := "true"
	if !cfg.PreserveInsertionOrder {
		preserveOrder = "false"
	}

	connStr := fmt.Sprintf(
		"%s?access_mode=read_write&threads=%d&max_memory=%s&preserve_insertion_order=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, maxMemory, preserveOrder)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open analytics database: %w", err)
	}

	conn.SetMaxOpenConns(numThreads)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	s := &Store{conn: conn}
	if err := s.ensureObservationTable(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure observation table: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error { return s.conn.Close() }

// Ping verifies the connection is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.conn.PingContext(ctx) }

// ensureObservationTable is the idempotent DDL for the single
// istat_observations table every ingested dataset appends into.
func (s *Store) ensureObservationTable(ctx context.Context) error {
	_, err := s.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS istat_observations (
			dataset_id TEXT NOT NULL,
			record_id BIGINT NOT NULL,
			obs_value TEXT,
			time_period TEXT,
			additional_attributes TEXT,
			ingestion_timestamp TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, err = s.conn.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_observations_dataset ON istat_observations(dataset_id)`)
	return err
}
