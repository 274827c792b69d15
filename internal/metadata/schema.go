package metadata

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaVersion = 1

const createTablesSQL = `
CREATE TABLE IF NOT EXISTS dataset_registrations (
	dataset_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL,
	description TEXT,
	source_agency TEXT NOT NULL DEFAULT 'ISTAT',
	priority INTEGER NOT NULL DEFAULT 5,
	is_active INTEGER NOT NULL DEFAULT 1,
	metadata TEXT,
	quality_score REAL NOT NULL DEFAULT 0,
	record_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_processed TIMESTAMP
);

CREATE TABLE IF NOT EXISTS user_preferences (
	user_id TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	value_type TEXT NOT NULL DEFAULT 'string',
	is_encrypted INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, key)
);

CREATE TABLE IF NOT EXISTS api_credentials (
	service_name TEXT PRIMARY KEY,
	api_key_hash TEXT NOT NULL,
	api_secret_hash TEXT,
	endpoint_url TEXT,
	rate_limit INTEGER NOT NULL DEFAULT 100,
	expires_at TIMESTAMP,
	last_used TIMESTAMP,
	usage_count INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS system_config (
	config_key TEXT NOT NULL,
	config_value TEXT NOT NULL,
	config_type TEXT NOT NULL DEFAULT 'string',
	description TEXT,
	is_sensitive INTEGER NOT NULL DEFAULT 0,
	environment TEXT NOT NULL DEFAULT 'development',
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (config_key, environment)
);

CREATE TABLE IF NOT EXISTS audit_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT,
	action TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id TEXT,
	details TEXT,
	ip_address TEXT,
	user_agent TEXT,
	success INTEGER NOT NULL DEFAULT 1,
	error_message TEXT,
	execution_time_ms INTEGER,
	timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS categorization_rules (
	rule_id TEXT PRIMARY KEY,
	category TEXT NOT NULL,
	keywords TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 1,
	description TEXT
);

CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const createIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_dataset_category ON dataset_registrations(category);
CREATE INDEX IF NOT EXISTS idx_dataset_priority ON dataset_registrations(priority DESC);
CREATE INDEX IF NOT EXISTS idx_dataset_active ON dataset_registrations(is_active);
CREATE INDEX IF NOT EXISTS idx_user_preferences_user ON user_preferences(user_id);
CREATE INDEX IF NOT EXISTS idx_api_credentials_service ON api_credentials(service_name);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_events(action);
CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_events(user_id);
CREATE INDEX IF NOT EXISTS idx_system_config_key_env ON system_config(config_key, environment);
CREATE INDEX IF NOT EXISTS idx_categorization_category ON categorization_rules(category);
CREATE INDEX IF NOT EXISTS idx_categorization_active ON categorization_rules(is_active);
CREATE INDEX IF NOT EXISTS idx_categorization_priority ON categorization_rules(priority DESC);
`

// migration is a versioned, append-only schema change, applied at most
// once and tracked in schema_migrations — the same shape as the
// teacher's Migration type, minus the DuckDB-specific TIMESTAMPTZ quirks
// SQLite doesn't share.
type migration struct {
	Version     int
	Name        string
	Description string
	SQL         string
}

// migrations lists schema changes after the initial bootstrap. Entries
// must never be edited or removed once shipped.
func migrations() []migration {
	return []migration{
		{
			Version:     2,
			Name:        "batch_runs",
			Description: "durable record of each ingest_all_priority_datasets() batch run",
			SQL: `
CREATE TABLE IF NOT EXISTS batch_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	successful INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	triggered_by TEXT NOT NULL DEFAULT 'scheduler'
);
CREATE INDEX IF NOT EXISTS idx_batch_runs_started ON batch_runs(started_at DESC);
`,
		},
	}
}

func (s *Store) bootstrap(ctx context.Context) error {
	if _, err := s.writeDB.ExecContext(ctx, createTablesSQL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	if _, err := s.writeDB.ExecContext(ctx, createIndexesSQL); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	if err := s.runMigrations(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if err := s.seedDefaults(ctx); err != nil {
		return fmt.Errorf("seed defaults: %w", err)
	}
	return nil
}

func (s *Store) runMigrations(ctx context.Context) error {
	applied := map[int]bool{}
	rows, err := s.writeDB.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, m := range migrations() {
		if applied[m.Version] {
			continue
		}
		tx, err := s.writeDB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, description) VALUES (?, ?, ?)`,
			m.Version, m.Name, m.Description); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) seedDefaults(ctx context.Context) error {
	var count int
	if err := s.writeDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM categorization_rules`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		for _, r := range defaultCategorizationRules {
			if err := s.categorization().create(ctx, r); err != nil {
				return fmt.Errorf("seed categorization rule %s: %w", r.RuleID, err)
			}
		}
	}

	var configCount int
	if err := s.writeDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM system_config WHERE environment = 'development'`).Scan(&configCount); err != nil {
		return err
	}
	if configCount == 0 {
		defaults := map[string]string{
			"schema.version":          fmt.Sprintf("%d", schemaVersion),
			"ingestion.enabled":       "true",
			"powerbi.export.enabled":  "true",
		}
		for k, v := range defaults {
			if _, err := s.writeDB.ExecContext(ctx,
				`INSERT OR IGNORE INTO system_config (config_key, config_value, config_type, environment) VALUES (?, ?, 'string', 'development')`,
				k, v); err != nil {
				return err
			}
		}
	}

	return nil
}

// GetCurrentSchemaVersion returns the highest migration version applied,
// or 0 if none have run yet beyond the initial bootstrap.
func (s *Store) GetCurrentSchemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := s.writeDB.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}
