// Package config loads Osservatorio's configuration from built-in
// defaults, an optional YAML file, and environment variables, in that
// order of precedence, using koanf v2 — the same layered approach the
// ambient stack uses throughout the codebase.
package config

import "time"

// Config aggregates every configuration surface named in the recognized
// configuration keys (database paths, ISTAT API tuning, cache TTLs,
// security, logging, dashboard refresh interval).
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Istat    IstatConfig    `koanf:"api.istat"`
	Cache    CacheConfig    `koanf:"cache"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
	Dashboard DashboardConfig `koanf:"dashboard"`
	PowerBI  PowerBIConfig  `koanf:"powerbi"`
	Ingestion IngestionConfig `koanf:"ingestion"`
}

// DatabaseConfig holds the paths for both of the hybrid store's halves.
type DatabaseConfig struct {
	SQLitePath string `koanf:"sqlite.path"`
	DuckDBPath string `koanf:"duckdb.path"`
	// MaxMemory is DuckDB's max_memory setting, e.g. "2GB".
	MaxMemory string `koanf:"duckdb.max_memory"`
	// Threads is DuckDB's thread count; 0 means runtime.NumCPU().
	Threads int `koanf:"duckdb.threads"`
}

// IstatConfig controls outbound SDMX fetch behavior.
type IstatConfig struct {
	BaseURL   string        `koanf:"base_url"`
	RateLimit int           `koanf:"rate_limit"` // requests/hour
	Timeout   time.Duration `koanf:"timeout"`
}

// CacheConfig controls default TTLs for in-process caches.
type CacheConfig struct {
	DefaultTTL time.Duration `koanf:"default_ttl"`
}

// SecurityConfig controls credential and login policy.
type SecurityConfig struct {
	MaxLoginAttempts int `koanf:"max_login_attempts"`
	// BcryptCost is the cost factor for api credential secret hashing.
	BcryptCost int `koanf:"bcrypt_cost"`
}

// LoggingConfig mirrors logging.Config, kept separate so the config
// package doesn't import the logging package.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DashboardConfig controls how often downstream dashboards should poll.
type DashboardConfig struct {
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// PowerBIConfig controls star-schema/DAX cache TTLs and the templates
// output directory.
type PowerBIConfig struct {
	StarSchemaCacheTTL time.Duration `koanf:"star_schema_cache_ttl"`
	DaxCacheTTL        time.Duration `koanf:"dax_cache_ttl"`
	TemplatesDir       string        `koanf:"templates_dir"`
}

// IngestionConfig controls the priority dataset set and retry policy.
type IngestionConfig struct {
	PriorityDatasets []string `koanf:"priority_datasets"`
	Retries          int      `koanf:"retries"`
	MaxConcurrent    int      `koanf:"max_concurrent"`
}

// defaultPriorityDatasets are the seven MVP dataset ids, carried over
// from the original implementation (ISTAT SDMX dataflow ids).
var defaultPriorityDatasets = []string{
	"101_1015", // Coltivazioni
	"144_107",  // Foi - weights until 2010
	"115_333",  // Indice della produzione industriale
	"120_337",  // Indice delle vendite del commercio al dettaglio
	"143_222",  // Indice dei prezzi all'importazione - dati mensili
	"145_360",  // Prezzi alla produzione dell'industria
	"149_319",  // Tensione contrattuale
}

// Default returns the built-in configuration defaults, before any file
// or environment overrides are applied.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			SQLitePath: "./data/osservatorio_metadata.db",
			DuckDBPath: "./data/osservatorio_analytics.duckdb",
			MaxMemory:  "2GB",
			Threads:    0,
		},
		Istat: IstatConfig{
			BaseURL:   "https://sdmx.istat.it/SDMXWS/rest",
			RateLimit: 100,
			Timeout:   30 * time.Second,
		},
		Cache: CacheConfig{
			DefaultTTL: 5 * time.Minute,
		},
		Security: SecurityConfig{
			MaxLoginAttempts: 5,
			BcryptCost:       12,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Dashboard: DashboardConfig{
			RefreshInterval: 30 * time.Second,
		},
		PowerBI: PowerBIConfig{
			StarSchemaCacheTTL: 24 * time.Hour,
			DaxCacheTTL:        6 * time.Hour,
			TemplatesDir:       "./data/templates",
		},
		Ingestion: IngestionConfig{
			PriorityDatasets: append([]string(nil), defaultPriorityDatasets...),
			Retries:          3,
			MaxConcurrent:    1,
		},
	}
}
