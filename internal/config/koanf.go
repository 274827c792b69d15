package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where an optional config file is searched for,
// in priority order. The first one found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/osservatorio/config.yaml",
}

// ConfigPathEnvVar overrides the search paths with a single explicit file.
const ConfigPathEnvVar = "OSSERVATORIO_CONFIG_PATH"

// envPrefix is stripped from every environment variable before it is
// mapped onto a koanf path, e.g. OSSERVATORIO_DATABASE_SQLITE_PATH ->
// database.sqlite.path.
const envPrefix = "OSSERVATORIO_"

// Load builds a Config from defaults, an optional YAML file, and
// environment variables, in that order of increasing precedence.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	if err := expandPriorityDatasets(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envKeyMappings maps an environment variable's suffix (after envPrefix,
// lowercased) to its koanf config path. A plain underscore-to-dot
// replacement is ambiguous whenever a leaf field name itself contains an
// underscore (rate_limit, bcrypt_cost, ...), so each recognized variable
// is listed explicitly, mirroring the teacher's legacy env mapping table.
var envKeyMappings = map[string]string{
	"database_sqlite_path":          "database.sqlite.path",
	"database_duckdb_path":          "database.duckdb.path",
	"database_duckdb_max_memory":    "database.duckdb.max_memory",
	"database_duckdb_threads":       "database.duckdb.threads",
	"api_istat_base_url":            "api.istat.base_url",
	"api_istat_rate_limit":          "api.istat.rate_limit",
	"api_istat_timeout":             "api.istat.timeout",
	"cache_default_ttl":             "cache.default_ttl",
	"security_max_login_attempts":   "security.max_login_attempts",
	"security_bcrypt_cost":          "security.bcrypt_cost",
	"logging_level":                 "logging.level",
	"logging_format":                "logging.format",
	"dashboard_refresh_interval":    "dashboard.refresh_interval",
	"powerbi_star_schema_cache_ttl": "powerbi.star_schema_cache_ttl",
	"powerbi_dax_cache_ttl":         "powerbi.dax_cache_ttl",
	"powerbi_templates_dir":         "powerbi.templates_dir",
	"ingestion_priority_datasets":   "ingestion.priority_datasets",
	"ingestion_retries":             "ingestion.retries",
	"ingestion_max_concurrent":      "ingestion.max_concurrent",
}

// envTransform maps an OSSERVATORIO_-prefixed environment variable to its
// koanf config path via envKeyMappings. Unrecognized variables fall back
// to a plain underscore-to-dot replacement and are silently ignored by
// koanf.Unmarshal if they match nothing in Config.
func envTransform(key string) string {
	key = strings.TrimPrefix(key, envPrefix)
	key = strings.ToLower(key)
	if mapped, ok := envKeyMappings[key]; ok {
		return mapped
	}
	return strings.ReplaceAll(key, "_", ".")
}

// expandPriorityDatasets converts a comma-separated env/file override of
// ingestion.priority_datasets into a slice, mirroring the teacher's
// processSliceFields handling of comma-joined env values.
func expandPriorityDatasets(k *koanf.Koanf) error {
	const path = "ingestion.priority_datasets"
	val := k.Get(path)
	if val == nil {
		return nil
	}
	str, ok := val.(string)
	if !ok {
		return nil
	}
	if str == "" {
		return nil
	}
	parts := strings.Split(str, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return k.Set(path, out)
}
