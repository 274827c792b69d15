package config

import "fmt"

// Validate checks required fields and value ranges. It never mutates cfg.
func (c *Config) Validate() error {
	if c.Database.SQLitePath == "" {
		return fmt.Errorf("database.sqlite.path is required")
	}
	if c.Database.DuckDBPath == "" {
		return fmt.Errorf("database.duckdb.path is required")
	}
	if c.Istat.RateLimit <= 0 {
		return fmt.Errorf("api.istat.rate_limit must be positive, got %d", c.Istat.RateLimit)
	}
	if c.Istat.Timeout <= 0 {
		return fmt.Errorf("api.istat.timeout must be positive, got %s", c.Istat.Timeout)
	}
	if c.Security.MaxLoginAttempts <= 0 {
		return fmt.Errorf("security.max_login_attempts must be positive, got %d", c.Security.MaxLoginAttempts)
	}
	if c.Security.BcryptCost < 4 || c.Security.BcryptCost > 31 {
		return fmt.Errorf("security.bcrypt_cost must be in [4,31], got %d", c.Security.BcryptCost)
	}
	if c.Ingestion.Retries < 0 {
		return fmt.Errorf("ingestion.retries must be non-negative, got %d", c.Ingestion.Retries)
	}
	if c.Ingestion.MaxConcurrent <= 0 {
		return fmt.Errorf("ingestion.max_concurrent must be positive, got %d", c.Ingestion.MaxConcurrent)
	}
	if len(c.Ingestion.PriorityDatasets) == 0 {
		return fmt.Errorf("ingestion.priority_datasets must not be empty")
	}
	return nil
}
