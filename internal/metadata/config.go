package metadata

import (
	"context"
	"database/sql"
	"fmt"
)

const defaultEnvironment = "development"

// configurationManager is the ConfigurationManager (C1) from §4.1: scoped
// key/value configuration with typed encode/decode on set/get.
type configurationManager struct {
	s *Store
}

// Set stores value under key, encoding it per encodeTypedValue.
func (m *configurationManager) Set(ctx context.Context, key string, value any, environment string) error {
	if environment == "" {
		environment = defaultEnvironment
	}
	stored, valueType := encodeTypedValue(value)

	_, err := m.s.writeDB.ExecContext(ctx, `
		INSERT INTO system_config (config_key, config_value, config_type, environment, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(config_key, environment) DO UPDATE SET
			config_value = excluded.config_value,
			config_type = excluded.config_type,
			updated_at = CURRENT_TIMESTAMP
	`, key, stored, valueType, environment)
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

// Get decodes and returns the value stored under key, or def if absent.
func (m *configurationManager) Get(ctx context.Context, key string, environment string, def any) (any, error) {
	if environment == "" {
		environment = defaultEnvironment
	}
	var stored, valueType string
	err := m.s.readDB.QueryRowContext(ctx,
		`SELECT config_value, config_type FROM system_config WHERE config_key = ? AND environment = ?`,
		key, environment).Scan(&stored, &valueType)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get config %s: %w", key, err)
	}
	return decodeTypedValue(stored, valueType), nil
}

// Delete removes key from environment.
func (m *configurationManager) Delete(ctx context.Context, key, environment string) error {
	if environment == "" {
		environment = defaultEnvironment
	}
	_, err := m.s.writeDB.ExecContext(ctx,
		`DELETE FROM system_config WHERE config_key = ? AND environment = ?`, key, environment)
	if err != nil {
		return fmt.Errorf("delete config %s: %w", key, err)
	}
	return nil
}

// List returns every (key, value) pair under environment whose key
// matches pattern via SQL LIKE semantics (empty pattern matches all).
func (m *configurationManager) List(ctx context.Context, pattern, environment string) (map[string]any, error) {
	if environment == "" {
		environment = defaultEnvironment
	}
	if pattern == "" {
		pattern = "%"
	}

	rows, err := m.s.readDB.QueryContext(ctx,
		`SELECT config_key, config_value, config_type FROM system_config WHERE config_key LIKE ? AND environment = ?`,
		pattern, environment)
	if err != nil {
		return nil, fmt.Errorf("list config %s: %w", pattern, err)
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var k, v, t string
		if err := rows.Scan(&k, &v, &t); err != nil {
			return nil, err
		}
		out[k] = decodeTypedValue(v, t)
	}
	return out, rows.Err()
}
