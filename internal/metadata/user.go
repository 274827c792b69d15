package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// defaultBcryptCost mirrors config.Default().Security.BcryptCost.
// StoreAPICredentials always hashes at this cost; it takes no cost argument.
const defaultBcryptCost = 12

// userManager is the UserManager (C1) from §4.1: per-user preferences
// and outbound API credentials.
type userManager struct {
	s *Store
}

// SetPreference stores value under (userID, key), typed per encodeTypedValue.
func (m *userManager) SetPreference(ctx context.Context, userID, key string, value any, isEncrypted bool) error {
	stored, valueType := encodeTypedValue(value)
	_, err := m.s.writeDB.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, key, value, value_type, is_encrypted, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, key) DO UPDATE SET
			value = excluded.value,
			value_type = excluded.value_type,
			is_encrypted = excluded.is_encrypted,
			updated_at = CURRENT_TIMESTAMP
	`, userID, key, stored, valueType, isEncrypted)
	if err != nil {
		return fmt.Errorf("set preference %s/%s: %w", userID, key, err)
	}
	return nil
}

// GetPreference decodes and returns the preference at (userID, key), or
// def if absent.
func (m *userManager) GetPreference(ctx context.Context, userID, key string, def any) (any, error) {
	var stored, valueType string
	err := m.s.readDB.QueryRowContext(ctx,
		`SELECT value, value_type FROM user_preferences WHERE user_id = ? AND key = ?`, userID, key).
		Scan(&stored, &valueType)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preference %s/%s: %w", userID, key, err)
	}
	return decodeTypedValue(stored, valueType), nil
}

// GetPreferences returns every preference for userID, decoded.
func (m *userManager) GetPreferences(ctx context.Context, userID string) (map[string]any, error) {
	rows, err := m.s.readDB.QueryContext(ctx,
		`SELECT key, value, value_type FROM user_preferences WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("get preferences %s: %w", userID, err)
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

// DeletePreference removes a single preference.
func (m *userManager) DeletePreference(ctx context.Context, userID, key string) error {
	_, err := m.s.writeDB.ExecContext(ctx,
		`DELETE FROM user_preferences WHERE user_id = ? AND key = ?`, userID, key)
	if err != nil {
		return fmt.Errorf("delete preference %s/%s: %w", userID, key, err)
	}
	return nil
}

// DeleteAllPreferences removes every preference for userID.
func (m *userManager) DeleteAllPreferences(ctx context.Context, userID string) error {
	_, err := m.s.writeDB.ExecContext(ctx, `DELETE FROM user_preferences WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete all preferences %s: %w", userID, err)
	}
	return nil
}

// PreferenceInput is one entry of a bulk preference write.
type PreferenceInput struct {
	Value       any
	IsEncrypted bool
}

// BulkSetPreferences writes every entry in prefs for userID inside a
// single transaction.
func (m *userManager) BulkSetPreferences(ctx context.Context, userID string, prefs map[string]PreferenceInput) error {
	return m.s.WithTx(ctx, func(tx *sql.Tx) error {
		for key, in := range prefs {
			stored, valueType := encodeTypedValue(in.Value)
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO user_preferences (user_id, key, value, value_type, is_encrypted, updated_at)
				VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
				ON CONFLICT(user_id, key) DO UPDATE SET
					value = excluded.value,
					value_type = excluded.value_type,
					is_encrypted = excluded.is_encrypted,
					updated_at = CURRENT_TIMESTAMP
			`, userID, key, stored, valueType, in.IsEncrypted); err != nil {
				return fmt.Errorf("bulk set preference %s/%s: %w", userID, key, err)
			}
		}
		return nil
	})
}

// StoreAPICredentials hashes key (and secret, if given) with bcrypt and
// upserts the credential row for service.
func (m *userManager) StoreAPICredentials(ctx context.Context, service, key, secret, endpoint string, rateLimit int, expiresAt *time.Time) error {
	keyHash, err := bcrypt.GenerateFromPassword([]byte(key), defaultBcryptCost)
	if err != nil {
		return fmt.Errorf("hash api key for %s: %w", service, err)
	}

	var secretHash *string
	if secret != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(secret), defaultBcryptCost)
		if err != nil {
			return fmt.Errorf("hash api secret for %s: %w", service, err)
		}
		s := string(h)
		secretHash = &s
	}

	if rateLimit == 0 {
		rateLimit = 100
	}

	_, err = m.s.writeDB.ExecContext(ctx, `
		INSERT INTO api_credentials (service_name, api_key_hash, api_secret_hash, endpoint_url, rate_limit, expires_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(service_name) DO UPDATE SET
			api_key_hash = excluded.api_key_hash,
			api_secret_hash = excluded.api_secret_hash,
			endpoint_url = excluded.endpoint_url,
			rate_limit = excluded.rate_limit,
			expires_at = excluded.expires_at,
			is_active = 1
	`, service, string(keyHash), secretHash, endpoint, rateLimit, expiresAt)
	if err != nil {
		return fmt.Errorf("store api credentials for %s: %w", service, err)
	}
	return nil
}

// VerifyAPICredentials reports whether presentedKey matches the stored
// hash for service, the credential is active, and has not expired.
func (m *userManager) VerifyAPICredentials(ctx context.Context, service, presentedKey string) (bool, error) {
	var keyHash string
	var isActive int
	var expiresAt sql.NullTime

	err := m.s.readDB.QueryRowContext(ctx,
		`SELECT api_key_hash, is_active, expires_at FROM api_credentials WHERE service_name = ?`, service).
		Scan(&keyHash, &isActive, &expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("verify api credentials %s: %w", service, err)
	}

	if isActive == 0 {
		return false, nil
	}
	if expiresAt.Valid && time.Now().After(expiresAt.Time) {
		return false, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(presentedKey)) != nil {
		return false, nil
	}

	_, _ = m.s.writeDB.ExecContext(ctx,
		`UPDATE api_credentials SET last_used = CURRENT_TIMESTAMP, usage_count = usage_count + 1 WHERE service_name = ?`,
		service)
	return true, nil
}
