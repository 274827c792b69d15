package metadata

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// SetJSON stores v as a canonical JSON artifact under key, reusing the
// configuration manager's typed encode so PowerBI-derived artifacts
// (star schemas, DAX sets, templates, lineage, usage metrics, quality
// metadata, refresh policies) share the same namespaced-key storage
// path as every other configuration value, per §3.1/§6.5.
func (s *Store) SetJSON(ctx context.Context, key string, v any) error {
	return s.configMgr.Set(ctx, key, v, "")
}

// GetJSON decodes the JSON artifact stored under key into out (a
// pointer), reporting whether one was present. Decoding round-trips
// through JSON since the configuration manager's typed decode only
// exposes a generic map[string]any for "json"-tagged values.
func (s *Store) GetJSON(ctx context.Context, key string, out any) (bool, error) {
	raw, err := s.configMgr.Get(ctx, key, "", nil)
	if err != nil {
		return false, fmt.Errorf("get json artifact %s: %w", key, err)
	}
	if raw == nil {
		return false, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return false, fmt.Errorf("remarshal json artifact %s: %w", key, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("unmarshal json artifact %s: %w", key, err)
	}
	return true, nil
}

// DeleteJSON removes the artifact stored under key.
func (s *Store) DeleteJSON(ctx context.Context, key string) error {
	return s.configMgr.Delete(ctx, key, "")
}
