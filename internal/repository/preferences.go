package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/osservatorio-istat/osservatorio/internal/cache"
)

func preferenceCacheKey(userID, key string) string {
	return cache.GenerateKey("user_preference", map[string]string{"user_id": userID, "key": key})
}

// GetUserPreference reads (userID, key) through a short-lived
// in-process cache, keyed by (user_id, key) and bypassed on miss by a
// call into the metadata store. cacheMinutes <= 0 uses the repository's
// default TTL.
func (r *Repository) GetUserPreference(ctx context.Context, userID, key string, cacheMinutes int, def any) (any, error) {
	cacheKey := preferenceCacheKey(userID, key)
	if v, ok := r.prefCache.Get(cacheKey); ok {
		return v, nil
	}

	v, err := r.meta.Users().GetPreference(ctx, userID, key, def)
	if err != nil {
		return nil, fmt.Errorf("get user preference %s/%s: %w", userID, key, err)
	}

	ttl := r.prefCacheTTL
	if cacheMinutes > 0 {
		ttl = time.Duration(cacheMinutes) * time.Minute
	}
	r.prefCache.SetWithTTL(cacheKey, v, ttl)
	return v, nil
}

// SetUserPreference writes through to the metadata store and
// invalidates the preference cache entry for (userID, key).
func (r *Repository) SetUserPreference(ctx context.Context, userID, key string, value any, isEncrypted bool) error {
	if err := r.meta.Users().SetPreference(ctx, userID, key, value, isEncrypted); err != nil {
		return fmt.Errorf("set user preference %s/%s: %w", userID, key, err)
	}
	r.prefCache.Delete(preferenceCacheKey(userID, key))
	return nil
}

// DeleteUserPreference writes through to the metadata store and
// invalidates the cache entry.
func (r *Repository) DeleteUserPreference(ctx context.Context, userID, key string) error {
	if err := r.meta.Users().DeletePreference(ctx, userID, key); err != nil {
		return fmt.Errorf("delete user preference %s/%s: %w", userID, key, err)
	}
	r.prefCache.Delete(preferenceCacheKey(userID, key))
	return nil
}
