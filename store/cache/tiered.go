package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/pkg/errors"
)

// TieredCache implements a three-tier caching strategy:
// - L1: In-memory cache (fast, small, DEFAULT)
// - L2: Redis cache (moderate, shared, OPTIONAL)
// - L3: Database callback (slow, persistent)
//
// DEFAULT BEHAVIOR (single instance):
//   - L1 memory cache enabled (1000 items, 30min TTL)
//   - L2 Redis disabled
//
// TO ENABLE REDIS (multi-instance, shared domain-risk tier):
//   - Set MAILSENSE_CACHE_REDIS_ADDR environment variable
type TieredCache struct {
	l1        *Cache
	l2        RedisCacheInterface
	l1Enabled bool
	l2Enabled bool
}

// L3Fetcher is the function to fetch data from the database (L3).
type L3Fetcher func(ctx context.Context, key string) (any, error)

// TieredCacheConfig holds the configuration for the tiered cache.
type TieredCacheConfig struct {
	L1MaxItems int           // Max items in L1 memory cache
	L1TTL      time.Duration // TTL for L1 cache entries
	L2TTL      time.Duration // TTL for L2 Redis cache entries
	EnableL1   bool          // Enable L1 memory cache (default: true)
	EnableL2   bool          // Enable L2 Redis cache (default: false, auto-enabled if MAILSENSE_CACHE_REDIS_ADDR set)
}

// DefaultTieredConfig returns the default tiered cache configuration.
// For single-instance deployments: L1 enabled, L2 disabled.
func DefaultTieredConfig() *TieredCacheConfig {
	return &TieredCacheConfig{
		L1MaxItems: 1000,
		L1TTL:      30 * time.Minute,
		L2TTL:      30 * time.Minute,
		EnableL1:   true,             // Memory cache ON by default
		EnableL2:   IsRedisEnabled(), // Auto-enable Redis if configured
	}
}

// NewTieredCache creates a new three-tier cache. A Redis connection failure
// is not fatal: L2 degrades to a no-op and L1 keeps serving.
func NewTieredCache(config *TieredCacheConfig) (*TieredCache, error) {
	if config == nil {
		config = DefaultTieredConfig()
	}

	tc := &TieredCache{
		l1Enabled: config.EnableL1,
		l2Enabled: config.EnableL2,
	}

	// Initialize L1 cache
	if config.EnableL1 {
		tc.l1 = New(Config{
			DefaultTTL:      config.L1TTL,
			CleanupInterval: 1 * time.Minute,
			MaxItems:        config.L1MaxItems,
		})
	}

	// Initialize L2 cache (optional)
	if config.EnableL2 {
		redisConfig := RedisConfigFromEnv()
		redisConfig.DefaultTTL = config.L2TTL

		l2, err := NewRedisCache(redisConfig)
		if err != nil {
			slog.Warn("Redis unavailable, running with memory tier only",
				"addr", redisConfig.Addr, "error", err)
			tc.l2 = NewNilRedisCache()
		} else {
			tc.l2 = l2
		}
	}

	return tc, nil
}

// Get retrieves a value from the cache, checking L1, then L2, then L3.
func (t *TieredCache) Get(ctx context.Context, key string, fetcher L3Fetcher) (any, bool) {
	// Try L1 first
	if t.l1Enabled && t.l1 != nil {
		if value, found := t.l1.Get(ctx, key); found {
			return value, true
		}
	}

	// Try L2
	if t.l2Enabled && t.l2 != nil {
		if value, found := t.l2.Get(ctx, key); found {
			// Promote to L1
			if t.l1Enabled && t.l1 != nil {
				t.l1.Set(ctx, key, value)
			}
			return value, true
		}
	}

	// Fetch from L3
	if fetcher != nil {
		value, err := fetcher(ctx, key)
		if err != nil {
			return nil, false
		}

		// Store in L1 and L2
		if t.l1Enabled && t.l1 != nil {
			t.l1.Set(ctx, key, value)
		}
		if t.l2Enabled && t.l2 != nil {
			t.l2.Set(ctx, key, value)
		}

		return value, true
	}

	return nil, false
}

// Set stores a value in both L1 and L2.
func (t *TieredCache) Set(ctx context.Context, key string, value any) {
	if t.l1Enabled && t.l1 != nil {
		t.l1.Set(ctx, key, value)
	}
	if t.l2Enabled && t.l2 != nil {
		t.l2.Set(ctx, key, value)
	}
}

// SetWithTTL stores a value with custom TTL.
func (t *TieredCache) SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) {
	if t.l1Enabled && t.l1 != nil {
		t.l1.SetWithTTL(ctx, key, value, ttl)
	}
	if t.l2Enabled && t.l2 != nil {
		t.l2.SetWithTTL(ctx, key, value, ttl)
	}
}

// Delete removes a value from both L1 and L2.
func (t *TieredCache) Delete(ctx context.Context, key string) {
	if t.l1Enabled && t.l1 != nil {
		t.l1.Delete(ctx, key)
	}
	if t.l2Enabled && t.l2 != nil {
		t.l2.Delete(ctx, key)
	}
}

// Invalidate removes a value and optionally refreshes it.
func (t *TieredCache) Invalidate(ctx context.Context, key string, fetcher L3Fetcher) error {
	t.Delete(ctx, key)

	if fetcher != nil {
		value, err := fetcher(ctx, key)
		if err != nil {
			return err
		}
		t.Set(ctx, key, value)
	}

	return nil
}

// Clear clears all caches.
func (t *TieredCache) Clear(ctx context.Context) {
	if t.l1Enabled && t.l1 != nil {
		t.l1.Clear(ctx)
	}
	if t.l2Enabled && t.l2 != nil {
		t.l2.Clear(ctx)
	}
}

// Stats returns cache statistics.
func (t *TieredCache) Stats() map[string]interface{} {
	stats := make(map[string]interface{})

	if t.l1Enabled && t.l1 != nil {
		stats["l1_size"] = t.l1.Size()
		stats["l1_enabled"] = true
	} else {
		stats["l1_enabled"] = false
	}

	if t.l2Enabled && t.l2 != nil {
		stats["l2_enabled"] = true
	} else {
		stats["l2_enabled"] = false
	}

	return stats
}

// Close closes all cache connections.
func (t *TieredCache) Close() error {
	var errs []error

	if t.l2 != nil {
		if err := t.l2.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if t.l1 != nil {
		if err := t.l1.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Errorf("multiple errors: %v", errs)
	}

	return nil
}

// GenerateScopedKey generates a consistent cache key from a user scope and
// arbitrary components. Cross-user kinds pass an empty userID.
func GenerateScopedKey(userID string, components ...string) string {
	parts := make([]string, 0, len(components)+1)
	if userID != "" {
		parts = append(parts, "user:"+userID)
	}
	for _, c := range components {
		parts = append(parts, strings.ToLower(strings.TrimSpace(c)))
	}

	key := strings.Join(parts, "|")
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("k:%s", hex.EncodeToString(h[:])[:12])
}
