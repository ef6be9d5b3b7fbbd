package cache

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/mailsense/plugin/ai/metrics"
	storecache "github.com/hrygo/mailsense/store/cache"
)

// SharedTier is the optional cross-instance tier. storecache.RedisCache
// satisfies it. All failures must be survivable: the local tier keeps
// serving when the shared tier is down.
type SharedTier interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Close() error
}

// ServiceConfig configures the cache service.
type ServiceConfig struct {
	Capacity        int                      // Maximum number of local entries (default: 1000)
	CleanupInterval time.Duration            // Interval for expired entry cleanup (default: 1 minute)
	CallBudget      time.Duration            // Per-call budget for shared tier round trips (default: 150ms)
	TTLOverrides    map[string]time.Duration // Per-kind TTL overrides
}

// DefaultServiceConfig returns default cache service configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Capacity:        1000,
		CleanupInterval: time.Minute,
		CallBudget:      150 * time.Millisecond,
	}
}

// Service implements CacheService with a local LRU tier and an optional
// shared Redis tier for cross-instance kinds.
type Service struct {
	lru     *LRUCache
	shared  SharedTier
	metrics metrics.MetricsService

	budget time.Duration
	ttls   map[string]time.Duration

	sharedErrs atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cleanupInterval time.Duration
}

// NewService creates a new cache service. Both shared and m may be nil.
func NewService(cfg ServiceConfig, shared SharedTier, m metrics.MetricsService) *Service {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1000
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.CallBudget <= 0 {
		cfg.CallBudget = 150 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		lru:             NewLRUCache(cfg.Capacity, 5*time.Minute),
		shared:          shared,
		metrics:         m,
		budget:          cfg.CallBudget,
		ttls:            cfg.TTLOverrides,
		ctx:             ctx,
		cancel:          cancel,
		cleanupInterval: cfg.CleanupInterval,
	}

	// Start background cleanup
	s.wg.Add(1)
	go s.cleanupLoop()

	return s
}

// Close stops the cache service and the shared tier connection.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	if s.shared != nil {
		if err := s.shared.Close(); err != nil {
			slog.Warn("failed to close shared cache tier", "error", err)
		}
	}
}

// Get retrieves raw bytes for a kind-scoped key.
func (s *Service) Get(ctx context.Context, kind, key string) ([]byte, bool) {
	if s == nil {
		return nil, false
	}
	start := time.Now()
	fullKey := scopedKey(kind, key)

	if value, ok := s.lru.Get(fullKey); ok {
		s.record(ctx, kind, metrics.CacheHit, start)
		return value, true
	}

	if s.shared != nil && IsSharedKind(kind) {
		sctx, cancel := context.WithTimeout(ctx, s.budget)
		defer cancel()

		data, err := s.shared.GetBytes(sctx, fullKey)
		switch {
		case err == nil:
			// Promote with the kind TTL so the local copy expires no later
			// than a fresh write would.
			s.lru.Set(fullKey, data, s.ttlFor(kind, 0))
			s.sharedErrs.Store(0)
			s.record(ctx, kind, metrics.CacheHit, start)
			return data, true
		case err != storecache.ErrCacheMiss:
			s.sharedErrs.Add(1)
			slog.Warn("shared cache tier unavailable", "kind", kind, "error", err)
			s.record(ctx, kind, metrics.CacheError, start)
			return nil, false
		default:
			s.sharedErrs.Store(0)
		}
	}

	s.record(ctx, kind, metrics.CacheMiss, start)
	return nil, false
}

// GetJSON retrieves and unmarshals a value. A value that no longer parses is
// deleted so the next read repopulates it from the source of truth.
func (s *Service) GetJSON(ctx context.Context, kind, key string, out any) bool {
	if s == nil {
		return false
	}
	data, ok := s.Get(ctx, kind, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		slog.Warn("dropping malformed cache value", "kind", kind, "key", key, "error", err)
		_ = s.Delete(ctx, kind, key)
		s.record(ctx, kind, metrics.CacheError, time.Now())
		return false
	}
	return true
}

// Set stores raw bytes with the kind TTL unless ttl overrides it.
func (s *Service) Set(ctx context.Context, kind, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return nil
	}
	ttl = s.ttlFor(kind, ttl)
	fullKey := scopedKey(kind, key)

	s.lru.Set(fullKey, value, ttl)

	if s.shared != nil && IsSharedKind(kind) {
		sctx, cancel := context.WithTimeout(ctx, s.budget)
		defer cancel()
		s.shared.SetWithTTL(sctx, fullKey, value, ttl)
	}
	return nil
}

// SetJSON marshals and stores a value with the kind TTL unless ttl overrides it.
func (s *Service) SetJSON(ctx context.Context, kind, key string, value any, ttl time.Duration) error {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "failed to marshal cache value")
	}
	return s.Set(ctx, kind, key, data, ttl)
}

// Delete removes a kind-scoped key from all tiers.
func (s *Service) Delete(ctx context.Context, kind, key string) error {
	if s == nil {
		return nil
	}
	fullKey := scopedKey(kind, key)
	s.lru.Invalidate(fullKey)

	if s.shared != nil && IsSharedKind(kind) {
		sctx, cancel := context.WithTimeout(ctx, s.budget)
		defer cancel()
		s.shared.Delete(sctx, fullKey)
	}
	return nil
}

// Invalidate removes local entries matching the pattern.
func (s *Service) Invalidate(_ context.Context, pattern string) error {
	if s == nil {
		return nil
	}
	s.lru.Invalidate(pattern)
	return nil
}

// Size returns the number of local entries.
func (s *Service) Size() int {
	if s == nil {
		return 0
	}
	return s.lru.Size()
}

// SharedEnabled reports whether a shared tier is configured.
func (s *Service) SharedEnabled() bool {
	return s != nil && s.shared != nil
}

// SharedErrorStreak returns the number of consecutive shared tier failures.
// Zero means the shared tier is healthy or unused.
func (s *Service) SharedErrorStreak() int64 {
	if s == nil {
		return 0
	}
	return s.sharedErrs.Load()
}

// Stats returns cache layer statistics for the health surface.
func (s *Service) Stats() map[string]any {
	if s == nil {
		return map[string]any{"enabled": false}
	}
	return map[string]any{
		"enabled":        true,
		"local_size":     s.lru.Size(),
		"shared_enabled": s.shared != nil,
		"shared_errors":  s.sharedErrs.Load(),
	}
}

func (s *Service) record(ctx context.Context, kind string, outcome metrics.CacheOutcome, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordCacheAccess(ctx, kind, outcome, time.Since(start))
	}
}

func (s *Service) ttlFor(kind string, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if ttl, ok := s.ttls[kind]; ok && ttl > 0 {
		return ttl
	}
	return DefaultTTL(kind)
}

// cleanupLoop periodically removes expired entries.
func (s *Service) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.lru.CleanupExpired()
		}
	}
}

func scopedKey(kind, key string) string {
	return kind + ":" + key
}

// Ensure Service implements CacheService
var _ CacheService = (*Service)(nil)
