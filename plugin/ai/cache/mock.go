package cache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// MockCacheService is a mock implementation of CacheService for testing.
type MockCacheService struct {
	mu    sync.RWMutex
	store map[string]*cacheEntry

	// Counters for assertions
	Hits   int
	Misses int
	Errors int
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMockCacheService creates a new MockCacheService.
func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		store: make(map[string]*cacheEntry),
	}
}

// Get retrieves a value from cache.
func (m *MockCacheService) Get(_ context.Context, kind, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.store[scopedKey(kind, key)]
	if !ok {
		m.Misses++
		return nil, false
	}

	// Check if expired
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.Misses++
		return nil, false
	}

	m.Hits++
	return entry.value, true
}

// GetJSON retrieves and unmarshals a value.
func (m *MockCacheService) GetJSON(ctx context.Context, kind, key string, out any) bool {
	data, ok := m.Get(ctx, kind, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		m.mu.Lock()
		m.Errors++
		m.mu.Unlock()
		_ = m.Delete(ctx, kind, key)
		return false
	}
	return true
}

// Set stores a value in cache.
func (m *MockCacheService) Set(_ context.Context, kind, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ttl <= 0 {
		ttl = DefaultTTL(kind)
	}

	m.store[scopedKey(kind, key)] = &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}

	return nil
}

// SetJSON marshals and stores a value.
func (m *MockCacheService) SetJSON(ctx context.Context, kind, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return m.Set(ctx, kind, key, data, ttl)
}

// Delete removes a value from cache.
func (m *MockCacheService) Delete(_ context.Context, kind, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.store, scopedKey(kind, key))
	return nil
}

// Invalidate invalidates cache entries.
func (m *MockCacheService) Invalidate(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Handle wildcard patterns
	if strings.Contains(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		for key := range m.store {
			if strings.HasPrefix(key, prefix) {
				delete(m.store, key)
			}
		}
	} else {
		delete(m.store, pattern)
	}

	return nil
}

// SetRaw stores bytes under a kind-scoped key without TTL bookkeeping
// (for testing corrupt value handling).
func (m *MockCacheService) SetRaw(kind, key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[scopedKey(kind, key)] = &cacheEntry{value: value}
}

// Size returns the number of items in the cache (for testing).
func (m *MockCacheService) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}

// Clear removes all items from the cache (for testing).
func (m *MockCacheService) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = make(map[string]*cacheEntry)
	m.Hits, m.Misses, m.Errors = 0, 0, 0
}

// Ensure MockCacheService implements CacheService
var _ CacheService = (*MockCacheService)(nil)
