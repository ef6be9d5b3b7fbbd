package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Cache is an in-memory cache with per-entry TTL and a background janitor.
// It is the L1 tier of TieredCache and safe for concurrent use.
type Cache struct {
	data    sync.Map
	size    atomic.Int64
	config  Config
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
}

// Config holds the configuration for the in-memory cache.
type Config struct {
	DefaultTTL      time.Duration // Default TTL for Set; 0 means no expiry
	CleanupInterval time.Duration // Janitor sweep interval; 0 disables the janitor
	MaxItems        int           // Max entries before eviction; 0 means unbounded
	OnEviction      func(key string, value any)
}

type entry struct {
	value     any
	expiresAt time.Time // zero means no expiry
	storedAt  time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// New creates a new in-memory cache and starts its janitor goroutine.
func New(config Config) *Cache {
	c := &Cache{
		config: config,
		done:   make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go c.janitor()
	}

	return c
}

// Get retrieves a value. Expired entries are treated as misses and removed.
func (c *Cache) Get(_ context.Context, key string) (any, bool) {
	v, ok := c.data.Load(key)
	if !ok {
		return nil, false
	}

	e := v.(*entry)
	if e.expired(time.Now()) {
		c.remove(key, e)
		return nil, false
	}

	return e.value, true
}

// Set stores a value with the default TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) {
	c.SetWithTTL(ctx, key, value, c.config.DefaultTTL)
}

// SetWithTTL stores a value with a custom TTL. A non-positive TTL stores the
// entry without expiry.
func (c *Cache) SetWithTTL(_ context.Context, key string, value any, ttl time.Duration) {
	now := time.Now()
	e := &entry{
		value:    value,
		storedAt: now,
	}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	if _, loaded := c.data.Swap(key, e); !loaded {
		c.size.Add(1)
	}

	if c.config.MaxItems > 0 && int(c.size.Load()) > c.config.MaxItems {
		c.evict()
	}
}

// Delete removes a value from the cache.
func (c *Cache) Delete(_ context.Context, key string) {
	if v, loaded := c.data.LoadAndDelete(key); loaded {
		c.size.Add(-1)
		if c.config.OnEviction != nil {
			c.config.OnEviction(key, v.(*entry).value)
		}
	}
}

// Clear removes all entries.
func (c *Cache) Clear(_ context.Context) {
	c.data.Range(func(key, _ any) bool {
		if _, loaded := c.data.LoadAndDelete(key); loaded {
			c.size.Add(-1)
		}
		return true
	})
}

// Size returns the current number of entries, including not-yet-swept
// expired ones.
func (c *Cache) Size() int64 {
	return c.size.Load()
}

// Close stops the janitor. The cache stays usable after Close but no longer
// sweeps expired entries.
func (c *Cache) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

func (c *Cache) janitor() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes all expired entries.
func (c *Cache) sweep() {
	now := time.Now()
	c.data.Range(func(key, v any) bool {
		e := v.(*entry)
		if e.expired(now) {
			c.remove(key.(string), e)
		}
		return true
	})
}

// evict brings the cache back under MaxItems. Expired entries go first,
// then the oldest stored entries.
func (c *Cache) evict() {
	now := time.Now()
	c.data.Range(func(key, v any) bool {
		if int(c.size.Load()) <= c.config.MaxItems {
			return false
		}
		e := v.(*entry)
		if e.expired(now) {
			c.remove(key.(string), e)
		}
		return true
	})

	for int(c.size.Load()) > c.config.MaxItems {
		var oldestKey string
		var oldest *entry
		c.data.Range(func(key, v any) bool {
			e := v.(*entry)
			if oldest == nil || e.storedAt.Before(oldest.storedAt) {
				oldestKey = key.(string)
				oldest = e
			}
			return true
		})
		if oldest == nil {
			return
		}
		c.remove(oldestKey, oldest)
	}
}

func (c *Cache) remove(key string, e *entry) {
	if _, loaded := c.data.LoadAndDelete(key); loaded {
		c.size.Add(-1)
		if c.config.OnEviction != nil {
			c.config.OnEviction(key, e.value)
		}
	}
}
