package cache

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGet(t *testing.T) {
	ctx := context.Background()
	c := New(Config{DefaultTTL: time.Minute})
	defer c.Close()

	c.Set(ctx, "a", "value-a")

	got, found := c.Get(ctx, "a")
	require.True(t, found)
	assert.Equal(t, "value-a", got)

	_, found = c.Get(ctx, "missing")
	assert.False(t, found)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := New(Config{})
	defer c.Close()

	c.SetWithTTL(ctx, "short", "v", 10*time.Millisecond)
	c.SetWithTTL(ctx, "forever", "v", 0)

	_, found := c.Get(ctx, "short")
	assert.True(t, found)

	time.Sleep(20 * time.Millisecond)

	_, found = c.Get(ctx, "short")
	assert.False(t, found, "expired entry should be a miss")

	_, found = c.Get(ctx, "forever")
	assert.True(t, found, "zero TTL entry should not expire")
}

func TestMemoryCache_MaxItemsEviction(t *testing.T) {
	ctx := context.Background()
	evicted := make(map[string]bool)
	c := New(Config{
		MaxItems: 3,
		OnEviction: func(key string, _ any) {
			evicted[key] = true
		},
	})
	defer c.Close()

	c.Set(ctx, "k1", 1)
	time.Sleep(time.Millisecond)
	c.Set(ctx, "k2", 2)
	time.Sleep(time.Millisecond)
	c.Set(ctx, "k3", 3)
	time.Sleep(time.Millisecond)
	c.Set(ctx, "k4", 4)

	assert.LessOrEqual(t, c.Size(), int64(3))
	assert.True(t, evicted["k1"], "oldest entry should be evicted first")

	_, found := c.Get(ctx, "k4")
	assert.True(t, found, "newest entry should survive eviction")
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	c := New(Config{})
	defer c.Close()

	c.Set(ctx, "a", 1)
	c.Set(ctx, "b", 2)
	assert.Equal(t, int64(2), c.Size())

	c.Delete(ctx, "a")
	assert.Equal(t, int64(1), c.Size())
	_, found := c.Get(ctx, "a")
	assert.False(t, found)

	c.Clear(ctx)
	assert.Equal(t, int64(0), c.Size())
}

func TestMemoryCache_Janitor(t *testing.T) {
	ctx := context.Background()
	c := New(Config{CleanupInterval: 10 * time.Millisecond})
	defer c.Close()

	c.SetWithTTL(ctx, "x", "v", 5*time.Millisecond)
	require.Equal(t, int64(1), c.Size())

	// Janitor should sweep the expired entry without a Get
	assert.Eventually(t, func() bool {
		return c.Size() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestTieredCache_L1Only(t *testing.T) {
	ctx := context.Background()
	tc, err := NewTieredCache(&TieredCacheConfig{
		L1MaxItems: 10,
		L1TTL:      time.Minute,
		EnableL1:   true,
		EnableL2:   false,
	})
	require.NoError(t, err)
	defer tc.Close()

	tc.Set(ctx, "k", []byte("v"))

	got, found := tc.Get(ctx, "k", nil)
	require.True(t, found)
	assert.Equal(t, []byte("v"), got)

	tc.Delete(ctx, "k")
	_, found = tc.Get(ctx, "k", nil)
	assert.False(t, found)
}

func TestTieredCache_L3Fetcher(t *testing.T) {
	ctx := context.Background()
	tc, err := NewTieredCache(&TieredCacheConfig{
		L1MaxItems: 10,
		L1TTL:      time.Minute,
		EnableL1:   true,
	})
	require.NoError(t, err)
	defer tc.Close()

	fetchCount := 0
	fetcher := func(_ context.Context, key string) (any, error) {
		fetchCount++
		return "db:" + key, nil
	}

	got, found := tc.Get(ctx, "k", fetcher)
	require.True(t, found)
	assert.Equal(t, "db:k", got)
	assert.Equal(t, 1, fetchCount)

	// Second Get is served from L1, fetcher not called again
	got, found = tc.Get(ctx, "k", fetcher)
	require.True(t, found)
	assert.Equal(t, "db:k", got)
	assert.Equal(t, 1, fetchCount)
}

func TestTieredCache_FetcherError(t *testing.T) {
	ctx := context.Background()
	tc, err := NewTieredCache(nil)
	require.NoError(t, err)
	defer tc.Close()

	fetcher := func(_ context.Context, _ string) (any, error) {
		return nil, errors.New("db down")
	}

	_, found := tc.Get(ctx, "k", fetcher)
	assert.False(t, found, "fetcher error should surface as a miss")
}

func TestNilRedisCache(t *testing.T) {
	ctx := context.Background()
	n := NewNilRedisCache()

	n.Set(ctx, "k", "v")
	_, found := n.Get(ctx, "k")
	assert.False(t, found)
	assert.NoError(t, n.Close())
}

func TestGenerateScopedKey(t *testing.T) {
	k1 := GenerateScopedKey("u1", "email_search", "invoices")
	k2 := GenerateScopedKey("u1", "email_search", "invoices")
	assert.Equal(t, k1, k2, "same inputs should produce the same key")

	k3 := GenerateScopedKey("u2", "email_search", "invoices")
	assert.NotEqual(t, k1, k3, "different users should not share keys")

	k4 := GenerateScopedKey("", "domain_risk", "example.com")
	k5 := GenerateScopedKey("", "domain_risk", "EXAMPLE.COM ")
	assert.Equal(t, k4, k5, "components are normalized before hashing")
}

func TestKeyHash(t *testing.T) {
	h := KeyHash("some-key")
	assert.Len(t, h, 16)
	assert.Equal(t, h, KeyHash("some-key"))
	assert.NotEqual(t, h, KeyHash("other-key"))
}
