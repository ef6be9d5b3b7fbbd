package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_RecordRun(t *testing.T) {
	agg := NewAggregator()

	t.Run("SingleRun", func(t *testing.T) {
		agg.RecordRun("find", "primary", 100*time.Millisecond, true)

		stats := agg.GetCurrentStats()
		assert.Equal(t, int64(1), stats.RequestCount)
		assert.Equal(t, int64(1), stats.SuccessCount)
		assert.Contains(t, stats.IntentStats, "find")
		assert.Equal(t, int64(1), stats.IntentStats["find"].Count)
		assert.Equal(t, float32(1.0), stats.IntentStats["find"].SuccessRate)
		assert.Equal(t, int64(1), stats.ProviderCounts["primary"])
	})

	t.Run("MultipleRuns", func(t *testing.T) {
		agg := NewAggregator()
		agg.RecordRun("clean", "primary", 50*time.Millisecond, true)
		agg.RecordRun("clean", "secondary", 150*time.Millisecond, true)
		agg.RecordRun("clean", "template", 200*time.Millisecond, false)

		stats := agg.GetCurrentStats()
		assert.Equal(t, int64(3), stats.RequestCount)
		assert.Equal(t, int64(2), stats.SuccessCount)

		cleanStat := stats.IntentStats["clean"]
		require.NotNil(t, cleanStat)
		assert.Equal(t, int64(3), cleanStat.Count)
		assert.InDelta(t, 0.666, cleanStat.SuccessRate, 0.01)
		assert.Equal(t, int64(1), stats.ProviderCounts["template"])
	})
}

func TestAggregator_RecordToolCall(t *testing.T) {
	agg := NewAggregator()

	agg.RecordToolCall("email_search", 30*time.Millisecond, true)
	agg.RecordToolCall("email_search", 40*time.Millisecond, true)
	agg.RecordToolCall("security_scan", 100*time.Millisecond, false)

	stats := agg.GetCurrentStats()
	assert.Equal(t, int64(0), stats.RequestCount) // Run requests only

	searchStat := stats.ToolStats["email_search"]
	require.NotNil(t, searchStat)
	assert.Equal(t, int64(2), searchStat.Count)
	assert.Equal(t, float32(1.0), searchStat.SuccessRate)

	scanStat := stats.ToolStats["security_scan"]
	require.NotNil(t, scanStat)
	assert.Equal(t, float32(0.0), scanStat.SuccessRate)
}

func TestAggregator_RecordCacheAccess(t *testing.T) {
	agg := NewAggregator()

	agg.RecordCacheAccess("domain_risk", CacheHit)
	agg.RecordCacheAccess("domain_risk", CacheMiss)
	agg.RecordCacheAccess("domain_risk", CacheMiss)
	agg.RecordCacheAccess("chat_session", CacheError)

	stats := agg.GetCurrentStats()
	require.Contains(t, stats.CacheStats, "domain_risk")
	assert.Equal(t, int64(1), stats.CacheStats["domain_risk"].Hits)
	assert.Equal(t, int64(2), stats.CacheStats["domain_risk"].Misses)
	assert.Equal(t, int64(1), stats.CacheStats["chat_session"].Errors)
}

func TestAggregator_Percentiles(t *testing.T) {
	agg := NewAggregator()

	// Record 100 runs with varying latencies
	for i := 1; i <= 100; i++ {
		agg.RecordRun("find", "primary", time.Duration(i)*time.Millisecond, true)
	}

	stats := agg.GetCurrentStats()
	// P50 should be around 50ms
	assert.InDelta(t, 50, stats.LatencyP50.Milliseconds(), 5)
	// P95 should be around 95ms
	assert.InDelta(t, 95, stats.LatencyP95.Milliseconds(), 5)
}

func TestAggregator_FlushRunMetrics(t *testing.T) {
	agg := NewAggregator()

	agg.RecordRun("find", "primary", 100*time.Millisecond, true)
	agg.RecordRun("find", "primary", 200*time.Millisecond, true)

	// Flush metrics for past hours (not current hour). Since we just
	// recorded, they're in the current hour bucket.
	currentHour := truncateToHour(time.Now())
	snapshots := agg.FlushRunMetrics(currentHour)

	assert.Empty(t, snapshots)

	// Verify metrics are still in aggregator
	stats := agg.GetCurrentStats()
	assert.Equal(t, int64(2), stats.RequestCount)

	// A flush past the current hour drains the bucket
	snapshots = agg.FlushRunMetrics(currentHour.Add(2 * time.Hour))
	require.Len(t, snapshots, 1)
	assert.Equal(t, int64(2), snapshots[0].RequestCount)
	assert.Equal(t, int64(2), snapshots[0].ProviderCounts["primary"])
	assert.Empty(t, agg.GetCurrentStats().IntentStats)
}

func TestAggregator_FlushToolMetrics(t *testing.T) {
	agg := NewAggregator()

	agg.RecordToolCall("email_search", 50*time.Millisecond, true)

	currentHour := truncateToHour(time.Now())
	snapshots := agg.FlushToolMetrics(currentHour)

	// Should be empty since current hour is not flushed
	assert.Empty(t, snapshots)

	snapshots = agg.FlushToolMetrics(currentHour.Add(2 * time.Hour))
	require.Len(t, snapshots, 1)
	assert.Equal(t, "email_search", snapshots[0].ToolName)
	assert.Equal(t, int64(1), snapshots[0].CallCount)
}

func TestAggregator_ConcurrentAccess(t *testing.T) {
	agg := NewAggregator()
	var wg sync.WaitGroup

	// Concurrent writes
	for i := 0; i < 100; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			agg.RecordRun("find", "primary", 10*time.Millisecond, true)
		}()
		go func() {
			defer wg.Done()
			agg.RecordToolCall("email_search", 5*time.Millisecond, true)
		}()
		go func() {
			defer wg.Done()
			agg.RecordCacheAccess("domain_risk", CacheHit)
		}()
	}

	// Concurrent reads
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = agg.GetCurrentStats()
		}()
	}

	wg.Wait()

	stats := agg.GetCurrentStats()
	assert.Equal(t, int64(100), stats.RequestCount)
	assert.Equal(t, int64(100), stats.CacheStats["domain_risk"].Hits)
}

func TestService_RecordAndGetStats(t *testing.T) {
	// Create service without persistence
	svc := NewService(nil, DefaultPersisterConfig())
	defer svc.Close()

	t.Run("RecordRun", func(t *testing.T) {
		ctx := context.Background()
		svc.RecordRun(ctx, "find", "primary", 100*time.Millisecond, true)
		svc.RecordRun(ctx, "clean", "template", 200*time.Millisecond, false)

		stats, err := svc.GetStats(ctx, TimeRange{
			Start: time.Now().Add(-time.Hour),
			End:   time.Now(),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.RequestCount)
		assert.Equal(t, int64(1), stats.SuccessCount)
	})

	t.Run("RecordToolCall", func(t *testing.T) {
		ctx := context.Background()
		svc.RecordToolCall(ctx, "email_search", 50*time.Millisecond, true)

		// Tool calls don't affect run request count
		stats, err := svc.GetStats(ctx, TimeRange{
			Start: time.Now().Add(-time.Hour),
			End:   time.Now(),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), stats.RequestCount) // Same as before
	})
}

func TestService_NoPersistence(t *testing.T) {
	svc := NewService(nil, DefaultPersisterConfig())
	defer svc.Close()

	assert.False(t, svc.HasPersistence())

	err := svc.Flush(context.Background())
	assert.ErrorIs(t, err, ErrMetricsNotConfigured)
}

func TestService_Close(t *testing.T) {
	svc := NewService(nil, DefaultPersisterConfig())

	// Should not panic
	svc.Close()
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name      string
		latencies []int64
		p         int
		want      int64
	}{
		{"empty", []int64{}, 50, 0},
		{"single", []int64{100}, 50, 100},
		{"p50", []int64{10, 20, 30, 40, 50}, 50, 30},
		{"p95", []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, 95, 90},
		{"p0", []int64{10, 20, 30}, 0, 10},
		{"p100", []int64{10, 20, 30}, 100, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := percentile(tt.latencies, tt.p)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTruncateToHour(t *testing.T) {
	input := time.Date(2026, 1, 27, 14, 35, 22, 123456789, time.UTC)
	expected := time.Date(2026, 1, 27, 14, 0, 0, 0, time.UTC)

	result := truncateToHour(input)
	assert.Equal(t, expected, result)
}
