package test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/mailsense/store"
)

func TestRunMetricsStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	bucket := time.Now().UTC().Truncate(time.Hour)

	first, err := ts.UpsertRunMetrics(ctx, &store.UpsertRunMetrics{
		HourBucket:     bucket,
		Intent:         "summarize",
		RequestCount:   10,
		SuccessCount:   9,
		LatencySumMs:   4500,
		LatencyP50Ms:   400,
		LatencyP95Ms:   900,
		ProviderCounts: `{"primary":9,"template":1}`,
	})
	require.NoError(t, err)
	require.Equal(t, int64(10), first.RequestCount)
	require.Equal(t, bucket.Unix(), first.HourBucket.Unix())

	// Same bucket merges counters additively; percentile and provider
	// columns carry the latest flush.
	merged, err := ts.UpsertRunMetrics(ctx, &store.UpsertRunMetrics{
		HourBucket:     bucket,
		Intent:         "summarize",
		RequestCount:   5,
		SuccessCount:   5,
		LatencySumMs:   2000,
		LatencyP50Ms:   350,
		LatencyP95Ms:   800,
		ProviderCounts: `{"primary":5}`,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, merged.ID)
	require.Equal(t, int64(15), merged.RequestCount)
	require.Equal(t, int64(14), merged.SuccessCount)
	require.Equal(t, int64(6500), merged.LatencySumMs)
	require.Equal(t, int32(350), merged.LatencyP50Ms)
	require.Equal(t, int32(800), merged.LatencyP95Ms)
	require.Equal(t, `{"primary":5}`, merged.ProviderCounts)

	_, err = ts.UpsertRunMetrics(ctx, &store.UpsertRunMetrics{
		HourBucket:   bucket,
		Intent:       "clean",
		RequestCount: 2,
		SuccessCount: 2,
	})
	require.NoError(t, err)

	all, err := ts.ListRunMetrics(ctx, &store.FindRunMetrics{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	intent := "summarize"
	byIntent, err := ts.ListRunMetrics(ctx, &store.FindRunMetrics{Intent: &intent})
	require.NoError(t, err)
	require.Len(t, byIntent, 1)
	require.Equal(t, int64(15), byIntent[0].RequestCount)

	start := bucket.Add(-time.Hour)
	end := bucket.Add(time.Hour)
	windowed, err := ts.ListRunMetrics(ctx, &store.FindRunMetrics{StartTime: &start, EndTime: &end})
	require.NoError(t, err)
	require.Len(t, windowed, 2)

	past := bucket.Add(-2 * time.Hour)
	before := bucket.Add(-time.Hour)
	empty, err := ts.ListRunMetrics(ctx, &store.FindRunMetrics{StartTime: &past, EndTime: &before})
	require.NoError(t, err)
	require.Empty(t, empty)

	require.Error(t, ts.DeleteRunMetrics(ctx, &store.DeleteRunMetrics{}))

	cutoff := bucket.Add(time.Hour)
	require.NoError(t, ts.DeleteRunMetrics(ctx, &store.DeleteRunMetrics{BeforeTime: &cutoff}))
	all, err = ts.ListRunMetrics(ctx, &store.FindRunMetrics{})
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestToolMetricsStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	bucket := time.Now().UTC().Truncate(time.Hour)

	first, err := ts.UpsertToolMetrics(ctx, &store.UpsertToolMetrics{
		HourBucket:   bucket,
		ToolName:     "search_email",
		CallCount:    20,
		SuccessCount: 19,
		LatencySumMs: 3000,
		LatencyP50Ms: 120,
		LatencyP95Ms: 340,
	})
	require.NoError(t, err)
	require.Equal(t, bucket.Unix(), first.HourBucket.Unix())

	merged, err := ts.UpsertToolMetrics(ctx, &store.UpsertToolMetrics{
		HourBucket:   bucket,
		ToolName:     "search_email",
		CallCount:    10,
		SuccessCount: 10,
		LatencySumMs: 1200,
		LatencyP50Ms: 110,
		LatencyP95Ms: 300,
	})
	require.NoError(t, err)
	require.Equal(t, first.ID, merged.ID)
	require.Equal(t, int64(30), merged.CallCount)
	require.Equal(t, int64(29), merged.SuccessCount)
	require.Equal(t, int64(4200), merged.LatencySumMs)
	require.Equal(t, int32(110), merged.LatencyP50Ms)

	name := "search_email"
	byName, err := ts.ListToolMetrics(ctx, &store.FindToolMetrics{ToolName: &name})
	require.NoError(t, err)
	require.Len(t, byName, 1)

	require.Error(t, ts.DeleteToolMetrics(ctx, &store.DeleteToolMetrics{}))

	cutoff := bucket.Add(time.Hour)
	require.NoError(t, ts.DeleteToolMetrics(ctx, &store.DeleteToolMetrics{BeforeTime: &cutoff}))
	all, err := ts.ListToolMetrics(ctx, &store.FindToolMetrics{})
	require.NoError(t, err)
	require.Empty(t, all)
}
