package metrics

import (
	"sort"
	"sync"
	"time"
)

// Aggregator aggregates metrics in memory before persisting to database.
type Aggregator struct {
	mu sync.RWMutex

	// Run metrics: key = "hourBucket|intent"
	runMetrics map[string]*runBucket

	// Tool metrics: key = "hourBucket|toolName"
	toolMetrics map[string]*toolBucket

	// Cache metrics: key = kind (memory only, not persisted)
	cacheMetrics map[string]*cacheBucket
}

type runBucket struct {
	hourBucket     time.Time
	intent         string
	requestCount   int64
	successCount   int64
	latencies      []int64 // in milliseconds
	providerCounts map[string]int64
}

type toolBucket struct {
	hourBucket   time.Time
	toolName     string
	callCount    int64
	successCount int64
	latencies    []int64 // in milliseconds
}

type cacheBucket struct {
	kind   string
	hits   int64
	misses int64
	errors int64
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		runMetrics:   make(map[string]*runBucket),
		toolMetrics:  make(map[string]*toolBucket),
		cacheMetrics: make(map[string]*cacheBucket),
	}
}

// RecordRun records a single orchestration run.
func (a *Aggregator) RecordRun(intent, provider string, latency time.Duration, success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	hourBucket := truncateToHour(time.Now())
	key := makeBucketKey(hourBucket, intent)

	bucket, exists := a.runMetrics[key]
	if !exists {
		bucket = &runBucket{
			hourBucket:     hourBucket,
			intent:         intent,
			latencies:      make([]int64, 0, 100),
			providerCounts: make(map[string]int64),
		}
		a.runMetrics[key] = bucket
	}

	bucket.requestCount++
	if success {
		bucket.successCount++
	}
	bucket.latencies = append(bucket.latencies, latency.Milliseconds())
	if provider != "" {
		bucket.providerCounts[provider]++
	}
}

// RecordToolCall records a single tool call.
func (a *Aggregator) RecordToolCall(toolName string, latency time.Duration, success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	hourBucket := truncateToHour(time.Now())
	key := makeBucketKey(hourBucket, toolName)

	bucket, exists := a.toolMetrics[key]
	if !exists {
		bucket = &toolBucket{
			hourBucket: hourBucket,
			toolName:   toolName,
			latencies:  make([]int64, 0, 100),
		}
		a.toolMetrics[key] = bucket
	}

	bucket.callCount++
	if success {
		bucket.successCount++
	}
	bucket.latencies = append(bucket.latencies, latency.Milliseconds())
}

// RecordCacheAccess records a cache access per kind.
func (a *Aggregator) RecordCacheAccess(kind string, outcome CacheOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucket, exists := a.cacheMetrics[kind]
	if !exists {
		bucket = &cacheBucket{kind: kind}
		a.cacheMetrics[kind] = bucket
	}

	switch outcome {
	case CacheHit:
		bucket.hits++
	case CacheMiss:
		bucket.misses++
	case CacheError:
		bucket.errors++
	}
}

// RunSnapshot represents a snapshot of run metrics for persistence.
type RunSnapshot struct {
	HourBucket     time.Time
	Intent         string
	RequestCount   int64
	SuccessCount   int64
	LatencySumMs   int64
	LatencyP50Ms   int32
	LatencyP95Ms   int32
	ProviderCounts map[string]int64
}

// ToolSnapshot represents a snapshot of tool metrics for persistence.
type ToolSnapshot struct {
	HourBucket   time.Time
	ToolName     string
	CallCount    int64
	SuccessCount int64
	LatencySumMs int64
	LatencyP50Ms int32
	LatencyP95Ms int32
}

// FlushRunMetrics returns and clears all run metrics for hours before the given time.
func (a *Aggregator) FlushRunMetrics(beforeHour time.Time) []*RunSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	var snapshots []*RunSnapshot
	keysToDelete := make([]string, 0)

	for key, bucket := range a.runMetrics {
		if bucket.hourBucket.Before(beforeHour) {
			snapshot := &RunSnapshot{
				HourBucket:     bucket.hourBucket,
				Intent:         bucket.intent,
				RequestCount:   bucket.requestCount,
				SuccessCount:   bucket.successCount,
				LatencySumMs:   sumLatencies(bucket.latencies),
				LatencyP50Ms:   int32(percentile(bucket.latencies, 50)),
				LatencyP95Ms:   int32(percentile(bucket.latencies, 95)),
				ProviderCounts: bucket.providerCounts,
			}
			snapshots = append(snapshots, snapshot)
			keysToDelete = append(keysToDelete, key)
		}
	}

	for _, key := range keysToDelete {
		delete(a.runMetrics, key)
	}

	return snapshots
}

// FlushToolMetrics returns and clears all tool metrics for hours before the given time.
func (a *Aggregator) FlushToolMetrics(beforeHour time.Time) []*ToolSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	var snapshots []*ToolSnapshot
	keysToDelete := make([]string, 0)

	for key, bucket := range a.toolMetrics {
		if bucket.hourBucket.Before(beforeHour) {
			snapshot := &ToolSnapshot{
				HourBucket:   bucket.hourBucket,
				ToolName:     bucket.toolName,
				CallCount:    bucket.callCount,
				SuccessCount: bucket.successCount,
				LatencySumMs: sumLatencies(bucket.latencies),
				LatencyP50Ms: int32(percentile(bucket.latencies, 50)),
				LatencyP95Ms: int32(percentile(bucket.latencies, 95)),
			}
			snapshots = append(snapshots, snapshot)
			keysToDelete = append(keysToDelete, key)
		}
	}

	for _, key := range keysToDelete {
		delete(a.toolMetrics, key)
	}

	return snapshots
}

// GetCurrentStats returns aggregated stats from memory.
func (a *Aggregator) GetCurrentStats() *RunStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := &RunStats{
		IntentStats:    make(map[string]*IntentStat),
		ProviderCounts: make(map[string]int64),
		ToolStats:      make(map[string]*ToolStat),
		CacheStats:     make(map[string]*CacheStat),
	}

	allLatencies := make([]int64, 0)
	for _, bucket := range a.runMetrics {
		stats.RequestCount += bucket.requestCount
		stats.SuccessCount += bucket.successCount
		allLatencies = append(allLatencies, bucket.latencies...)

		if _, exists := stats.IntentStats[bucket.intent]; !exists {
			stats.IntentStats[bucket.intent] = &IntentStat{}
		}
		intentStat := stats.IntentStats[bucket.intent]
		intentStat.Count += bucket.requestCount
		if bucket.requestCount > 0 {
			intentStat.SuccessRate = float32(bucket.successCount) / float32(bucket.requestCount)
			avgMs := sumLatencies(bucket.latencies) / bucket.requestCount
			intentStat.AvgLatency = time.Duration(avgMs) * time.Millisecond
		}
		for provider, count := range bucket.providerCounts {
			stats.ProviderCounts[provider] += count
		}
	}

	stats.LatencyP50 = time.Duration(percentile(allLatencies, 50)) * time.Millisecond
	stats.LatencyP95 = time.Duration(percentile(allLatencies, 95)) * time.Millisecond

	for _, bucket := range a.toolMetrics {
		if _, exists := stats.ToolStats[bucket.toolName]; !exists {
			stats.ToolStats[bucket.toolName] = &ToolStat{}
		}
		toolStat := stats.ToolStats[bucket.toolName]
		toolStat.Count += bucket.callCount
		if bucket.callCount > 0 {
			toolStat.SuccessRate = float32(bucket.successCount) / float32(bucket.callCount)
		}
		toolStat.LatencyP50 = time.Duration(percentile(bucket.latencies, 50)) * time.Millisecond
		toolStat.LatencyP95 = time.Duration(percentile(bucket.latencies, 95)) * time.Millisecond
	}

	for kind, bucket := range a.cacheMetrics {
		stats.CacheStats[kind] = &CacheStat{
			Hits:   bucket.hits,
			Misses: bucket.misses,
			Errors: bucket.errors,
		}
	}

	return stats
}

// Helper functions

func truncateToHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

func makeBucketKey(hourBucket time.Time, name string) string {
	return hourBucket.Format(time.RFC3339) + "|" + name
}

func sumLatencies(latencies []int64) int64 {
	var sum int64
	for _, l := range latencies {
		sum += l
	}
	return sum
}

func percentile(latencies []int64, p int) int64 {
	if len(latencies) == 0 {
		return 0
	}

	sorted := make([]int64, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := (len(sorted) - 1) * p / 100
	return sorted[idx]
}
