// Package metrics provides the metrics sink shared by the orchestrator,
// the tool dispatcher, the retrievers and the cache layer.
package metrics

import (
	"context"
	"time"
)

// CacheOutcome classifies a single cache access.
type CacheOutcome string

const (
	CacheHit   CacheOutcome = "hit"
	CacheMiss  CacheOutcome = "miss"
	CacheError CacheOutcome = "error"
)

// MetricsService defines the metrics sink interface.
type MetricsService interface {
	// RecordRun records one orchestration run: resolved intent, the provider
	// that served synthesis, total latency and outcome.
	RecordRun(ctx context.Context, intent, provider string, latency time.Duration, success bool)

	// RecordToolCall records tool call metrics.
	RecordToolCall(ctx context.Context, toolName string, latency time.Duration, success bool)

	// RecordCacheAccess records a cache access outcome per cache kind.
	RecordCacheAccess(ctx context.Context, kind string, outcome CacheOutcome, latency time.Duration)

	// GetStats retrieves statistics data.
	GetStats(ctx context.Context, timeRange TimeRange) (*RunStats, error)
}

// TimeRange represents a time range for querying metrics.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RunStats represents aggregated run metrics.
type RunStats struct {
	RequestCount   int64                 `json:"request_count"`
	SuccessCount   int64                 `json:"success_count"`
	LatencyP50     time.Duration         `json:"latency_p50"`
	LatencyP95     time.Duration         `json:"latency_p95"`
	IntentStats    map[string]*IntentStat `json:"intent_stats"`
	ProviderCounts map[string]int64      `json:"provider_counts"`
	ToolStats      map[string]*ToolStat  `json:"tool_stats"`
	CacheStats     map[string]*CacheStat `json:"cache_stats"`
}

// IntentStat represents statistics for a single resolved intent.
type IntentStat struct {
	Count       int64         `json:"count"`
	SuccessRate float32       `json:"success_rate"`
	AvgLatency  time.Duration `json:"avg_latency"`
}

// ToolStat represents statistics for a single tool.
type ToolStat struct {
	Count       int64         `json:"count"`
	SuccessRate float32       `json:"success_rate"`
	LatencyP50  time.Duration `json:"latency_p50"`
	LatencyP95  time.Duration `json:"latency_p95"`
}

// CacheStat represents hit/miss/error counters for a cache kind.
type CacheStat struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
}
