package metrics

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockMetricsService is a mock implementation of MetricsService for testing.
type MockMetricsService struct {
	mu           sync.RWMutex
	runs         []runRecord
	toolCalls    []toolCallRecord
	cacheRecords []cacheRecord
}

type runRecord struct {
	Intent    string
	Provider  string
	Latency   time.Duration
	Success   bool
	Timestamp time.Time
}

type toolCallRecord struct {
	ToolName  string
	Latency   time.Duration
	Success   bool
	Timestamp time.Time
}

type cacheRecord struct {
	Kind    string
	Outcome CacheOutcome
}

// NewMockMetricsService creates a new MockMetricsService.
func NewMockMetricsService() *MockMetricsService {
	return &MockMetricsService{
		runs:      make([]runRecord, 0),
		toolCalls: make([]toolCallRecord, 0),
	}
}

// RecordRun records run metrics.
func (m *MockMetricsService) RecordRun(_ context.Context, intent, provider string, latency time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs = append(m.runs, runRecord{
		Intent:    intent,
		Provider:  provider,
		Latency:   latency,
		Success:   success,
		Timestamp: time.Now(),
	})
}

// RecordToolCall records tool call metrics.
func (m *MockMetricsService) RecordToolCall(_ context.Context, toolName string, latency time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.toolCalls = append(m.toolCalls, toolCallRecord{
		ToolName:  toolName,
		Latency:   latency,
		Success:   success,
		Timestamp: time.Now(),
	})
}

// RecordCacheAccess records cache access metrics.
func (m *MockMetricsService) RecordCacheAccess(_ context.Context, kind string, outcome CacheOutcome, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cacheRecords = append(m.cacheRecords, cacheRecord{Kind: kind, Outcome: outcome})
}

// GetStats retrieves statistics data.
func (m *MockMetricsService) GetStats(_ context.Context, timeRange TimeRange) (*RunStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &RunStats{
		IntentStats:    make(map[string]*IntentStat),
		ProviderCounts: make(map[string]int64),
		ToolStats:      make(map[string]*ToolStat),
		CacheStats:     make(map[string]*CacheStat),
	}

	// Filter runs by time range
	var filteredRuns []runRecord
	for _, r := range m.runs {
		if (timeRange.Start.IsZero() || !r.Timestamp.Before(timeRange.Start)) &&
			(timeRange.End.IsZero() || !r.Timestamp.After(timeRange.End)) {
			filteredRuns = append(filteredRuns, r)
		}
	}

	stats.RequestCount = int64(len(filteredRuns))

	var latencies []time.Duration
	intentData := make(map[string]*struct {
		count        int64
		successCount int64
		totalLatency time.Duration
	})

	for _, r := range filteredRuns {
		if r.Success {
			stats.SuccessCount++
		}
		if r.Provider != "" {
			stats.ProviderCounts[r.Provider]++
		}

		latencies = append(latencies, r.Latency)

		if _, ok := intentData[r.Intent]; !ok {
			intentData[r.Intent] = &struct {
				count        int64
				successCount int64
				totalLatency time.Duration
			}{}
		}
		intentData[r.Intent].count++
		if r.Success {
			intentData[r.Intent].successCount++
		}
		intentData[r.Intent].totalLatency += r.Latency
	}

	// Calculate percentiles
	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		p50Index := len(latencies) * 50 / 100
		p95Index := len(latencies) * 95 / 100
		if p95Index >= len(latencies) {
			p95Index = len(latencies) - 1
		}

		stats.LatencyP50 = latencies[p50Index]
		stats.LatencyP95 = latencies[p95Index]
	}

	for intent, data := range intentData {
		var successRate float32
		if data.count > 0 {
			successRate = float32(data.successCount) / float32(data.count)
		}

		stats.IntentStats[intent] = &IntentStat{
			Count:       data.count,
			SuccessRate: successRate,
			AvgLatency:  data.totalLatency / time.Duration(data.count),
		}
	}

	for _, c := range m.cacheRecords {
		if _, ok := stats.CacheStats[c.Kind]; !ok {
			stats.CacheStats[c.Kind] = &CacheStat{}
		}
		switch c.Outcome {
		case CacheHit:
			stats.CacheStats[c.Kind].Hits++
		case CacheMiss:
			stats.CacheStats[c.Kind].Misses++
		case CacheError:
			stats.CacheStats[c.Kind].Errors++
		}
	}

	return stats, nil
}

// ToolCallCount returns the number of recorded calls for a tool (for testing).
func (m *MockMetricsService) ToolCallCount(toolName string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, c := range m.toolCalls {
		if c.ToolName == toolName {
			count++
		}
	}
	return count
}

// CacheOutcomeCount returns the number of recorded cache accesses with the
// given kind and outcome (for testing).
func (m *MockMetricsService) CacheOutcomeCount(kind string, outcome CacheOutcome) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, c := range m.cacheRecords {
		if c.Kind == kind && c.Outcome == outcome {
			count++
		}
	}
	return count
}

// ToolCallRecord is a snapshot of one recorded tool call (for testing).
type ToolCallRecord struct {
	ToolName string
	Latency  time.Duration
	Success  bool
}

// ToolCalls returns a copy of the recorded tool calls (for testing).
func (m *MockMetricsService) ToolCalls() []ToolCallRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ToolCallRecord, 0, len(m.toolCalls))
	for _, c := range m.toolCalls {
		out = append(out, ToolCallRecord{ToolName: c.ToolName, Latency: c.Latency, Success: c.Success})
	}
	return out
}

// RunRecord is a snapshot of one recorded run (for testing).
type RunRecord struct {
	Intent   string
	Provider string
	Success  bool
}

// Runs returns a copy of the recorded runs (for testing).
func (m *MockMetricsService) Runs() []RunRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]RunRecord, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, RunRecord{Intent: r.Intent, Provider: r.Provider, Success: r.Success})
	}
	return out
}

// Clear removes all recorded metrics (for testing).
func (m *MockMetricsService) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = make([]runRecord, 0)
	m.toolCalls = make([]toolCallRecord, 0)
	m.cacheRecords = nil
}

// Ensure MockMetricsService implements MetricsService
var _ MetricsService = (*MockMetricsService)(nil)
