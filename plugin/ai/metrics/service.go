package metrics

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hrygo/mailsense/store"
)

// ErrMetricsNotConfigured is returned when metrics persistence is not configured.
var ErrMetricsNotConfigured = errors.New("metrics persistence not configured")

// Service implements the MetricsService interface with real storage.
type Service struct {
	store      *store.Store
	aggregator *Aggregator
	persister  *Persister
}

// NewService creates a new metrics service.
// If store is nil, metrics will only be aggregated in memory (no persistence).
func NewService(s *store.Store, cfg PersisterConfig) *Service {
	aggregator := NewAggregator()

	svc := &Service{
		store:      s,
		aggregator: aggregator,
	}

	if s != nil {
		svc.persister = NewPersister(s, aggregator, cfg)
		svc.persister.Start()
	} else {
		slog.Warn("metrics service initialized without store (persistence disabled)")
	}

	return svc
}

// Close stops the metrics service and flushes remaining data.
func (s *Service) Close() {
	if s.persister != nil {
		s.persister.Close()
	}
}

// RecordRun records an orchestration run metric.
func (s *Service) RecordRun(_ context.Context, intent, provider string, latency time.Duration, success bool) {
	s.aggregator.RecordRun(intent, provider, latency, success)
}

// RecordToolCall records a tool call metric.
func (s *Service) RecordToolCall(_ context.Context, toolName string, latency time.Duration, success bool) {
	s.aggregator.RecordToolCall(toolName, latency, success)
}

// RecordCacheAccess records a cache access metric.
// Latency is currently accounted only in logs; the counters are what the
// fail-soft contract requires.
func (s *Service) RecordCacheAccess(_ context.Context, kind string, outcome CacheOutcome, _ time.Duration) {
	s.aggregator.RecordCacheAccess(kind, outcome)
}

// GetStats retrieves aggregated statistics for the given time range.
func (s *Service) GetStats(ctx context.Context, timeRange TimeRange) (*RunStats, error) {
	// Start with current in-memory stats
	stats := s.aggregator.GetCurrentStats()

	// If no store, return memory-only stats
	if s.store == nil {
		return stats, nil
	}

	// Query persisted metrics from database
	runMetrics, err := s.store.ListRunMetrics(ctx, &store.FindRunMetrics{
		StartTime: &timeRange.Start,
		EndTime:   &timeRange.End,
		Limit:     1000,
	})
	if err != nil {
		// Log error but return in-memory stats
		slog.Warn("failed to query persisted run metrics", "error", err)
		return stats, nil
	}

	type dbAgg struct {
		totalRequests int64
		totalSuccess  int64
		latencySum    int64
	}
	dbAggs := make(map[string]*dbAgg)

	for _, m := range runMetrics {
		stats.RequestCount += m.RequestCount
		stats.SuccessCount += m.SuccessCount

		agg, exists := dbAggs[m.Intent]
		if !exists {
			agg = &dbAgg{}
			dbAggs[m.Intent] = agg
		}
		agg.totalRequests += m.RequestCount
		agg.totalSuccess += m.SuccessCount
		agg.latencySum += m.LatencySumMs
	}

	// Merge DB aggregations into stats
	for intent, agg := range dbAggs {
		intentStat, exists := stats.IntentStats[intent]
		if !exists {
			intentStat = &IntentStat{}
			stats.IntentStats[intent] = intentStat
		}
		memCount := intentStat.Count
		memSuccess := int64(intentStat.SuccessRate * float32(memCount))
		intentStat.Count += agg.totalRequests
		if intentStat.Count > 0 {
			intentStat.SuccessRate = float32(memSuccess+agg.totalSuccess) / float32(intentStat.Count)
		}
		if agg.latencySum > 0 && agg.totalRequests > 0 {
			intentStat.AvgLatency = time.Duration(agg.latencySum/agg.totalRequests) * time.Millisecond
		}
	}

	return stats, nil
}

// Flush forces an immediate flush of metrics to the database.
func (s *Service) Flush(ctx context.Context) error {
	if s.persister == nil {
		return ErrMetricsNotConfigured
	}
	return s.persister.Flush(ctx)
}

// HasPersistence returns true if metrics persistence is enabled.
func (s *Service) HasPersistence() bool {
	return s.persister != nil
}
