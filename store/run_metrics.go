package store

import "time"

// RunMetrics represents hourly aggregated metrics for agent runs of one
// intent. Rows are additive: re-upserting the same (hour_bucket, intent)
// merges counters, while the percentile columns are replaced with the
// latest flush's values.
type RunMetrics struct {
	ID             int64
	HourBucket     time.Time
	Intent         string
	RequestCount   int64
	SuccessCount   int64
	LatencySumMs   int64
	LatencyP50Ms   int32
	LatencyP95Ms   int32
	ProviderCounts string // JSON: {"provider": count}
}

// ToolMetrics represents hourly aggregated metrics for a tool.
type ToolMetrics struct {
	ID           int64
	HourBucket   time.Time
	ToolName     string
	CallCount    int64
	SuccessCount int64
	LatencySumMs int64
	LatencyP50Ms int32
	LatencyP95Ms int32
}

// UpsertRunMetrics specifies the data for upserting run metrics.
type UpsertRunMetrics struct {
	HourBucket     time.Time
	Intent         string
	RequestCount   int64
	SuccessCount   int64
	LatencySumMs   int64
	LatencyP50Ms   int32
	LatencyP95Ms   int32
	ProviderCounts string
}

// UpsertToolMetrics specifies the data for upserting tool metrics.
type UpsertToolMetrics struct {
	HourBucket   time.Time
	ToolName     string
	CallCount    int64
	SuccessCount int64
	LatencySumMs int64
	LatencyP50Ms int32
	LatencyP95Ms int32
}

// FindRunMetrics specifies the conditions for finding run metrics.
type FindRunMetrics struct {
	Intent    *string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
}

// FindToolMetrics specifies the conditions for finding tool metrics.
type FindToolMetrics struct {
	ToolName  *string
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
}

// DeleteRunMetrics specifies the conditions for deleting run metrics.
type DeleteRunMetrics struct {
	BeforeTime *time.Time // Delete records older than this time
}

// DeleteToolMetrics specifies the conditions for deleting tool metrics.
type DeleteToolMetrics struct {
	BeforeTime *time.Time // Delete records older than this time
}
