package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/mailsense/store"
)

// hour_bucket is stored as unix seconds; SQLite has no native timestamp
// type and integer buckets keep the unique constraint exact.

func (d *DB) UpsertRunMetrics(ctx context.Context, upsert *store.UpsertRunMetrics) (*store.RunMetrics, error) {
	if upsert == nil {
		return nil, errors.New("upsert parameter cannot be nil")
	}

	query := `
		INSERT INTO run_metrics (hour_bucket, intent, request_count, success_count, latency_sum_ms, latency_p50_ms, latency_p95_ms, provider_counts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (hour_bucket, intent) DO UPDATE SET
			request_count = run_metrics.request_count + excluded.request_count,
			success_count = run_metrics.success_count + excluded.success_count,
			latency_sum_ms = run_metrics.latency_sum_ms + excluded.latency_sum_ms,
			latency_p50_ms = excluded.latency_p50_ms,
			latency_p95_ms = excluded.latency_p95_ms,
			provider_counts = excluded.provider_counts
		RETURNING id, hour_bucket, intent, request_count, success_count, latency_sum_ms, latency_p50_ms, latency_p95_ms, provider_counts
	`

	var metrics store.RunMetrics
	var bucket int64
	if err := d.db.QueryRowContext(ctx, query,
		upsert.HourBucket.Unix(), upsert.Intent, upsert.RequestCount, upsert.SuccessCount,
		upsert.LatencySumMs, upsert.LatencyP50Ms, upsert.LatencyP95Ms, orJSONObject(upsert.ProviderCounts),
	).Scan(
		&metrics.ID, &bucket, &metrics.Intent,
		&metrics.RequestCount, &metrics.SuccessCount, &metrics.LatencySumMs,
		&metrics.LatencyP50Ms, &metrics.LatencyP95Ms, &metrics.ProviderCounts,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert run metrics")
	}
	metrics.HourBucket = time.Unix(bucket, 0).UTC()

	return &metrics, nil
}

func (d *DB) ListRunMetrics(ctx context.Context, find *store.FindRunMetrics) ([]*store.RunMetrics, error) {
	if find == nil {
		return nil, errors.New("find parameter cannot be nil")
	}

	where, args := []string{"1 = 1"}, []any{}
	if find.Intent != nil {
		where, args = append(where, "intent = ?"), append(args, *find.Intent)
	}
	if find.StartTime != nil {
		where, args = append(where, "hour_bucket >= ?"), append(args, find.StartTime.Unix())
	}
	if find.EndTime != nil {
		where, args = append(where, "hour_bucket <= ?"), append(args, find.EndTime.Unix())
	}

	query := fmt.Sprintf(`
		SELECT id, hour_bucket, intent, request_count, success_count, latency_sum_ms, latency_p50_ms, latency_p95_ms, provider_counts
		FROM run_metrics
		WHERE %s
		ORDER BY hour_bucket DESC
	`, strings.Join(where, " AND "))

	limit := find.Limit
	if limit > 0 {
		if limit > 1000 {
			limit = 1000
		}
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list run metrics")
	}
	defer rows.Close()

	var metrics []*store.RunMetrics
	for rows.Next() {
		var m store.RunMetrics
		var bucket int64
		if err := rows.Scan(
			&m.ID, &bucket, &m.Intent,
			&m.RequestCount, &m.SuccessCount, &m.LatencySumMs,
			&m.LatencyP50Ms, &m.LatencyP95Ms, &m.ProviderCounts,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan run metrics")
		}
		m.HourBucket = time.Unix(bucket, 0).UTC()
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}

func (d *DB) DeleteRunMetrics(ctx context.Context, delete *store.DeleteRunMetrics) error {
	if delete == nil || delete.BeforeTime == nil {
		return errors.New("before_time is required for deletion")
	}
	if _, err := d.db.ExecContext(ctx, "DELETE FROM run_metrics WHERE hour_bucket < ?", delete.BeforeTime.Unix()); err != nil {
		return errors.Wrap(err, "failed to delete run metrics")
	}
	return nil
}

func (d *DB) UpsertToolMetrics(ctx context.Context, upsert *store.UpsertToolMetrics) (*store.ToolMetrics, error) {
	if upsert == nil {
		return nil, errors.New("upsert parameter cannot be nil")
	}

	query := `
		INSERT INTO tool_metrics (hour_bucket, tool_name, call_count, success_count, latency_sum_ms, latency_p50_ms, latency_p95_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (hour_bucket, tool_name) DO UPDATE SET
			call_count = tool_metrics.call_count + excluded.call_count,
			success_count = tool_metrics.success_count + excluded.success_count,
			latency_sum_ms = tool_metrics.latency_sum_ms + excluded.latency_sum_ms,
			latency_p50_ms = excluded.latency_p50_ms,
			latency_p95_ms = excluded.latency_p95_ms
		RETURNING id, hour_bucket, tool_name, call_count, success_count, latency_sum_ms, latency_p50_ms, latency_p95_ms
	`

	var metrics store.ToolMetrics
	var bucket int64
	if err := d.db.QueryRowContext(ctx, query,
		upsert.HourBucket.Unix(), upsert.ToolName, upsert.CallCount,
		upsert.SuccessCount, upsert.LatencySumMs, upsert.LatencyP50Ms, upsert.LatencyP95Ms,
	).Scan(
		&metrics.ID, &bucket, &metrics.ToolName,
		&metrics.CallCount, &metrics.SuccessCount, &metrics.LatencySumMs,
		&metrics.LatencyP50Ms, &metrics.LatencyP95Ms,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert tool metrics")
	}
	metrics.HourBucket = time.Unix(bucket, 0).UTC()

	return &metrics, nil
}

func (d *DB) ListToolMetrics(ctx context.Context, find *store.FindToolMetrics) ([]*store.ToolMetrics, error) {
	if find == nil {
		return nil, errors.New("find parameter cannot be nil")
	}

	where, args := []string{"1 = 1"}, []any{}
	if find.ToolName != nil {
		where, args = append(where, "tool_name = ?"), append(args, *find.ToolName)
	}
	if find.StartTime != nil {
		where, args = append(where, "hour_bucket >= ?"), append(args, find.StartTime.Unix())
	}
	if find.EndTime != nil {
		where, args = append(where, "hour_bucket <= ?"), append(args, find.EndTime.Unix())
	}

	query := fmt.Sprintf(`
		SELECT id, hour_bucket, tool_name, call_count, success_count, latency_sum_ms, latency_p50_ms, latency_p95_ms
		FROM tool_metrics
		WHERE %s
		ORDER BY hour_bucket DESC
	`, strings.Join(where, " AND "))

	limit := find.Limit
	if limit > 0 {
		if limit > 1000 {
			limit = 1000
		}
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tool metrics")
	}
	defer rows.Close()

	var metrics []*store.ToolMetrics
	for rows.Next() {
		var m store.ToolMetrics
		var bucket int64
		if err := rows.Scan(
			&m.ID, &bucket, &m.ToolName,
			&m.CallCount, &m.SuccessCount, &m.LatencySumMs,
			&m.LatencyP50Ms, &m.LatencyP95Ms,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan tool metrics")
		}
		m.HourBucket = time.Unix(bucket, 0).UTC()
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}

func (d *DB) DeleteToolMetrics(ctx context.Context, delete *store.DeleteToolMetrics) error {
	if delete == nil || delete.BeforeTime == nil {
		return errors.New("before_time is required for deletion")
	}
	if _, err := d.db.ExecContext(ctx, "DELETE FROM tool_metrics WHERE hour_bucket < ?", delete.BeforeTime.Unix()); err != nil {
		return errors.Wrap(err, "failed to delete tool metrics")
	}
	return nil
}
