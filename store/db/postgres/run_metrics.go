package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/mailsense/store"
)

func (d *DB) UpsertRunMetrics(ctx context.Context, upsert *store.UpsertRunMetrics) (*store.RunMetrics, error) {
	if upsert == nil {
		return nil, errors.New("upsert parameter cannot be nil")
	}

	query := `
		INSERT INTO run_metrics (hour_bucket, intent, request_count, success_count, latency_sum_ms, latency_p50_ms, latency_p95_ms, provider_counts)
		VALUES (` + placeholders(8) + `)
		ON CONFLICT (hour_bucket, intent) DO UPDATE SET
			request_count = run_metrics.request_count + EXCLUDED.request_count,
			success_count = run_metrics.success_count + EXCLUDED.success_count,
			latency_sum_ms = run_metrics.latency_sum_ms + EXCLUDED.latency_sum_ms,
			latency_p50_ms = EXCLUDED.latency_p50_ms,
			latency_p95_ms = EXCLUDED.latency_p95_ms,
			provider_counts = EXCLUDED.provider_counts
		RETURNING id, hour_bucket, intent, request_count, success_count, latency_sum_ms, latency_p50_ms, latency_p95_ms, provider_counts
	`

	var metrics store.RunMetrics
	if err := d.db.QueryRowContext(ctx, query,
		upsert.HourBucket, upsert.Intent, upsert.RequestCount, upsert.SuccessCount,
		upsert.LatencySumMs, upsert.LatencyP50Ms, upsert.LatencyP95Ms, orJSONObject(upsert.ProviderCounts),
	).Scan(
		&metrics.ID, &metrics.HourBucket, &metrics.Intent,
		&metrics.RequestCount, &metrics.SuccessCount, &metrics.LatencySumMs,
		&metrics.LatencyP50Ms, &metrics.LatencyP95Ms, &metrics.ProviderCounts,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert run metrics")
	}

	return &metrics, nil
}

func (d *DB) ListRunMetrics(ctx context.Context, find *store.FindRunMetrics) ([]*store.RunMetrics, error) {
	if find == nil {
		return nil, errors.New("find parameter cannot be nil")
	}

	where, args := []string{"1 = 1"}, []any{}
	if find.Intent != nil {
		where, args = append(where, "intent = "+placeholder(len(args)+1)), append(args, *find.Intent)
	}
	if find.StartTime != nil {
		where, args = append(where, "hour_bucket >= "+placeholder(len(args)+1)), append(args, *find.StartTime)
	}
	if find.EndTime != nil {
		where, args = append(where, "hour_bucket <= "+placeholder(len(args)+1)), append(args, *find.EndTime)
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
		if err := rows.Scan(
			&m.ID, &m.HourBucket, &m.Intent,
			&m.RequestCount, &m.SuccessCount, &m.LatencySumMs,
			&m.LatencyP50Ms, &m.LatencyP95Ms, &m.ProviderCounts,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan run metrics")
		}
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}

func (d *DB) DeleteRunMetrics(ctx context.Context, delete *store.DeleteRunMetrics) error {
	if delete == nil || delete.BeforeTime == nil {
		return errors.New("before_time is required for deletion")
	}
	if _, err := d.db.ExecContext(ctx, "DELETE FROM run_metrics WHERE hour_bucket < $1", *delete.BeforeTime); err != nil {
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
		VALUES (` + placeholders(7) + `)
		ON CONFLICT (hour_bucket, tool_name) DO UPDATE SET
			call_count = tool_metrics.call_count + EXCLUDED.call_count,
			success_count = tool_metrics.success_count + EXCLUDED.success_count,
			latency_sum_ms = tool_metrics.latency_sum_ms + EXCLUDED.latency_sum_ms,
			latency_p50_ms = EXCLUDED.latency_p50_ms,
			latency_p95_ms = EXCLUDED.latency_p95_ms
		RETURNING id, hour_bucket, tool_name, call_count, success_count, latency_sum_ms, latency_p50_ms, latency_p95_ms
	`

	var metrics store.ToolMetrics
	if err := d.db.QueryRowContext(ctx, query,
		upsert.HourBucket, upsert.ToolName, upsert.CallCount,
		upsert.SuccessCount, upsert.LatencySumMs, upsert.LatencyP50Ms, upsert.LatencyP95Ms,
	).Scan(
		&metrics.ID, &metrics.HourBucket, &metrics.ToolName,
		&metrics.CallCount, &metrics.SuccessCount, &metrics.LatencySumMs,
		&metrics.LatencyP50Ms, &metrics.LatencyP95Ms,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert tool metrics")
	}

	return &metrics, nil
}

func (d *DB) ListToolMetrics(ctx context.Context, find *store.FindToolMetrics) ([]*store.ToolMetrics, error) {
	if find == nil {
		return nil, errors.New("find parameter cannot be nil")
	}

	where, args := []string{"1 = 1"}, []any{}
	if find.ToolName != nil {
		where, args = append(where, "tool_name = "+placeholder(len(args)+1)), append(args, *find.ToolName)
	}
	if find.StartTime != nil {
		where, args = append(where, "hour_bucket >= "+placeholder(len(args)+1)), append(args, *find.StartTime)
	}
	if find.EndTime != nil {
		where, args = append(where, "hour_bucket <= "+placeholder(len(args)+1)), append(args, *find.EndTime)
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
		if err := rows.Scan(
			&m.ID, &m.HourBucket, &m.ToolName,
			&m.CallCount, &m.SuccessCount, &m.LatencySumMs,
			&m.LatencyP50Ms, &m.LatencyP95Ms,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan tool metrics")
		}
		metrics = append(metrics, &m)
	}
	return metrics, rows.Err()
}

func (d *DB) DeleteToolMetrics(ctx context.Context, delete *store.DeleteToolMetrics) error {
	if delete == nil || delete.BeforeTime == nil {
		return errors.New("before_time is required for deletion")
	}
	if _, err := d.db.ExecContext(ctx, "DELETE FROM tool_metrics WHERE hour_bucket < $1", *delete.BeforeTime); err != nil {
		return errors.Wrap(err, "failed to delete tool metrics")
	}
	return nil
}
