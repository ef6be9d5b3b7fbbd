// Package embedding backfills vector embeddings for knowledge-base docs
// in the background, so semantic retrieval catches up with newly ingested
// docs without blocking any request path.
package embedding

import (
	"context"
	"log/slog"
	"time"
)

// Backfiller embeds the docs that do not have vectors yet.
type Backfiller interface {
	BackfillPending(ctx context.Context, limit int) (int, error)
}

type Runner struct {
	backfiller Backfiller
	interval   time.Duration
	batchSize  int
}

// NewRunner creates a backfill runner. The small batch and long interval
// keep the embedding provider load negligible next to live traffic.
func NewRunner(backfiller Backfiller) *Runner {
	return &Runner{
		backfiller: backfiller,
		interval:   2 * time.Minute,
		batchSize:  16,
	}
}

// Run processes once at startup, then on every tick until ctx is
// canceled.
func (r *Runner) Run(ctx context.Context) {
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			slog.Info("embedding runner stopped")
			return
		}
	}
}

// RunOnce drains pending docs in batches. A failing batch ends the pass;
// the next tick retries from wherever the backfill left off.
func (r *Runner) RunOnce(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := r.backfiller.BackfillPending(ctx, r.batchSize)
		if err != nil {
			slog.Error("embedding backfill pass failed", slog.String("error", err.Error()))
			return
		}
		if processed > 0 {
			slog.Info("embedded knowledge-base docs", slog.Int("count", processed))
		}
		if processed < r.batchSize {
			return
		}
	}
}
