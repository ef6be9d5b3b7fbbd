package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/hrygo/mailsense/store"
)

// Sweep deletes session rows that expired past the TTL. The cache tier
// expires on its own; only the table needs sweeping.
func (s *Service) Sweep(ctx context.Context) error {
	if s == nil || s.store == nil {
		return nil
	}
	cutoff := time.Now().Add(-s.ttl).Unix()
	return s.store.DeleteChatSessions(ctx, &store.DeleteChatSessions{UpdatedBefore: &cutoff})
}

// RunSweeper sweeps on the given interval until ctx is canceled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if s == nil || s.store == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				slog.Warn("session sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
