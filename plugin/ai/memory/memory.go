// Package memory persists user corrections across runs: "keep X despite
// matching intent Y". Exceptions are durable table rows with merge
// semantics — re-learning the same exception bumps a counter instead of
// duplicating it — and are never silently dropped.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hrygo/mailsense/store"
)

// ExceptionStore is the slice of the store the service needs. The store
// fronts learned-exception listings with the shared cache tier, so reads
// through here are already read-through cached.
type ExceptionStore interface {
	UpsertLearnedException(ctx context.Context, upsert *store.UpsertLearnedException) (*store.LearnedException, error)
	ListLearnedExceptions(ctx context.Context, find *store.FindLearnedException) ([]*store.LearnedException, error)
}

// Service records and serves learned exceptions. A nil store disables
// learning: Learn reports nothing learned and lookups come back empty,
// so callers need no feature flag.
type Service struct {
	store ExceptionStore
}

// NewService creates a memory service.
func NewService(s ExceptionStore) *Service {
	return &Service{store: s}
}

// Learned describes one exception recorded by a run.
type Learned struct {
	Kind    store.LearnedExceptionKind `json:"kind"`
	Pattern string                     `json:"pattern"`
	New     bool                       `json:"new"`
}

// LearnFromQuery extracts exception statements from the query and merges
// them for the user. Returns what was learned; re-stated exceptions come
// back with New=false and remain a single logical entry.
func (s *Service) LearnFromQuery(ctx context.Context, userID, intent, query string) ([]Learned, error) {
	patterns := ExtractExceptions(query)
	if len(patterns) == 0 {
		return nil, nil
	}
	if s == nil || s.store == nil {
		slog.Debug("memory disabled, dropping stated exceptions",
			slog.String("user_id", userID), slog.Int("count", len(patterns)))
		return nil, nil
	}

	learned := make([]Learned, 0, len(patterns))
	for _, pattern := range patterns {
		row, err := s.store.UpsertLearnedException(ctx, &store.UpsertLearnedException{
			UserID:  userID,
			Kind:    store.ExceptionSenderKeep,
			Pattern: pattern,
			Note:    fmt.Sprintf("stated during %s: %q", intent, truncate(query, 120)),
		})
		if err != nil {
			return learned, fmt.Errorf("merging exception %q: %w", pattern, err)
		}
		learned = append(learned, Learned{
			Kind:    row.Kind,
			Pattern: row.Pattern,
			New:     row.MergeCount <= 1,
		})
	}
	return learned, nil
}

// KeptPatterns returns the user's keep-exceptions as lowercased match
// fragments. Empty on any failure; cleanup then simply proposes more and
// the user vetoes at approval time.
func (s *Service) KeptPatterns(ctx context.Context, userID string) []string {
	rows := s.listByKind(ctx, userID, store.ExceptionSenderKeep)
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, strings.ToLower(row.Pattern))
	}
	return out
}

// IsTrustedDomain reports whether the user has vouched for a domain.
func (s *Service) IsTrustedDomain(ctx context.Context, userID, domain string) bool {
	for _, row := range s.listByKind(ctx, userID, store.ExceptionDomainTrust) {
		if strings.EqualFold(row.Pattern, domain) {
			return true
		}
	}
	return false
}

// List returns every exception the user has accumulated.
func (s *Service) List(ctx context.Context, userID string) ([]*store.LearnedException, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	return s.store.ListLearnedExceptions(ctx, &store.FindLearnedException{UserID: &userID})
}

func (s *Service) listByKind(ctx context.Context, userID string, kind store.LearnedExceptionKind) []*store.LearnedException {
	if s == nil || s.store == nil {
		return nil
	}
	rows, err := s.store.ListLearnedExceptions(ctx, &store.FindLearnedException{
		UserID: &userID,
		Kind:   &kind,
	})
	if err != nil {
		slog.Warn("exception lookup failed",
			slog.String("user_id", userID), slog.String("error", err.Error()))
		return nil
	}
	return rows
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
