// Package session tracks short-lived conversational state per user:
// the previous query, its resolved intent, and the email IDs the last
// answer referenced. Follow-up queries are resolved against it.
//
// Session continuity is best-effort, not correctness-critical. Writes are
// last-write-wins with no locking; two runs racing for the same user is
// an accepted inconsistency. Reads go cache-first with the store as
// fallback, and both backends are optional.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hrygo/mailsense/plugin/ai/cache"
	"github.com/hrygo/mailsense/store"
)

// Context is one user's live conversational state. At most one per user;
// a new turn overwrites the previous one.
type Context struct {
	UserID             string   `json:"user_id"`
	SessionID          string   `json:"session_id"`
	LastQuery          string   `json:"last_query"`
	LastIntent         string   `json:"last_intent"`
	LastTimeWindowDays int      `json:"last_time_window_days"`
	ReferencedEmailIDs []int32  `json:"referenced_email_ids,omitempty"`
	PinnedThreadIDs    []string `json:"pinned_thread_ids,omitempty"`
	UpdatedTs          int64    `json:"updated_ts"`
}

// sessionState is the free-form JSON persisted in the chat_session row's
// state column, covering the fields the row itself has no column for.
type sessionState struct {
	LastTimeWindowDays int      `json:"last_time_window_days"`
	PinnedThreadIDs    []string `json:"pinned_thread_ids,omitempty"`
}

// SessionStore is the slice of the store the service needs.
type SessionStore interface {
	UpsertChatSession(ctx context.Context, upsert *store.UpsertChatSession) (*store.ChatSession, error)
	GetChatSession(ctx context.Context, find *store.FindChatSession) (*store.ChatSession, error)
	DeleteChatSessions(ctx context.Context, delete *store.DeleteChatSessions) error
}

// Service provides cache-first access to session context. Both the cache
// and the store may be nil; a nil service is also valid and behaves as if
// no session ever existed.
type Service struct {
	store SessionStore
	cache cache.CacheService
	ttl   time.Duration
}

// NewService creates a session service. ttl <= 0 uses the chat_session
// kind default.
func NewService(s SessionStore, c cache.CacheService, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = cache.DefaultTTL(cache.KindChatSession)
	}
	return &Service{store: s, cache: c, ttl: ttl}
}

// Load returns the user's live session context, or nil when none exists.
// Backend failures degrade to "no session"; a stale or missing session
// only costs follow-up resolution, never the run.
func (s *Service) Load(ctx context.Context, userID string) *Context {
	if s == nil {
		return nil
	}

	if s.cache != nil {
		var cached Context
		if s.cache.GetJSON(ctx, cache.KindChatSession, userID, &cached) {
			if !s.expired(cached.UpdatedTs) {
				return &cached
			}
		}
	}

	if s.store == nil {
		return nil
	}
	row, err := s.store.GetChatSession(ctx, &store.FindChatSession{UserID: &userID})
	if err != nil {
		slog.Warn("session load failed, continuing without context",
			slog.String("user_id", userID), slog.String("error", err.Error()))
		return nil
	}
	if row == nil || s.expired(row.UpdatedTs) {
		return nil
	}

	sc := fromRow(row)
	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, cache.KindChatSession, userID, sc, s.ttl)
	}
	return sc
}

// Save overwrites the user's session context, last write wins. Failures
// are logged and swallowed.
func (s *Service) Save(ctx context.Context, sc *Context) {
	if s == nil || sc == nil || sc.UserID == "" {
		return
	}
	sc.UpdatedTs = time.Now().Unix()

	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, cache.KindChatSession, sc.UserID, sc, s.ttl)
	}

	if s.store == nil {
		return
	}
	refIDs, _ := json.Marshal(sc.ReferencedEmailIDs)
	state, _ := json.Marshal(sessionState{
		LastTimeWindowDays: sc.LastTimeWindowDays,
		PinnedThreadIDs:    sc.PinnedThreadIDs,
	})
	if _, err := s.store.UpsertChatSession(ctx, &store.UpsertChatSession{
		UserID:             sc.UserID,
		SessionID:          sc.SessionID,
		LastQuery:          sc.LastQuery,
		LastIntent:         sc.LastIntent,
		ReferencedEmailIDs: string(refIDs),
		State:              string(state),
	}); err != nil {
		slog.Warn("session save failed",
			slog.String("user_id", sc.UserID), slog.String("error", err.Error()))
	}
}

func (s *Service) expired(updatedTs int64) bool {
	return time.Since(time.Unix(updatedTs, 0)) > s.ttl
}

func fromRow(row *store.ChatSession) *Context {
	sc := &Context{
		UserID:     row.UserID,
		SessionID:  row.SessionID,
		LastQuery:  row.LastQuery,
		LastIntent: row.LastIntent,
		UpdatedTs:  row.UpdatedTs,
	}
	if row.ReferencedEmailIDs != "" {
		// A corrupt column costs the references, not the session.
		_ = json.Unmarshal([]byte(row.ReferencedEmailIDs), &sc.ReferencedEmailIDs)
	}
	if row.State != "" {
		var st sessionState
		if err := json.Unmarshal([]byte(row.State), &st); err == nil {
			sc.LastTimeWindowDays = st.LastTimeWindowDays
			sc.PinnedThreadIDs = st.PinnedThreadIDs
		}
	}
	return sc
}
