// Package cache provides the agent cache layer: kind-scoped keys, per-kind
// TTLs, fail-soft reads and hit/miss/error accounting.
//
// A nil *Service is a valid configuration. Every method tolerates a nil
// receiver and behaves as a permanent miss, so callers never need a
// feature flag for "caching disabled".
package cache

import (
	"context"
	"time"
)

// Cache kinds. Keys are namespaced as "<kind>:<key>" in every tier.
const (
	// KindDomainRisk caches sender-domain risk verdicts. Cross-user by
	// construction: domain reputation does not depend on who asked.
	KindDomainRisk = "domain_risk"

	// KindChatSession caches per-user conversational state for anaphora
	// resolution. Last write wins.
	KindChatSession = "chat_session"

	// KindToolResult caches idempotent read-tool results.
	KindToolResult = "tool_result"

	// KindLearnedException fronts the learned-exception table. The table is
	// the source of truth; this kind is a read-through accelerator only.
	KindLearnedException = "learned_exception"
)

// DefaultTTL returns the default TTL for a cache kind. Unknown kinds get a
// conservative short TTL.
func DefaultTTL(kind string) time.Duration {
	switch kind {
	case KindDomainRisk:
		return 720 * time.Hour
	case KindChatSession:
		return time.Hour
	case KindToolResult:
		return 5 * time.Minute
	case KindLearnedException:
		return 12 * time.Hour
	default:
		return 5 * time.Minute
	}
}

// IsSharedKind reports whether a kind is replicated to the shared Redis
// tier when one is configured. tool_result stays local: it is short-lived
// and cheap to recompute.
func IsSharedKind(kind string) bool {
	switch kind {
	case KindDomainRisk, KindChatSession, KindLearnedException:
		return true
	default:
		return false
	}
}

// CacheService defines the cache layer contract.
//
// All reads fail soft: a backend error or a malformed value surfaces as a
// miss, never as a run failure. Every call is accounted as hit, miss or
// error in the metrics sink.
type CacheService interface {
	// Get retrieves raw bytes for a kind-scoped key.
	Get(ctx context.Context, kind, key string) ([]byte, bool)

	// GetJSON retrieves and unmarshals a value into out. A value that does
	// not unmarshal is deleted and reported as an error outcome, and the
	// call returns false.
	GetJSON(ctx context.Context, kind, key string, out any) bool

	// Set stores raw bytes. A non-positive ttl uses the kind default.
	Set(ctx context.Context, kind, key string, value []byte, ttl time.Duration) error

	// SetJSON marshals and stores a value. A non-positive ttl uses the kind
	// default.
	SetJSON(ctx context.Context, kind, key string, value any, ttl time.Duration) error

	// Delete removes a kind-scoped key from all tiers.
	Delete(ctx context.Context, kind, key string) error

	// Invalidate removes local entries matching the pattern, which may end
	// with a * wildcard (e.g. "chat_session:user-1:*"). The shared tier is
	// left to expire by TTL.
	Invalidate(ctx context.Context, pattern string) error
}
