// Package router classifies a raw query into a discrete intent, with an
// optional token-level explanation of what drove the decision.
package router

import (
	"context"

	"github.com/hrygo/mailsense/plugin/ai/session"
)

// Intent is the discrete task category of a query.
type Intent string

const (
	IntentSummarize    Intent = "summarize"
	IntentClean        Intent = "clean"
	IntentFind         Intent = "find"
	IntentSecurityScan Intent = "security_scan"
	IntentSmallTalk    Intent = "small_talk"

	// IntentClarify is the fallback when no category scores above the
	// threshold. Ambiguity never fails a run.
	IntentClarify Intent = "clarify"
)

// Classification is the classifier's verdict for one query.
type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float32 `json:"confidence"`

	// Explanation is the ordered trace of the substrings and signals
	// that drove the decision, in the order they matched. It is a
	// structural record, not prose; the UI renders it verbatim for the
	// "why this intent" disclosure.
	Explanation []string `json:"explanation,omitempty"`

	// FollowUp reports that the intent was resolved from session
	// context rather than the query text alone.
	FollowUp bool `json:"follow_up,omitempty"`
}

// ClassifierService maps query text, plus optional session context for
// follow-up turns, to a Classification. Implementations are stateless
// and must never return an error: ambiguity resolves to IntentClarify.
type ClassifierService interface {
	Classify(ctx context.Context, query string, sess *session.Context) *Classification
}
