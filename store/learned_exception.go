package store

// LearnedExceptionKind enumerates the kinds of user corrections the agent
// persists. A sender_keep exception protects a sender from cleanup
// suggestions; a domain_trust exception suppresses risk warnings for a
// domain the user vouched for.
type LearnedExceptionKind string

const (
	ExceptionSenderKeep  LearnedExceptionKind = "sender_keep"
	ExceptionDomainTrust LearnedExceptionKind = "domain_trust"
	ExceptionRule        LearnedExceptionKind = "rule"
)

// LearnedException is a persisted user correction. Rows are unique per
// (user_id, kind, pattern); re-learning the same exception merges into the
// existing row and bumps merge_count, so repeated corrections are visible
// rather than silently discarded.
type LearnedException struct {
	ID         int32
	UserID     string
	Kind       LearnedExceptionKind
	Pattern    string // sender address, domain, or rule key depending on kind
	Note       string
	MergeCount int64
	CreatedTs  int64
	UpdatedTs  int64
}

// UpsertLearnedException inserts or merges an exception keyed by
// (user_id, kind, pattern).
type UpsertLearnedException struct {
	UserID  string
	Kind    LearnedExceptionKind
	Pattern string
	Note    string
}

// FindLearnedException is the find condition for learned exceptions.
type FindLearnedException struct {
	ID      *int32
	UserID  *string
	Kind    *LearnedExceptionKind
	Pattern *string
	Limit   *int
}

// DeleteLearnedException is the delete condition for learned exceptions.
type DeleteLearnedException struct {
	ID     *int32
	UserID *string
}
