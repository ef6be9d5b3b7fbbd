package store

// ChatSession holds the short-lived conversational state of one user
// session: the previous query, its resolved intent, and the email IDs the
// last answer referenced. Follow-up queries ("delete those", "the second
// one") are resolved against this record.
//
// Rows are written last-write-wins and expire after the session TTL; the
// sweeper removes stale rows so the table stays small.
type ChatSession struct {
	ID                 int32
	UserID             string
	SessionID          string
	LastQuery          string
	LastIntent         string
	ReferencedEmailIDs string // JSON array of int32
	State              string // JSON, free-form per-session context
	CreatedTs          int64
	UpdatedTs          int64
}

// UpsertChatSession inserts or overwrites the session row keyed by
// (user_id, session_id).
type UpsertChatSession struct {
	UserID             string
	SessionID          string
	LastQuery          string
	LastIntent         string
	ReferencedEmailIDs string // JSON array of int32
	State              string // JSON
}

// FindChatSession is the find condition for chat sessions.
type FindChatSession struct {
	UserID    *string
	SessionID *string
	Limit     *int
}

// DeleteChatSessions is the delete condition for chat sessions.
// UpdatedBefore is used by the TTL sweeper.
type DeleteChatSessions struct {
	UserID        *string
	SessionID     *string
	UpdatedBefore *int64
}
