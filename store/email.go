package store

// Email is the object representing a single ingested mailbox message.
// The body is stored as plain text extracted at ingest time; the original
// HTML part is kept alongside for excerpt rendering.
type Email struct {
	ID            int32
	UID           string // provider-assigned message id, unique per user
	UserID        string
	ThreadID      string
	Sender        string // display form, e.g. "Acme Billing <billing@acme.com>"
	SenderAddr    string // bare address, lowercased
	SenderDomain  string // domain part of the sender address, lowercased
	Recipients    string // JSON array of addresses
	Subject       string
	Snippet       string // first ~200 chars of plain text body
	Body          string // plain text body
	BodyHTML      string
	Folder        string // inbox/archive/promotions/updates/spam/trash/sent
	Labels        string // JSON array of strings
	HasAttachment bool
	Unread        bool
	SizeBytes     int64
	ReceivedTs    int64
	CreatedTs     int64
	UpdatedTs     int64
}

// Well-known folder names. Folders are free-form strings; these are the
// ones the ingest pipeline and the cleanup tools agree on.
const (
	FolderInbox      = "inbox"
	FolderArchive    = "archive"
	FolderPromotions = "promotions"
	FolderUpdates    = "updates"
	FolderSpam       = "spam"
	FolderTrash      = "trash"
	FolderSent       = "sent"
)

// FindEmail is the find condition for emails.
type FindEmail struct {
	ID            *int32
	UID           *string
	UserID        *string
	ThreadID      *string
	SenderAddr    *string
	SenderDomain  *string
	Folder        *string
	Unread        *bool
	HasAttachment *bool
	Label         *string // emails carrying this label

	// Time range filters on received_ts.
	ReceivedAfter  *int64
	ReceivedBefore *int64

	// Filters holds CEL filter expressions compiled to SQL by the driver.
	Filters []string

	// Pagination
	Limit  *int
	Offset *int

	// OrderByReceivedAsc reverses the default received_ts DESC ordering.
	OrderByReceivedAsc bool
}

// UpdateEmail is the update request for a single email.
type UpdateEmail struct {
	ID        int32
	UserID    string
	Folder    *string
	Labels    *string // JSON array, replaces the stored set
	Unread    *bool
	UpdatedTs *int64
}

// UpdateEmails is the batch update request used by cleanup actions.
// Only the listed IDs belonging to UserID are touched.
type UpdateEmails struct {
	UserID string
	IDs    []int32
	Folder *string
	Unread *bool
}

// DeleteEmail is the delete condition for a single email.
type DeleteEmail struct {
	ID     int32
	UserID string
}

// EmailSearchResult pairs an email with its raw relevance rank from the
// driver. Ranks are dialect-specific (bm25 for SQLite, ts_rank for
// Postgres) and are normalized upstream before scoring.
type EmailSearchResult struct {
	Email *Email
	Rank  float64
}

// SearchEmailsOptions represents the options for full-text email search.
// UserID is required; emails are never searched across users.
type SearchEmailsOptions struct {
	UserID         string
	Query          string
	Folder         *string
	ReceivedAfter  *int64
	ReceivedBefore *int64
	Limit          int

	// Filters holds CEL filter expressions compiled to SQL by the driver,
	// applied on top of the relevance match.
	Filters []string
}

// SenderCount is one row of the per-sender aggregate.
type SenderCount struct {
	SenderDomain string
	Count        int64
	UnreadCount  int64
}

// EmailStats is the aggregate snapshot backing the profile_stats tool.
type EmailStats struct {
	TotalCount      int64
	UnreadCount     int64
	AttachmentCount int64
	FolderCounts    map[string]int64
	TopSenders      []*SenderCount
}

// EmailStatsOptions represents the options for computing mailbox stats.
type EmailStatsOptions struct {
	UserID        string
	ReceivedAfter *int64
	TopSenders    int // number of top sender domains to return, default 10
}
