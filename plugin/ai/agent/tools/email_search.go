package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/hrygo/mailsense/store"
)

// EmailSearcher is the slice of the store the search tool needs.
type EmailSearcher interface {
	SearchEmails(ctx context.Context, opts *store.SearchEmailsOptions) ([]*store.EmailSearchResult, error)
}

// EmailSearchTool runs a relevance-ranked full-text query over the
// caller's mailbox, restricted to the requested time window.
type EmailSearchTool struct {
	store EmailSearcher
	limit int
}

// NewEmailSearchTool creates the email search tool.
func NewEmailSearchTool(s EmailSearcher) *EmailSearchTool {
	return &EmailSearchTool{store: s, limit: 20}
}

func (t *EmailSearchTool) Name() string {
	return "email_search"
}

func (t *EmailSearchTool) Description() string {
	return "Full-text search over the user's mailbox, scoped to a time window."
}

func (t *EmailSearchTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":            map[string]any{"type": "string", "description": "search terms"},
			"time_window_days": map[string]any{"type": "integer", "description": "restrict to the last N days"},
			"filter":           map[string]any{"type": "string", "description": "CEL filter expression over email fields"},
		},
		"required": []string{"query"},
	}
}

// Run executes the search. Matches carries the hit count; the payload
// holds a compact summary of the top hits for synthesis and rendering.
func (t *EmailSearchTool) Run(ctx context.Context, inv *Invocation) (*Result, error) {
	opts := &store.SearchEmailsOptions{
		UserID:  inv.UserID,
		Query:   inv.Query,
		Limit:   t.limit,
		Filters: inv.Filters,
	}
	if inv.TimeWindowDays > 0 {
		after := time.Now().AddDate(0, 0, -inv.TimeWindowDays).Unix()
		opts.ReceivedAfter = &after
	}

	hits, err := t.store.SearchEmails(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("email search failed: %w", err)
	}

	emails := make([]map[string]any, 0, len(hits))
	threadIDs := make([]string, 0, len(hits))
	emailIDs := make([]int32, 0, len(hits))
	for _, hit := range hits {
		emails = append(emails, emailSummary(hit.Email))
		emailIDs = append(emailIDs, hit.Email.ID)
		if hit.Email.ThreadID != "" {
			threadIDs = append(threadIDs, hit.Email.ThreadID)
		}
	}

	return &Result{
		Status:  StatusSuccess,
		Matches: len(hits),
		Payload: map[string]any{
			"emails":     emails,
			"email_ids":  emailIDs,
			"thread_ids": threadIDs,
		},
	}, nil
}

// emailSummary projects an email into the compact form tools put on the
// wire. Bodies stay out; the snippet is enough for synthesis.
func emailSummary(e *store.Email) map[string]any {
	return map[string]any{
		"id":          e.ID,
		"thread_id":   e.ThreadID,
		"sender":      e.Sender,
		"sender_addr": e.SenderAddr,
		"subject":     e.Subject,
		"snippet":     e.Snippet,
		"folder":      e.Folder,
		"unread":      e.Unread,
		"received_ts": e.ReceivedTs,
	}
}
