package tools

import (
	"context"
	"fmt"

	"github.com/hrygo/mailsense/store"
)

// EmailLister is the slice of the store the thread tool needs.
type EmailLister interface {
	ListEmails(ctx context.Context, find *store.FindEmail) ([]*store.Email, error)
	GetEmail(ctx context.Context, find *store.FindEmail) (*store.Email, error)
}

// ThreadDetailTool expands the conversation a follow-up query refers to.
// The thread is resolved from the session's referenced email IDs; without
// a referenced thread the tool reports zero matches rather than guessing.
type ThreadDetailTool struct {
	store EmailLister
}

// NewThreadDetailTool creates the thread detail tool.
func NewThreadDetailTool(s EmailLister) *ThreadDetailTool {
	return &ThreadDetailTool{store: s}
}

func (t *ThreadDetailTool) Name() string {
	return "thread_detail"
}

func (t *ThreadDetailTool) Description() string {
	return "Expands the full conversation for a thread referenced by a previous turn."
}

func (t *ThreadDetailTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"referenced_email_ids": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "integer"},
				"description": "email IDs surfaced by the previous turn",
			},
		},
	}
}

func (t *ThreadDetailTool) Run(ctx context.Context, inv *Invocation) (*Result, error) {
	if len(inv.ReferencedEmailIDs) == 0 {
		return &Result{
			Status:  StatusSuccess,
			Matches: 0,
			Payload: map[string]any{"reason": "no referenced thread in this session"},
		}, nil
	}

	// Resolve the thread from the first referenced email. Follow-ups
	// reference one conversation at a time.
	anchorID := inv.ReferencedEmailIDs[0]
	anchor, err := t.store.GetEmail(ctx, &store.FindEmail{ID: &anchorID, UserID: &inv.UserID})
	if err != nil {
		return nil, fmt.Errorf("resolving referenced email %d: %w", anchorID, err)
	}
	if anchor == nil || anchor.ThreadID == "" {
		return &Result{
			Status:  StatusSuccess,
			Matches: 0,
			Payload: map[string]any{"reason": "referenced email no longer exists"},
		}, nil
	}

	messages, err := t.store.ListEmails(ctx, &store.FindEmail{
		UserID:             &inv.UserID,
		ThreadID:           &anchor.ThreadID,
		OrderByReceivedAsc: true,
	})
	if err != nil {
		return nil, fmt.Errorf("listing thread %s: %w", anchor.ThreadID, err)
	}

	summaries := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		summaries = append(summaries, emailSummary(m))
	}

	return &Result{
		Status:  StatusSuccess,
		Matches: len(messages),
		Payload: map[string]any{
			"thread_id": anchor.ThreadID,
			"subject":   anchor.Subject,
			"messages":  summaries,
		},
	}, nil
}
