package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hrygo/mailsense/store"
)

// ExceptionLookup reports the cleanup exceptions a user has taught the
// agent. Patterns are lowercased brand or sender fragments; mail matching
// any of them is never proposed for cleanup.
type ExceptionLookup interface {
	KeptPatterns(ctx context.Context, userID string) []string
}

// CleanPromotionsTool proposes archiving stale promotional mail. It only
// ever proposes: the archive itself goes through the two-phase action
// flow, so nothing moves until the caller approves.
type CleanPromotionsTool struct {
	store      EmailLister
	exceptions ExceptionLookup
	batchSize  int
}

// NewCleanPromotionsTool creates the cleanup tool. exceptions may be nil.
func NewCleanPromotionsTool(s EmailLister, exceptions ExceptionLookup) *CleanPromotionsTool {
	return &CleanPromotionsTool{store: s, exceptions: exceptions, batchSize: 50}
}

func (t *CleanPromotionsTool) Name() string {
	return "clean_promotions"
}

func (t *CleanPromotionsTool) Description() string {
	return "Proposes archiving stale promotional mail, honoring learned keep-exceptions."
}

func (t *CleanPromotionsTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"time_window_days": map[string]any{"type": "integer", "description": "only touch mail older than the window"},
		},
	}
}

func (t *CleanPromotionsTool) Run(ctx context.Context, inv *Invocation) (*Result, error) {
	window := inv.TimeWindowDays
	if window <= 0 {
		window = 30
	}
	// Cleanup targets mail OLDER than the window; the window is the
	// grace period, not the search range.
	before := time.Now().AddDate(0, 0, -window).Unix()
	folder := store.FolderPromotions
	limit := 500

	emails, err := t.store.ListEmails(ctx, &store.FindEmail{
		UserID:         &inv.UserID,
		Folder:         &folder,
		ReceivedBefore: &before,
		Filters:        inv.Filters,
		Limit:          &limit,
	})
	if err != nil {
		return nil, fmt.Errorf("listing promotions: %w", err)
	}

	var kept []string
	if t.exceptions != nil {
		kept = t.exceptions.KeptPatterns(ctx, inv.UserID)
	}

	var targets []int32
	bySender := map[string]int{}
	keptMatches := map[string]int{}
	for _, e := range emails {
		if pattern := matchesKeptPattern(e, kept); pattern != "" {
			keptMatches[pattern]++
			continue
		}
		targets = append(targets, e.ID)
		bySender[e.SenderDomain]++
	}

	result := &Result{
		Status:  StatusSuccess,
		Matches: len(targets),
		Payload: map[string]any{
			"candidates":        len(emails),
			"kept_by_exception": len(emails) - len(targets),
			"kept_patterns":     keptMatches,
			"by_sender":         bySender,
			"time_window_days":  window,
		},
	}

	// One proposal per batch so a huge mailbox does not become one
	// unreviewable mega-action.
	for start := 0; start < len(targets); start += t.batchSize {
		end := start + t.batchSize
		if end > len(targets) {
			end = len(targets)
		}
		batch := targets[start:end]
		result.Proposed = append(result.Proposed, ProposedAction{
			Kind:        store.ActionMove,
			Description: fmt.Sprintf("Archive %d promotional emails older than %d days", len(batch), window),
			Payload: map[string]any{
				"folder": store.FolderArchive,
			},
			TargetIDs:        batch,
			RequiresApproval: true,
		})
	}

	return result, nil
}

// matchesKeptPattern returns the exception pattern the email matched, or
// "" when the email is fair game.
func matchesKeptPattern(e *store.Email, kept []string) string {
	if len(kept) == 0 {
		return ""
	}
	haystack := strings.ToLower(e.Sender + " " + e.SenderAddr + " " + e.SenderDomain + " " + e.Subject)
	for _, pattern := range kept {
		if pattern != "" && strings.Contains(haystack, pattern) {
			return pattern
		}
	}
	return ""
}
