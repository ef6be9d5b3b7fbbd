package actions

import (
	"context"
	"fmt"

	agenterrors "github.com/hrygo/mailsense/internal/errors"
	"github.com/hrygo/mailsense/store"
)

// Preview is the dry-run rendering of a staged action: one human-readable
// change line per target, nothing mutated.
type Preview struct {
	ActionID         string   `json:"action_id"`
	Kind             string   `json:"kind"`
	Description      string   `json:"description"`
	TargetCount      int32    `json:"target_count"`
	RequiresApproval bool     `json:"requires_approval"`
	Changes          []string `json:"changes"`
}

// DryRun renders what executing the action would change, reading the
// current state of each target. It is pure: calling it any number of
// times leaves the mailbox and the staged action untouched, and the same
// inputs produce the same change list.
func (s *Service) DryRun(ctx context.Context, userID, actionID string) (*Preview, error) {
	action, err := s.Get(ctx, userID, actionID)
	if err != nil {
		return nil, err
	}
	if action.Status != store.ActionStatusStaged {
		return nil, agenterrors.InvalidArgument(fmt.Sprintf("action %s already %s", actionID, action.Status))
	}

	targets, err := decodeTargets(action.TargetIDs)
	if err != nil {
		return nil, agenterrors.InvalidArgument(fmt.Sprintf("action %s has corrupt targets", actionID))
	}
	payload := decodePayload(action.Payload)

	preview := &Preview{
		ActionID:         action.ID,
		Kind:             string(action.Kind),
		Description:      action.Description,
		TargetCount:      action.TargetCount,
		RequiresApproval: action.RequiresApproval,
		Changes:          make([]string, 0, len(targets)),
	}
	for _, id := range targets {
		preview.Changes = append(preview.Changes, s.describeChange(ctx, action, payload, id))
	}
	return preview, nil
}

// describeChange renders one target's change line. Targets captured at
// staging time may have moved or vanished since; the preview says so
// instead of erroring.
func (s *Service) describeChange(ctx context.Context, action *store.StagedAction, payload map[string]any, id int32) string {
	email, err := s.emails.GetEmail(ctx, &store.FindEmail{ID: &id, UserID: &action.UserID})
	if err != nil {
		return fmt.Sprintf("email %d: state unavailable (%v)", id, err)
	}
	if email == nil {
		return fmt.Sprintf("email %d: no longer exists, would be skipped", id)
	}

	subject := email.Subject
	if runes := []rune(subject); len(runes) > 60 {
		subject = string(runes[:57]) + "..."
	}

	switch action.Kind {
	case store.ActionMove:
		folder, _ := payload["folder"].(string)
		return fmt.Sprintf("email %d %q: %s -> %s", id, subject, email.Folder, folder)
	case store.ActionDelete:
		return fmt.Sprintf("email %d %q: %s -> %s", id, subject, email.Folder, store.FolderTrash)
	case store.ActionMarkRead:
		if !email.Unread {
			return fmt.Sprintf("email %d %q: already read, no change", id, subject)
		}
		return fmt.Sprintf("email %d %q: unread -> read", id, subject)
	case store.ActionLabel:
		label, _ := payload["label"].(string)
		return fmt.Sprintf("email %d %q: add label %q", id, subject, label)
	default:
		return fmt.Sprintf("email %d %q: %s (no executor, would fail)", id, subject, action.Kind)
	}
}
