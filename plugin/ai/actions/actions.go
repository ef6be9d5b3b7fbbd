// Package actions implements two-phase mailbox mutations. Tools propose,
// a dry-run stages and previews, and a separate execute call applies —
// gated on approval when the staged action requires it. Execution is
// itemized per target: one bad email never rolls back the rest.
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"

	agenterrors "github.com/hrygo/mailsense/internal/errors"
	"github.com/hrygo/mailsense/plugin/ai/agent/tools"
	"github.com/hrygo/mailsense/store"
)

// ActionStore is the slice of the store the service needs for staging.
type ActionStore interface {
	CreateStagedAction(ctx context.Context, create *store.StagedAction) (*store.StagedAction, error)
	GetStagedAction(ctx context.Context, find *store.FindStagedAction) (*store.StagedAction, error)
	UpdateStagedAction(ctx context.Context, update *store.UpdateStagedAction) (*store.StagedAction, error)
	ListStagedActions(ctx context.Context, find *store.FindStagedAction) ([]*store.StagedAction, error)
}

// EmailStore is the mutation surface execution runs against.
type EmailStore interface {
	GetEmail(ctx context.Context, find *store.FindEmail) (*store.Email, error)
	UpdateEmail(ctx context.Context, update *store.UpdateEmail) error
}

// Service stages, previews, and executes mailbox actions.
type Service struct {
	actions ActionStore
	emails  EmailStore
}

// NewService creates an action service.
func NewService(actions ActionStore, emails EmailStore) *Service {
	return &Service{actions: actions, emails: emails}
}

// Stage persists a tool's proposals as staged actions owned by the run.
// Nothing is applied; the returned handles are what the client approves.
func (s *Service) Stage(ctx context.Context, runID, userID string, proposed []tools.ProposedAction) ([]*store.StagedAction, error) {
	staged := make([]*store.StagedAction, 0, len(proposed))
	for _, p := range proposed {
		if len(p.TargetIDs) == 0 {
			continue
		}
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return staged, fmt.Errorf("encoding action payload: %w", err)
		}
		targets, err := json.Marshal(p.TargetIDs)
		if err != nil {
			return staged, fmt.Errorf("encoding action targets: %w", err)
		}
		action, err := s.actions.CreateStagedAction(ctx, &store.StagedAction{
			ID:               shortuuid.New(),
			RunID:            runID,
			UserID:           userID,
			Kind:             p.Kind,
			Description:      p.Description,
			Payload:          string(payload),
			TargetIDs:        string(targets),
			TargetCount:      int32(len(p.TargetIDs)),
			RequiresApproval: p.RequiresApproval,
		})
		if err != nil {
			return staged, fmt.Errorf("staging %s action: %w", p.Kind, err)
		}
		staged = append(staged, action)
	}
	return staged, nil
}

// Get returns a staged action scoped to its owner.
func (s *Service) Get(ctx context.Context, userID, actionID string) (*store.StagedAction, error) {
	action, err := s.actions.GetStagedAction(ctx, &store.FindStagedAction{ID: &actionID, UserID: &userID})
	if err != nil {
		return nil, fmt.Errorf("loading staged action: %w", err)
	}
	if action == nil {
		return nil, agenterrors.NotFound(fmt.Sprintf("staged action %s", actionID))
	}
	return action, nil
}

// ListPending returns the user's actions still awaiting execution.
func (s *Service) ListPending(ctx context.Context, userID string) ([]*store.StagedAction, error) {
	staged := store.ActionStatusStaged
	return s.actions.ListStagedActions(ctx, &store.FindStagedAction{UserID: &userID, Status: &staged})
}

// Cancel marks a staged action cancelled. Cancelling is idempotent on
// already-cancelled actions and rejected once execution has happened.
func (s *Service) Cancel(ctx context.Context, userID, actionID string) error {
	action, err := s.Get(ctx, userID, actionID)
	if err != nil {
		return err
	}
	switch action.Status {
	case store.ActionStatusCancelled:
		return nil
	case store.ActionStatusStaged:
	default:
		return agenterrors.InvalidArgument(fmt.Sprintf("action %s already %s", actionID, action.Status))
	}
	cancelled := store.ActionStatusCancelled
	_, err = s.actions.UpdateStagedAction(ctx, &store.UpdateStagedAction{
		ID: actionID, UserID: userID, Status: &cancelled,
	})
	return err
}

// TargetError is one failed target in an execution report.
type TargetError struct {
	EmailID int32  `json:"email_id"`
	Error   string `json:"error"`
}

// Report is the itemized outcome of executing one staged action.
type Report struct {
	ActionID  string                   `json:"action_id"`
	Status    store.StagedActionStatus `json:"status"`
	Succeeded int                      `json:"succeeded"`
	Failed    int                      `json:"failed"`
	Errors    []TargetError            `json:"errors,omitempty"`
	Message   string                   `json:"message"`
}

// Execute applies a staged action to its captured targets, one at a time.
// Approval is enforced here, not at staging: a RequiresApproval action
// with an empty approvedBy is rejected before anything mutates. Targets
// fail independently; the final status is executed, partial, or failed,
// and the report carries the per-target breakdown either way.
func (s *Service) Execute(ctx context.Context, userID, actionID, approvedBy string) (*Report, error) {
	action, err := s.Get(ctx, userID, actionID)
	if err != nil {
		return nil, err
	}
	if action.Status != store.ActionStatusStaged {
		return nil, agenterrors.InvalidArgument(fmt.Sprintf("action %s already %s", actionID, action.Status))
	}
	if action.RequiresApproval && approvedBy == "" {
		return nil, agenterrors.ActionApprovalMissing(actionID)
	}

	targets, err := decodeTargets(action.TargetIDs)
	if err != nil {
		return nil, agenterrors.InvalidArgument(fmt.Sprintf("action %s has corrupt targets", actionID))
	}
	apply, err := s.applier(action)
	if err != nil {
		return nil, err
	}

	report := &Report{ActionID: actionID}
	for _, id := range targets {
		if err := ctx.Err(); err != nil {
			report.Errors = append(report.Errors, TargetError{EmailID: id, Error: err.Error()})
			report.Failed++
			continue
		}
		if err := apply(ctx, id); err != nil {
			report.Errors = append(report.Errors, TargetError{EmailID: id, Error: err.Error()})
			report.Failed++
			continue
		}
		report.Succeeded++
	}

	report.Message = fmt.Sprintf("%d succeeded, %d failed", report.Succeeded, report.Failed)
	switch {
	case report.Failed == 0:
		report.Status = store.ActionStatusExecuted
	case report.Succeeded == 0:
		report.Status = store.ActionStatusFailed
	default:
		report.Status = store.ActionStatusPartial
	}

	s.persistReport(ctx, userID, actionID, approvedBy, report)

	if report.Status == store.ActionStatusPartial {
		return report, agenterrors.ActionPartialFailure(report.Succeeded, report.Failed)
	}
	return report, nil
}

// persistReport records the outcome on the staged action row. Losing the
// record must not unwind mutations that already happened, so failures are
// logged and swallowed.
func (s *Service) persistReport(ctx context.Context, userID, actionID, approvedBy string, report *Report) {
	result, _ := json.Marshal(report)
	resultStr := string(result)
	update := &store.UpdateStagedAction{
		ID:     actionID,
		UserID: userID,
		Status: &report.Status,
		Result: &resultStr,
	}
	if approvedBy != "" {
		update.ApprovedBy = &approvedBy
	}
	if _, err := s.actions.UpdateStagedAction(ctx, update); err != nil {
		slog.Error("failed to record action execution report",
			slog.String("action_id", actionID), slog.String("error", err.Error()))
	}
}

// applier resolves the per-target mutation for an action kind.
func (s *Service) applier(action *store.StagedAction) (func(context.Context, int32) error, error) {
	payload := decodePayload(action.Payload)
	now := time.Now().Unix()

	switch action.Kind {
	case store.ActionMove:
		folder, _ := payload["folder"].(string)
		if folder == "" {
			return nil, agenterrors.InvalidArgument("move action missing target folder")
		}
		return func(ctx context.Context, id int32) error {
			return s.emails.UpdateEmail(ctx, &store.UpdateEmail{
				ID: id, UserID: action.UserID, Folder: &folder, UpdatedTs: &now,
			})
		}, nil

	case store.ActionDelete:
		trash := store.FolderTrash
		return func(ctx context.Context, id int32) error {
			return s.emails.UpdateEmail(ctx, &store.UpdateEmail{
				ID: id, UserID: action.UserID, Folder: &trash, UpdatedTs: &now,
			})
		}, nil

	case store.ActionMarkRead:
		read := false
		return func(ctx context.Context, id int32) error {
			return s.emails.UpdateEmail(ctx, &store.UpdateEmail{
				ID: id, UserID: action.UserID, Unread: &read, UpdatedTs: &now,
			})
		}, nil

	case store.ActionLabel:
		label, _ := payload["label"].(string)
		if label == "" {
			return nil, agenterrors.InvalidArgument("label action missing label name")
		}
		return func(ctx context.Context, id int32) error {
			return s.addLabel(ctx, action.UserID, id, label, now)
		}, nil

	default:
		return nil, agenterrors.InvalidArgument(fmt.Sprintf("no executor for action kind %q", action.Kind))
	}
}

// addLabel merges one label into the email's stored set.
func (s *Service) addLabel(ctx context.Context, userID string, id int32, label string, now int64) error {
	email, err := s.emails.GetEmail(ctx, &store.FindEmail{ID: &id, UserID: &userID})
	if err != nil {
		return err
	}
	if email == nil {
		return fmt.Errorf("email %d not found", id)
	}
	var labels []string
	if email.Labels != "" {
		_ = json.Unmarshal([]byte(email.Labels), &labels)
	}
	for _, existing := range labels {
		if existing == label {
			return nil
		}
	}
	labels = append(labels, label)
	encoded, err := json.Marshal(labels)
	if err != nil {
		return err
	}
	labelsStr := string(encoded)
	return s.emails.UpdateEmail(ctx, &store.UpdateEmail{
		ID: id, UserID: userID, Labels: &labelsStr, UpdatedTs: &now,
	})
}

func decodeTargets(raw string) ([]int32, error) {
	var ids []int32
	if raw == "" {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func decodePayload(raw string) map[string]any {
	payload := map[string]any{}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &payload)
	}
	return payload
}
