package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/mailsense/store"
)

const stagedActionColumns = "id, run_id, user_id, kind, description, payload, target_ids, target_count, requires_approval, status, approved_by, result, created_ts, updated_ts"

func (d *DB) CreateStagedAction(ctx context.Context, create *store.StagedAction) (*store.StagedAction, error) {
	status := create.Status
	if status == "" {
		status = store.ActionStatusStaged
	}
	query := `
		INSERT INTO staged_action (id, run_id, user_id, kind, description, payload, target_ids, target_count, requires_approval, status, approved_by, result)
		VALUES (` + placeholders(12) + `)
		RETURNING created_ts, updated_ts
	`
	if err := d.db.QueryRowContext(ctx, query,
		create.ID, create.RunID, create.UserID, string(create.Kind),
		create.Description, orJSONObject(create.Payload), orJSONArray(create.TargetIDs),
		create.TargetCount, boolToInt(create.RequiresApproval), string(status),
		create.ApprovedBy, create.Result,
	).Scan(&create.CreatedTs, &create.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to create staged action")
	}
	create.Status = status
	create.Payload = orJSONObject(create.Payload)
	create.TargetIDs = orJSONArray(create.TargetIDs)
	return create, nil
}

func (d *DB) ListStagedActions(ctx context.Context, find *store.FindStagedAction) ([]*store.StagedAction, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := find.RunID; v != nil {
		where, args = append(where, "run_id = ?"), append(args, *v)
	}
	if v := find.UserID; v != nil {
		where, args = append(where, "user_id = ?"), append(args, *v)
	}
	if v := find.Status; v != nil {
		where, args = append(where, "status = ?"), append(args, string(*v))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM staged_action
		WHERE %s
		ORDER BY created_ts DESC
	`, stagedActionColumns, strings.Join(where, " AND "))
	if v := find.Limit; v != nil {
		query += fmt.Sprintf(" LIMIT %d", *v)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list staged actions")
	}
	defer rows.Close()

	list := []*store.StagedAction{}
	for rows.Next() {
		action, err := scanStagedAction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, action)
	}
	return list, rows.Err()
}

func (d *DB) UpdateStagedAction(ctx context.Context, update *store.UpdateStagedAction) (*store.StagedAction, error) {
	set, args := []string{}, []any{}
	if v := update.Status; v != nil {
		set, args = append(set, "status = ?"), append(args, string(*v))
	}
	if v := update.ApprovedBy; v != nil {
		set, args = append(set, "approved_by = ?"), append(args, *v)
	}
	if v := update.Result; v != nil {
		set, args = append(set, "result = ?"), append(args, *v)
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}
	set = append(set, "updated_ts = strftime('%s', 'now')")
	args = append(args, update.ID, update.UserID)

	query := fmt.Sprintf(`
		UPDATE staged_action
		SET %s
		WHERE id = ? AND user_id = ?
		RETURNING %s
	`, strings.Join(set, ", "), stagedActionColumns)
	action, err := scanStagedAction(d.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, errors.Wrap(err, "failed to update staged action")
	}
	return action, nil
}

func (d *DB) DeleteStagedActions(ctx context.Context, delete *store.DeleteStagedActions) error {
	where, args := []string{}, []any{}
	if v := delete.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := delete.UserID; v != nil {
		where, args = append(where, "user_id = ?"), append(args, *v)
	}
	if v := delete.CreatedBefore; v != nil {
		where, args = append(where, "created_ts < ?"), append(args, *v)
	}
	if len(where) == 0 {
		return errors.New("missing delete condition")
	}
	query := fmt.Sprintf("DELETE FROM staged_action WHERE %s", strings.Join(where, " AND "))
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "failed to delete staged actions")
	}
	return nil
}

func scanStagedAction(row rowScanner) (*store.StagedAction, error) {
	action := &store.StagedAction{}
	var requiresApproval int
	if err := row.Scan(
		&action.ID, &action.RunID, &action.UserID, &action.Kind,
		&action.Description, &action.Payload, &action.TargetIDs,
		&action.TargetCount, &requiresApproval, &action.Status,
		&action.ApprovedBy, &action.Result, &action.CreatedTs, &action.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan staged action")
	}
	action.RequiresApproval = requiresApproval != 0
	return action, nil
}
