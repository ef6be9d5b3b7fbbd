package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/mailsense/store"
)

func (d *DB) UpsertLearnedException(ctx context.Context, upsert *store.UpsertLearnedException) (*store.LearnedException, error) {
	// Re-learning merges: the note is refreshed when non-empty and
	// merge_count records that the correction happened again.
	query := `
		INSERT INTO learned_exception (user_id, kind, pattern, note)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, kind, pattern) DO UPDATE SET
			note = CASE WHEN excluded.note != '' THEN excluded.note ELSE learned_exception.note END,
			merge_count = learned_exception.merge_count + 1,
			updated_ts = strftime('%s', 'now')
		RETURNING id, user_id, kind, pattern, note, merge_count, created_ts, updated_ts
	`
	exception := &store.LearnedException{}
	if err := d.db.QueryRowContext(ctx, query,
		upsert.UserID, string(upsert.Kind), upsert.Pattern, upsert.Note,
	).Scan(
		&exception.ID, &exception.UserID, &exception.Kind, &exception.Pattern,
		&exception.Note, &exception.MergeCount, &exception.CreatedTs, &exception.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert learned exception")
	}
	return exception, nil
}

func (d *DB) ListLearnedExceptions(ctx context.Context, find *store.FindLearnedException) ([]*store.LearnedException, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := find.UserID; v != nil {
		where, args = append(where, "user_id = ?"), append(args, *v)
	}
	if v := find.Kind; v != nil {
		where, args = append(where, "kind = ?"), append(args, string(*v))
	}
	if v := find.Pattern; v != nil {
		where, args = append(where, "pattern = ?"), append(args, *v)
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, kind, pattern, note, merge_count, created_ts, updated_ts
		FROM learned_exception
		WHERE %s
		ORDER BY updated_ts DESC
	`, strings.Join(where, " AND "))
	if v := find.Limit; v != nil {
		query += fmt.Sprintf(" LIMIT %d", *v)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list learned exceptions")
	}
	defer rows.Close()

	list := []*store.LearnedException{}
	for rows.Next() {
		exception := &store.LearnedException{}
		if err := rows.Scan(
			&exception.ID, &exception.UserID, &exception.Kind, &exception.Pattern,
			&exception.Note, &exception.MergeCount, &exception.CreatedTs, &exception.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan learned exception")
		}
		list = append(list, exception)
	}
	return list, rows.Err()
}

func (d *DB) DeleteLearnedException(ctx context.Context, delete *store.DeleteLearnedException) error {
	where, args := []string{}, []any{}
	if v := delete.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := delete.UserID; v != nil {
		where, args = append(where, "user_id = ?"), append(args, *v)
	}
	if len(where) == 0 {
		return errors.New("missing delete condition")
	}
	query := fmt.Sprintf("DELETE FROM learned_exception WHERE %s", strings.Join(where, " AND "))
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "failed to delete learned exception")
	}
	return nil
}
