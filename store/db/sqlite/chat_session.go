package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/mailsense/store"
)

func (d *DB) UpsertChatSession(ctx context.Context, upsert *store.UpsertChatSession) (*store.ChatSession, error) {
	// Last write wins: a concurrent run's state is simply overwritten.
	query := `
		INSERT INTO chat_session (user_id, session_id, last_query, last_intent, referenced_email_ids, state)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, session_id) DO UPDATE SET
			last_query = excluded.last_query,
			last_intent = excluded.last_intent,
			referenced_email_ids = excluded.referenced_email_ids,
			state = excluded.state,
			updated_ts = strftime('%s', 'now')
		RETURNING id, user_id, session_id, last_query, last_intent, referenced_email_ids, state, created_ts, updated_ts
	`
	session := &store.ChatSession{}
	if err := d.db.QueryRowContext(ctx, query,
		upsert.UserID, upsert.SessionID, upsert.LastQuery, upsert.LastIntent,
		orJSONArray(upsert.ReferencedEmailIDs), orJSONObject(upsert.State),
	).Scan(
		&session.ID, &session.UserID, &session.SessionID,
		&session.LastQuery, &session.LastIntent, &session.ReferencedEmailIDs,
		&session.State, &session.CreatedTs, &session.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to upsert chat session")
	}
	return session, nil
}

func (d *DB) ListChatSessions(ctx context.Context, find *store.FindChatSession) ([]*store.ChatSession, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.UserID; v != nil {
		where, args = append(where, "user_id = ?"), append(args, *v)
	}
	if v := find.SessionID; v != nil {
		where, args = append(where, "session_id = ?"), append(args, *v)
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, session_id, last_query, last_intent, referenced_email_ids, state, created_ts, updated_ts
		FROM chat_session
		WHERE %s
		ORDER BY updated_ts DESC
	`, strings.Join(where, " AND "))
	if v := find.Limit; v != nil {
		query += fmt.Sprintf(" LIMIT %d", *v)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list chat sessions")
	}
	defer rows.Close()

	list := []*store.ChatSession{}
	for rows.Next() {
		session := &store.ChatSession{}
		if err := rows.Scan(
			&session.ID, &session.UserID, &session.SessionID,
			&session.LastQuery, &session.LastIntent, &session.ReferencedEmailIDs,
			&session.State, &session.CreatedTs, &session.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan chat session")
		}
		list = append(list, session)
	}
	return list, rows.Err()
}

func (d *DB) DeleteChatSessions(ctx context.Context, delete *store.DeleteChatSessions) error {
	where, args := []string{}, []any{}
	if v := delete.UserID; v != nil {
		where, args = append(where, "user_id = ?"), append(args, *v)
	}
	if v := delete.SessionID; v != nil {
		where, args = append(where, "session_id = ?"), append(args, *v)
	}
	if v := delete.UpdatedBefore; v != nil {
		where, args = append(where, "updated_ts < ?"), append(args, *v)
	}
	if len(where) == 0 {
		return errors.New("missing delete condition")
	}
	query := fmt.Sprintf("DELETE FROM chat_session WHERE %s", strings.Join(where, " AND "))
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "failed to delete chat sessions")
	}
	return nil
}
