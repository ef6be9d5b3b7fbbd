package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/mailsense/plugin/filter"
	"github.com/hrygo/mailsense/store"
)

const emailColumns = "id, uid, user_id, thread_id, sender, sender_addr, sender_domain, recipients, subject, snippet, body, body_html, folder, labels, has_attachment, unread, size_bytes, received_ts, created_ts, updated_ts"

func (d *DB) CreateEmail(ctx context.Context, create *store.Email) (*store.Email, error) {
	query := `
		INSERT INTO email (uid, user_id, thread_id, sender, sender_addr, sender_domain, recipients, subject, snippet, body, body_html, folder, labels, has_attachment, unread, size_bytes, received_ts)
		VALUES (` + placeholders(17) + `)
		RETURNING id, created_ts, updated_ts
	`
	folder := create.Folder
	if folder == "" {
		folder = store.FolderInbox
	}
	if err := d.db.QueryRowContext(ctx, query,
		create.UID, create.UserID, create.ThreadID,
		create.Sender, create.SenderAddr, create.SenderDomain,
		orJSONArray(create.Recipients), create.Subject, create.Snippet,
		create.Body, create.BodyHTML, folder, orJSONArray(create.Labels),
		boolToInt(create.HasAttachment), boolToInt(create.Unread),
		create.SizeBytes, create.ReceivedTs,
	).Scan(&create.ID, &create.CreatedTs, &create.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to create email")
	}
	create.Folder = folder
	create.Recipients = orJSONArray(create.Recipients)
	create.Labels = orJSONArray(create.Labels)
	return create, nil
}

// emailWhere translates a find condition into WHERE clauses and args.
func emailWhere(find *store.FindEmail) ([]string, []any, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = ?"), append(args, *v)
	}
	if v := find.UserID; v != nil {
		where, args = append(where, "user_id = ?"), append(args, *v)
	}
	if v := find.ThreadID; v != nil {
		where, args = append(where, "thread_id = ?"), append(args, *v)
	}
	if v := find.SenderAddr; v != nil {
		where, args = append(where, "sender_addr = ?"), append(args, *v)
	}
	if v := find.SenderDomain; v != nil {
		where, args = append(where, "sender_domain = ?"), append(args, *v)
	}
	if v := find.Folder; v != nil {
		where, args = append(where, "folder = ?"), append(args, *v)
	}
	if v := find.Unread; v != nil {
		where, args = append(where, "unread = ?"), append(args, boolToInt(*v))
	}
	if v := find.HasAttachment; v != nil {
		where, args = append(where, "has_attachment = ?"), append(args, boolToInt(*v))
	}
	if v := find.Label; v != nil {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(labels) WHERE json_each.value = ?)")
		args = append(args, *v)
	}
	if v := find.ReceivedAfter; v != nil {
		where, args = append(where, "received_ts >= ?"), append(args, *v)
	}
	if v := find.ReceivedBefore; v != nil {
		where, args = append(where, "received_ts < ?"), append(args, *v)
	}
	for _, expression := range find.Filters {
		condition, conditionArgs, err := filter.ToSQL(expression, filter.DialectSQLite, 0)
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to compile filter")
		}
		where = append(where, "("+condition+")")
		args = append(args, conditionArgs...)
	}

	return where, args, nil
}

func (d *DB) ListEmails(ctx context.Context, find *store.FindEmail) ([]*store.Email, error) {
	where, args, err := emailWhere(find)
	if err != nil {
		return nil, err
	}

	order := "received_ts DESC, id DESC"
	if find.OrderByReceivedAsc {
		order = "received_ts ASC, id ASC"
	}
	query := fmt.Sprintf("SELECT %s FROM email WHERE %s ORDER BY %s", emailColumns, strings.Join(where, " AND "), order)
	if v := find.Limit; v != nil {
		query += fmt.Sprintf(" LIMIT %d", *v)
		if find.Offset != nil {
			query += fmt.Sprintf(" OFFSET %d", *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list emails")
	}
	defer rows.Close()

	list := []*store.Email{}
	for rows.Next() {
		email, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, email)
	}
	return list, rows.Err()
}

func (d *DB) CountEmails(ctx context.Context, find *store.FindEmail) (int64, error) {
	where, args, err := emailWhere(find)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM email WHERE %s", strings.Join(where, " AND "))
	var count int64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count emails")
	}
	return count, nil
}

func (d *DB) UpdateEmail(ctx context.Context, update *store.UpdateEmail) error {
	set, args := []string{}, []any{}
	if v := update.Folder; v != nil {
		set, args = append(set, "folder = ?"), append(args, *v)
	}
	if v := update.Labels; v != nil {
		set, args = append(set, "labels = ?"), append(args, orJSONArray(*v))
	}
	if v := update.Unread; v != nil {
		set, args = append(set, "unread = ?"), append(args, boolToInt(*v))
	}
	if len(set) == 0 {
		return errors.New("no fields to update")
	}
	if v := update.UpdatedTs; v != nil {
		set, args = append(set, "updated_ts = ?"), append(args, *v)
	} else {
		set = append(set, "updated_ts = strftime('%s', 'now')")
	}
	args = append(args, update.ID, update.UserID)

	query := fmt.Sprintf("UPDATE email SET %s WHERE id = ? AND user_id = ?", strings.Join(set, ", "))
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "failed to update email")
	}
	return nil
}

func (d *DB) UpdateEmails(ctx context.Context, update *store.UpdateEmails) (int64, error) {
	if len(update.IDs) == 0 {
		return 0, nil
	}
	set, args := []string{}, []any{}
	if v := update.Folder; v != nil {
		set, args = append(set, "folder = ?"), append(args, *v)
	}
	if v := update.Unread; v != nil {
		set, args = append(set, "unread = ?"), append(args, boolToInt(*v))
	}
	if len(set) == 0 {
		return 0, errors.New("no fields to update")
	}
	set = append(set, "updated_ts = strftime('%s', 'now')")
	args = append(args, update.UserID)
	for _, id := range update.IDs {
		args = append(args, id)
	}

	query := fmt.Sprintf("UPDATE email SET %s WHERE user_id = ? AND id IN (%s)",
		strings.Join(set, ", "), placeholders(len(update.IDs)))
	result, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to update emails")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get affected rows")
	}
	return affected, nil
}

func (d *DB) DeleteEmail(ctx context.Context, delete *store.DeleteEmail) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM email WHERE id = ? AND user_id = ?", delete.ID, delete.UserID); err != nil {
		return errors.Wrap(err, "failed to delete email")
	}
	return nil
}

// SearchEmails runs an FTS5 match scoped to the user. Ranks are negated
// bm25 values so that higher means more relevant, matching the Postgres
// driver's convention.
func (d *DB) SearchEmails(ctx context.Context, opts *store.SearchEmailsOptions) ([]*store.EmailSearchResult, error) {
	match := ftsQuery(opts.Query)
	if match == "" {
		return []*store.EmailSearchResult{}, nil
	}

	where := []string{"email_fts MATCH ?", "e.user_id = ?"}
	args := []any{match, opts.UserID}
	if v := opts.Folder; v != nil {
		where, args = append(where, "e.folder = ?"), append(args, *v)
	}
	if v := opts.ReceivedAfter; v != nil {
		where, args = append(where, "e.received_ts >= ?"), append(args, *v)
	}
	if v := opts.ReceivedBefore; v != nil {
		where, args = append(where, "e.received_ts < ?"), append(args, *v)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	columns := "e.id, e.uid, e.user_id, e.thread_id, e.sender, e.sender_addr, e.sender_domain, e.recipients, e.subject, e.snippet, e.body, e.body_html, e.folder, e.labels, e.has_attachment, e.unread, e.size_bytes, e.received_ts, e.created_ts, e.updated_ts"
	query := fmt.Sprintf(`
		SELECT %s, -bm25(email_fts) AS rank
		FROM email_fts
		JOIN email e ON e.id = email_fts.rowid
		WHERE %s
	`, columns, strings.Join(where, " AND "))

	// Filter conditions reference bare email columns, which would be
	// ambiguous inside the FTS join, so they wrap the ranked query instead.
	if len(opts.Filters) > 0 {
		outer := []string{"1 = 1"}
		for _, expression := range opts.Filters {
			condition, conditionArgs, err := filter.ToSQL(expression, filter.DialectSQLite, 0)
			if err != nil {
				return nil, errors.Wrap(err, "failed to compile filter")
			}
			outer = append(outer, "("+condition+")")
			args = append(args, conditionArgs...)
		}
		query = fmt.Sprintf("SELECT %s, rank FROM (%s) WHERE %s", emailColumns, query, strings.Join(outer, " AND "))
	}
	query += fmt.Sprintf(" ORDER BY rank DESC LIMIT %d", limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search emails")
	}
	defer rows.Close()

	results := []*store.EmailSearchResult{}
	for rows.Next() {
		email := &store.Email{}
		var hasAttachment, unread int
		var rank float64
		if err := rows.Scan(
			&email.ID, &email.UID, &email.UserID, &email.ThreadID,
			&email.Sender, &email.SenderAddr, &email.SenderDomain,
			&email.Recipients, &email.Subject, &email.Snippet,
			&email.Body, &email.BodyHTML, &email.Folder, &email.Labels,
			&hasAttachment, &unread, &email.SizeBytes,
			&email.ReceivedTs, &email.CreatedTs, &email.UpdatedTs,
			&rank,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan email search result")
		}
		email.HasAttachment = hasAttachment != 0
		email.Unread = unread != 0
		results = append(results, &store.EmailSearchResult{Email: email, Rank: rank})
	}
	return results, rows.Err()
}

func (d *DB) GetEmailStats(ctx context.Context, opts *store.EmailStatsOptions) (*store.EmailStats, error) {
	where, args := []string{"user_id = ?"}, []any{opts.UserID}
	if v := opts.ReceivedAfter; v != nil {
		where, args = append(where, "received_ts >= ?"), append(args, *v)
	}
	condition := strings.Join(where, " AND ")

	stats := &store.EmailStats{FolderCounts: map[string]int64{}}

	totalsQuery := fmt.Sprintf(
		"SELECT COUNT(*), COALESCE(SUM(unread), 0), COALESCE(SUM(has_attachment), 0) FROM email WHERE %s", condition)
	if err := d.db.QueryRowContext(ctx, totalsQuery, args...).Scan(
		&stats.TotalCount, &stats.UnreadCount, &stats.AttachmentCount); err != nil {
		return nil, errors.Wrap(err, "failed to compute email totals")
	}

	folderQuery := fmt.Sprintf("SELECT folder, COUNT(*) FROM email WHERE %s GROUP BY folder", condition)
	folderRows, err := d.db.QueryContext(ctx, folderQuery, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute folder counts")
	}
	defer folderRows.Close()
	for folderRows.Next() {
		var folder string
		var count int64
		if err := folderRows.Scan(&folder, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan folder count")
		}
		stats.FolderCounts[folder] = count
	}
	if err := folderRows.Err(); err != nil {
		return nil, err
	}

	topSenders := opts.TopSenders
	if topSenders <= 0 {
		topSenders = 10
	}
	senderQuery := fmt.Sprintf(`
		SELECT sender_domain, COUNT(*), COALESCE(SUM(unread), 0)
		FROM email
		WHERE %s AND sender_domain != ''
		GROUP BY sender_domain
		ORDER BY COUNT(*) DESC
		LIMIT %d
	`, condition, topSenders)
	senderRows, err := d.db.QueryContext(ctx, senderQuery, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute sender counts")
	}
	defer senderRows.Close()
	for senderRows.Next() {
		sc := &store.SenderCount{}
		if err := senderRows.Scan(&sc.SenderDomain, &sc.Count, &sc.UnreadCount); err != nil {
			return nil, errors.Wrap(err, "failed to scan sender count")
		}
		stats.TopSenders = append(stats.TopSenders, sc)
	}
	return stats, senderRows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmail(row rowScanner) (*store.Email, error) {
	email := &store.Email{}
	var hasAttachment, unread int
	if err := row.Scan(
		&email.ID, &email.UID, &email.UserID, &email.ThreadID,
		&email.Sender, &email.SenderAddr, &email.SenderDomain,
		&email.Recipients, &email.Subject, &email.Snippet,
		&email.Body, &email.BodyHTML, &email.Folder, &email.Labels,
		&hasAttachment, &unread, &email.SizeBytes,
		&email.ReceivedTs, &email.CreatedTs, &email.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan email")
	}
	email.HasAttachment = hasAttachment != 0
	email.Unread = unread != 0
	return email, nil
}
