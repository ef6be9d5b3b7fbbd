package postgres

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
		create.HasAttachment, create.Unread,
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
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UID; v != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UserID; v != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.ThreadID; v != nil {
		where, args = append(where, "thread_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.SenderAddr; v != nil {
		where, args = append(where, "sender_addr = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.SenderDomain; v != nil {
		where, args = append(where, "sender_domain = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Folder; v != nil {
		where, args = append(where, "folder = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Unread; v != nil {
		where, args = append(where, "unread = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.HasAttachment; v != nil {
		where, args = append(where, "has_attachment = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Label; v != nil {
		where = append(where, "EXISTS (SELECT 1 FROM jsonb_array_elements_text(labels::jsonb) AS le WHERE le = "+placeholder(len(args)+1)+")")
		args = append(args, *v)
	}
	if v := find.ReceivedAfter; v != nil {
		where, args = append(where, "received_ts >= "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.ReceivedBefore; v != nil {
		where, args = append(where, "received_ts < "+placeholder(len(args)+1)), append(args, *v)
	}
	for _, expression := range find.Filters {
		condition, conditionArgs, err := filter.ToSQL(expression, filter.DialectPostgres, len(args))
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
		set, args = append(set, "folder = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Labels; v != nil {
		set, args = append(set, "labels = "+placeholder(len(args)+1)), append(args, orJSONArray(*v))
	}
	if v := update.Unread; v != nil {
		set, args = append(set, "unread = "+placeholder(len(args)+1)), append(args, *v)
	}
	if len(set) == 0 {
		return errors.New("no fields to update")
	}
	if v := update.UpdatedTs; v != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *v)
	} else {
		set = append(set, "updated_ts = EXTRACT(EPOCH FROM NOW())")
	}
	args = append(args, update.ID, update.UserID)

	query := fmt.Sprintf("UPDATE email SET %s WHERE id = %s AND user_id = %s",
		strings.Join(set, ", "), placeholder(len(args)-1), placeholder(len(args)))
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
		set, args = append(set, "folder = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Unread; v != nil {
		set, args = append(set, "unread = "+placeholder(len(args)+1)), append(args, *v)
	}
	if len(set) == 0 {
		return 0, errors.New("no fields to update")
	}
	set = append(set, "updated_ts = EXTRACT(EPOCH FROM NOW())")
	args = append(args, update.UserID)
	userPlaceholder := placeholder(len(args))

	in := []string{}
	for _, id := range update.IDs {
		args = append(args, id)
		in = append(in, placeholder(len(args)))
	}

	query := fmt.Sprintf("UPDATE email SET %s WHERE user_id = %s AND id IN (%s)",
		strings.Join(set, ", "), userPlaceholder, strings.Join(in, ", "))
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
	if _, err := d.db.ExecContext(ctx, "DELETE FROM email WHERE id = $1 AND user_id = $2", delete.ID, delete.UserID); err != nil {
		return errors.Wrap(err, "failed to delete email")
	}
	return nil
}

// SearchEmails runs a tsvector match scoped to the user. ts_rank is already
// higher-is-better, matching the SQLite driver's convention.
func (d *DB) SearchEmails(ctx context.Context, opts *store.SearchEmailsOptions) ([]*store.EmailSearchResult, error) {
	if strings.TrimSpace(opts.Query) == "" {
		return []*store.EmailSearchResult{}, nil
	}

	where := []string{
		"e.search_vector @@ plainto_tsquery('english', $1)",
		"e.user_id = $2",
	}
	args := []any{opts.Query, opts.UserID}
	if v := opts.Folder; v != nil {
		where, args = append(where, "e.folder = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := opts.ReceivedAfter; v != nil {
		where, args = append(where, "e.received_ts >= "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := opts.ReceivedBefore; v != nil {
		where, args = append(where, "e.received_ts < "+placeholder(len(args)+1)), append(args, *v)
	}
	for _, expression := range opts.Filters {
		condition, conditionArgs, err := filter.ToSQL(expression, filter.DialectPostgres, len(args))
		if err != nil {
			return nil, errors.Wrap(err, "failed to compile filter")
		}
		where = append(where, "("+condition+")")
		args = append(args, conditionArgs...)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	columns := "e.id, e.uid, e.user_id, e.thread_id, e.sender, e.sender_addr, e.sender_domain, e.recipients, e.subject, e.snippet, e.body, e.body_html, e.folder, e.labels, e.has_attachment, e.unread, e.size_bytes, e.received_ts, e.created_ts, e.updated_ts"
	query := fmt.Sprintf(`
		SELECT %s, ts_rank(e.search_vector, plainto_tsquery('english', $1)) AS rank
		FROM email e
		WHERE %s
		ORDER BY rank DESC, e.received_ts DESC
		LIMIT %d
	`, columns, strings.Join(where, " AND "), limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search emails")
	}
	defer rows.Close()

	results := []*store.EmailSearchResult{}
	for rows.Next() {
		email := &store.Email{}
		var rank float64
		if err := rows.Scan(
			&email.ID, &email.UID, &email.UserID, &email.ThreadID,
			&email.Sender, &email.SenderAddr, &email.SenderDomain,
			&email.Recipients, &email.Subject, &email.Snippet,
			&email.Body, &email.BodyHTML, &email.Folder, &email.Labels,
			&email.HasAttachment, &email.Unread, &email.SizeBytes,
			&email.ReceivedTs, &email.CreatedTs, &email.UpdatedTs,
			&rank,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan email search result")
		}
		results = append(results, &store.EmailSearchResult{Email: email, Rank: rank})
	}
	return results, rows.Err()
}

func (d *DB) GetEmailStats(ctx context.Context, opts *store.EmailStatsOptions) (*store.EmailStats, error) {
	where, args := []string{"user_id = $1"}, []any{opts.UserID}
	if v := opts.ReceivedAfter; v != nil {
		where, args = append(where, "received_ts >= "+placeholder(len(args)+1)), append(args, *v)
	}
	condition := strings.Join(where, " AND ")

	stats := &store.EmailStats{FolderCounts: map[string]int64{}}

	totalsQuery := fmt.Sprintf(
		"SELECT COUNT(*), COUNT(*) FILTER (WHERE unread), COUNT(*) FILTER (WHERE has_attachment) FROM email WHERE %s", condition)
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
		SELECT sender_domain, COUNT(*), COUNT(*) FILTER (WHERE unread)
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
	if err := row.Scan(
		&email.ID, &email.UID, &email.UserID, &email.ThreadID,
		&email.Sender, &email.SenderAddr, &email.SenderDomain,
		&email.Recipients, &email.Subject, &email.Snippet,
		&email.Body, &email.BodyHTML, &email.Folder, &email.Labels,
		&email.HasAttachment, &email.Unread, &email.SizeBytes,
		&email.ReceivedTs, &email.CreatedTs, &email.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan email")
	}
	return email, nil
}
