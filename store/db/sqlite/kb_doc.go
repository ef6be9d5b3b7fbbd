package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/mailsense/store"
)

func (d *DB) UpsertKBDoc(ctx context.Context, upsert *store.UpsertKBDoc) (*store.KBDoc, error) {
	query := `
		INSERT INTO kb_doc (slug, title, content, tags)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (slug) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			tags = excluded.tags,
			updated_ts = strftime('%s', 'now')
		RETURNING id, slug, title, content, tags, created_ts, updated_ts
	`
	doc := &store.KBDoc{}
	if err := d.db.QueryRowContext(ctx, query,
		upsert.Slug, upsert.Title, upsert.Content, orJSONArray(upsert.Tags),
	).Scan(&doc.ID, &doc.Slug, &doc.Title, &doc.Content, &doc.Tags, &doc.CreatedTs, &doc.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert kb doc")
	}
	return doc, nil
}

func (d *DB) ListKBDocs(ctx context.Context, find *store.FindKBDoc) ([]*store.KBDoc, error) {
	where, args := []string{"1 = 1"}, []any{}
	if v := find.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := find.Slug; v != nil {
		where, args = append(where, "slug = ?"), append(args, *v)
	}
	if v := find.Tag; v != nil {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(tags) WHERE json_each.value = ?)")
		args = append(args, *v)
	}

	query := fmt.Sprintf(`
		SELECT id, slug, title, content, tags, created_ts, updated_ts
		FROM kb_doc
		WHERE %s
		ORDER BY updated_ts DESC
	`, strings.Join(where, " AND "))
	if v := find.Limit; v != nil {
		query += fmt.Sprintf(" LIMIT %d", *v)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list kb docs")
	}
	defer rows.Close()

	list := []*store.KBDoc{}
	for rows.Next() {
		doc := &store.KBDoc{}
		if err := rows.Scan(&doc.ID, &doc.Slug, &doc.Title, &doc.Content, &doc.Tags, &doc.CreatedTs, &doc.UpdatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan kb doc")
		}
		list = append(list, doc)
	}
	return list, rows.Err()
}

func (d *DB) DeleteKBDoc(ctx context.Context, delete *store.DeleteKBDoc) error {
	where, args := []string{}, []any{}
	if v := delete.ID; v != nil {
		where, args = append(where, "id = ?"), append(args, *v)
	}
	if v := delete.Slug; v != nil {
		where, args = append(where, "slug = ?"), append(args, *v)
	}
	if len(where) == 0 {
		return errors.New("missing delete condition")
	}
	query := fmt.Sprintf("DELETE FROM kb_doc WHERE %s", strings.Join(where, " AND "))
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "failed to delete kb doc")
	}
	return nil
}

// SearchKBDocs runs an FTS5 match over the knowledge base. Ranks follow the
// higher-is-better convention.
func (d *DB) SearchKBDocs(ctx context.Context, opts *store.SearchKBDocsOptions) ([]*store.KBDocSearchResult, error) {
	match := ftsQuery(opts.Query)
	if match == "" {
		return []*store.KBDocSearchResult{}, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(`
		SELECT k.id, k.slug, k.title, k.content, k.tags, k.created_ts, k.updated_ts, -bm25(kb_doc_fts) AS rank
		FROM kb_doc_fts
		JOIN kb_doc k ON k.id = kb_doc_fts.rowid
		WHERE kb_doc_fts MATCH ?
		ORDER BY rank DESC
		LIMIT %d
	`, limit)

	rows, err := d.db.QueryContext(ctx, query, match)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search kb docs")
	}
	defer rows.Close()

	results := []*store.KBDocSearchResult{}
	for rows.Next() {
		doc := &store.KBDoc{}
		var rank float64
		if err := rows.Scan(&doc.ID, &doc.Slug, &doc.Title, &doc.Content, &doc.Tags, &doc.CreatedTs, &doc.UpdatedTs, &rank); err != nil {
			return nil, errors.Wrap(err, "failed to scan kb doc search result")
		}
		results = append(results, &store.KBDocSearchResult{Doc: doc, Rank: rank})
	}
	return results, rows.Err()
}

// Vector search requires pgvector; the SQLite driver serves lexical search
// only and the backfill worker has nothing to do here.

func (d *DB) UpdateKBDocEmbedding(_ context.Context, _ int32, _ []float32) error {
	return store.ErrVectorSearchNotSupported
}

func (d *DB) VectorSearchKBDocs(_ context.Context, _ []float32, _ int) ([]*store.KBDocSearchResult, error) {
	return nil, store.ErrVectorSearchNotSupported
}

func (d *DB) FindKBDocsWithoutEmbedding(_ context.Context, _ int) ([]*store.KBDoc, error) {
	return []*store.KBDoc{}, nil
}
