package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/mailsense/store"
)

func (d *DB) UpsertKBDoc(ctx context.Context, upsert *store.UpsertKBDoc) (*store.KBDoc, error) {
	// Content changes invalidate the stored embedding; the backfill worker
	// re-embeds docs whose embedding is NULL.
	query := `
		INSERT INTO kb_doc (slug, title, content, tags)
		VALUES (` + placeholders(4) + `)
		ON CONFLICT (slug) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			tags = EXCLUDED.tags,
			embedding = NULL,
			updated_ts = EXTRACT(EPOCH FROM NOW())
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
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Slug; v != nil {
		where, args = append(where, "slug = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Tag; v != nil {
		where = append(where, "EXISTS (SELECT 1 FROM jsonb_array_elements_text(tags::jsonb) AS t WHERE t = "+placeholder(len(args)+1)+")")
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
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := delete.Slug; v != nil {
		where, args = append(where, "slug = "+placeholder(len(args)+1)), append(args, *v)
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

// SearchKBDocs runs a tsvector match over the knowledge base.
func (d *DB) SearchKBDocs(ctx context.Context, opts *store.SearchKBDocsOptions) ([]*store.KBDocSearchResult, error) {
	if strings.TrimSpace(opts.Query) == "" {
		return []*store.KBDocSearchResult{}, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(`
		SELECT id, slug, title, content, tags, created_ts, updated_ts,
			ts_rank(search_vector, plainto_tsquery('english', $1)) AS rank
		FROM kb_doc
		WHERE search_vector @@ plainto_tsquery('english', $1)
		ORDER BY rank DESC
		LIMIT %d
	`, limit)

	rows, err := d.db.QueryContext(ctx, query, opts.Query)
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

func (d *DB) UpdateKBDocEmbedding(ctx context.Context, id int32, embedding []float32) error {
	query := "UPDATE kb_doc SET embedding = $1, updated_ts = EXTRACT(EPOCH FROM NOW()) WHERE id = $2"
	result, err := d.db.ExecContext(ctx, query, pgvector.NewVector(embedding), id)
	if err != nil {
		return errors.Wrap(err, "failed to update kb doc embedding")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.Errorf("kb doc %d not found", id)
	}
	return nil
}

// VectorSearchKBDocs performs cosine similarity search using pgvector.
// The <=> operator computes cosine distance, so 1 - distance is the
// similarity used as the rank.
func (d *DB) VectorSearchKBDocs(ctx context.Context, embedding []float32, limit int) ([]*store.KBDocSearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(`
		SELECT id, slug, title, content, tags, created_ts, updated_ts,
			1 - (embedding <=> $1) AS rank
		FROM kb_doc
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT %d
	`, limit)

	rows, err := d.db.QueryContext(ctx, query, pgvector.NewVector(embedding))
	if err != nil {
		return nil, errors.Wrap(err, "failed to vector search kb docs")
	}
	defer rows.Close()

	results := []*store.KBDocSearchResult{}
	for rows.Next() {
		doc := &store.KBDoc{}
		var rank float64
		if err := rows.Scan(&doc.ID, &doc.Slug, &doc.Title, &doc.Content, &doc.Tags, &doc.CreatedTs, &doc.UpdatedTs, &rank); err != nil {
			return nil, errors.Wrap(err, "failed to scan vector search result")
		}
		results = append(results, &store.KBDocSearchResult{Doc: doc, Rank: rank})
	}
	return results, rows.Err()
}

// FindKBDocsWithoutEmbedding lists docs the embedding backfill has not
// processed yet.
func (d *DB) FindKBDocsWithoutEmbedding(ctx context.Context, limit int) ([]*store.KBDoc, error) {
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT id, slug, title, content, tags, created_ts, updated_ts
		FROM kb_doc
		WHERE embedding IS NULL AND LENGTH(content) > 0
		ORDER BY updated_ts DESC
		LIMIT %d
	`, limit)

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find kb docs without embedding")
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
