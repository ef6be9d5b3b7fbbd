package store

import "errors"

// ErrVectorSearchNotSupported is returned by drivers that cannot serve
// vector similarity queries. Callers fall back to lexical search.
var ErrVectorSearchNotSupported = errors.New("vector search is not supported by this driver")

// KBDoc is a knowledge base article available to every user. KB content is
// instance-level reference material (phishing guides, provider quirks,
// cleanup playbooks) and is deliberately not scoped to a user.
type KBDoc struct {
	ID        int32
	Slug      string // stable handle, unique
	Title     string
	Content   string    // markdown
	Tags      string    // JSON array of strings
	Embedding []float32 // optional, populated by the embedding backfill
	CreatedTs int64
	UpdatedTs int64
}

// FindKBDoc is the find condition for knowledge base docs.
type FindKBDoc struct {
	ID    *int32
	Slug  *string
	Tag   *string
	Limit *int
}

// UpsertKBDoc inserts or replaces a doc keyed by slug.
type UpsertKBDoc struct {
	Slug    string
	Title   string
	Content string
	Tags    string // JSON array of strings
}

// DeleteKBDoc is the delete condition for knowledge base docs.
type DeleteKBDoc struct {
	ID   *int32
	Slug *string
}

// KBDocSearchResult pairs a doc with its raw relevance rank.
type KBDocSearchResult struct {
	Doc  *KBDoc
	Rank float64
}

// SearchKBDocsOptions represents the options for knowledge base search.
type SearchKBDocsOptions struct {
	Query string
	Limit int
}
