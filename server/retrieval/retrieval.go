// Package retrieval assembles the context slice handed to answer
// synthesis: relevant emails from the user's own mailbox plus instance
// knowledge base articles, each scored into [0,1] and trimmed to an
// excerpt. Retrieval is strictly fail-soft — a dead search backend costs
// context quality, never the run.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/hrygo/mailsense/internal/observability"
	"github.com/hrygo/mailsense/store"
)

// Source identifies where a context item came from.
type Source string

const (
	SourceEmail         Source = "email"
	SourceKnowledgeBase Source = "knowledge_base"
)

// MaxExcerptLen caps the excerpt carried per context item.
const MaxExcerptLen = 800

// RAGContext is one retrieved context item, scored and excerpted.
// Scores are comparable across sources: each backend's raw ranks are
// min-max normalized into [0,1] before items are merged.
type RAGContext struct {
	Source   Source            `json:"source"`
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Excerpt  string            `json:"excerpt"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// EmailSearcher is the mailbox search slice of the store.
type EmailSearcher interface {
	SearchEmails(ctx context.Context, opts *store.SearchEmailsOptions) ([]*store.EmailSearchResult, error)
}

// KBSearcher is the knowledge base search slice of the store.
type KBSearcher interface {
	SearchKBDocs(ctx context.Context, opts *store.SearchKBDocsOptions) ([]*store.KBDocSearchResult, error)
	VectorSearchKBDocs(ctx context.Context, embedding []float32, limit int) ([]*store.KBDocSearchResult, error)
}

// Embedder turns query text into a vector for semantic KB search.
// Optional: without one, KB retrieval is lexical only.
type Embedder interface {
	Embedding(ctx context.Context, text string) ([]float32, error)
}

// Options configures a retriever.
type Options struct {
	// WindowDays bounds email retrieval to recent mail. <= 0 uses 30.
	WindowDays int
	// MaxContexts caps the merged context slice. <= 0 uses 6.
	MaxContexts int
	// CandidateLimit is how many raw hits each backend is asked for
	// before normalization and merging. <= 0 uses 20.
	CandidateLimit int
}

func (o Options) withDefaults() Options {
	if o.WindowDays <= 0 {
		o.WindowDays = 30
	}
	if o.MaxContexts <= 0 {
		o.MaxContexts = 6
	}
	if o.CandidateLimit <= 0 {
		o.CandidateLimit = 20
	}
	return o
}

// Retriever retrieves and scores context for answer synthesis.
type Retriever struct {
	emails   EmailSearcher
	kb       KBSearcher
	embedder Embedder
	opts     Options
	degraded *observability.Degraded
}

// NewRetriever creates a retriever. embedder may be nil.
func NewRetriever(emails EmailSearcher, kb KBSearcher, embedder Embedder, opts Options) *Retriever {
	return &Retriever{
		emails:   emails,
		kb:       kb,
		embedder: embedder,
		opts:     opts.withDefaults(),
		degraded: observability.GlobalDegraded(),
	}
}

// Query is one retrieval request.
type Query struct {
	UserID string
	Text   string

	// WindowDays overrides the configured email window for this request.
	WindowDays int

	// Filters holds CEL filter expressions compiled to SQL by the driver,
	// applied to the email source only.
	Filters []string
}

// Retrieve returns the merged, score-ordered context slice for a query.
// Emails are scoped to the user and the time window; KB docs are
// instance-level and unscoped. Never errors: a failing source contributes
// nothing and the degradation is counted.
func (r *Retriever) Retrieve(ctx context.Context, q *Query) []*RAGContext {
	if r == nil || q == nil || q.Text == "" {
		return nil
	}

	merged := append(r.EmailContexts(ctx, q), r.KBContexts(ctx, q.Text)...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > r.opts.MaxContexts {
		merged = merged[:r.opts.MaxContexts]
	}
	return merged
}

// EmailContexts retrieves user-scoped, time-windowed email context.
func (r *Retriever) EmailContexts(ctx context.Context, q *Query) []*RAGContext {
	if r.emails == nil || q.UserID == "" {
		return nil
	}
	window := q.WindowDays
	if window <= 0 {
		window = r.opts.WindowDays
	}
	after := time.Now().AddDate(0, 0, -window).Unix()

	results, err := r.emails.SearchEmails(ctx, &store.SearchEmailsOptions{
		UserID:        q.UserID,
		Query:         q.Text,
		ReceivedAfter: &after,
		Limit:         r.opts.CandidateLimit,
		Filters:       q.Filters,
	})
	if err != nil {
		slog.Warn("email retrieval failed, continuing without mailbox context",
			slog.String("user_id", q.UserID), slog.String("error", err.Error()))
		r.degraded.RecordRetrievalUnavailable(err.Error())
		return nil
	}

	ranks := make([]float64, len(results))
	for i, res := range results {
		ranks[i] = res.Rank
	}
	scores := normalizeScores(ranks)

	out := make([]*RAGContext, 0, len(results))
	for i, res := range results {
		out = append(out, &RAGContext{
			Source:  SourceEmail,
			ID:      fmt.Sprintf("email:%d", res.Email.ID),
			Score:   scores[i],
			Excerpt: emailExcerpt(res.Email),
			Metadata: map[string]string{
				"sender":      res.Email.Sender,
				"subject":     res.Email.Subject,
				"folder":      res.Email.Folder,
				"received_ts": strconv.FormatInt(res.Email.ReceivedTs, 10),
			},
		})
	}
	return out
}

// KBContexts retrieves knowledge base context. Semantic search is used
// when an embedder is wired and the driver supports it; everything else
// falls back to lexical search.
func (r *Retriever) KBContexts(ctx context.Context, text string) []*RAGContext {
	if r.kb == nil {
		return nil
	}
	results, err := r.searchKB(ctx, text)
	if err != nil {
		slog.Warn("knowledge base retrieval failed, continuing without it",
			slog.String("error", err.Error()))
		r.degraded.RecordRetrievalUnavailable(err.Error())
		return nil
	}

	ranks := make([]float64, len(results))
	for i, res := range results {
		ranks[i] = res.Rank
	}
	scores := normalizeScores(ranks)

	out := make([]*RAGContext, 0, len(results))
	for i, res := range results {
		out = append(out, &RAGContext{
			Source:  SourceKnowledgeBase,
			ID:      fmt.Sprintf("kb:%s", res.Doc.Slug),
			Score:   scores[i],
			Excerpt: truncateExcerpt(res.Doc.Content),
			Metadata: map[string]string{
				"slug":  res.Doc.Slug,
				"title": res.Doc.Title,
			},
		})
	}
	return out
}

func (r *Retriever) searchKB(ctx context.Context, text string) ([]*store.KBDocSearchResult, error) {
	if r.embedder != nil {
		results, err := r.vectorSearchKB(ctx, text)
		if err == nil {
			return results, nil
		}
		if !errors.Is(err, store.ErrVectorSearchNotSupported) {
			slog.Warn("semantic KB search failed, falling back to lexical",
				slog.String("error", err.Error()))
		}
	}
	return r.kb.SearchKBDocs(ctx, &store.SearchKBDocsOptions{
		Query: text,
		Limit: r.opts.CandidateLimit,
	})
}

func (r *Retriever) vectorSearchKB(ctx context.Context, text string) ([]*store.KBDocSearchResult, error) {
	embedding, err := r.embedder.Embedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return r.kb.VectorSearchKBDocs(ctx, embedding, r.opts.CandidateLimit)
}

// normalizeScores min-max normalizes raw backend ranks into [0,1].
// Ranks are higher-better in whatever unit the driver uses; only their
// relative order survives normalization. A degenerate set — one item, or
// all ranks equal — maps to 0.5 so it neither dominates nor disappears
// when merged with the other source.
func normalizeScores(ranks []float64) []float64 {
	scores := make([]float64, len(ranks))
	if len(ranks) == 0 {
		return scores
	}

	min, max := ranks[0], ranks[0]
	for _, rank := range ranks[1:] {
		if rank < min {
			min = rank
		}
		if rank > max {
			max = rank
		}
	}
	if max == min {
		for i := range scores {
			scores[i] = 0.5
		}
		return scores
	}
	for i, rank := range ranks {
		scores[i] = (rank - min) / (max - min)
	}
	return scores
}
