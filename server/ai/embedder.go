package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hrygo/mailsense/store"
)

// Embedder generates and stores embeddings for knowledge base docs. Only
// the postgres driver serves vector search; on sqlite the stored vectors
// are simply never queried.
type Embedder struct {
	provider *Provider
	store    *store.Store
}

// NewEmbedder creates an embedder.
func NewEmbedder(provider *Provider, store *store.Store) *Embedder {
	return &Embedder{
		provider: provider,
		store:    store,
	}
}

// EmbedKBDoc generates and stores the embedding for one doc. Long docs
// are chunked and average-pooled into a single vector.
func (e *Embedder) EmbedKBDoc(ctx context.Context, doc *store.KBDoc) error {
	if doc == nil {
		return fmt.Errorf("doc is nil")
	}
	if doc.Content == "" {
		return fmt.Errorf("doc %q has no content", doc.Slug)
	}

	chunks := ChunkDocument(doc.Content)
	if len(chunks) == 0 {
		return fmt.Errorf("doc %q has no embeddable text", doc.Slug)
	}
	embeddings := make([][]float32, len(chunks))
	for i, chunk := range chunks {
		emb, err := e.provider.Embedding(ctx, chunk)
		if err != nil {
			return fmt.Errorf("embedding chunk %d of %q: %w", i, doc.Slug, err)
		}
		embeddings[i] = emb
	}

	avgEmbedding := averageEmbeddings(embeddings)
	if err := e.store.UpdateKBDocEmbedding(ctx, doc.ID, avgEmbedding); err != nil {
		return fmt.Errorf("storing embedding for %q: %w", doc.Slug, err)
	}

	slog.Debug("knowledge base doc embedded",
		slog.String("slug", doc.Slug),
		slog.Int("chunks", len(chunks)),
		slog.Int("embedding_dim", len(avgEmbedding)))
	return nil
}

// BackfillPending embeds up to limit docs that have no embedding yet.
// Returns how many were embedded; individual failures are logged and
// skipped so one bad doc cannot stall the backfill.
func (e *Embedder) BackfillPending(ctx context.Context, limit int) (int, error) {
	pending, err := e.store.FindKBDocsWithoutEmbedding(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("listing docs without embedding: %w", err)
	}

	embedded := 0
	for _, doc := range pending {
		if err := ctx.Err(); err != nil {
			return embedded, err
		}
		if err := e.EmbedKBDoc(ctx, doc); err != nil {
			slog.Warn("skipping doc in embedding backfill",
				slog.String("slug", doc.Slug), slog.String("error", err.Error()))
			continue
		}
		embedded++
	}
	return embedded, nil
}

// averageEmbeddings computes the element-wise average of multiple embeddings.
func averageEmbeddings(embeddings [][]float32) []float32 {
	if len(embeddings) == 0 {
		return nil
	}
	n := len(embeddings[0])
	if n == 0 {
		return nil
	}

	result := make([]float32, n)
	for _, emb := range embeddings {
		for i := 0; i < n; i++ {
			result[i] += emb[i]
		}
	}
	count := float32(len(embeddings))
	for i := 0; i < n; i++ {
		result[i] /= count
	}
	return result
}
