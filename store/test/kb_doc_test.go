package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/mailsense/store"
)

func TestKBDocStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	doc, err := ts.UpsertKBDoc(ctx, &store.UpsertKBDoc{
		Slug:    "phishing-red-flags",
		Title:   "Phishing red flags",
		Content: "Look-alike domains, urgent payment requests, and mismatched reply-to addresses are common phishing signals.",
		Tags:    `["security"]`,
	})
	require.NoError(t, err)
	require.NotZero(t, doc.ID)
	require.Equal(t, "phishing-red-flags", doc.Slug)

	// Upserting the same slug replaces content and keeps the row identity.
	updated, err := ts.UpsertKBDoc(ctx, &store.UpsertKBDoc{
		Slug:    "phishing-red-flags",
		Title:   "Phishing red flags",
		Content: "Check the sender domain character by character before trusting a payment request.",
		Tags:    `["security","email"]`,
	})
	require.NoError(t, err)
	require.Equal(t, doc.ID, updated.ID)
	require.Contains(t, updated.Content, "character by character")

	_, err = ts.UpsertKBDoc(ctx, &store.UpsertKBDoc{
		Slug:    "promotions-cleanup-playbook",
		Title:   "Promotions cleanup playbook",
		Content: "Stale promotional email older than thirty days is safe to archive in bulk.",
		Tags:    `["cleanup"]`,
	})
	require.NoError(t, err)

	all, err := ts.ListKBDocs(ctx, &store.FindKBDoc{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	tag := "cleanup"
	tagged, err := ts.ListKBDocs(ctx, &store.FindKBDoc{Tag: &tag})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	require.Equal(t, "promotions-cleanup-playbook", tagged[0].Slug)

	slug := "phishing-red-flags"
	got, err := ts.GetKBDoc(ctx, &store.FindKBDoc{Slug: &slug})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, doc.ID, got.ID)

	results, err := ts.SearchKBDocs(ctx, &store.SearchKBDocsOptions{Query: "phishing domain"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "phishing-red-flags", results[0].Doc.Slug)
	require.NotZero(t, results[0].Rank)

	empty, err := ts.SearchKBDocs(ctx, &store.SearchKBDocsOptions{Query: ""})
	require.NoError(t, err)
	require.Empty(t, empty)

	require.NoError(t, ts.DeleteKBDoc(ctx, &store.DeleteKBDoc{Slug: &slug}))
	gone, err := ts.GetKBDoc(ctx, &store.FindKBDoc{Slug: &slug})
	require.NoError(t, err)
	require.Nil(t, gone)

	require.Error(t, ts.DeleteKBDoc(ctx, &store.DeleteKBDoc{}))
}

func TestKBDocVectorSearchUnsupportedOnSQLite(t *testing.T) {
	if getDriverFromEnv() != "sqlite" {
		t.Skip("vector search support depends on the driver; this test covers the SQLite stubs")
	}

	t.Parallel()
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	doc, err := ts.UpsertKBDoc(ctx, &store.UpsertKBDoc{
		Slug:    "attachment-safety",
		Title:   "Attachment safety",
		Content: "Never open unexpected executable attachments.",
	})
	require.NoError(t, err)

	embedding := make([]float32, 1024)
	err = ts.UpdateKBDocEmbedding(ctx, doc.ID, embedding)
	require.ErrorIs(t, err, store.ErrVectorSearchNotSupported)

	_, err = ts.VectorSearchKBDocs(ctx, embedding, 5)
	require.ErrorIs(t, err, store.ErrVectorSearchNotSupported)

	// The backfill worker sees nothing to do on SQLite.
	pending, err := ts.FindKBDocsWithoutEmbedding(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}
