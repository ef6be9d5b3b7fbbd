package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/mailsense/store"
)

func TestLearnedExceptionStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	created, err := ts.UpsertLearnedException(ctx, &store.UpsertLearnedException{
		UserID:  "alice",
		Kind:    store.ExceptionSenderKeep,
		Pattern: "newsletter@favoriteblog.com",
		Note:    "user kept this sender during cleanup",
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Equal(t, int64(1), created.MergeCount)

	// Re-learning the same exception merges instead of duplicating. An
	// empty note keeps the stored one.
	merged, err := ts.UpsertLearnedException(ctx, &store.UpsertLearnedException{
		UserID:  "alice",
		Kind:    store.ExceptionSenderKeep,
		Pattern: "newsletter@favoriteblog.com",
	})
	require.NoError(t, err)
	require.Equal(t, created.ID, merged.ID)
	require.Equal(t, int64(2), merged.MergeCount)
	require.Equal(t, "user kept this sender during cleanup", merged.Note)

	// A non-empty note replaces the stored one on merge.
	merged, err = ts.UpsertLearnedException(ctx, &store.UpsertLearnedException{
		UserID:  "alice",
		Kind:    store.ExceptionSenderKeep,
		Pattern: "newsletter@favoriteblog.com",
		Note:    "kept again, explicitly",
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), merged.MergeCount)
	require.Equal(t, "kept again, explicitly", merged.Note)

	userID := "alice"
	list, err := ts.ListLearnedExceptions(ctx, &store.FindLearnedException{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, list, 1)

	// Second whole-user read comes from the tiered cache and must agree.
	cached, err := ts.ListLearnedExceptions(ctx, &store.FindLearnedException{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, cached, 1)
	require.Equal(t, list[0].ID, cached[0].ID)
	require.Equal(t, list[0].MergeCount, cached[0].MergeCount)

	// A new exception invalidates the cached listing.
	_, err = ts.UpsertLearnedException(ctx, &store.UpsertLearnedException{
		UserID:  "alice",
		Kind:    store.ExceptionDomainTrust,
		Pattern: "teamco.dev",
	})
	require.NoError(t, err)
	list, err = ts.ListLearnedExceptions(ctx, &store.FindLearnedException{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, list, 2)

	kind := store.ExceptionDomainTrust
	trusted, err := ts.ListLearnedExceptions(ctx, &store.FindLearnedException{UserID: &userID, Kind: &kind})
	require.NoError(t, err)
	require.Len(t, trusted, 1)
	require.Equal(t, "teamco.dev", trusted[0].Pattern)

	// Exceptions are per user.
	otherUser := "bob"
	other, err := ts.ListLearnedExceptions(ctx, &store.FindLearnedException{UserID: &otherUser})
	require.NoError(t, err)
	require.Empty(t, other)

	require.Error(t, ts.DeleteLearnedException(ctx, &store.DeleteLearnedException{}))

	require.NoError(t, ts.DeleteLearnedException(ctx, &store.DeleteLearnedException{ID: &created.ID, UserID: &userID}))
	list, err = ts.ListLearnedExceptions(ctx, &store.FindLearnedException{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, store.ExceptionDomainTrust, list[0].Kind)
}
