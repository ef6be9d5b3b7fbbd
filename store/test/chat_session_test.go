package test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/mailsense/store"
)

func TestChatSessionStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	created, err := ts.UpsertChatSession(ctx, &store.UpsertChatSession{
		UserID:             "alice",
		SessionID:          "s-1",
		LastQuery:          "clean up my promotions",
		LastIntent:         "clean",
		ReferencedEmailIDs: "[3,4,5]",
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Equal(t, "clean", created.LastIntent)
	require.Equal(t, "{}", created.State)

	// Upserting the same key overwrites in place: last write wins.
	overwritten, err := ts.UpsertChatSession(ctx, &store.UpsertChatSession{
		UserID:             "alice",
		SessionID:          "s-1",
		LastQuery:          "what about the ones from last week",
		LastIntent:         "clean",
		ReferencedEmailIDs: "[9]",
		State:              `{"window_days":7}`,
	})
	require.NoError(t, err)
	require.Equal(t, created.ID, overwritten.ID)
	require.Equal(t, "[9]", overwritten.ReferencedEmailIDs)
	require.Equal(t, `{"window_days":7}`, overwritten.State)

	userID, sessionID := "alice", "s-1"
	list, err := ts.ListChatSessions(ctx, &store.FindChatSession{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, list, 1)

	got, err := ts.GetChatSession(ctx, &store.FindChatSession{UserID: &userID, SessionID: &sessionID})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "what about the ones from last week", got.LastQuery)

	otherSession := "s-2"
	missing, err := ts.GetChatSession(ctx, &store.FindChatSession{UserID: &userID, SessionID: &otherSession})
	require.NoError(t, err)
	require.Nil(t, missing)

	require.Error(t, ts.DeleteChatSessions(ctx, &store.DeleteChatSessions{}))

	require.NoError(t, ts.DeleteChatSessions(ctx, &store.DeleteChatSessions{UserID: &userID, SessionID: &sessionID}))
	gone, err := ts.GetChatSession(ctx, &store.FindChatSession{UserID: &userID, SessionID: &sessionID})
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestChatSessionExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	_, err := ts.UpsertChatSession(ctx, &store.UpsertChatSession{
		UserID:    "alice",
		SessionID: "stale",
		LastQuery: "old question",
	})
	require.NoError(t, err)

	// A cutoff in the future sweeps everything written so far.
	cutoff := time.Now().Unix() + 60
	require.NoError(t, ts.DeleteChatSessions(ctx, &store.DeleteChatSessions{UpdatedBefore: &cutoff}))

	userID := "alice"
	list, err := ts.ListChatSessions(ctx, &store.FindChatSession{UserID: &userID})
	require.NoError(t, err)
	require.Empty(t, list)
}
