package test

import (
	"context"
	"testing"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mailsense/store"
)

func TestStagedActionStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	actionID := shortuuid.New()
	created, err := ts.CreateStagedAction(ctx, &store.StagedAction{
		ID:               actionID,
		RunID:            "run-42",
		UserID:           "alice",
		Kind:             store.ActionMove,
		Description:      "Move 3 stale promotions to trash",
		Payload:          `{"to_folder":"trash"}`,
		TargetIDs:        "[11,12,13]",
		TargetCount:      3,
		RequiresApproval: true,
	})
	require.NoError(t, err)
	require.Equal(t, store.ActionStatusStaged, created.Status)
	require.NotZero(t, created.CreatedTs)

	runID := "run-42"
	byRun, err := ts.ListStagedActions(ctx, &store.FindStagedAction{RunID: &runID})
	require.NoError(t, err)
	require.Len(t, byRun, 1)
	require.Equal(t, actionID, byRun[0].ID)
	require.True(t, byRun[0].RequiresApproval)

	userID := "alice"
	staged := store.ActionStatusStaged
	pending, err := ts.ListStagedActions(ctx, &store.FindStagedAction{UserID: &userID, Status: &staged})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// Execution flips the status and records who approved and what happened.
	executed := store.ActionStatusExecuted
	approvedBy := "alice"
	result := `{"succeeded":3,"failed":0,"errors":[]}`
	updated, err := ts.UpdateStagedAction(ctx, &store.UpdateStagedAction{
		ID:         actionID,
		UserID:     userID,
		Status:     &executed,
		ApprovedBy: &approvedBy,
		Result:     &result,
	})
	require.NoError(t, err)
	require.Equal(t, store.ActionStatusExecuted, updated.Status)
	require.Equal(t, "alice", updated.ApprovedBy)
	require.Equal(t, result, updated.Result)

	got, err := ts.GetStagedAction(ctx, &store.FindStagedAction{ID: &actionID})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, store.ActionStatusExecuted, got.Status)

	// Updating an action owned by someone else matches no row.
	_, err = ts.UpdateStagedAction(ctx, &store.UpdateStagedAction{
		ID:     actionID,
		UserID: "mallory",
		Status: &staged,
	})
	require.Error(t, err)

	_, err = ts.UpdateStagedAction(ctx, &store.UpdateStagedAction{ID: actionID, UserID: userID})
	require.Error(t, err)

	require.Error(t, ts.DeleteStagedActions(ctx, &store.DeleteStagedActions{}))

	require.NoError(t, ts.DeleteStagedActions(ctx, &store.DeleteStagedActions{ID: &actionID, UserID: &userID}))
	gone, err := ts.GetStagedAction(ctx, &store.FindStagedAction{ID: &actionID})
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestStagedActionRetentionSweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	_, err := ts.CreateStagedAction(ctx, &store.StagedAction{
		ID:          shortuuid.New(),
		UserID:      "alice",
		Kind:        store.ActionMarkRead,
		Description: "Mark 2 newsletters as read",
		TargetIDs:   "[1,2]",
		TargetCount: 2,
	})
	require.NoError(t, err)

	cutoff := time.Now().Unix() + 60
	require.NoError(t, ts.DeleteStagedActions(ctx, &store.DeleteStagedActions{CreatedBefore: &cutoff}))

	userID := "alice"
	list, err := ts.ListStagedActions(ctx, &store.FindStagedAction{UserID: &userID})
	require.NoError(t, err)
	require.Empty(t, list)
}
