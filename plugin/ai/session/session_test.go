package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mailsense/plugin/ai/cache"
	"github.com/hrygo/mailsense/store"
)

// fakeSessionStore keeps one row per user, like the real table.
type fakeSessionStore struct {
	rows    map[string]*store.ChatSession
	failing bool
	upserts int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{rows: make(map[string]*store.ChatSession)}
}

func (f *fakeSessionStore) UpsertChatSession(_ context.Context, upsert *store.UpsertChatSession) (*store.ChatSession, error) {
	if f.failing {
		return nil, errors.New("store down")
	}
	f.upserts++
	row := &store.ChatSession{
		UserID:             upsert.UserID,
		SessionID:          upsert.SessionID,
		LastQuery:          upsert.LastQuery,
		LastIntent:         upsert.LastIntent,
		ReferencedEmailIDs: upsert.ReferencedEmailIDs,
		State:              upsert.State,
		UpdatedTs:          time.Now().Unix(),
	}
	f.rows[upsert.UserID] = row
	return row, nil
}

func (f *fakeSessionStore) GetChatSession(_ context.Context, find *store.FindChatSession) (*store.ChatSession, error) {
	if f.failing {
		return nil, errors.New("store down")
	}
	if find.UserID == nil {
		return nil, nil
	}
	return f.rows[*find.UserID], nil
}

func (f *fakeSessionStore) DeleteChatSessions(_ context.Context, del *store.DeleteChatSessions) error {
	if f.failing {
		return errors.New("store down")
	}
	for userID, row := range f.rows {
		if del.UpdatedBefore != nil && row.UpdatedTs < *del.UpdatedBefore {
			delete(f.rows, userID)
		}
	}
	return nil
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewService(newFakeSessionStore(), cache.NewMockCacheService(), time.Hour)

	s.Save(ctx, &Context{
		UserID:             "u1",
		SessionID:          "sess-1",
		LastQuery:          "clean old promos",
		LastIntent:         "clean",
		LastTimeWindowDays: 30,
		ReferencedEmailIDs: []int32{4, 9},
		PinnedThreadIDs:    []string{"thr-2"},
	})

	got := s.Load(ctx, "u1")
	require.NotNil(t, got)
	assert.Equal(t, "clean", got.LastIntent)
	assert.Equal(t, 30, got.LastTimeWindowDays)
	assert.Equal(t, []int32{4, 9}, got.ReferencedEmailIDs)
	assert.Equal(t, []string{"thr-2"}, got.PinnedThreadIDs)
}

func TestLoadFallsBackToStoreOnCacheMiss(t *testing.T) {
	ctx := context.Background()
	fs := newFakeSessionStore()
	mockCache := cache.NewMockCacheService()
	s := NewService(fs, mockCache, time.Hour)

	s.Save(ctx, &Context{UserID: "u1", LastIntent: "find", LastQuery: "flight confirmation"})
	// Simulate a cold cache.
	require.NoError(t, mockCache.Delete(ctx, cache.KindChatSession, "u1"))

	got := s.Load(ctx, "u1")
	require.NotNil(t, got)
	assert.Equal(t, "find", got.LastIntent)

	// The fallback read warms the cache back up.
	var warmed Context
	assert.True(t, mockCache.GetJSON(ctx, cache.KindChatSession, "u1", &warmed))
}

func TestLastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := NewService(newFakeSessionStore(), cache.NewMockCacheService(), time.Hour)

	s.Save(ctx, &Context{UserID: "u1", LastIntent: "find"})
	s.Save(ctx, &Context{UserID: "u1", LastIntent: "clean"})

	got := s.Load(ctx, "u1")
	require.NotNil(t, got)
	assert.Equal(t, "clean", got.LastIntent)
}

func TestLoadToleratesFailingBackends(t *testing.T) {
	ctx := context.Background()
	s := NewService(&fakeSessionStore{failing: true}, nil, time.Hour)
	assert.Nil(t, s.Load(ctx, "u1"))

	// Save must not panic either.
	s.Save(ctx, &Context{UserID: "u1", LastIntent: "find"})
}

func TestNilServiceAndNilBackends(t *testing.T) {
	ctx := context.Background()

	var nilSvc *Service
	assert.Nil(t, nilSvc.Load(ctx, "u1"))
	nilSvc.Save(ctx, &Context{UserID: "u1"})
	assert.NoError(t, nilSvc.Sweep(ctx))

	// Cache-only mode: store absent.
	s := NewService(nil, cache.NewMockCacheService(), time.Hour)
	s.Save(ctx, &Context{UserID: "u2", LastIntent: "summarize"})
	got := s.Load(ctx, "u2")
	require.NotNil(t, got)
	assert.Equal(t, "summarize", got.LastIntent)
}

func TestExpiredRowIsIgnored(t *testing.T) {
	ctx := context.Background()
	fs := newFakeSessionStore()
	s := NewService(fs, nil, time.Hour)

	stale := &store.ChatSession{
		UserID:     "u1",
		LastIntent: "clean",
		UpdatedTs:  time.Now().Add(-2 * time.Hour).Unix(),
	}
	fs.rows["u1"] = stale

	assert.Nil(t, s.Load(ctx, "u1"))
}

func TestSweepDeletesStaleRows(t *testing.T) {
	ctx := context.Background()
	fs := newFakeSessionStore()
	s := NewService(fs, nil, time.Hour)

	fs.rows["stale"] = &store.ChatSession{UserID: "stale", UpdatedTs: time.Now().Add(-3 * time.Hour).Unix()}
	fs.rows["fresh"] = &store.ChatSession{UserID: "fresh", UpdatedTs: time.Now().Unix()}

	require.NoError(t, s.Sweep(ctx))
	assert.NotContains(t, fs.rows, "stale")
	assert.Contains(t, fs.rows, "fresh")
}

func TestCorruptStateColumnDegradesGracefully(t *testing.T) {
	row := &store.ChatSession{
		UserID:             "u1",
		LastIntent:         "find",
		ReferencedEmailIDs: "not json",
		State:              "{broken",
		UpdatedTs:          time.Now().Unix(),
	}
	sc := fromRow(row)
	assert.Equal(t, "find", sc.LastIntent)
	assert.Empty(t, sc.ReferencedEmailIDs)
	assert.Zero(t, sc.LastTimeWindowDays)

	// Sanity: valid JSON round-trips.
	ids, _ := json.Marshal([]int32{1, 2})
	row.ReferencedEmailIDs = string(ids)
	assert.Equal(t, []int32{1, 2}, fromRow(row).ReferencedEmailIDs)
}
