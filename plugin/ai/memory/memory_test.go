package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mailsense/store"
)

// fakeExceptionStore merges rows keyed by (user, kind, pattern), like the
// real learned_exception table.
type fakeExceptionStore struct {
	rows    map[string]*store.LearnedException
	failing bool
}

func newFakeExceptionStore() *fakeExceptionStore {
	return &fakeExceptionStore{rows: make(map[string]*store.LearnedException)}
}

func (f *fakeExceptionStore) key(userID string, kind store.LearnedExceptionKind, pattern string) string {
	return userID + "|" + string(kind) + "|" + pattern
}

func (f *fakeExceptionStore) UpsertLearnedException(_ context.Context, upsert *store.UpsertLearnedException) (*store.LearnedException, error) {
	if f.failing {
		return nil, errors.New("store down")
	}
	k := f.key(upsert.UserID, upsert.Kind, upsert.Pattern)
	if row, ok := f.rows[k]; ok {
		row.MergeCount++
		row.Note = upsert.Note
		row.UpdatedTs = time.Now().Unix()
		return row, nil
	}
	row := &store.LearnedException{
		ID:         int32(len(f.rows) + 1),
		UserID:     upsert.UserID,
		Kind:       upsert.Kind,
		Pattern:    upsert.Pattern,
		Note:       upsert.Note,
		MergeCount: 1,
		CreatedTs:  time.Now().Unix(),
		UpdatedTs:  time.Now().Unix(),
	}
	f.rows[k] = row
	return row, nil
}

func (f *fakeExceptionStore) ListLearnedExceptions(_ context.Context, find *store.FindLearnedException) ([]*store.LearnedException, error) {
	if f.failing {
		return nil, errors.New("store down")
	}
	var out []*store.LearnedException
	for _, row := range f.rows {
		if find.UserID != nil && row.UserID != *find.UserID {
			continue
		}
		if find.Kind != nil && row.Kind != *find.Kind {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func TestLearnFromQueryExtractsAndPersists(t *testing.T) {
	ctx := context.Background()
	fs := newFakeExceptionStore()
	svc := NewService(fs)

	learned, err := svc.LearnFromQuery(ctx, "u1", "clean", "Clean promos unless Best Buy")
	require.NoError(t, err)
	require.Len(t, learned, 1)
	assert.Equal(t, "best buy", learned[0].Pattern)
	assert.Equal(t, store.ExceptionSenderKeep, learned[0].Kind)
	assert.True(t, learned[0].New)
}

func TestLearnIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fs := newFakeExceptionStore()
	svc := NewService(fs)

	first, err := svc.LearnFromQuery(ctx, "u1", "clean", "Clean promos unless Best Buy")
	require.NoError(t, err)
	second, err := svc.LearnFromQuery(ctx, "u1", "clean", "clean everything unless best buy please")
	require.NoError(t, err)

	assert.True(t, first[0].New)
	assert.False(t, second[0].New)

	// One logical entry, merge count visible.
	rows, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].MergeCount)
}

func TestLearnNothingStatedIsNoop(t *testing.T) {
	svc := NewService(newFakeExceptionStore())
	learned, err := svc.LearnFromQuery(context.Background(), "u1", "clean", "clean old promos")
	require.NoError(t, err)
	assert.Empty(t, learned)
}

func TestKeptPatternsLowercased(t *testing.T) {
	ctx := context.Background()
	fs := newFakeExceptionStore()
	svc := NewService(fs)

	_, err := svc.LearnFromQuery(ctx, "u1", "clean", "clean newsletters except Morning Brew")
	require.NoError(t, err)

	assert.Equal(t, []string{"morning brew"}, svc.KeptPatterns(ctx, "u1"))
	assert.Empty(t, svc.KeptPatterns(ctx, "someone-else"))
}

func TestIsTrustedDomain(t *testing.T) {
	ctx := context.Background()
	fs := newFakeExceptionStore()
	_, err := fs.UpsertLearnedException(ctx, &store.UpsertLearnedException{
		UserID: "u1", Kind: store.ExceptionDomainTrust, Pattern: "acme.com",
	})
	require.NoError(t, err)
	svc := NewService(fs)

	assert.True(t, svc.IsTrustedDomain(ctx, "u1", "acme.com"))
	assert.True(t, svc.IsTrustedDomain(ctx, "u1", "ACME.com"))
	assert.False(t, svc.IsTrustedDomain(ctx, "u1", "evil.com"))
	assert.False(t, svc.IsTrustedDomain(ctx, "u2", "acme.com"))
}

func TestDisabledServiceDegrades(t *testing.T) {
	ctx := context.Background()

	var nilSvc *Service
	assert.Empty(t, nilSvc.KeptPatterns(ctx, "u1"))
	assert.False(t, nilSvc.IsTrustedDomain(ctx, "u1", "acme.com"))

	svc := NewService(nil)
	learned, err := svc.LearnFromQuery(ctx, "u1", "clean", "clean promos unless best buy")
	require.NoError(t, err)
	assert.Empty(t, learned)
}

func TestFailingStoreReturnsEmptyPatterns(t *testing.T) {
	svc := NewService(&fakeExceptionStore{failing: true})
	assert.Empty(t, svc.KeptPatterns(context.Background(), "u1"))
}

func TestExtractExceptions(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"unless brand", "Clean promos unless Best Buy", []string{"best buy"}},
		{"except from", "archive newsletters except the ones from my bank", []string{"my bank"}},
		{"but keep", "delete old updates but keep Stripe emails", []string{"stripe"}},
		{"keep everything from", "clean inbox, keep everything from uber.com", []string{"uber.com"}},
		{"multiple", "clean promos unless Best Buy and except Costco", []string{"best buy", "costco"}},
		{"duplicate statements", "unless Best Buy, unless best buy", []string{"best buy"}},
		{"nothing stated", "summarize this week", nil},
		{"marker without phrase", "keep  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractExceptions(tt.query))
		})
	}
}
