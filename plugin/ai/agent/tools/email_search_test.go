package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mailsense/store"
)

// fakeSearcher serves canned search hits and records the options it saw.
type fakeSearcher struct {
	hits     []*store.EmailSearchResult
	err      error
	lastOpts *store.SearchEmailsOptions
}

func (f *fakeSearcher) SearchEmails(_ context.Context, opts *store.SearchEmailsOptions) ([]*store.EmailSearchResult, error) {
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func TestEmailSearchScopesToUserAndWindow(t *testing.T) {
	f := &fakeSearcher{hits: []*store.EmailSearchResult{
		{Email: &store.Email{ID: 7, ThreadID: "t-1", Subject: "Invoice", Snippet: "your invoice"}, Rank: 2.5},
	}}
	tool := NewEmailSearchTool(f)

	result, err := tool.Run(context.Background(), &Invocation{
		UserID:         "u1",
		Query:          "invoice",
		TimeWindowDays: 7,
		Filters:        []string{"has_attachment = 1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "u1", f.lastOpts.UserID)
	assert.Equal(t, "invoice", f.lastOpts.Query)
	require.NotNil(t, f.lastOpts.ReceivedAfter)
	expected := time.Now().AddDate(0, 0, -7).Unix()
	assert.InDelta(t, expected, *f.lastOpts.ReceivedAfter, 5)
	assert.Equal(t, []string{"has_attachment = 1"}, f.lastOpts.Filters)

	assert.Equal(t, 1, result.Matches)
	assert.Equal(t, []int32{7}, result.Payload["email_ids"])
	assert.Equal(t, []string{"t-1"}, result.Payload["thread_ids"])
}

func TestEmailSearchNoWindowMeansNoTimeBound(t *testing.T) {
	f := &fakeSearcher{}
	tool := NewEmailSearchTool(f)

	_, err := tool.Run(context.Background(), &Invocation{UserID: "u1", Query: "receipts"})
	require.NoError(t, err)
	assert.Nil(t, f.lastOpts.ReceivedAfter)
}

func TestApplicationsLookupGroupsByCompany(t *testing.T) {
	now := time.Now().Unix()
	f := &fakeSearcher{hits: []*store.EmailSearchResult{
		{Email: &store.Email{ID: 1, SenderDomain: "acme.dev", Subject: "Thank you for applying", Snippet: "application received", ReceivedTs: now - 86400*9}},
		{Email: &store.Email{ID: 2, SenderDomain: "acme.dev", Subject: "Interview availability", Snippet: "schedule a call", ReceivedTs: now - 86400*2}},
		{Email: &store.Email{ID: 3, SenderDomain: "globex.io", Subject: "Your order shipped", Snippet: "tracking number", ReceivedTs: now}},
	}}
	tool := NewApplicationsLookupTool(f)

	result, err := tool.Run(context.Background(), &Invocation{UserID: "u1", TimeWindowDays: 30})
	require.NoError(t, err)

	// globex.io has no application-stage keywords and is dropped.
	assert.Equal(t, 1, result.Matches)
}

func TestClassifyStageMostSpecificWins(t *testing.T) {
	assert.Equal(t, "offer", classifyStage("Congratulations! Offer enclosed"))
	assert.Equal(t, "rejected", classifyStage("Unfortunately we are not moving forward"))
	assert.Equal(t, "interview", classifyStage("Please share availability for a phone screen"))
	assert.Equal(t, "", classifyStage("Your receipt from the coffee shop"))
}

func TestThreadDetailResolvesReferencedThread(t *testing.T) {
	s := &fakeEmailStore{emails: []*store.Email{
		{ID: 10, UserID: "u1", ThreadID: "thr-9", Subject: "Re: contract", ReceivedTs: 100},
		{ID: 11, UserID: "u1", ThreadID: "thr-9", Subject: "Re: Re: contract", ReceivedTs: 200},
		{ID: 12, UserID: "u1", ThreadID: "other", Subject: "noise", ReceivedTs: 300},
	}}
	tool := NewThreadDetailTool(s)

	result, err := tool.Run(context.Background(), &Invocation{UserID: "u1", ReferencedEmailIDs: []int32{10}})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Matches)
	assert.Equal(t, "thr-9", result.Payload["thread_id"])
}

func TestThreadDetailWithoutReferenceReportsEmpty(t *testing.T) {
	tool := NewThreadDetailTool(&fakeEmailStore{})
	result, err := tool.Run(context.Background(), &Invocation{UserID: "u1"})
	require.NoError(t, err)
	assert.Zero(t, result.Matches)
	assert.Equal(t, StatusSuccess, result.Status)
}
