package router

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mailsense/plugin/ai/session"
)

func TestClassifyIntents(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Intent
	}{
		{"summarize today", "summarize my inbox today", IntentSummarize},
		{"digest", "give me a digest of this week", IntentSummarize},
		{"clean promos", "clean up old promotions", IntentClean},
		{"unsubscribe", "unsubscribe me from these newsletters", IntentClean},
		{"find invoice", "find the invoice from Acme", IntentFind},
		{"where is", "where is the email about my flight", IntentFind},
		{"phishing", "is this email phishing", IntentSecurityScan},
		{"suspicious", "check the suspicious message from paypal", IntentSecurityScan},
		{"greeting", "hello, how are you", IntentSmallTalk},
		{"thanks", "thanks a lot", IntentSmallTalk},
		{"ambiguous", "the blue one maybe", IntentClarify},
		{"empty", "   ", IntentClarify},
	}
	c := NewRuleClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(context.Background(), tt.query, nil)
			assert.Equal(t, tt.want, got.Intent)
		})
	}
}

func TestExplanationOrderedByPosition(t *testing.T) {
	c := NewRuleClassifier()
	got := c.Classify(context.Background(), "clean old promos in my inbox", nil)

	require.Equal(t, IntentClean, got.Intent)
	require.NotEmpty(t, got.Explanation)

	// Tokens must appear in query order, not map-iteration order.
	query := "clean old promos in my inbox"
	lastPos := -1
	for _, token := range got.Explanation {
		pos := strings.Index(query, token)
		require.GreaterOrEqual(t, pos, 0, "token %q not in query", token)
		assert.Greater(t, pos, lastPos, "token %q out of order", token)
		lastPos = pos
	}
	assert.Equal(t, "clean", got.Explanation[0])
}

func TestClassifyConfidence(t *testing.T) {
	c := NewRuleClassifier()

	strong := c.Classify(context.Background(), "clean up and archive old promo newsletters", nil)
	weak := c.Classify(context.Background(), "delete that", nil)

	require.Equal(t, IntentClean, strong.Intent)
	require.Equal(t, IntentClean, weak.Intent)
	assert.Greater(t, strong.Confidence, weak.Confidence)
	assert.LessOrEqual(t, strong.Confidence, float32(0.95))
}

func TestClarifyHasNoExplanation(t *testing.T) {
	c := NewRuleClassifier()
	got := c.Classify(context.Background(), "hmm what about the other thing", nil)
	assert.Equal(t, IntentClarify, got.Intent)
	assert.Empty(t, got.Explanation)
	assert.Zero(t, got.Confidence)
}

func TestFollowUpResolvesAgainstSession(t *testing.T) {
	c := NewRuleClassifier()
	sess := &session.Context{
		UserID:             "u1",
		LastIntent:         string(IntentFind),
		ReferencedEmailIDs: []int32{4, 9},
	}

	got := c.Classify(context.Background(), "mute them", sess)

	assert.Equal(t, IntentClean, got.Intent)
	assert.True(t, got.FollowUp)
	require.Len(t, got.Explanation, 2)
	assert.Equal(t, "them", got.Explanation[0])
	assert.Equal(t, "session:last_intent=find", got.Explanation[1])
}

func TestFollowUpCarriesLastIntentWithoutVerb(t *testing.T) {
	c := NewRuleClassifier()
	sess := &session.Context{UserID: "u1", LastIntent: string(IntentSecurityScan)}

	got := c.Classify(context.Background(), "what about those", sess)

	assert.Equal(t, IntentSecurityScan, got.Intent)
	assert.True(t, got.FollowUp)
}

func TestFollowUpVerbRedirects(t *testing.T) {
	c := NewRuleClassifier()
	sess := &session.Context{UserID: "u1", LastIntent: string(IntentFind)}

	got := c.Classify(context.Background(), "are those safe?", sess)

	assert.Equal(t, IntentSecurityScan, got.Intent)
	assert.True(t, got.FollowUp)
}

func TestPronounWithoutSessionClarifies(t *testing.T) {
	c := NewRuleClassifier()

	got := c.Classify(context.Background(), "mute them", nil)
	assert.Equal(t, IntentClarify, got.Intent)
	assert.False(t, got.FollowUp)

	// A small-talk previous turn gives the pronoun nothing to bind to.
	sess := &session.Context{UserID: "u1", LastIntent: string(IntentSmallTalk)}
	got = c.Classify(context.Background(), "mute them", sess)
	assert.Equal(t, IntentClarify, got.Intent)
}

func TestKeywordMatchBeatsFollowUp(t *testing.T) {
	c := NewRuleClassifier()
	sess := &session.Context{UserID: "u1", LastIntent: string(IntentClean)}

	// Explicit keywords win even when a pronoun is present.
	got := c.Classify(context.Background(), "summarize them for me today", sess)
	assert.Equal(t, IntentSummarize, got.Intent)
	assert.False(t, got.FollowUp)
}

func TestSupportingKeywordsRespectWordBoundaries(t *testing.T) {
	m := NewRuleMatcher()

	// "golden" must not count as "old"; without a core keyword nothing
	// matches at all.
	_, _, _, matched := m.Match("the golden ticket")
	assert.False(t, matched)
}
