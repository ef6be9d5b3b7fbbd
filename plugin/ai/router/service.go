package router

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/hrygo/mailsense/plugin/ai/session"
)

var _ ClassifierService = (*RuleClassifier)(nil)

// Pronouns that only resolve against a previous turn.
var anaphoraPronoun = regexp.MustCompile(`(?i)\b(them|those|these|that one|it)\b`)

// RuleClassifier classifies with the weighted keyword matcher and resolves
// pronoun-only follow-ups against the session context.
type RuleClassifier struct {
	matcher *RuleMatcher
}

// NewRuleClassifier creates the default classifier.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{matcher: NewRuleMatcher()}
}

// Classify maps a query to an intent. Resolution order:
//
//  1. keyword match on the query text itself;
//  2. for pronoun-only follow-ups ("mute them", "archive those"), the
//     previous turn's intent from the session;
//  3. clarify.
//
// The explanation carries the matched tokens in query order, plus a
// session signal when step 2 fired.
func (c *RuleClassifier) Classify(ctx context.Context, query string, sess *session.Context) *Classification {
	query = strings.TrimSpace(query)
	if query == "" {
		return &Classification{Intent: IntentClarify}
	}

	intent, confidence, tokens, matched := c.matcher.Match(query)
	if matched {
		return &Classification{Intent: intent, Confidence: confidence, Explanation: tokens}
	}

	if cls := c.resolveFollowUp(query, sess); cls != nil {
		return cls
	}

	slog.Debug("query did not clear any intent threshold", slog.String("query", query))
	return &Classification{Intent: IntentClarify}
}

// resolveFollowUp handles queries that lean entirely on the previous turn.
// Only action verbs carry over; a clarify or small-talk turn gives a
// pronoun nothing to bind to.
func (c *RuleClassifier) resolveFollowUp(query string, sess *session.Context) *Classification {
	if sess == nil || sess.LastIntent == "" {
		return nil
	}
	last := Intent(sess.LastIntent)
	switch last {
	case IntentSummarize, IntentClean, IntentFind, IntentSecurityScan:
	default:
		return nil
	}
	pronoun := anaphoraPronoun.FindString(strings.ToLower(query))
	if pronoun == "" {
		return nil
	}

	intent := last
	// Verbs in the follow-up can redirect the carried-over referents:
	// "are those safe" after a find turn is a scan, not another find.
	switch {
	case containsAny(query, "archive", "delete", "clean", "mute", "unsubscribe", "get rid"):
		intent = IntentClean
	case containsAny(query, "safe", "suspicious", "legit", "phishing", "scam"):
		intent = IntentSecurityScan
	case containsAny(query, "summarize", "summary", "tldr"):
		intent = IntentSummarize
	}

	return &Classification{
		Intent:     intent,
		Confidence: 0.6,
		Explanation: []string{
			pronoun,
			fmt.Sprintf("session:last_intent=%s", sess.LastIntent),
		},
		FollowUp: true,
	}
}

func containsAny(query string, tokens ...string) bool {
	lower := strings.ToLower(query)
	for _, token := range tokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}
