package router

import (
	"sort"
	"strings"
)

// Keyword weights per intent: core keywords +2, supporting +1. An intent
// needs at least one core hit and a score of matchThreshold to win;
// anything weaker falls through to clarify.
const matchThreshold = 2

type keywordSet struct {
	intent     Intent
	core       map[string]int
	supporting map[string]int
}

// RuleMatcher is a weighted keyword scorer. It is a pure function of the
// query text; follow-up resolution lives in the Service on top of it.
type RuleMatcher struct {
	sets []keywordSet
}

// NewRuleMatcher creates a matcher with the built-in mailbox vocabulary.
func NewRuleMatcher() *RuleMatcher {
	return &RuleMatcher{
		sets: []keywordSet{
			{
				intent: IntentSecurityScan,
				core: map[string]int{
					"suspicious": 2, "phishing": 2, "scam": 2, "security": 2,
					"dangerous": 2, "spoofed": 2, "fraud": 2, "malicious": 2,
				},
				supporting: map[string]int{
					"safe": 1, "risky": 1, "check": 1, "scan": 1, "trust": 1,
				},
			},
			{
				intent: IntentClean,
				core: map[string]int{
					"clean": 2, "cleanup": 2, "archive": 2, "unsubscribe": 2,
					"declutter": 2, "sweep": 2, "get rid of": 2, "delete": 2,
				},
				supporting: map[string]int{
					"promo": 1, "promos": 1, "promotions": 1, "newsletter": 1,
					"newsletters": 1, "old": 1, "junk": 1, "spam": 1,
				},
			},
			{
				intent: IntentSummarize,
				core: map[string]int{
					"summarize": 2, "summary": 2, "digest": 2, "recap": 2,
					"overview": 2, "catch me up": 2,
				},
				supporting: map[string]int{
					"today": 1, "this week": 1, "important": 1, "unread": 1,
					"inbox": 1, "stats": 1, "how many": 1,
				},
			},
			{
				intent: IntentFind,
				core: map[string]int{
					"find": 2, "search": 2, "where is": 2, "look for": 2,
					"show me": 2, "locate": 2,
				},
				supporting: map[string]int{
					"email": 1, "emails": 1, "from": 1, "about": 1,
					"attachment": 1, "invoice": 1, "receipt": 1,
					"application": 1, "applications": 1, "thread": 1,
				},
			},
			{
				intent: IntentSmallTalk,
				core: map[string]int{
					"hello": 2, "hi there": 2, "thanks": 2, "thank you": 2,
					"how are you": 2, "good morning": 2, "who are you": 2,
				},
				supporting: map[string]int{
					"help": 1, "what can you do": 1,
				},
			},
		},
	}
}

// match is one keyword hit, positioned for the explanation trace.
type match struct {
	token  string
	weight int
	pos    int
}

// Match scores the query against every intent. Returns the winner, its
// normalized confidence, and the matched tokens ordered by where they
// appear in the query — the faithful trace behind the decision. matched
// is false when nothing clears the threshold.
func (m *RuleMatcher) Match(query string) (Intent, float32, []string, bool) {
	lower := strings.ToLower(query)

	var (
		best        *keywordSet
		bestScore   int
		bestMatches []match
	)
	for i := range m.sets {
		set := &m.sets[i]
		score, hits, coreHit := scoreSet(lower, set)
		if !coreHit || score < matchThreshold {
			continue
		}
		if score > bestScore {
			best = set
			bestScore = score
			bestMatches = hits
		}
	}
	if best == nil {
		return IntentClarify, 0, nil, false
	}

	sort.SliceStable(bestMatches, func(i, j int) bool { return bestMatches[i].pos < bestMatches[j].pos })
	tokens := make([]string, 0, len(bestMatches))
	for _, hit := range bestMatches {
		tokens = append(tokens, hit.token)
	}
	return best.intent, normalizeConfidence(bestScore), tokens, true
}

func scoreSet(lower string, set *keywordSet) (score int, hits []match, coreHit bool) {
	for token, weight := range set.core {
		if pos := strings.Index(lower, token); pos >= 0 {
			score += weight
			coreHit = true
			hits = append(hits, match{token: token, weight: weight, pos: pos})
		}
	}
	for token, weight := range set.supporting {
		if pos := indexWord(lower, token); pos >= 0 {
			score += weight
			hits = append(hits, match{token: token, weight: weight, pos: pos})
		}
	}
	return score, hits, coreHit
}

// indexWord finds token at a word boundary. Supporting keywords are
// short common words ("old", "from"), so substring hits inside larger
// words ("golden", "fromage") must not count.
func indexWord(haystack, token string) int {
	start := 0
	for {
		pos := strings.Index(haystack[start:], token)
		if pos < 0 {
			return -1
		}
		pos += start
		end := pos + len(token)
		leftOK := pos == 0 || !isWordChar(haystack[pos-1])
		rightOK := end == len(haystack) || !isWordChar(haystack[end])
		if leftOK && rightOK {
			return pos
		}
		start = pos + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

// normalizeConfidence maps a raw score into (0,0.95]. Six points is a
// saturated match.
func normalizeConfidence(score int) float32 {
	const maxScore = 6
	if score >= maxScore {
		return 0.95
	}
	return float32(score) / float32(maxScore)
}
