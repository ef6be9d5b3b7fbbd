package memory

import (
	"regexp"
	"strings"
)

// Exception statements ride along in cleanup queries: "clean promos
// unless Best Buy", "archive newsletters except the ones from my bank",
// "keep Stripe". Each marker captures the phrase that follows it.
var exceptionMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunless\s+(?:the\s+ones?\s+from\s+|from\s+)?([a-z0-9@._' -]+)`),
	regexp.MustCompile(`(?i)\bexcept\s+(?:for\s+)?(?:the\s+ones?\s+from\s+|from\s+)?([a-z0-9@._' -]+)`),
	regexp.MustCompile(`(?i)\bbut\s+keep\s+([a-z0-9@._' -]+)`),
	regexp.MustCompile(`(?i)\bkeep\s+(?:everything\s+from\s+|anything\s+from\s+)([a-z0-9@._' -]+)`),
}

// Trailing words that belong to the command, not the exception.
var trailingNoise = regexp.MustCompile(`(?i)\s+(emails?|mails?|messages?|stuff|ones?|please)$`)

// ExtractExceptions pulls exception patterns out of a query, lowercased
// and deduplicated, in statement order.
func ExtractExceptions(query string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, marker := range exceptionMarkers {
		for _, m := range marker.FindAllStringSubmatch(query, -1) {
			pattern := normalizePattern(m[1])
			if pattern == "" || seen[pattern] {
				continue
			}
			seen[pattern] = true
			out = append(out, pattern)
		}
	}
	return out
}

func normalizePattern(raw string) string {
	p := strings.ToLower(strings.TrimSpace(raw))
	// Statements run to a clause boundary; keep only the first clause.
	for _, sep := range []string{",", ";", " and ", " or "} {
		if i := strings.Index(p, sep); i >= 0 {
			p = p[:i]
		}
	}
	p = trailingNoise.ReplaceAllString(p, "")
	p = strings.Trim(p, " .!?'\"")
	if len(p) < 2 {
		return ""
	}
	return p
}
