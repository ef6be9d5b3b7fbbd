package retrieval

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/hrygo/mailsense/store"
)

// emailExcerpt renders an email into excerpt text. The plain text body
// extracted at ingest time is preferred; HTML-only mail is stripped here.
func emailExcerpt(email *store.Email) string {
	if email.Body != "" {
		return truncateExcerpt(email.Body)
	}
	if email.BodyHTML != "" {
		return truncateExcerpt(stripHTML(email.BodyHTML))
	}
	return truncateExcerpt(email.Snippet)
}

// stripHTML extracts the visible text of an HTML fragment, skipping
// script and style subtrees. Malformed markup is tolerated; the tokenizer
// yields whatever text it can.
func stripHTML(fragment string) string {
	var (
		b    strings.Builder
		skip int
	)
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return collapseWhitespace(b.String())
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if isSkippedTag(string(name)) {
				skip++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if isSkippedTag(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(tokenizer.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isSkippedTag(name string) bool {
	return name == "script" || name == "style" || name == "head"
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateExcerpt trims text to MaxExcerptLen bytes without splitting a
// multi-byte rune.
func truncateExcerpt(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= MaxExcerptLen {
		return text
	}
	cut := MaxExcerptLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
