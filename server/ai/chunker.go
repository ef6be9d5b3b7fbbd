package ai

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Knowledge-base articles (runbooks, provider help pages, policy notes)
// are chunked before embedding so one vector never has to summarize a
// whole article. Sizes are rune counts, not bytes: articles carry
// multi-byte text and a chunk must never end mid-rune, same rule the
// retrieval excerpts follow.
const (
	chunkRunes   = 500
	overlapRunes = 50
)

// ChunkDocument splits a KB article into embedding-sized chunks. Whole
// paragraphs are packed together while they fit; a short tail of each
// chunk is carried into the next so a thought split across a boundary
// still scores against both vectors. The embedder average-pools the
// per-chunk vectors back into one doc embedding.
func ChunkDocument(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if utf8.RuneCountInString(content) <= chunkRunes {
		return []string{content}
	}

	var chunks []string
	var current []rune
	flush := func() {
		if text := strings.TrimSpace(string(current)); text != "" {
			chunks = append(chunks, text)
		}
	}

	for _, para := range articleParagraphs(content) {
		runes := []rune(para)
		if len(current) > 0 && len(current)+2+len(runes) > chunkRunes {
			flush()
			current = overlapTail(current)
		}
		if len(current) > 0 {
			current = append(current, '\n', '\n')
		}
		current = append(current, runes...)

		// A single paragraph longer than a chunk gets hard-split at
		// sentence or word boundaries. No overlap here: repeating the
		// tail of a forced cut would embed the same text twice.
		for len(current) > chunkRunes {
			cut := splitPoint(current[:chunkRunes])
			chunks = append(chunks, strings.TrimSpace(string(current[:cut])))
			current = []rune(strings.TrimSpace(string(current[cut:])))
		}
	}
	flush()
	return chunks
}

// articleParagraphs splits an article on blank lines and unwraps the
// hard line breaks inside each paragraph.
func articleParagraphs(content string) []string {
	var paras []string
	var lines []string
	flush := func() {
		if len(lines) > 0 {
			paras = append(paras, strings.Join(lines, " "))
			lines = nil
		}
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		lines = append(lines, line)
	}
	flush()
	return paras
}

// overlapTail returns the last words of a chunk, capped at overlapRunes,
// to seed the next chunk. The leading word fragment is dropped so the
// overlap starts on a word boundary.
func overlapTail(chunk []rune) []rune {
	if len(chunk) <= overlapRunes {
		return append([]rune(nil), chunk...)
	}
	tail := chunk[len(chunk)-overlapRunes:]
	for i, r := range tail {
		if unicode.IsSpace(r) {
			return append([]rune(nil), tail[i+1:]...)
		}
	}
	return append([]rune(nil), tail...)
}

// splitPoint picks where to cut an oversized window: after the last
// sentence end, else at the last space in the second half of the
// window, else at the full window.
func splitPoint(window []rune) int {
	for i := len(window) - 1; i > 0; i-- {
		switch window[i] {
		case '.', '!', '?', '。', '！', '？':
			if i == len(window)-1 || unicode.IsSpace(window[i+1]) || window[i] > unicode.MaxASCII {
				return i + 1
			}
		}
	}
	for i := len(window) - 1; i >= len(window)/2; i-- {
		if unicode.IsSpace(window[i]) {
			return i
		}
	}
	return len(window)
}
