package delivery

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkLimit = 70

	// breakWindow is how far back from the limit a natural break point is searched.
	breakWindow = 10
)

// isBreak reports whether a chunk may end right after r.
func isBreak(r rune) bool {
	switch r {
	case '。', '．', '.', '！', '!', '？', '?', '、', '，', ',':
		return true
	}
	return unicode.IsSpace(r)
}

// Split cuts text into chunks of at most limit runes. A chunk ends after the last
// sentence or clause terminator, or whitespace, within the final runes of its window
// when there is one, and at exactly limit runes otherwise. Whitespace at chunk edges
// is dropped. Blank text yields no chunks.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultChunkLimit
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for {
		runes = trimLeftSpace(runes)
		if len(runes) <= limit {
			if len(runes) > 0 {
				chunks = append(chunks, string(runes))
			}
			return chunks
		}

		cut := limit
		for i := limit - 1; i >= max(0, limit-breakWindow); i-- {
			if isBreak(runes[i]) {
				cut = i + 1
				break
			}
		}

		chunk := strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace)
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
	}
}

func trimLeftSpace(r []rune) []rune {
	for len(r) > 0 && unicode.IsSpace(r[0]) {
		r = r[1:]
	}
	return r
}
