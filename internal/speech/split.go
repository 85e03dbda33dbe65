package speech

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkLimit is the longest text sent in one synthesis request.
const DefaultChunkLimit = 500

func isTerminator(r rune) bool {
	switch r {
	case '。', '！', '？', '.', '!', '?', '\n':
		return true
	}
	return false
}

// sentences splits text after every terminator, keeping it attached.
func sentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if isTerminator(r) {
			end := i + utf8.RuneLen(r)
			out = append(out, text[start:end])
			start = end
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// SplitText cuts text into chunks of at most limit runes, preferring
// sentence boundaries and hard-cutting sentences longer than limit.
// Blank chunks are dropped; order is preserved.
func SplitText(text string, limit int) []string {
	if limit <= 0 {
		limit = DefaultChunkLimit
	}

	if utf8.RuneCountInString(text) <= limit {
		if t := strings.TrimSpace(text); t != "" {
			return []string{t}
		}
		return nil
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0

	push := func(s string) {
		if t := strings.TrimSpace(s); t != "" {
			chunks = append(chunks, t)
		}
	}
	flush := func() {
		push(current.String())
		current.Reset()
		currentLen = 0
	}

	for _, sentence := range sentences(text) {
		n := utf8.RuneCountInString(sentence)

		if n > limit {
			flush()
			runes := []rune(sentence)
			for len(runes) > 0 {
				cut := min(limit, len(runes))
				push(string(runes[:cut]))
				runes = runes[cut:]
			}
			continue
		}

		if currentLen+n > limit {
			flush()
		}
		current.WriteString(sentence)
		currentLen += n
	}
	flush()

	return chunks
}
