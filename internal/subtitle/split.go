package subtitle

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SplitLines breaks a script into display lines.
//
// With punctuation splitting, clauses end at 。！？!? and at '.' followed by
// whitespace or the end of the text; the terminator stays on its clause.
// Clauses longer than MaxCharsPerLine are split at commas first, then at word
// boundaries, and finally cut at a fixed width. Without punctuation splitting
// the script is cut every MaxCharsPerLine characters.
func SplitLines(text string, settings Settings) []string {
	width := settings.MaxCharsPerLine
	if width <= 0 {
		width = DefaultMaxCharsPerLine
	}

	if !settings.SplitByPunctuation {
		return fixedWidth(text, width)
	}

	var lines []string
	for _, clause := range clauses(text) {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		if runeLen(clause) > width {
			lines = append(lines, splitLong(clause, width)...)
			continue
		}
		lines = append(lines, clause)
	}
	return lines
}

func isTerminator(r rune) bool {
	switch r {
	case '。', '！', '？', '!', '?':
		return true
	}
	return false
}

func isComma(r rune) bool {
	return r == '、' || r == ',' || r == '，'
}

// clauses cuts text after each sentence terminator.
func clauses(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for i, r := range runes {
		end := isTerminator(r)
		if r == '.' && (i == len(runes)-1 || unicode.IsSpace(runes[i+1])) {
			end = true
		}
		if end {
			out = append(out, string(runes[start:i+1]))
			start = i + 1
		}
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

// splitLong splits an over-long clause at commas, pushing a line as soon as a
// comma closes at least half the width. Leftovers that are still too long are
// split at spaces and then cut.
func splitLong(text string, width int) []string {
	var (
		out     []string
		current []rune
	)
	push := func() {
		if s := strings.TrimSpace(string(current)); s != "" {
			out = append(out, s)
		}
		current = current[:0]
	}

	for _, part := range commaParts(text) {
		p := []rune(part)
		if len(current)+len(p) > width {
			push()
		}
		current = append(current, p...)

		if len(p) == 1 && isComma(p[0]) && float64(len(current)) >= float64(width)*0.5 {
			push()
		}
	}

	rest := strings.TrimSpace(string(current))
	if rest == "" {
		return out
	}
	if runeLen(rest) > width {
		return append(out, wordWrap(rest, width)...)
	}
	return append(out, rest)
}

// commaParts splits text around commas, keeping each comma as its own part.
func commaParts(text string) []string {
	var (
		parts []string
		b     strings.Builder
	)
	for _, r := range text {
		if isComma(r) {
			if b.Len() > 0 {
				parts = append(parts, b.String())
				b.Reset()
			}
			parts = append(parts, string(r))
			continue
		}
		b.WriteRune(r)
	}
	if b.Len() > 0 {
		parts = append(parts, b.String())
	}
	return parts
}

// wordWrap packs space-separated words into lines of at most width runes.
// Words that alone exceed the width are cut.
func wordWrap(text string, width int) []string {
	var (
		out  []string
		line string
	)
	for _, word := range strings.Fields(text) {
		if runeLen(word) > width {
			if line != "" {
				out = append(out, line)
				line = ""
			}
			out = append(out, fixedWidth(word, width)...)
			continue
		}
		switch {
		case line == "":
			line = word
		case runeLen(line)+1+runeLen(word) <= width:
			line += " " + word
		default:
			out = append(out, line)
			line = word
		}
	}
	if line != "" {
		out = append(out, line)
	}
	return out
}

func fixedWidth(text string, width int) []string {
	runes := []rune(text)
	var out []string
	for i := 0; i < len(runes); i += width {
		end := min(i+width, len(runes))
		if s := strings.TrimSpace(string(runes[i:end])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
