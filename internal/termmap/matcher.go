package termmap

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Match returns the entries of tm whose term occurs in any of texts as a
// whole word. Matching is case-sensitive.
func Match(tm TermMap, texts []string) TermMap {
	matched := make(TermMap)
	for term, reading := range tm {
		for _, text := range texts {
			if indexWord(text, term, 0) >= 0 {
				matched[term] = reading
				break
			}
		}
	}
	return matched
}

// Terms returns the keys of tm, longest first, then in byte order.
func (tm TermMap) Terms() []string {
	terms := make([]string, 0, len(tm))
	for term := range tm {
		if term != "" {
			terms = append(terms, term)
		}
	}
	slices.SortFunc(terms, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return terms
}

// Apply replaces every whole-word occurrence of a term with its reading.
// At each position the longest matching term wins.
func Apply(tm TermMap, text string) string {
	if len(tm) == 0 || text == "" {
		return text
	}
	present := Match(tm, []string{text})
	if len(present) == 0 {
		return text
	}
	terms := present.Terms()

	var b strings.Builder
	for i := 0; i < len(text); {
		replaced := false
		for _, term := range terms {
			if strings.HasPrefix(text[i:], term) && atBoundary(text, i, i+len(term)) {
				b.WriteString(present[term])
				i += len(term)
				replaced = true
				break
			}
		}
		if !replaced {
			_, size := utf8.DecodeRuneInString(text[i:])
			b.WriteString(text[i : i+size])
			i += size
		}
	}
	return b.String()
}

func indexWord(text, term string, from int) int {
	if term == "" {
		return -1
	}
	for from <= len(text) {
		idx := strings.Index(text[from:], term)
		if idx < 0 {
			return -1
		}
		start := from + idx
		if atBoundary(text, start, start+len(term)) {
			return start
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return -1
}

// atBoundary checks the runes around text[start:end]. Only ASCII letters
// and digits join words, so terms inside Japanese text still match.
func atBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		first, _ := utf8.DecodeRuneInString(text[start:])
		if isWordRune(r) && isWordRune(first) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		last, _ := utf8.DecodeLastRuneInString(text[:end])
		if isWordRune(r) && isWordRune(last) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
}
