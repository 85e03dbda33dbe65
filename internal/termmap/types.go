// Package termmap holds per-language reading dictionaries: terms as they
// appear in a script mapped to how the speech engine should pronounce them.
package termmap

import "golang.org/x/text/language"

// DefaultLanguage is used when an article's language is undetermined.
// VOICEVOX voices speak Japanese.
var DefaultLanguage = language.Japanese

// TermMap maps a written term to its spoken reading.
type TermMap map[string]string

// Merge layers maps left to right; later readings replace earlier ones.
func Merge(maps ...TermMap) TermMap {
	var out TermMap
	for _, tm := range maps {
		for term, reading := range tm {
			if out == nil {
				out = make(TermMap, len(tm))
			}
			out[term] = reading
		}
	}
	return out
}
