// Package script turns article sections into narration scripts through an
// LLM, one request per character-bounded batch.
package script

import "github.com/MimeLyc/article-narrator/internal/document"

// DefaultMaxChars is the per-request character budget.
const DefaultMaxChars = 15000

// Batch is a run of consecutive sections sent in one request.
type Batch struct {
	// Start is the document index of Sections[0].
	Start    int
	Sections []document.Section
}

// End is the document index one past the last section.
func (b Batch) End() int {
	return b.Start + len(b.Sections)
}

// Size is the combined heading and text rune count.
func (b Batch) Size() int {
	return document.CharCount(b.Sections)
}

// Split packs sections greedily into batches of at most maxChars.
// A section larger than maxChars on its own becomes a singleton batch.
// maxChars <= 0 selects DefaultMaxChars.
func Split(sections []document.Section, maxChars int) []Batch {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	var (
		batches []Batch
		current Batch
		size    int
	)
	flush := func() {
		if len(current.Sections) > 0 {
			batches = append(batches, current)
		}
	}

	for i, s := range sections {
		n := s.Size()

		if n > maxChars {
			flush()
			batches = append(batches, Batch{Start: i, Sections: []document.Section{s}})
			current, size = Batch{Start: i + 1}, 0
			continue
		}

		if size+n > maxChars && len(current.Sections) > 0 {
			flush()
			current, size = Batch{Start: i}, 0
		}

		if len(current.Sections) == 0 {
			current.Start = i
		}
		current.Sections = append(current.Sections, s)
		size += n
	}
	flush()

	return batches
}

// Flatten concatenates batches back into one section list.
func Flatten(batches []Batch) []document.Section {
	var out []document.Section
	for _, b := range batches {
		out = append(out, b.Sections...)
	}
	return out
}

// EstimateCalls returns how many LLM requests sections will need.
func EstimateCalls(sections []document.Section, maxChars int) int {
	return len(Split(sections, maxChars))
}
