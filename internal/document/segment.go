// Package document splits an HTML article into heading-anchored sections.
package document

import (
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf8"
)

// introMinChars is the noise threshold for text preceding the first heading.
const introMinChars = 10

// Segment splits html into ordered sections anchored at h1-h6 boundaries.
func Segment(html string) ([]Section, error) {
	return SegmentReader(strings.NewReader(html))
}

// SegmentReader is Segment over a stream.
func SegmentReader(r io.Reader) ([]Section, error) {
	tokens, err := Walk(r)
	if err != nil {
		return nil, err
	}
	return fromTokens(tokens), nil
}

func fromTokens(tokens []Token) []Section {
	var headings []int
	for i, t := range tokens {
		if t.Kind == TokenHeading {
			headings = append(headings, i)
		}
	}

	// body text per heading token index, -1 holds leading text
	bodies := make(map[int]*strings.Builder)
	for _, t := range tokens {
		if t.Kind != TokenText {
			continue
		}
		b, ok := bodies[t.Heading]
		if !ok {
			b = &strings.Builder{}
			bodies[t.Heading] = b
		}
		b.WriteString(t.Text)
		b.WriteByte(' ')
	}
	text := func(heading int) string {
		if b, ok := bodies[heading]; ok {
			return collapse(b.String())
		}
		return ""
	}

	if len(headings) == 0 {
		body := text(-1)
		if body == "" {
			return []Section{}
		}
		return []Section{{
			ID:           sectionID(0),
			Heading:      IntroductionHeading,
			HeadingLevel: 0,
			TextContent:  body,
		}}
	}

	sections := make([]Section, 0, len(headings)+1)
	if intro := text(-1); utf8.RuneCountInString(intro) > introMinChars {
		sections = append(sections, Section{
			ID:          sectionID(len(sections)),
			Heading:     IntroductionHeading,
			TextContent: intro,
		})
	}

	for _, idx := range headings {
		sections = append(sections, Section{
			ID:           sectionID(len(sections)),
			Heading:      tokens[idx].Text,
			HeadingLevel: tokens[idx].Level,
			TextContent:  text(idx),
		})
	}

	kept := sections[:0]
	for _, s := range sections {
		if s.TextContent != "" || s.HeadingLevel > 0 {
			kept = append(kept, s)
		}
	}
	return kept
}

func sectionID(n int) string {
	return fmt.Sprintf("section-%d", n)
}

// CharCount returns the rune count of every heading and body in sections.
func CharCount(sections []Section) int {
	total := 0
	for _, s := range sections {
		total += s.Size()
	}
	return total
}

// Size is the rune count of the heading plus the body text.
func (s Section) Size() int {
	return utf8.RuneCountInString(s.Heading) + utf8.RuneCountInString(s.TextContent)
}

// EstimateDuration guesses narration seconds for text at five characters
// per second.
func EstimateDuration(text string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / 5))
}
