package script

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/MimeLyc/article-narrator/internal/document"
	"github.com/MimeLyc/article-narrator/pkg/log"
)

// Entry is one script as returned by the model.
type Entry struct {
	SectionID string `json:"sectionId"`
	Heading   string `json:"heading,omitempty"`
	Script    string `json:"script"`
}

// Response is the decoded model output: Structured or Unstructured.
type Response interface {
	isResponse()
}

// Structured is a response whose fenced JSON block carried a sections list.
type Structured struct {
	Sections []Entry
}

// Unstructured is any other response. Err says why decoding failed.
type Unstructured struct {
	RawText string
	Err     error
}

func (Structured) isResponse()   {}
func (Unstructured) isResponse() {}

var (
	fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\r?\\n?(.*?)\\s*```")

	errNoBlock    = errors.New("no fenced json block")
	errNoSections = errors.New("json block has no sections array")
)

type payload struct {
	Sections *[]Entry `json:"sections"`
}

// DecodeResponse resolves raw model output once. A fenced block is preferred;
// a bare JSON object is accepted when no fence is present.
func DecodeResponse(raw string) Response {
	var candidates []string
	for _, m := range fencedBlock.FindAllStringSubmatch(raw, -1) {
		candidates = append(candidates, m[1])
	}
	if len(candidates) == 0 {
		trimmed := strings.TrimSpace(raw)
		if !strings.HasPrefix(trimmed, "{") {
			return Unstructured{RawText: raw, Err: errNoBlock}
		}
		candidates = append(candidates, trimmed)
	}

	var lastErr error
	for _, c := range candidates {
		var p payload
		if err := json.Unmarshal([]byte(c), &p); err != nil {
			lastErr = err
			continue
		}
		if p.Sections == nil {
			lastErr = errNoSections
			continue
		}
		return Structured{Sections: *p.Sections}
	}
	return Unstructured{RawText: raw, Err: lastErr}
}

// ParseResponse attaches scripts from raw to sections. It never fails and
// never drops a section: unmatched or empty scripts fall back to the
// section's own text.
func ParseResponse(raw string, sections []document.Section) []document.VideoSection {
	out, _ := resolve(DecodeResponse(raw), sections)
	return out
}

// resolve reports whether the scripts came from a structured response.
func resolve(resp Response, sections []document.Section) ([]document.VideoSection, bool) {
	out := make([]document.VideoSection, len(sections))
	for i, s := range sections {
		out[i] = document.NewVideoSection(s)
		out[i].Script = s.TextContent
	}

	switch r := resp.(type) {
	case Structured:
		byID := make(map[string]Entry, len(r.Sections))
		for _, e := range r.Sections {
			if _, dup := byID[e.SectionID]; !dup {
				byID[e.SectionID] = e
			}
		}
		for i, s := range sections {
			entry, ok := byID[s.ID]
			if !ok && i < len(r.Sections) {
				entry, ok = r.Sections[i], true
			}
			if ok && strings.TrimSpace(entry.Script) != "" {
				out[i].Script = entry.Script
			}
		}
		return out, true
	case Unstructured:
		log.Warn("script response not structured (%v), using section text for %d sections", r.Err, len(sections))
	}
	return out, false
}
