package persistence

import (
	"time"

	"github.com/MimeLyc/article-narrator/internal/document"
	"github.com/MimeLyc/article-narrator/internal/pipeline"
	"github.com/MimeLyc/article-narrator/internal/subtitle"
)

// ProjectSection is the saved form of a document.VideoSection. Audio is
// referenced by file name rather than embedded.
type ProjectSection struct {
	ID              string              `json:"id"`
	Heading         string              `json:"heading"`
	HeadingLevel    int                 `json:"headingLevel"`
	TextContent     string              `json:"textContent"`
	Script          string              `json:"script"`
	SelectedSlideID string              `json:"selectedSlideId,omitempty"`
	VisualType      document.VisualType `json:"visualType"`
	AudioFileName   string              `json:"audioFileName,omitempty"`
	ImageFileName   string              `json:"imageFileName,omitempty"`
	ScriptFileName  string              `json:"scriptFileName,omitempty"`
	Duration        float64             `json:"duration,omitempty"`
}

// ProjectDocument is the video-data JSON of a project.
type ProjectDocument struct {
	Sections            []ProjectSection          `json:"sections"`
	SourceHTMLFileName  string                    `json:"sourceHtmlFileName,omitempty"`
	SpeakerID           int                       `json:"speakerId"`
	Language            string                    `json:"language,omitempty"`
	UpdatedAt           string                    `json:"updatedAt"`
	Subtitles           []subtitle.Entry          `json:"subtitles,omitempty"`
	SubtitleSettings    *subtitle.Settings        `json:"subtitleSettings,omitempty"`
	CustomSubtitleTexts map[string][]string       `json:"customSubtitleTexts,omitempty"`
	Failures            []pipeline.SectionFailure `json:"failures,omitempty"`
}

func NewProjectSection(v document.VideoSection) ProjectSection {
	return ProjectSection{
		ID:              v.ID,
		Heading:         v.Heading,
		HeadingLevel:    v.HeadingLevel,
		TextContent:     v.TextContent,
		Script:          v.Script,
		SelectedSlideID: v.SelectedSlideID,
		VisualType:      v.VisualType,
		AudioFileName:   v.AudioFileName,
		ImageFileName:   v.ImageFileName,
		ScriptFileName:  v.ScriptFileName,
		Duration:        v.AudioDuration,
	}
}

// VideoSection restores the section without its audio bytes.
func (p ProjectSection) VideoSection() document.VideoSection {
	return document.VideoSection{
		Section: document.Section{
			ID:           p.ID,
			Heading:      p.Heading,
			HeadingLevel: p.HeadingLevel,
			TextContent:  p.TextContent,
		},
		Script:          p.Script,
		AudioDuration:   p.Duration,
		VisualType:      p.VisualType,
		SelectedSlideID: p.SelectedSlideID,
		AudioFileName:   p.AudioFileName,
		ImageFileName:   p.ImageFileName,
		ScriptFileName:  p.ScriptFileName,
	}
}

// NewProjectDocument captures a finished run.
func NewProjectDocument(res *pipeline.Result, sourceFile string, speakerID int, custom map[string][]string, now time.Time) *ProjectDocument {
	sections := make([]ProjectSection, len(res.Sections))
	for i, s := range res.Sections {
		sections[i] = NewProjectSection(s)
	}
	settings := res.Subtitles.Settings
	return &ProjectDocument{
		Sections:            sections,
		SourceHTMLFileName:  sourceFile,
		SpeakerID:           speakerID,
		Language:            res.Language.String(),
		UpdatedAt:           now.UTC().Format(time.RFC3339),
		Subtitles:           res.Subtitles.Entries,
		SubtitleSettings:    &settings,
		CustomSubtitleTexts: custom,
		Failures:            res.Failures,
	}
}

// VideoSections returns the sections in document order.
func (d *ProjectDocument) VideoSections() []document.VideoSection {
	out := make([]document.VideoSection, len(d.Sections))
	for i, s := range d.Sections {
		out[i] = s.VideoSection()
	}
	return out
}

// Settings returns the stored subtitle settings or the defaults.
func (d *ProjectDocument) Settings() subtitle.Settings {
	if d.SubtitleSettings == nil {
		return subtitle.DefaultSettings()
	}
	return *d.SubtitleSettings
}

// Recompose rebuilds the subtitle timeline from stored durations and the
// current custom lines. No audio is read or synthesized.
func (d *ProjectDocument) Recompose(now time.Time) subtitle.Data {
	data := subtitle.Compose(pipeline.Tracks(d.VideoSections(), d.CustomSubtitleTexts), d.Settings(), now)
	d.Subtitles = data.Entries
	d.UpdatedAt = now.UTC().Format(time.RFC3339)
	return data
}

// SetCustomLines replaces the hand-edited lines of one section. Empty
// lines restore automatic splitting.
func (d *ProjectDocument) SetCustomLines(sectionID string, lines []string) {
	if len(lines) == 0 {
		delete(d.CustomSubtitleTexts, sectionID)
		return
	}
	if d.CustomSubtitleTexts == nil {
		d.CustomSubtitleTexts = make(map[string][]string)
	}
	d.CustomSubtitleTexts[sectionID] = append([]string(nil), lines...)
}

// HasSection reports whether id names one of the project's sections.
func (d *ProjectDocument) HasSection(id string) bool {
	for _, s := range d.Sections {
		if s.ID == id {
			return true
		}
	}
	return false
}

// Summary derives the index row of the project.
func (d *ProjectDocument) Summary(projectID, jobID string) ProjectSummary {
	sum := ProjectSummary{
		ID:         projectID,
		SourceFile: d.SourceHTMLFileName,
		SpeakerID:  d.SpeakerID,
		Language:   d.Language,
		Sections:   len(d.Sections),
		LastJobID:  jobID,
	}
	if t, err := time.Parse(time.RFC3339, d.UpdatedAt); err == nil {
		sum.UpdatedAt = t
	}
	for _, s := range d.Sections {
		if sum.Title == "" && s.HeadingLevel > 0 {
			sum.Title = s.Heading
		}
		if s.Duration > 0 {
			sum.VoicedSections++
		}
	}
	if n := len(d.Subtitles); n > 0 {
		sum.Duration = d.Subtitles[n-1].EndTime
	}
	return sum
}
