package document

// IntroductionHeading labels text that is not anchored at any heading.
const IntroductionHeading = "introduction"

// Section is a document fragment anchored at a heading.
type Section struct {
	ID           string `json:"id"`
	Heading      string `json:"heading"`
	HeadingLevel int    `json:"headingLevel"` // 0 for introduction
	TextContent  string `json:"textContent"`
}

// VisualType selects what a renderer shows while a section plays.
type VisualType string

const (
	VisualAIImage VisualType = "ai-image"
	VisualSlide   VisualType = "slide"
	VisualNone    VisualType = "none"
)

// VideoSection accumulates the derived artifacts of one section during a run.
type VideoSection struct {
	Section
	Script          string     `json:"script"`
	AudioData       []byte     `json:"-"`
	AudioDuration   float64    `json:"audioDuration,omitempty"` // seconds, 0 when unknown
	VisualType      VisualType `json:"visualType"`
	SelectedSlideID string     `json:"selectedSlideId,omitempty"`
	AudioFileName   string     `json:"audioFileName,omitempty"`
	ImageFileName   string     `json:"imageFileName,omitempty"`
	ScriptFileName  string     `json:"scriptFileName,omitempty"`
}

// NewVideoSection wraps s with no script and no visual.
func NewVideoSection(s Section) VideoSection {
	return VideoSection{Section: s, VisualType: VisualNone}
}

// HasAudio reports whether audio bytes have been attached.
func (v VideoSection) HasAudio() bool {
	return len(v.AudioData) > 0
}
