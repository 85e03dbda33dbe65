package script

import (
	"fmt"
	"sort"
	"strings"
)

// Tone is the register a narrator speaks in.
type Tone string

const (
	TonePolite Tone = "polite"
	ToneCasual Tone = "casual"
	ToneFormal Tone = "formal"
	ToneCustom Tone = "custom"
)

var toneDescriptions = map[Tone]string{
	TonePolite: "Polite and respectful. In Japanese use the desu/masu form.",
	ToneCasual: "Friendly and casual, like talking to a friend.",
	ToneFormal: "Formal and composed, like a business presentation.",
}

// Template describes the narrator persona used for every batch of a run.
type Template struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CharacterName string `json:"characterName"`
	Personality   string `json:"personality"`
	SpeakingStyle string `json:"speakingStyle"`
	Tone          Tone   `json:"tone"`
	CustomTone    string `json:"customTone,omitempty"`
	Instructions  string `json:"instructions,omitempty"`
}

// DefaultTemplateID is used when no template is configured.
const DefaultTemplateID = "default-narrator"

var builtinTemplates = map[string]Template{
	"default-narrator": {
		ID:            "default-narrator",
		Name:          "Standard narrator",
		CharacterName: "Narrator",
		Personality:   "Professional and calm. Explains information clearly to the viewer.",
		SpeakingStyle: "Clear and easy to follow, with natural pauses.",
		Tone:          TonePolite,
	},
	"zundamon": {
		ID:            "zundamon",
		Name:          "Zundamon",
		CharacterName: "ずんだもん",
		Personality:   "A cheerful, honest character from Tohoku who loves zunda mochi.",
		SpeakingStyle: "Energetic and bright.",
		Tone:          ToneCustom,
		CustomTone:    "End sentences with 「〜のだ」 or 「〜なのだ」. Cute and lively.",
		Instructions:  "Rephrase difficult words simply and talk to the viewer warmly.",
	},
	"teacher": {
		ID:            "teacher",
		Name:          "Teacher",
		CharacterName: "Teacher",
		Personality:   "Knowledgeable and kind, good at explaining to students.",
		SpeakingStyle: "Careful explanations that stress the key points.",
		Tone:          TonePolite,
		Instructions:  "Always explain technical terms. Use phrases such as \"the key point is\".",
	},
	"friendly-guide": {
		ID:            "friendly-guide",
		Name:          "Friendly guide",
		CharacterName: "Guide",
		Personality:   "Approachable, talks to the viewer like a friend.",
		SpeakingStyle: "Relaxed and open, invites the viewer along.",
		Tone:          ToneCasual,
		Instructions:  "Address the viewer directly and show empathy.",
	},
}

// LookupTemplate returns the built-in template with id.
func LookupTemplate(id string) (Template, bool) {
	t, ok := builtinTemplates[id]
	return t, ok
}

// Templates lists the built-in templates ordered by id.
func Templates() []Template {
	out := make([]Template, 0, len(builtinTemplates))
	for _, t := range builtinTemplates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Validate checks that a custom tone carries a description.
func (t Template) Validate() error {
	switch t.Tone {
	case TonePolite, ToneCasual, ToneFormal:
	case ToneCustom:
		if strings.TrimSpace(t.CustomTone) == "" {
			return fmt.Errorf("template %q: custom tone needs a description", t.ID)
		}
	default:
		return fmt.Errorf("template %q: unknown tone %q", t.ID, t.Tone)
	}
	if t.CharacterName == "" {
		return fmt.Errorf("template %q: character name is required", t.ID)
	}
	return nil
}

func (t Template) toneDescription() string {
	if t.Tone == ToneCustom {
		return t.CustomTone
	}
	return toneDescriptions[t.Tone]
}
