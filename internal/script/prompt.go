package script

import (
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/MimeLyc/article-narrator/internal/document"
)

// SystemPrompt renders the narrator persona and conversion rules. An
// undetermined lang leaves the narration language to the model.
func SystemPrompt(t Template, lang language.Tag) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf("You are \"%s\" and you write narration scripts for videos.\n\n", t.CharacterName))

	prompt.WriteString("=== CHARACTER ===\n")
	prompt.WriteString(t.Personality + "\n")

	prompt.WriteString("\n=== SPEAKING STYLE ===\n")
	prompt.WriteString(t.SpeakingStyle + "\n")

	prompt.WriteString("\n=== TONE ===\n")
	prompt.WriteString(t.toneDescription() + "\n")

	if t.Instructions != "" {
		prompt.WriteString("\n=== ADDITIONAL INSTRUCTIONS ===\n")
		prompt.WriteString(t.Instructions + "\n")
	}

	prompt.WriteString("\n=== TASK ===\n")
	prompt.WriteString("Convert blog article sections into a script to be read aloud over a video.\n")
	prompt.WriteString("1. Write natural spoken language that reads well aloud\n")
	prompt.WriteString("2. Each section should take between 30 seconds and 2 minutes to read\n")
	prompt.WriteString("3. Briefly explain technical terms\n")
	prompt.WriteString("4. Speak to the viewer while staying in character\n")
	if lang != language.Und {
		prompt.WriteString(fmt.Sprintf("5. Write the narration in %s\n", languageName(lang)))
	}

	return prompt.String()
}

// BuildPrompt renders one batch. batchIndex is zero based; the position is
// only mentioned when the article needs more than one request.
func BuildPrompt(batch Batch, batchIndex, totalBatches int) string {
	var prompt strings.Builder

	prompt.WriteString("Convert the following blog article into a video narration script.\n")

	if totalBatches > 1 {
		prompt.WriteString("\n=== BATCH ===\n")
		prompt.WriteString(fmt.Sprintf("This is batch %d of %d of the same article. Keep the tone consistent with the other batches.\n",
			batchIndex+1, totalBatches))
	}

	prompt.WriteString("\n=== ARTICLE ===\n")
	for i, s := range batch.Sections {
		if i > 0 {
			prompt.WriteString("\n")
		}
		prompt.WriteString(fmt.Sprintf("## Section: %s\n", s.ID))
		prompt.WriteString(fmt.Sprintf("### Heading: %s\n", s.Heading))
		prompt.WriteString(s.TextContent + "\n")
	}

	prompt.WriteString("\n=== OUTPUT FORMAT ===\n")
	prompt.WriteString("Return one script per section, keeping every sectionId exactly as given, in this JSON format:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString("{\n  \"sections\": [\n    {\n")
	prompt.WriteString(fmt.Sprintf("      \"sectionId\": %q,\n", exampleID(batch)))
	prompt.WriteString("      \"heading\": \"heading text\",\n")
	prompt.WriteString("      \"script\": \"narration text\"\n")
	prompt.WriteString("    }\n  ]\n}\n")
	prompt.WriteString("```\n")

	return prompt.String()
}

func exampleID(batch Batch) string {
	if len(batch.Sections) > 0 {
		return batch.Sections[0].ID
	}
	return "section-0"
}

// DetectLanguage votes over every section's text and returns the most
// common language, or language.Und for an empty article.
func DetectLanguage(sections []document.Section) language.Tag {
	votes := make(map[string]int)
	for _, s := range sections {
		text := strings.TrimSpace(s.Heading + " " + s.TextContent)
		if text == "" {
			continue
		}
		if code := whatlanggo.DetectLang(text).Iso6391(); code != "" {
			votes[code] += s.Size()
		}
	}

	var top string
	var topCount int
	for code, count := range votes {
		if count > topCount || (count == topCount && code < top) {
			top, topCount = code, count
		}
	}
	if top == "" {
		return language.Und
	}
	return language.All.Make(top)
}

func languageName(tag language.Tag) string {
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return tag.String()
}
