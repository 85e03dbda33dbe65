package script

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/MimeLyc/article-narrator/internal/document"
	"github.com/MimeLyc/article-narrator/internal/llm"
	"github.com/MimeLyc/article-narrator/pkg/log"
)

// DefaultConcurrency bounds in-flight LLM requests per run.
const DefaultConcurrency = 2

// CheckpointStore keeps finished batch scripts keyed by the batch's
// [start, end) section range so a retried run can skip them.
type CheckpointStore interface {
	Load(start, end int) ([]string, bool)
	Save(ctx context.Context, start, end int, scripts []string) error
}

// Generator produces one script per section.
type Generator struct {
	completer   llm.Completer
	template    Template
	maxChars    int
	concurrency int
	language    language.Tag
	checkpoints CheckpointStore
	logger      *log.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithMaxChars sets the per-request character budget.
func WithMaxChars(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxChars = n
		}
	}
}

// WithConcurrency bounds the number of batches in flight.
func WithConcurrency(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// WithTemplate sets the narrator persona.
func WithTemplate(t Template) Option {
	return func(g *Generator) {
		g.template = t
	}
}

// WithLanguage forces the narration language instead of detecting it.
func WithLanguage(tag language.Tag) Option {
	return func(g *Generator) {
		g.language = tag
	}
}

// WithCheckpoints enables batch resumption.
func WithCheckpoints(store CheckpointStore) Option {
	return func(g *Generator) {
		g.checkpoints = store
	}
}

func NewGenerator(completer llm.Completer, opts ...Option) *Generator {
	tmpl, _ := LookupTemplate(DefaultTemplateID)
	g := &Generator{
		completer:   completer,
		template:    tmpl,
		maxChars:    DefaultMaxChars,
		concurrency: DefaultConcurrency,
		language:    language.Und,
		logger:      log.With("script"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Result is the outcome of Generate.
type Result struct {
	Sections []document.VideoSection
	Batches  int
	Language language.Tag
	// Warnings lists batches that fell back to the raw section text.
	Warnings []string
}

// Generate runs every batch, concurrently up to the configured limit, and
// reassembles the scripts in document order. A failed request degrades
// its batch to the raw section text; only cancellation aborts the run.
func (g *Generator) Generate(ctx context.Context, sections []document.Section) (*Result, error) {
	batches := Split(sections, g.maxChars)

	lang := g.language
	if lang == language.Und {
		lang = DetectLanguage(sections)
	}
	system := SystemPrompt(g.template, lang)

	results := make([][]document.VideoSection, len(batches))
	warnings := make([]string, len(batches))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)

	for i, batch := range batches {
		eg.Go(func() error {
			out, warning, err := g.runBatch(egCtx, system, batch, i, len(batches))
			if err != nil {
				return err
			}
			results[i] = out
			warnings[i] = warning
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Sections: make([]document.VideoSection, 0, len(sections)),
		Batches:  len(batches),
		Language: lang,
	}
	for i := range batches {
		res.Sections = append(res.Sections, results[i]...)
		if warnings[i] != "" {
			res.Warnings = append(res.Warnings, warnings[i])
		}
	}
	return res, nil
}

func (g *Generator) runBatch(ctx context.Context, system string, batch Batch, index, total int) ([]document.VideoSection, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	if g.checkpoints != nil {
		if scripts, ok := g.checkpoints.Load(batch.Start, batch.End()); ok && len(scripts) == len(batch.Sections) {
			g.logger.Info("batch %d/%d restored from checkpoint", index+1, total)
			return withScripts(batch.Sections, scripts), "", nil
		}
	}

	g.logger.Info("batch %d/%d: %d sections, %d chars", index+1, total, len(batch.Sections), batch.Size())

	completion, err := g.completer.Complete(ctx, system, BuildPrompt(batch, index, total))
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		g.logger.Warn("batch %d/%d failed, using section text: %v", index+1, total, err)
		out, _ := resolve(Unstructured{Err: err}, batch.Sections)
		return out, fmt.Sprintf("batch %d (sections %d-%d): script generation failed: %v",
			index+1, batch.Start, batch.End()-1, err), nil
	}

	out, structured := resolve(DecodeResponse(completion.Content), batch.Sections)
	if !structured {
		return out, fmt.Sprintf("batch %d (sections %d-%d): response was not structured, using section text",
			index+1, batch.Start, batch.End()-1), nil
	}

	if g.checkpoints != nil {
		scripts := make([]string, len(out))
		for i := range out {
			scripts[i] = out[i].Script
		}
		if err := g.checkpoints.Save(ctx, batch.Start, batch.End(), scripts); err != nil {
			g.logger.Warn("batch %d/%d: save checkpoint: %v", index+1, total, err)
		}
	}
	return out, "", nil
}

func withScripts(sections []document.Section, scripts []string) []document.VideoSection {
	out := make([]document.VideoSection, len(sections))
	for i, s := range sections {
		out[i] = document.NewVideoSection(s)
		out[i].Script = scripts[i]
	}
	return out
}
