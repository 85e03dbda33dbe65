// Package pipeline runs one article through segmentation, script
// generation, speech synthesis and subtitle timing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/MimeLyc/article-narrator/internal/document"
	"github.com/MimeLyc/article-narrator/internal/script"
	"github.com/MimeLyc/article-narrator/internal/speech"
	"github.com/MimeLyc/article-narrator/internal/subtitle"
	"github.com/MimeLyc/article-narrator/internal/wav"
	"github.com/MimeLyc/article-narrator/pkg/log"
)

// DefaultSpeechConcurrency keeps section synthesis sequential.
const DefaultSpeechConcurrency = 1

// ScriptWriter produces narration scripts for sections in document order.
type ScriptWriter interface {
	Generate(ctx context.Context, sections []document.Section) (*script.Result, error)
}

// Speaker turns one section script into a WAV container.
type Speaker interface {
	Synthesize(ctx context.Context, text string, speaker int) ([]byte, error)
}

// Stage names the step a section failed in.
type Stage string

const (
	StageSpeech   Stage = "speech"
	StageAudio    Stage = "audio"
	StageDuration Stage = "duration"
)

// SectionFailure records a section that finished without usable audio.
type SectionFailure struct {
	SectionID string `json:"sectionId"`
	Stage     Stage  `json:"stage"`
	Error     string `json:"error"`
}

// Request describes one run.
type Request struct {
	ProjectID string
	HTML      string
	// Sections skips segmentation when non-empty.
	Sections  []document.Section
	SpeakerID int
	// SubtitleLines holds hand-edited lines keyed by section id.
	SubtitleLines map[string][]string
}

// Result is the outcome of a run. A run with failures is still usable:
// failed sections carry no audio and contribute no subtitles.
type Result struct {
	ProjectID string
	Sections  []document.VideoSection
	Subtitles subtitle.Data
	Failures  []SectionFailure
	Warnings  []string
	Language  language.Tag
	Batches   int
}

// Failed reports whether any section lacks audio because of an error.
func (r *Result) Failed() bool {
	return len(r.Failures) > 0
}

// Err folds the section failures into one error, nil when there are none.
// It is ErrAudio when every failed section produced unreadable audio and
// ErrSpeech otherwise.
func (r *Result) Err() error {
	if !r.Failed() {
		return nil
	}
	errType := ErrAudio
	for _, f := range r.Failures {
		if f.Stage == StageSpeech {
			errType = ErrSpeech
			break
		}
	}
	return NewError(errType, fmt.Sprintf("%d of %d sections have no audio", len(r.Failures), len(r.Sections))).
		WithContext("project", r.ProjectID)
}

// Runner wires the stages together.
type Runner struct {
	scripts     ScriptWriter
	speaker     Speaker
	settings    subtitle.Settings
	concurrency int
	now         func() time.Time
	logger      *log.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithSpeechConcurrency bounds how many sections synthesize at once.
func WithSpeechConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithSubtitleSettings(s subtitle.Settings) Option {
	return func(r *Runner) {
		r.settings = s
	}
}

// WithClock overrides the timestamp source of subtitle documents.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRunner(scripts ScriptWriter, speaker Speaker, opts ...Option) *Runner {
	r := &Runner{
		scripts:     scripts,
		speaker:     speaker,
		settings:    subtitle.DefaultSettings(),
		concurrency: DefaultSpeechConcurrency,
		now:         time.Now,
		logger:      log.With("pipeline"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the whole pipeline. Per-section synthesis failures are
// reported in Result.Failures; only invalid input, a failed script stage
// or cancellation return an error.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if err := r.settings.Validate(); err != nil {
		return nil, WrapError(err, ErrConfig, "subtitle settings")
	}

	sections := req.Sections
	if len(sections) == 0 {
		var err error
		sections, err = document.Segment(req.HTML)
		if err != nil {
			return nil, WrapError(err, ErrSegment, "segment article").
				WithContext("project", req.ProjectID)
		}
	}
	if len(sections) == 0 {
		return nil, WrapError(ErrNoSections, ErrValidation, "nothing to narrate").
			WithContext("project", req.ProjectID)
	}
	r.logger.Info("project %s: %d sections", req.ProjectID, len(sections))

	generated, err := r.scripts.Generate(ctx, sections)
	if err != nil {
		return nil, classify(ctx, err, ErrScript, "generate scripts").
			WithContext("project", req.ProjectID)
	}

	res := &Result{
		ProjectID: req.ProjectID,
		Sections:  generated.Sections,
		Warnings:  append([]string(nil), generated.Warnings...),
		Language:  generated.Language,
		Batches:   generated.Batches,
	}

	failures, err := r.synthesize(ctx, res.Sections, req.SpeakerID)
	if err != nil {
		return nil, classify(ctx, err, ErrSpeech, "synthesize speech").
			WithContext("project", req.ProjectID)
	}
	for _, f := range failures {
		if f != nil {
			res.Failures = append(res.Failures, *f)
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("section %s has no audio or subtitles: %s", f.SectionID, f.Error))
		}
	}

	res.Subtitles = subtitle.Compose(Tracks(res.Sections, req.SubtitleLines), r.settings, r.now())

	r.logger.Info("project %s: %d subtitle entries, %d failed sections",
		req.ProjectID, len(res.Subtitles.Entries), len(res.Failures))
	return res, nil
}

// synthesize fills AudioData and AudioDuration in place. Sections run
// concurrently up to the configured limit; chunks inside a section stay
// sequential in the Speaker. The returned slice is indexed like sections.
func (r *Runner) synthesize(ctx context.Context, sections []document.VideoSection, speakerID int) ([]*SectionFailure, error) {
	failures := make([]*SectionFailure, len(sections))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.concurrency)

	for i := range sections {
		eg.Go(func() error {
			return SafeExecute(func() error {
				f, err := r.synthesizeSection(egCtx, &sections[i], speakerID)
				failures[i] = f
				return err
			})
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return failures, nil
}

func (r *Runner) synthesizeSection(ctx context.Context, vs *document.VideoSection, speakerID int) (*SectionFailure, error) {
	if strings.TrimSpace(vs.Script) == "" {
		r.logger.Debug("section %s: no script, skipping speech", vs.ID)
		return nil, nil
	}

	audio, err := r.speaker.Synthesize(ctx, vs.Script, speakerID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		stage := StageSpeech
		if errors.Is(err, wav.ErrMalformed) || errors.Is(err, wav.ErrFormatMismatch) {
			stage = StageAudio
		}
		r.logger.Warn("section %s: %s failed: %v", vs.ID, stage, err)
		return &SectionFailure{SectionID: vs.ID, Stage: stage, Error: err.Error()}, nil
	}

	duration := wav.Duration(audio)
	if duration <= 0 {
		r.logger.Warn("section %s: audio has no measurable duration", vs.ID)
		return &SectionFailure{SectionID: vs.ID, Stage: StageDuration, Error: "audio has no measurable duration"}, nil
	}

	vs.AudioData = audio
	vs.AudioDuration = duration
	return nil, nil
}

// Tracks converts sections into timeline input. Sections without audio
// get a zero duration and are skipped by the composer.
func Tracks(sections []document.VideoSection, lines map[string][]string) []subtitle.Track {
	tracks := make([]subtitle.Track, len(sections))
	for i, s := range sections {
		tracks[i] = subtitle.Track{
			SectionID: s.ID,
			Script:    s.Script,
			Duration:  s.AudioDuration,
			Lines:     lines[s.ID],
		}
	}
	return tracks
}

func classify(ctx context.Context, err error, fallback ErrorType, message string) *Error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return WrapError(err, ErrCanceled, message)
	}
	return WrapError(err, fallback, message)
}

var (
	_ ScriptWriter = (*script.Generator)(nil)
	_ Speaker      = (*speech.Synthesizer)(nil)
)
