package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/article-narrator/internal/config"
	"github.com/MimeLyc/article-narrator/internal/jobs"
	"github.com/MimeLyc/article-narrator/internal/llm"
	"github.com/MimeLyc/article-narrator/internal/persistence"
	"github.com/MimeLyc/article-narrator/internal/pipeline"
	"github.com/MimeLyc/article-narrator/internal/script"
	"github.com/MimeLyc/article-narrator/internal/speech"
	"github.com/MimeLyc/article-narrator/internal/subtitle"
	"github.com/MimeLyc/article-narrator/internal/termmap"
	"github.com/MimeLyc/article-narrator/internal/voicevox"
	"github.com/MimeLyc/article-narrator/pkg/file"
	"github.com/MimeLyc/article-narrator/pkg/log"
)

// CompleterFactory builds the script-generation client for one run.
type CompleterFactory func(ctx context.Context, cfg *llm.Config) (llm.Completer, error)

// TTSFactory builds the speech engine client for one run.
type TTSFactory func(cfg config.VoiceVoxConfig) speech.TTS

// ProjectIndex is the part of the SQLite store the narrator writes to.
type ProjectIndex interface {
	checkpointSaver
	UpsertProject(ctx context.Context, p persistence.ProjectSummary) error
}

// NarrateRequest names one article to narrate.
type NarrateRequest struct {
	ProjectID   string
	JobID       string
	ArticleFile string
	SpeakerID   int
}

// Narrator runs the pipeline for an article and stores every artifact of
// the run in the file store.
type Narrator struct {
	mu  sync.RWMutex
	cfg config.Config

	files        *persistence.FileStore
	index        ProjectIndex
	newCompleter CompleterFactory
	newTTS       TTSFactory
	now          func() time.Time
	logger       *log.Logger

	// projectMu guards projectLocks; each project lock serializes
	// read-modify-write cycles on that project's document.
	projectMu    sync.Mutex
	projectLocks map[string]*sync.Mutex
}

type NarratorOption func(*Narrator)

// WithProjectIndex enables batch checkpoints and the project table.
func WithProjectIndex(index ProjectIndex) NarratorOption {
	return func(n *Narrator) {
		n.index = index
	}
}

func WithCompleterFactory(f CompleterFactory) NarratorOption {
	return func(n *Narrator) {
		if f != nil {
			n.newCompleter = f
		}
	}
}

func WithTTSFactory(f TTSFactory) NarratorOption {
	return func(n *Narrator) {
		if f != nil {
			n.newTTS = f
		}
	}
}

func WithClock(now func() time.Time) NarratorOption {
	return func(n *Narrator) {
		if now != nil {
			n.now = now
		}
	}
}

func NewNarrator(cfg config.Config, files *persistence.FileStore, opts ...NarratorOption) *Narrator {
	n := &Narrator{
		cfg:          cfg,
		files:        files,
		newCompleter: llm.NewCompleter,
		newTTS:       NewVoiceVoxClient,
		now:          time.Now,
		logger:       log.With("narrator"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NewVoiceVoxClient is the default TTSFactory.
func NewVoiceVoxClient(cfg config.VoiceVoxConfig) speech.TTS {
	return voicevox.New(
		voicevox.WithBaseURL(cfg.URL),
		voicevox.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second}),
	)
}

// NewProjectID returns a fresh random project id.
func NewProjectID() string {
	return uuid.NewString()
}

// ProjectIDForPath derives a stable project id from an article path so a
// rewritten article replaces its earlier project.
func ProjectIDForPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs)).String()
}

// Config returns a copy of the current configuration.
func (n *Narrator) Config() config.Config {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.cfg
}

// Files returns the artifact store.
func (n *Narrator) Files() *persistence.FileStore {
	return n.files
}

// ApplyRuntimeSettings makes next visible to runs that start afterwards.
func (n *Narrator) ApplyRuntimeSettings(next config.RuntimeSettings) error {
	if err := next.Validate(); err != nil {
		return err
	}
	n.mu.Lock()
	next.Apply(&n.cfg)
	n.mu.Unlock()
	return nil
}

// Execute is the jobs.Executor of the narration queue.
func (n *Narrator) Execute(ctx context.Context, job *jobs.NarrationJob) (jobs.Outcome, error) {
	res, err := n.Narrate(ctx, NarrateRequest{
		ProjectID:   job.Payload.ProjectID,
		JobID:       job.ID,
		ArticleFile: job.Payload.ArticleFile,
		SpeakerID:   job.Payload.SpeakerID,
	})
	if err != nil {
		return jobs.Outcome{}, err
	}
	return jobs.Outcome{Failures: FailureMessages(res.Failures)}, nil
}

// FailureMessages renders section failures for job records.
func FailureMessages(failures []pipeline.SectionFailure) []string {
	if len(failures) == 0 {
		return nil
	}
	out := make([]string, len(failures))
	for i, f := range failures {
		out[i] = fmt.Sprintf("%s: %s: %s", f.SectionID, f.Stage, f.Error)
	}
	return out
}

// Narrate reads the article, runs the pipeline and persists the result.
// Hand-edited subtitle lines of an existing project are carried over.
func (n *Narrator) Narrate(ctx context.Context, req NarrateRequest) (*pipeline.Result, error) {
	cfg := n.Config()
	if req.ProjectID == "" {
		req.ProjectID = NewProjectID()
	}

	html, err := os.ReadFile(req.ArticleFile)
	if err != nil {
		return nil, pipeline.WrapError(err, pipeline.ErrValidation, "read article").
			WithContext("file", req.ArticleFile)
	}

	runner, closer, err := n.runner(ctx, cfg, req.JobID, n.readings(cfg, req.ArticleFile))
	if err != nil {
		return nil, err
	}
	defer closer()

	existing, err := n.files.LoadProject(req.ProjectID)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		n.logger.Warn("project %s: ignoring unreadable project file: %v", req.ProjectID, err)
	}
	var custom map[string][]string
	if existing != nil {
		custom = existing.CustomSubtitleTexts
	}

	n.logger.Info("project %s: narrating %s with speaker %d", req.ProjectID, req.ArticleFile, req.SpeakerID)
	res, err := runner.Run(ctx, pipeline.Request{
		ProjectID:     req.ProjectID,
		HTML:          string(html),
		SpeakerID:     req.SpeakerID,
		SubtitleLines: custom,
	})
	if err != nil {
		return nil, err
	}

	if err := n.persist(ctx, req, html, res, custom); err != nil {
		return nil, pipeline.WrapError(err, pipeline.ErrStorage, "save project").
			WithContext("project", req.ProjectID)
	}
	for _, w := range res.Warnings {
		n.logger.Warn("project %s: %s", req.ProjectID, w)
	}
	return res, nil
}

func (n *Narrator) runner(ctx context.Context, cfg config.Config, jobID string, readings termmap.TermMap) (*pipeline.Runner, func(), error) {
	if err := cfg.RequireLLM(); err != nil {
		return nil, nil, pipeline.WrapError(err, pipeline.ErrConfig, "llm settings")
	}
	tmpl, ok := script.LookupTemplate(cfg.Script.TemplateID)
	if !ok {
		return nil, nil, pipeline.NewError(pipeline.ErrConfig, "unknown script template").
			WithContext("template", cfg.Script.TemplateID)
	}

	llmCfg := cfg.LLM
	completer, err := n.newCompleter(ctx, &llmCfg)
	if err != nil {
		return nil, nil, pipeline.WrapError(err, pipeline.ErrConfig, "create llm client")
	}
	closer := func() {}
	if c, ok := completer.(io.Closer); ok {
		closer = func() { _ = c.Close() }
	}

	genOpts := []script.Option{
		script.WithMaxChars(cfg.Script.BatchMaxChars),
		script.WithConcurrency(cfg.Script.Concurrency),
		script.WithTemplate(tmpl),
		script.WithLanguage(cfg.Script.Language),
	}
	if n.index != nil && jobID != "" {
		cp, err := newJobCheckpointStore(ctx, n.index, jobID)
		if err != nil {
			closer()
			return nil, nil, pipeline.WrapError(err, pipeline.ErrStorage, "load checkpoints").
				WithContext("job", jobID)
		}
		if done := cp.Len(); done > 0 {
			n.logger.Info("job %s: resuming with %d finished batches", jobID, done)
		}
		genOpts = append(genOpts, script.WithCheckpoints(cp))
	}

	synth := speech.NewSynthesizer(n.newTTS(cfg.VoiceVox),
		speech.WithChunkLimit(cfg.Speech.ChunkLimit),
		speech.WithDelay(cfg.Speech.Delay),
		speech.WithSpeedScale(cfg.Speech.SpeedScale),
		speech.WithReadings(readings),
	)

	runner := pipeline.NewRunner(script.NewGenerator(completer, genOpts...), synth,
		pipeline.WithSpeechConcurrency(cfg.Speech.Concurrency),
		pipeline.WithSubtitleSettings(SubtitleSettings(cfg)),
		pipeline.WithClock(n.now),
	)
	return runner, closer, nil
}

// readings merges the term_map.<lang>.json files at or above the article,
// nearer files first in priority, then the configured SPEECH_TERM_MAP file
// on top. A broken file is skipped with a warning.
func (n *Narrator) readings(cfg config.Config, articleFile string) termmap.TermMap {
	tm, paths, err := termmap.LoadTree(filepath.Dir(articleFile), cfg.Script.Language)
	if err != nil {
		n.logger.Warn("ignoring term maps above %s: %v", articleFile, err)
		tm, paths = nil, nil
	}
	if cfg.Speech.TermMapFile != "" {
		extra, err := termmap.Load(cfg.Speech.TermMapFile)
		if err != nil {
			n.logger.Warn("ignoring term map %s: %v", cfg.Speech.TermMapFile, err)
		} else {
			tm = termmap.Merge(tm, extra)
			paths = append(paths, cfg.Speech.TermMapFile)
		}
	}
	if len(paths) > 0 {
		n.logger.Info("loaded %d readings from %s", len(tm), strings.Join(paths, ", "))
	}
	return tm
}

// SubtitleSettings maps the subtitle config onto timeline settings.
func SubtitleSettings(cfg config.Config) subtitle.Settings {
	return subtitle.Settings{
		MaxCharsPerLine:    cfg.Subtitle.MaxCharsPerLine,
		PlaybackRate:       cfg.Subtitle.PlaybackRate,
		SplitByPunctuation: cfg.Subtitle.SplitByPunctuation,
	}
}

func (n *Narrator) persist(ctx context.Context, req NarrateRequest, html []byte, res *pipeline.Result, custom map[string][]string) error {
	articleName, err := n.files.SaveArticle(req.ProjectID, html)
	if err != nil {
		return err
	}

	for i := range res.Sections {
		s := &res.Sections[i]
		if strings.TrimSpace(s.Script) != "" {
			name, err := n.files.SaveScript(req.ProjectID, s.ID, s.Heading, s.Script)
			if err != nil {
				return err
			}
			s.ScriptFileName = name
		}
		if s.HasAudio() {
			name, err := n.files.SaveAudio(req.ProjectID, s.ID, s.AudioData)
			if err != nil {
				return err
			}
			s.AudioFileName = name
		}
	}

	unlock := n.lockProject(req.ProjectID)
	defer unlock()

	// Lines edited while the run was in flight replace the ones it started with.
	current, err := n.files.LoadProject(req.ProjectID)
	switch {
	case err == nil:
		custom = current.CustomSubtitleTexts
	case !errors.Is(err, persistence.ErrNotFound):
		n.logger.Warn("project %s: keeping subtitle edits from run start: %v", req.ProjectID, err)
	}

	doc := persistence.NewProjectDocument(res, articleName, req.SpeakerID, custom, n.now())
	res.Subtitles = doc.Recompose(n.now())

	if _, err := n.files.SaveSubtitles(req.ProjectID, res.Subtitles.Entries); err != nil {
		return err
	}
	if _, err := n.files.SaveProject(req.ProjectID, doc); err != nil {
		return err
	}

	if n.index != nil {
		summary := doc.Summary(req.ProjectID, req.JobID)
		if summary.Title == "" {
			summary.Title = file.Stem(req.ArticleFile)
		}
		if err := n.index.UpsertProject(ctx, summary); err != nil {
			return err
		}
	}
	return nil
}

// lockProject blocks until the caller holds the project's lock and returns
// the matching unlock.
func (n *Narrator) lockProject(projectID string) func() {
	n.projectMu.Lock()
	if n.projectLocks == nil {
		n.projectLocks = make(map[string]*sync.Mutex)
	}
	mu, ok := n.projectLocks[projectID]
	if !ok {
		mu = &sync.Mutex{}
		n.projectLocks[projectID] = mu
	}
	n.projectMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

var _ jobs.Executor = (*Narrator)(nil).Execute
