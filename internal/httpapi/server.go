package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/MimeLyc/article-narrator/internal/config"
	"github.com/MimeLyc/article-narrator/internal/jobs"
	"github.com/MimeLyc/article-narrator/internal/persistence"
	"github.com/MimeLyc/article-narrator/internal/script"
	"github.com/MimeLyc/article-narrator/internal/voicevox"
)

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

// projectService reads and edits stored projects.
type projectService interface {
	LoadProject(projectID string) (*persistence.ProjectDocument, error)
	UpdateSubtitleLines(ctx context.Context, projectID, sectionID string, lines []string) (*persistence.ProjectDocument, error)
}

// projectIndex lists projects without reading their files.
type projectIndex interface {
	ListProjects(ctx context.Context) ([]persistence.ProjectSummary, error)
	GetProject(ctx context.Context, id string) (persistence.ProjectSummary, bool, error)
}

type jobDataStore interface {
	LoadScriptCheckpoints(ctx context.Context, jobID string) ([]persistence.BatchCheckpoint, error)
}

// speechEngine is the VOICEVOX surface the health and speaker routes use.
type speechEngine interface {
	CheckConnection(ctx context.Context) bool
	Version(ctx context.Context) (string, error)
	Speakers(ctx context.Context) ([]voicevox.Speaker, error)
}

type Server struct {
	queue    *jobs.Queue
	projects projectService
	index    projectIndex
	jobData  jobDataStore
	engine   speechEngine
	settings runtimeSettingsStore
	apply    runtimeSettingsApplier

	defaultSpeaker int
	batchMaxChars  int

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

func WithProjectIndex(index projectIndex) Option {
	return func(s *Server) {
		s.index = index
	}
}

func WithJobDataStore(store jobDataStore) Option {
	return func(s *Server) {
		s.jobData = store
	}
}

func WithSpeechEngine(engine speechEngine) Option {
	return func(s *Server) {
		s.engine = engine
	}
}

// WithDefaultSpeaker is used for jobs that name no speaker when no
// settings store is configured.
func WithDefaultSpeaker(id int) Option {
	return func(s *Server) {
		s.defaultSpeaker = id
	}
}

// WithBatchMaxChars sets the request budget used for previews and progress.
func WithBatchMaxChars(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.batchMaxChars = n
		}
	}
}

func NewServer(queue *jobs.Queue, projects projectService, opts ...Option) *Server {
	s := &Server{
		queue:          queue,
		projects:       projects,
		defaultSpeaker: voicevox.DefaultSpeaker,
		batchMaxChars:  script.DefaultMaxChars,
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/jobs/stream", s.handleJobStream)
	s.mux.HandleFunc("/api/jobs/", s.handleJobDetailRoutes)
	s.mux.HandleFunc("/api/projects", s.handleListProjects)
	s.mux.HandleFunc("/api/projects/", s.handleProjectRoutes)
	s.mux.HandleFunc("/api/segment", s.handleSegment)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/speakers", s.handleSpeakers)
}
