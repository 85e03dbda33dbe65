package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/article-narrator/internal/config"
	"github.com/MimeLyc/article-narrator/internal/document"
	"github.com/MimeLyc/article-narrator/internal/httpapi"
	"github.com/MimeLyc/article-narrator/internal/jobs"
	"github.com/MimeLyc/article-narrator/internal/persistence"
	"github.com/MimeLyc/article-narrator/internal/pipeline"
	"github.com/MimeLyc/article-narrator/internal/script"
	"github.com/MimeLyc/article-narrator/internal/service"
	"github.com/MimeLyc/article-narrator/internal/subtitle"
	"github.com/MimeLyc/article-narrator/internal/voicevox"
	"github.com/MimeLyc/article-narrator/pkg/file"
	"github.com/MimeLyc/article-narrator/pkg/icron"
	"github.com/MimeLyc/article-narrator/pkg/log"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the job queue and the watch folder schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	settings, err := loadRuntimeSettings(cfg)
	if err != nil {
		return pipeline.WrapError(err, pipeline.ErrConfig, "runtime settings")
	}

	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return pipeline.WrapError(err, pipeline.ErrStorage, "open database")
	}
	defer store.Close()

	files, err := persistence.NewFileStore(cfg.System.DataDir)
	if err != nil {
		return pipeline.WrapError(err, pipeline.ErrStorage, "open artifact store")
	}

	narrator := service.NewNarrator(*cfg, files, service.WithProjectIndex(store))
	queue := jobs.NewQueue(cfg.System.JobWorkers, store)
	queue.Start(narrator.Execute)
	defer queue.Stop()

	var (
		sched   scheduler
		watcher *service.Watcher
	)
	engine := cron.New(cron.WithParser(icron.Parser))
	if cfg.Watch.Enabled() {
		watcher = service.NewWatcher(*cfg, engine, queue)
		sched = watcher
	}

	apply := func(next config.RuntimeSettings) error {
		if err := narrator.ApplyRuntimeSettings(next); err != nil {
			return err
		}
		if watcher != nil {
			return watcher.ApplyRuntimeSettings(next)
		}
		return nil
	}

	srv := httpapi.NewServer(queue, narrator,
		httpapi.WithRuntimeSettingsStore(settings),
		httpapi.WithRuntimeSettingsApplier(apply),
		httpapi.WithProjectIndex(store),
		httpapi.WithJobDataStore(store),
		httpapi.WithSpeechEngine(voicevox.New(voicevox.WithBaseURL(cfg.VoiceVox.URL))),
		httpapi.WithDefaultSpeaker(cfg.VoiceVox.SpeakerID),
		httpapi.WithBatchMaxChars(cfg.Script.BatchMaxChars),
	)
	return runWithComponents(ctx, cfg, sched, engine, srv)
}

// loadRuntimeSettings prefers the settings file and falls back to the
// environment. The settings in effect are applied to cfg.
func loadRuntimeSettings(cfg *config.Config) (*config.RuntimeSettingsStore, error) {
	path := config.RuntimeSettingsFilePath()
	initial, err := config.LoadRuntimeSettingsFile(path)
	switch {
	case err == nil:
		initial.Apply(cfg)
		initial = cfg.RuntimeSettings()
	case errors.Is(err, os.ErrNotExist):
		initial = cfg.RuntimeSettings()
	default:
		log.Warn("Ignoring settings file %s: %v", path, err)
		initial = cfg.RuntimeSettings()
	}
	return config.NewRuntimeSettingsStore(path, initial)
}

func runCmd() *cobra.Command {
	var (
		projectID string
		speakerID int
		srt       bool
	)

	cmd := &cobra.Command{
		Use:   "run <article.html>",
		Short: "Narrate one article and write its artifacts",
		Example: `  narrator run article.html
  narrator run article.html --speaker 8 --project intro-post`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("speaker") {
				speakerID = cfg.VoiceVox.SpeakerID
			}
			if projectID == "" {
				projectID = service.ProjectIDForPath(args[0])
			}
			req := service.NarrateRequest{
				ProjectID:   projectID,
				ArticleFile: args[0],
				SpeakerID:   speakerID,
			}
			res, err := runOnce(cmd.Context(), cmd.OutOrStdout(), cfg, req)
			if res != nil && srt {
				path := file.ReplaceExt(args[0], "srt")
				if werr := writeSRTFile(path, res.Subtitles.Entries); werr != nil {
					return pipeline.WrapError(werr, pipeline.ErrStorage, "write subtitles")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Subtitles written to %s\n", path)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project id (default: derived from the article path)")
	cmd.Flags().IntVarP(&speakerID, "speaker", "s", voicevox.DefaultSpeaker, "VOICEVOX speaker style id")
	cmd.Flags().BoolVar(&srt, "srt", false, "Also write <article>.srt next to the article")
	return cmd
}

// runOnce narrates one article. The result is returned with an error when
// some sections have no audio.
func runOnce(ctx context.Context, out io.Writer, cfg *config.Config, req service.NarrateRequest) (*pipeline.Result, error) {
	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		return nil, pipeline.WrapError(err, pipeline.ErrStorage, "open database")
	}
	defer store.Close()

	files, err := persistence.NewFileStore(cfg.System.DataDir)
	if err != nil {
		return nil, pipeline.WrapError(err, pipeline.ErrStorage, "open artifact store")
	}

	narrator := service.NewNarrator(*cfg, files, service.WithProjectIndex(store))
	res, err := narrator.Narrate(ctx, req)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(out, "Project %s: %d sections, %d subtitle lines, %.2fs\n",
		req.ProjectID, len(res.Sections), len(res.Subtitles.Entries), res.Subtitles.Span())
	fmt.Fprintf(out, "Artifacts written to %s\n", files.Dir())
	for _, msg := range service.FailureMessages(res.Failures) {
		fmt.Fprintf(out, "  failed %s\n", msg)
	}
	if err := res.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func writeSRTFile(path string, entries []subtitle.Entry) error {
	var buf bytes.Buffer
	if err := subtitle.WriteSRT(&buf, entries); err != nil {
		return err
	}
	return file.WriteAtomic(path, buf.Bytes(), 0o644)
}

type segmentOutput struct {
	Sections         []document.Section `json:"sections"`
	CharCount        int                `json:"char_count"`
	Batches          []batchOutput      `json:"batches"`
	EstimatedSeconds int                `json:"estimated_seconds"`
}

type batchOutput struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Chars int `json:"chars"`
}

func segmentCmd() *cobra.Command {
	var maxChars int

	cmd := &cobra.Command{
		Use:   "segment <article.html>",
		Short: "Print the sections and script batches of an article as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return pipeline.WrapError(err, pipeline.ErrValidation, "open article")
			}
			defer f.Close()

			sections, err := document.SegmentReader(f)
			if err != nil {
				return pipeline.WrapError(err, pipeline.ErrSegment, "segment article")
			}
			return writeSegments(cmd.OutOrStdout(), sections, maxChars)
		},
	}

	cmd.Flags().IntVar(&maxChars, "max-chars", script.DefaultMaxChars, "Characters per script request")
	return cmd
}

func writeSegments(w io.Writer, sections []document.Section, maxChars int) error {
	out := segmentOutput{
		Sections:  sections,
		CharCount: document.CharCount(sections),
		Batches:   []batchOutput{},
	}
	for _, b := range script.Split(sections, maxChars) {
		out.Batches = append(out.Batches, batchOutput{Start: b.Start, End: b.End(), Chars: b.Size()})
	}
	for _, s := range sections {
		out.EstimatedSeconds += document.EstimateDuration(s.TextContent)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe the VOICEVOX engine and list its speakers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := voicevox.New(voicevox.WithBaseURL(cfg.VoiceVox.URL))
			return runCheck(cmd.Context(), cmd.OutOrStdout(), client)
		},
	}
}

type engineProbe interface {
	CheckConnection(ctx context.Context) bool
	Version(ctx context.Context) (string, error)
	Speakers(ctx context.Context) ([]voicevox.Speaker, error)
}

func runCheck(ctx context.Context, out io.Writer, engine engineProbe) error {
	if !engine.CheckConnection(ctx) {
		return pipeline.NewError(pipeline.ErrNetwork, "VOICEVOX engine is not reachable")
	}
	v, err := engine.Version(ctx)
	if err != nil {
		return pipeline.WrapError(err, pipeline.ErrNetwork, "engine version")
	}
	fmt.Fprintf(out, "VOICEVOX %s\n", v)

	speakers, err := engine.Speakers(ctx)
	if err != nil {
		return pipeline.WrapError(err, pipeline.ErrNetwork, "list speakers")
	}
	for _, sp := range speakers {
		for _, st := range sp.Styles {
			fmt.Fprintf(out, "%4d  %s (%s)\n", st.ID, sp.Name, st.Name)
		}
	}
	return nil
}
