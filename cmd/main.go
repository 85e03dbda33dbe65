package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MimeLyc/article-narrator/internal/config"
	"github.com/MimeLyc/article-narrator/internal/pipeline"
	"github.com/MimeLyc/article-narrator/pkg/log"
)

// Injected at build time via ldflags.
var version = "dev"

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := &cobra.Command{
		Use:           "narrator",
		Short:         "Turn HTML articles into narrated audio with synchronized subtitles",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.AddCommand(serveCmd(), runCmd(), segmentCmd(), checkCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if advice := pipeline.Advice(err); advice != "" {
			fmt.Fprintln(os.Stderr, advice)
		}
		os.Exit(pipeline.ExitCode(err))
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.NewFromEnv()
	if err != nil {
		return nil, pipeline.WrapError(err, pipeline.ErrConfig, "load configuration")
	}
	log.InitLogger(log.ParseLevel(cfg.System.LogLevel))
	return cfg, nil
}

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

// runWithComponents starts the watcher schedule and the HTTP server and
// blocks until ctx is done or the server fails. scheduler may be nil when
// no watch folder is configured.
func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, engine cronEngine, srv httpServer) error {
	if sched != nil {
		if err := sched.Schedule(ctx); err != nil {
			return err
		}
		engine.Start()
		defer func() {
			<-engine.Stop().Done()
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP API listening on %s", cfg.HTTP.Addr)
		errCh <- srv.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
