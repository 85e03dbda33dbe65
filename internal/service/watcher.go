package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/article-narrator/internal/config"
	"github.com/MimeLyc/article-narrator/internal/jobs"
	"github.com/MimeLyc/article-narrator/pkg/file"
	"github.com/MimeLyc/article-narrator/pkg/icron"
	"github.com/MimeLyc/article-narrator/pkg/log"
)

const (
	// SourceWatch marks jobs enqueued by the folder watcher.
	SourceWatch = "watch"
	// SourceManual marks jobs enqueued through the API or CLI.
	SourceManual = "manual"

	initialLookback = 7 * 24 * time.Hour
)

var articleExts = []string{"html", "htm"}

// Enqueuer accepts narration jobs.
type Enqueuer interface {
	Enqueue(req jobs.EnqueueRequest) (*jobs.NarrationJob, bool)
}

// Watcher periodically scans a folder for new or changed articles and
// queues one narration job per article.
type Watcher struct {
	dir   string
	queue Enqueuer
	cron  *cron.Cron

	mu              sync.Mutex
	cronExpr        string
	speakerID       int
	entryID         cron.EntryID
	scheduled       bool
	lastTriggerTime time.Time

	group  singleflight.Group
	now    func() time.Time
	logger *log.Logger
}

func NewWatcher(cfg config.Config, engine *cron.Cron, queue Enqueuer) *Watcher {
	return &Watcher{
		dir:       cfg.Watch.Dir,
		queue:     queue,
		cron:      engine,
		cronExpr:  cfg.Watch.CronExpr,
		speakerID: cfg.VoiceVox.SpeakerID,
		now:       time.Now,
		logger:    log.With("watcher"),
	}
}

// Schedule registers the scan with the cron engine.
func (w *Watcher) Schedule(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scheduleLocked(ctx, w.cronExpr)
}

func (w *Watcher) scheduleLocked(ctx context.Context, expr string) error {
	if _, err := icron.Parse(expr); err != nil {
		return err
	}
	id, err := w.cron.AddFunc(expr, func() {
		if _, err := w.Scan(ctx); err != nil {
			w.logger.Error("Failed to scan %s: %v", w.dir, err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule watcher: %w", err)
	}
	if w.scheduled {
		w.cron.Remove(w.entryID)
	}
	w.entryID = id
	w.scheduled = true
	w.cronExpr = expr
	w.logger.Info("Watching %s on %q", w.dir, expr)
	return nil
}

// ApplyRuntimeSettings reschedules the scan when the cron expression
// changed and uses the new speaker for later jobs.
func (w *Watcher) ApplyRuntimeSettings(next config.RuntimeSettings) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if next.SpeakerID >= 0 {
		w.speakerID = next.SpeakerID
	}
	if next.CronExpr == "" || next.CronExpr == w.cronExpr {
		return nil
	}
	if !w.scheduled {
		w.cronExpr = next.CronExpr
		return nil
	}
	return w.scheduleLocked(context.Background(), next.CronExpr)
}

// Scan enqueues every article modified since the previous scan. Concurrent
// calls share one scan.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	v, err, _ := w.group.Do("scan", func() (any, error) {
		return w.scan(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (w *Watcher) scan(_ context.Context) (int, error) {
	if _, err := os.Stat(w.dir); os.IsNotExist(err) {
		return 0, fmt.Errorf("directory %s does not exist", w.dir)
	}

	scanStart := w.now()
	startTime, err := w.startTime()
	if err != nil {
		return 0, fmt.Errorf("failed to get start time: %w", err)
	}
	w.logger.Debug("Searching articles modified after %v", startTime)

	articles, err := file.FindRecentAfter(w.dir, startTime, articleExts...)
	if err != nil {
		return 0, fmt.Errorf("failed to find recent files: %w", err)
	}

	queued := 0
	for _, path := range articles {
		job, created := w.enqueue(path)
		if created {
			queued++
			w.logger.Info("Queued %s as %s (project %s)", path, job.ID, job.Payload.ProjectID)
		}
	}

	w.mu.Lock()
	w.lastTriggerTime = scanStart
	w.mu.Unlock()
	return queued, nil
}

func (w *Watcher) enqueue(path string) (*jobs.NarrationJob, bool) {
	w.mu.Lock()
	speaker := w.speakerID
	w.mu.Unlock()

	projectID := ProjectIDForPath(path)
	return w.queue.Enqueue(jobs.EnqueueRequest{
		Source:    SourceWatch,
		DedupeKey: DedupeKey(projectID, path, speaker),
		Payload: jobs.JobPayload{
			ProjectID:   projectID,
			ArticleFile: path,
			SpeakerID:   speaker,
		},
	})
}

// DedupeKey identifies equivalent narration requests.
func DedupeKey(projectID, articleFile string, speakerID int) string {
	return fmt.Sprintf("%s|%s|%d", projectID, articleFile, speakerID)
}

// startTime is the previous scan, or on the first scan the last cron
// trigger. A trigger within the past day widens the first scan to a week.
func (w *Watcher) startTime() (time.Time, error) {
	w.mu.Lock()
	last, expr := w.lastTriggerTime, w.cronExpr
	w.mu.Unlock()

	if !last.IsZero() {
		return last, nil
	}

	now := w.now()
	info, err := icron.GetTriggerInfo(expr, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get cron schedule: %w", err)
	}
	if info.Last.IsZero() || now.Add(-24*time.Hour).Before(info.Last) {
		return now.Add(-initialLookback), nil
	}
	return info.Last, nil
}
