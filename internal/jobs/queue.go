package jobs

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MimeLyc/article-narrator/pkg/log"
)

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrNotRetryable = errors.New("job cannot be retried")
)

const (
	defaultMaxJobs = 1000
	pendingBuffer  = 1024
	jobIDPrefix    = "job-"
)

// Executor runs one job. A nil error with Outcome.Failures marks the job
// partial instead of successful. The context is canceled when the queue
// stops.
type Executor func(ctx context.Context, job *NarrationJob) (Outcome, error)

// Queue runs narration jobs on a fixed pool of workers. Jobs sharing a
// dedupe key collapse into one while it is pending or running.
type Queue struct {
	workerCount int
	maxJobs     int
	store       Store
	logger      *log.Logger

	mu         sync.RWMutex
	jobs       map[string]*NarrationJob
	dedupe     map[string]string
	idCounter  uint64
	started    bool
	pendingIDs chan string

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type QueueOption func(*Queue)

// WithMaxJobs bounds how many jobs are remembered. Finished jobs are
// pruned oldest first once the bound is passed; n <= 0 keeps everything.
func WithMaxJobs(n int) QueueOption {
	return func(q *Queue) {
		q.maxJobs = n
	}
}

// NewQueue creates a queue and loads unfinished jobs from store, which may
// be nil. Jobs that were running when the process died start over as
// pending.
func NewQueue(workerCount int, store Store, opts ...QueueOption) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		workerCount: max(workerCount, 1),
		maxJobs:     defaultMaxJobs,
		store:       store,
		logger:      log.With("jobs"),
		jobs:        make(map[string]*NarrationJob),
		dedupe:      make(map[string]string),
		pendingIDs:  make(chan string, pendingBuffer),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.restore()
	return q
}

// Enqueue adds a job unless a pending or running job already holds the
// dedupe key, in which case that job is returned with created false.
func (q *Queue) Enqueue(req EnqueueRequest) (*NarrationJob, bool) {
	now := time.Now()

	q.mu.Lock()
	if id, ok := q.dedupe[req.DedupeKey]; ok {
		if existing, exists := q.jobs[id]; exists {
			snapshot := cloneJob(existing)
			q.mu.Unlock()
			return snapshot, false
		}
		delete(q.dedupe, req.DedupeKey)
	}

	id := jobIDPrefix + strconv.FormatUint(atomic.AddUint64(&q.idCounter, 1), 10)
	job := &NarrationJob{
		ID:        id,
		Source:    req.Source,
		DedupeKey: req.DedupeKey,
		Payload:   req.Payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q.jobs[id] = job
	if req.DedupeKey != "" {
		q.dedupe[req.DedupeKey] = id
	}
	snapshot, started := cloneJob(job), q.started
	q.mu.Unlock()

	q.save(snapshot)
	if started {
		q.schedule(id)
	}
	return snapshot, true
}

// Retry puts a failed or partial job back in the queue under the same ID,
// so a rerun can resume from the job's script checkpoints.
func (q *Queue) Retry(id string) (*NarrationJob, error) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return nil, ErrJobNotFound
	}
	if job.Status != StatusFailed && job.Status != StatusPartial {
		q.mu.Unlock()
		return nil, fmt.Errorf("%w: job %s is %s", ErrNotRetryable, id, job.Status)
	}
	if job.DedupeKey != "" {
		if other, taken := q.dedupe[job.DedupeKey]; taken && other != id {
			q.mu.Unlock()
			return nil, fmt.Errorf("%w: job %s already covers %s", ErrNotRetryable, other, job.DedupeKey)
		}
		q.dedupe[job.DedupeKey] = id
	}
	job.Status = StatusPending
	job.Error = ""
	job.Failures = nil
	job.UpdatedAt = time.Now()
	snapshot, started := cloneJob(job), q.started
	q.mu.Unlock()

	q.logger.Info("Retrying %s (%s)", id, snapshot.Payload.ArticleFile)
	q.save(snapshot)
	if started {
		q.schedule(id)
	}
	return snapshot, nil
}

func (q *Queue) Get(id string) (*NarrationJob, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, false
	}
	return cloneJob(job), true
}

// List returns every remembered job, newest first.
func (q *Queue) List() []*NarrationJob {
	q.mu.RLock()
	ret := make([]*NarrationJob, 0, len(q.jobs))
	for _, job := range q.jobs {
		ret = append(ret, cloneJob(job))
	}
	q.mu.RUnlock()

	slices.SortFunc(ret, func(a, b *NarrationJob) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(jobSeq(b.ID), jobSeq(a.ID))
	})
	return ret
}

// Start launches the workers and schedules jobs already pending. Calls
// after the first are ignored.
func (q *Queue) Start(exec Executor) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	var pending []*NarrationJob
	for _, job := range q.jobs {
		if job.Status == StatusPending {
			pending = append(pending, job)
		}
	}
	slices.SortFunc(pending, func(a, b *NarrationJob) int {
		return cmp.Compare(jobSeq(a.ID), jobSeq(b.ID))
	})
	q.mu.Unlock()

	for _, job := range pending {
		q.schedule(job.ID)
	}
	for range q.workerCount {
		q.wg.Add(1)
		go q.worker(exec)
	}
}

// Stop cancels running jobs and waits for the workers. Jobs interrupted by
// Stop are left pending so the next start picks them up.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.cancel()
		q.wg.Wait()
	})
}

func (q *Queue) worker(exec Executor) {
	defer q.wg.Done()

	for {
		select {
		case <-q.ctx.Done():
			return
		case id := <-q.pendingIDs:
			job, ok := q.claim(id)
			if !ok {
				continue
			}
			outcome, err := exec(q.ctx, job)
			if err != nil && q.ctx.Err() != nil {
				q.requeue(id)
				continue
			}
			q.finish(id, outcome, err)
		}
	}
}

// schedule hands id to the workers without blocking the caller when the
// buffer is full.
func (q *Queue) schedule(id string) {
	select {
	case q.pendingIDs <- id:
	default:
		go func() {
			select {
			case q.pendingIDs <- id:
			case <-q.ctx.Done():
			}
		}()
	}
}

func (q *Queue) claim(id string) (*NarrationJob, bool) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok || job.Status != StatusPending {
		q.mu.Unlock()
		return nil, false
	}
	job.Status = StatusRunning
	job.UpdatedAt = time.Now()
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.logger.Info("Running %s: %s", id, snapshot.Payload.ArticleFile)
	q.save(snapshot)
	return snapshot, true
}

func (q *Queue) requeue(id string) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	job.Status = StatusPending
	job.UpdatedAt = time.Now()
	snapshot := cloneJob(job)
	q.mu.Unlock()

	q.logger.Warn("Interrupted %s, left pending", id)
	q.save(snapshot)
}

// finish records a terminal status: failed on err, partial when sections
// failed, success otherwise.
func (q *Queue) finish(id string, outcome Outcome, err error) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	switch {
	case err != nil:
		job.Status = StatusFailed
		job.Error = err.Error()
		job.Failures = nil
	case len(outcome.Failures) > 0:
		job.Status = StatusPartial
		job.Error = ""
		job.Failures = slices.Clone(outcome.Failures)
	default:
		job.Status = StatusSuccess
		job.Error = ""
		job.Failures = nil
	}
	job.UpdatedAt = time.Now()
	q.releaseDedupeLocked(job)
	pruned := q.pruneLocked()
	snapshot := cloneJob(job)
	q.mu.Unlock()

	switch snapshot.Status {
	case StatusFailed:
		q.logger.Error("Job %s failed: %s", id, snapshot.Error)
	case StatusPartial:
		q.logger.Warn("Job %s finished with %d failed sections", id, len(snapshot.Failures))
	default:
		q.logger.Info("Job %s finished", id)
	}
	q.save(snapshot)
	q.forget(pruned)
}

func (q *Queue) releaseDedupeLocked(job *NarrationJob) {
	if job.DedupeKey == "" {
		return
	}
	if id, ok := q.dedupe[job.DedupeKey]; ok && id == job.ID {
		delete(q.dedupe, job.DedupeKey)
	}
}

// pruneLocked drops the oldest finished jobs beyond maxJobs and returns
// their ids.
func (q *Queue) pruneLocked() []string {
	excess := len(q.jobs) - q.maxJobs
	if q.maxJobs <= 0 || excess <= 0 {
		return nil
	}

	var finished []*NarrationJob
	for _, job := range q.jobs {
		if job.Status.Terminal() {
			finished = append(finished, job)
		}
	}
	slices.SortFunc(finished, func(a, b *NarrationJob) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})

	pruned := make([]string, 0, min(excess, len(finished)))
	for _, job := range finished[:min(excess, len(finished))] {
		q.releaseDedupeLocked(job)
		delete(q.jobs, job.ID)
		pruned = append(pruned, job.ID)
	}
	return pruned
}

func (q *Queue) forget(ids []string) {
	if q.store == nil {
		return
	}
	for _, id := range ids {
		if err := q.store.DeleteCheckpoints(context.Background(), id); err != nil {
			q.logger.Error("Failed to delete checkpoints of pruned job %s: %v", id, err)
		}
		if err := q.store.DeleteJob(context.Background(), id); err != nil {
			q.logger.Error("Failed to delete pruned job %s: %v", id, err)
		}
	}
}

func (q *Queue) restore() {
	if q.store == nil {
		return
	}
	loaded, err := q.store.LoadJobs(q.ctx)
	if err != nil {
		q.logger.Error("Failed to load jobs: %v", err)
		return
	}

	now := time.Now()
	var reset []*NarrationJob
	q.mu.Lock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		job := cloneJob(raw)
		if job.Status == StatusRunning {
			job.Status = StatusPending
			job.UpdatedAt = now
			reset = append(reset, cloneJob(job))
		}
		q.jobs[job.ID] = job
		if job.Status == StatusPending && job.DedupeKey != "" {
			q.dedupe[job.DedupeKey] = job.ID
		}
		q.idCounter = max(q.idCounter, jobSeq(job.ID))
	}
	q.mu.Unlock()

	for _, job := range reset {
		q.save(job)
	}
	if len(loaded) > 0 {
		q.logger.Info("Restored %d jobs, %d were interrupted", len(loaded), len(reset))
	}
}

func (q *Queue) save(job *NarrationJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(context.Background(), job); err != nil {
		q.logger.Error("Failed to persist job %s: %v", job.ID, err)
	}
}

// jobSeq returns the counter part of a queue-issued id, or 0.
func jobSeq(id string) uint64 {
	n, err := strconv.ParseUint(strings.TrimPrefix(id, jobIDPrefix), 10, 64)
	if err != nil || !strings.HasPrefix(id, jobIDPrefix) {
		return 0
	}
	return n
}

func cloneJob(job *NarrationJob) *NarrationJob {
	if job == nil {
		return nil
	}
	tmp := *job
	tmp.Failures = slices.Clone(job.Failures)
	return &tmp
}
