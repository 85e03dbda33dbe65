package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu          sync.Mutex
	jobs        map[string]*NarrationJob
	checkpoints map[string]bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		jobs:        make(map[string]*NarrationJob),
		checkpoints: make(map[string]bool),
	}
}

func (m *memoryStore) LoadJobs(context.Context) ([]*NarrationJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]*NarrationJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		ret = append(ret, cloneJob(j))
	}
	return ret, nil
}

func (m *memoryStore) SaveJob(_ context.Context, job *NarrationJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *memoryStore) DeleteJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
	return nil
}

func (m *memoryStore) DeleteCheckpoints(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkpoints, jobID)
	return nil
}

func (m *memoryStore) status(id string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return "", false
	}
	return job.Status, true
}

func storedJob(id, article string, status Status, at time.Time) *NarrationJob {
	return &NarrationJob{
		ID:        id,
		Source:    "cron",
		DedupeKey: "p|" + article + "|3",
		Status:    status,
		Payload:   JobPayload{ProjectID: "p", ArticleFile: article, SpeakerID: 3},
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestQueue_RecoversPendingAndRunningJobsFromStore(t *testing.T) {
	store := newMemoryStore()
	now := time.Now()
	store.jobs["job-1"] = storedJob("job-1", "/articles/one.html", StatusPending, now)
	store.jobs["job-2"] = storedJob("job-2", "/articles/two.html", StatusRunning, now)

	q := NewQueue(1, store)

	got, ok := q.Get("job-2")
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status)
	status, _ := store.status("job-2")
	assert.Equal(t, StatusPending, status)

	_, created := q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: "p|/articles/two.html|3"})
	assert.False(t, created)

	var mu sync.Mutex
	var order []string
	q.Start(func(_ context.Context, job *NarrationJob) (Outcome, error) {
		mu.Lock()
		order = append(order, job.ID)
		mu.Unlock()
		return Outcome{}, nil
	})
	defer q.Stop()

	require.Eventually(t, func() bool {
		a, _ := store.status("job-1")
		b, _ := store.status("job-2")
		return a == StatusSuccess && b == StatusSuccess
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"job-1", "job-2"}, order)
}

func TestQueue_ContinuesIDsAfterRestore(t *testing.T) {
	store := newMemoryStore()
	store.jobs["job-41"] = storedJob("job-41", "/articles/old.html", StatusSuccess, time.Now())

	q := NewQueue(1, store)
	job, created := q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: "new"})

	require.True(t, created)
	assert.Equal(t, "job-42", job.ID)
}

func TestQueue_StopLeavesInterruptedJobPending(t *testing.T) {
	store := newMemoryStore()
	q := NewQueue(1, store)

	running := make(chan struct{})
	q.Start(func(ctx context.Context, _ *NarrationJob) (Outcome, error) {
		close(running)
		<-ctx.Done()
		return Outcome{}, ctx.Err()
	})

	job, _ := q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: "long"})
	<-running
	q.Stop()

	got, ok := q.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status)
	assert.Empty(t, got.Error)
	status, _ := store.status(job.ID)
	assert.Equal(t, StatusPending, status)
}

func TestQueue_PrunesOldestFinishedJobs(t *testing.T) {
	store := newMemoryStore()
	q := NewQueue(1, store, WithMaxJobs(2))
	q.Start(func(context.Context, *NarrationJob) (Outcome, error) { return Outcome{}, nil })
	defer q.Stop()

	var ids []string
	for _, key := range []string{"a", "b", "c"} {
		job, _ := q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: key})
		store.mu.Lock()
		store.checkpoints[job.ID] = true
		store.mu.Unlock()
		ids = append(ids, job.ID)
		require.Eventually(t, func() bool {
			got, ok := q.Get(job.ID)
			return ok && got.Status == StatusSuccess
		}, time.Second, 10*time.Millisecond)
	}

	_, ok := q.Get(ids[0])
	assert.False(t, ok)
	assert.Len(t, q.List(), 2)

	require.Eventually(t, func() bool {
		_, stored := store.status(ids[0])
		return !stored
	}, time.Second, 10*time.Millisecond)
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.NotContains(t, store.checkpoints, ids[0])
	assert.Contains(t, store.checkpoints, ids[2])
}
