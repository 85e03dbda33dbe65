package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_Enqueue_DeduplicatesSameKey(t *testing.T) {
	q := NewQueue(2, nil)

	jobA, createdA := q.Enqueue(EnqueueRequest{
		Source:    "manual",
		DedupeKey: "project-a|/articles/a.html|3",
	})
	jobB, createdB := q.Enqueue(EnqueueRequest{
		Source:    "cron",
		DedupeKey: "project-a|/articles/a.html|3",
	})

	require.True(t, createdA)
	require.False(t, createdB)
	require.NotNil(t, jobA)
	require.NotNil(t, jobB)
	assert.Equal(t, jobA.ID, jobB.ID)
}

func TestQueue_Enqueue_AllowsRetryAfterFailure(t *testing.T) {
	q := NewQueue(1, nil)

	var attempts int
	q.Start(func(_ context.Context, _ *NarrationJob) (Outcome, error) {
		attempts++
		if attempts == 1 {
			return Outcome{}, assert.AnError
		}
		return Outcome{}, nil
	})
	defer q.Stop()

	first, created := q.Enqueue(EnqueueRequest{
		Source:    "manual",
		DedupeKey: "retry-key",
	})
	require.True(t, created)
	require.NotNil(t, first)

	require.Eventually(t, func() bool {
		got, ok := q.Get(first.ID)
		return ok && got != nil && got.Status == StatusFailed
	}, time.Second, 10*time.Millisecond)

	second, created := q.Enqueue(EnqueueRequest{
		Source:    "manual",
		DedupeKey: "retry-key",
	})
	require.True(t, created)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)

	require.Eventually(t, func() bool {
		got, ok := q.Get(second.ID)
		return ok && got != nil && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_Enqueue_AllowsRetryAfterSuccess(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(_ context.Context, _ *NarrationJob) (Outcome, error) { return Outcome{}, nil })
	defer q.Stop()

	first, created := q.Enqueue(EnqueueRequest{
		Source:    "manual",
		DedupeKey: "done-key",
	})
	require.True(t, created)
	require.NotNil(t, first)

	require.Eventually(t, func() bool {
		got, ok := q.Get(first.ID)
		return ok && got != nil && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)

	second, created := q.Enqueue(EnqueueRequest{
		Source:    "manual",
		DedupeKey: "done-key",
	})
	require.True(t, created)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestQueue_PartialOutcome(t *testing.T) {
	q := NewQueue(1, nil)
	q.Start(func(_ context.Context, _ *NarrationJob) (Outcome, error) {
		return Outcome{Failures: []string{"section-1: speech: engine returned empty audio"}}, nil
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: "partial"})

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusPartial
	}, time.Second, 10*time.Millisecond)

	got, _ := q.Get(job.ID)
	require.Len(t, got.Failures, 1)
	assert.Contains(t, got.Failures[0], "section-1")
	assert.True(t, got.Status.Terminal())
}

func TestQueue_RetryKeepsJobID(t *testing.T) {
	q := NewQueue(1, nil)

	var attempts int
	var seen []string
	q.Start(func(_ context.Context, job *NarrationJob) (Outcome, error) {
		attempts++
		seen = append(seen, job.ID)
		if attempts == 1 {
			return Outcome{}, assert.AnError
		}
		return Outcome{}, nil
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: "retry"})
	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusFailed
	}, time.Second, 10*time.Millisecond)

	retried, err := q.Retry(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, retried.ID)
	assert.Equal(t, StatusPending, retried.Status)
	assert.Empty(t, retried.Error)

	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{job.ID, job.ID}, seen)
}

func TestQueue_RetryRejectsUnknownAndActive(t *testing.T) {
	q := NewQueue(1, nil)

	_, err := q.Retry("job-404")
	require.ErrorIs(t, err, ErrJobNotFound)

	job, _ := q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: "pending"})
	_, err = q.Retry(job.ID)
	require.ErrorIs(t, err, ErrNotRetryable)
}

func TestQueue_Worker_TransitionsStatus(t *testing.T) {
	q := NewQueue(1, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	q.Start(func(_ context.Context, _ *NarrationJob) (Outcome, error) {
		close(started)
		<-release
		return Outcome{}, nil
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: "k1"})
	assert.Equal(t, StatusPending, job.Status)

	<-started
	got, _ := q.Get(job.ID)
	assert.Equal(t, StatusRunning, got.Status)

	close(release)
	require.Eventually(t, func() bool {
		got, ok := q.Get(job.ID)
		return ok && got.Status == StatusSuccess
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_ListNewestFirst(t *testing.T) {
	q := NewQueue(1, nil)
	first, _ := q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: "one"})
	second, _ := q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: "two"})

	list := q.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestQueue_FailureClearsPreviousFailures(t *testing.T) {
	q := NewQueue(1, nil)

	var calls int
	q.Start(func(context.Context, *NarrationJob) (Outcome, error) {
		calls++
		if calls == 1 {
			return Outcome{Failures: []string{"section-2: speech: timeout"}}, nil
		}
		return Outcome{}, assert.AnError
	})
	defer q.Stop()

	job, _ := q.Enqueue(EnqueueRequest{Source: "manual", DedupeKey: "flaky"})
	require.Eventually(t, func() bool {
		got, _ := q.Get(job.ID)
		return got.Status == StatusPartial
	}, time.Second, 10*time.Millisecond)

	_, err := q.Retry(job.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, _ := q.Get(job.ID)
		return got.Status == StatusFailed
	}, time.Second, 10*time.Millisecond)

	got, _ := q.Get(job.ID)
	assert.Empty(t, got.Failures)
	assert.Equal(t, assert.AnError.Error(), got.Error)
}
