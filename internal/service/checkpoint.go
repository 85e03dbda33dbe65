package service

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/MimeLyc/article-narrator/internal/persistence"
	"github.com/MimeLyc/article-narrator/internal/script"
)

// checkpointSaver is the part of the SQLite store a job's checkpoints need.
type checkpointSaver interface {
	LoadScriptCheckpoints(ctx context.Context, jobID string) ([]persistence.BatchCheckpoint, error)
	SaveScriptCheckpoint(ctx context.Context, jobID string, start, end int, scripts []string) error
}

// batchRange is the half-open section range [start, end) of one batch.
type batchRange struct {
	start, end int
}

// jobCheckpointStore serves one job's finished batches from memory and
// writes new ones through to the database.
type jobCheckpointStore struct {
	store checkpointSaver
	jobID string

	mu   sync.RWMutex
	done map[batchRange][]string
}

var _ script.CheckpointStore = (*jobCheckpointStore)(nil)

func newJobCheckpointStore(ctx context.Context, store checkpointSaver, jobID string) (*jobCheckpointStore, error) {
	if store == nil {
		return nil, errors.New("checkpoint store is nil")
	}
	if jobID == "" {
		return nil, errors.New("checkpoints need a job id")
	}

	saved, err := store.LoadScriptCheckpoints(ctx, jobID)
	if err != nil {
		return nil, err
	}
	done := make(map[batchRange][]string, len(saved))
	for _, cp := range saved {
		// a batch whose section count changed cannot be reused
		if len(cp.Scripts) != cp.BatchEnd-cp.BatchStart {
			continue
		}
		done[batchRange{cp.BatchStart, cp.BatchEnd}] = slices.Clone(cp.Scripts)
	}
	return &jobCheckpointStore{store: store, jobID: jobID, done: done}, nil
}

func (s *jobCheckpointStore) Load(start, end int) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scripts, ok := s.done[batchRange{start, end}]
	if !ok {
		return nil, false
	}
	return slices.Clone(scripts), true
}

func (s *jobCheckpointStore) Save(ctx context.Context, start, end int, scripts []string) error {
	scripts = slices.Clone(scripts)
	if err := s.store.SaveScriptCheckpoint(ctx, s.jobID, start, end, scripts); err != nil {
		return err
	}
	s.mu.Lock()
	s.done[batchRange{start, end}] = scripts
	s.mu.Unlock()
	return nil
}

// Len returns how many batches are already done.
func (s *jobCheckpointStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.done)
}
