package jobs

import "context"

// Store keeps narration jobs across restarts. A queue created with a nil
// Store lives in memory only.
type Store interface {
	LoadJobs(ctx context.Context) ([]*NarrationJob, error)
	SaveJob(ctx context.Context, job *NarrationJob) error
	DeleteJob(ctx context.Context, jobID string) error
	// DeleteCheckpoints drops the script batches cached for a pruned job.
	DeleteCheckpoints(ctx context.Context, jobID string) error
}
