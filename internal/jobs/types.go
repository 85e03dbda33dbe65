package jobs

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	// StatusPartial marks a finished run where some sections have no audio.
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the job will not run again.
func (s Status) Terminal() bool {
	return s != StatusPending && s != StatusRunning
}

type EnqueueRequest struct {
	Source    string
	DedupeKey string
	Payload   JobPayload
}

type JobPayload struct {
	ProjectID   string `json:"project_id"`
	ArticleFile string `json:"article_file"`
	SpeakerID   int    `json:"speaker_id"`
}

// Outcome is what an executor reports for a finished job.
type Outcome struct {
	// Failures describes sections that finished without audio.
	Failures []string
}

type NarrationJob struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	DedupeKey string     `json:"dedupe_key"`
	Payload   JobPayload `json:"payload"`
	Status    Status     `json:"status"`
	Error     string     `json:"error,omitempty"`
	Failures  []string   `json:"failures,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
