package persistence

import "time"

// BatchCheckpoint holds the scripts of one finished batch of a job.
type BatchCheckpoint struct {
	JobID      string
	BatchStart int
	BatchEnd   int
	Scripts    []string
	UpdatedAt  time.Time
}

// ProjectSummary is the index row kept for every narrated project.
type ProjectSummary struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	SourceFile     string    `json:"source_file"`
	SpeakerID      int       `json:"speaker_id"`
	Language       string    `json:"language"`
	Sections       int       `json:"sections"`
	VoicedSections int       `json:"voiced_sections"`
	Duration       float64   `json:"duration_seconds"`
	LastJobID      string    `json:"last_job_id"`
	UpdatedAt      time.Time `json:"updated_at"`
}
