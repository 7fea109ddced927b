package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job is a caller-submitted request to enrich a list of SKUs with external
// data. Small jobs (at most one chunk's worth of SKUs) are handed to a single
// worker; larger jobs are partitioned into Chunks that runners claim
// independently.
type Job struct {
	ID           uuid.UUID  `db:"id"             json:"id"`
	SKUs         []string   `db:"skus"           json:"skus"`
	Sources      []string   `db:"sources"        json:"sources"`
	TestMode     bool       `db:"test_mode"      json:"test_mode"`
	MaxRunners   int        `db:"max_runners"    json:"max_runners"`
	Status       string     `db:"status"         json:"status"`
	ErrorMessage *string    `db:"error_message"  json:"error_message,omitempty"`
	CreatedAt    time.Time  `db:"created_at"     json:"created_at"`
	CompletedAt  *time.Time `db:"completed_at"   json:"completed_at,omitempty"`
}

// Chunked reports whether the job was partitioned into chunks. Unchunked jobs
// carry their whole SKU list in the single dispatch.
func (j *Job) Chunked(chunkSize int) bool {
	return len(j.SKUs) > chunkSize
}

// Terminal reports whether the job status can no longer change.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
