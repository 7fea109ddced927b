package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ChunkStatusPending   = "pending"
	ChunkStatusClaimed   = "claimed"
	ChunkStatusCompleted = "completed"
	ChunkStatusFailed    = "failed"
)

// Chunk is a bounded, ordered partition of a Job's SKU list. A chunk is
// claimed by exactly one runner at a time; claims older than the reclaim
// threshold become eligible for a different runner.
type Chunk struct {
	ID           uuid.UUID  `db:"id"           json:"id"`
	JobID        uuid.UUID  `db:"job_id"       json:"job_id"`
	Index        int        `db:"chunk_index"  json:"index"`
	SKUs         []string   `db:"skus"         json:"skus"`
	Sources      []string   `db:"sources"      json:"sources"`
	Status       string     `db:"status"       json:"status"`
	Processed    int        `db:"processed"    json:"processed"`
	Succeeded    int        `db:"succeeded"    json:"succeeded"`
	Failed       int        `db:"failed"       json:"failed"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	ClaimedBy    *string    `db:"claimed_by"   json:"claimed_by,omitempty"`
	ClaimedAt    *time.Time `db:"claimed_at"   json:"claimed_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at"   json:"created_at"`
}

// Terminal reports whether the chunk has reached a final state.
func (c *Chunk) Terminal() bool {
	return c.Status == ChunkStatusCompleted || c.Status == ChunkStatusFailed
}
