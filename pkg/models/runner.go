package models

import (
	"time"
)

const (
	RunnerStatusOffline = "offline"
	RunnerStatusOnline  = "online"
	RunnerStatusPolling = "polling"
	RunnerStatusIdle    = "idle"
	RunnerStatusRunning = "running"
	RunnerStatusBusy    = "busy"
)

// Runner is a registered worker identity. Runners are upserted on first
// credential issuance or first heartbeat and are never hard-deleted; revoking
// every credential is how a runner is retired.
type Runner struct {
	Name            string            `db:"name"              json:"name"`
	Status          string            `db:"status"            json:"status"`
	LastSeenAt      *time.Time        `db:"last_seen_at"      json:"last_seen_at,omitempty"`
	LastAuthAt      *time.Time        `db:"last_auth_at"      json:"last_auth_at,omitempty"`
	CurrentJobID    *string           `db:"current_job_id"    json:"current_job_id,omitempty"`
	CurrentChunkID  *string           `db:"current_chunk_id"  json:"current_chunk_id,omitempty"`
	Metadata        map[string]string `db:"metadata"          json:"metadata,omitempty"`
	CreatedAt       time.Time         `db:"created_at"        json:"created_at"`
}

// EffectiveStatus returns the runner's status adjusted for staleness: a runner
// not heard from within the liveness window reads as offline regardless of its
// stored status. Staleness is computed at read time, never written back.
func (r *Runner) EffectiveStatus(now time.Time, window time.Duration) string {
	if r.LastSeenAt == nil || now.Sub(*r.LastSeenAt) > window {
		return RunnerStatusOffline
	}
	return r.Status
}
