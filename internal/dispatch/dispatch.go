// Package dispatch gets partitioned work in front of the runner fleet. Two
// interchangeable strategies share the same job/chunk data model: push, which
// triggers remote workflow runs, and pull, which leaves work pending for
// runners to discover by polling.
package dispatch

import (
	"context"
	"errors"

	"github.com/nickborrello/baystate-coordinator/pkg/models"
)

// ErrNoDispatches means every trigger call failed, so no runner will ever
// pick up the job in push mode.
var ErrNoDispatches = errors.New("all dispatch attempts failed")

// Worker run modes passed to the remote trigger.
const (
	RunModeFull        = "full"
	RunModeChunkWorker = "chunk_worker"
)

// Dispatcher makes a job's work available to runners.
type Dispatcher interface {
	// Dispatch fans the job out to up to min(maxRunners, chunkCount or 1)
	// workers. Partial success is success: the outcome reports how many
	// trigger calls landed, and the job proceeds if at least one did.
	Dispatch(ctx context.Context, job *models.Job, chunkCount int) (Outcome, error)
	// Mode returns the strategy identifier ("push" or "pull").
	Mode() string
}

// Outcome summarizes a dispatch attempt.
type Outcome struct {
	Mode      string   `json:"mode"`
	Requested int      `json:"requested"`
	Succeeded int      `json:"succeeded"`
	Errors    []string `json:"errors,omitempty"`
}

// workerCount caps fan-out at the job's parallelism hint and the work that
// actually exists. Unchunked jobs get exactly one worker slot.
func workerCount(job *models.Job, chunkCount, defaultMax int) int {
	if chunkCount == 0 {
		return 1
	}
	max := job.MaxRunners
	if max <= 0 {
		max = defaultMax
	}
	if max <= 0 {
		max = 1
	}
	if chunkCount < max {
		return chunkCount
	}
	return max
}
