package dispatch

import (
	"context"

	"github.com/nickborrello/baystate-coordinator/internal/config"
	"github.com/nickborrello/baystate-coordinator/pkg/models"
)

// PullDispatcher performs no outbound calls: runners discover pending work by
// polling the claim endpoint, and fleet liveness substitutes for dispatch
// acknowledgement.
type PullDispatcher struct {
	maxRunners int
}

func NewPullDispatcher(maxRunners int) *PullDispatcher {
	return &PullDispatcher{maxRunners: maxRunners}
}

func (d *PullDispatcher) Mode() string { return config.DispatchModePull }

func (d *PullDispatcher) Dispatch(_ context.Context, job *models.Job, chunkCount int) (Outcome, error) {
	return Outcome{
		Mode:      d.Mode(),
		Requested: workerCount(job, chunkCount, d.maxRunners),
	}, nil
}
