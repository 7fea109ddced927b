package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nickborrello/baystate-coordinator/internal/config"
	"github.com/nickborrello/baystate-coordinator/internal/dispatch/workflow"
	"github.com/nickborrello/baystate-coordinator/pkg/models"
)

// PushDispatcher actively triggers one remote workflow run per desired worker.
// Trigger calls are issued concurrently and independently; a slow or failing
// call never blocks the others, and a successful subset is accepted.
type PushDispatcher struct {
	trigger    workflow.Trigger
	maxRunners int
}

func NewPushDispatcher(trigger workflow.Trigger, maxRunners int) *PushDispatcher {
	return &PushDispatcher{trigger: trigger, maxRunners: maxRunners}
}

func (d *PushDispatcher) Mode() string { return config.DispatchModePush }

func (d *PushDispatcher) Dispatch(ctx context.Context, job *models.Job, chunkCount int) (Outcome, error) {
	workers := workerCount(job, chunkCount, d.maxRunners)

	params := workflow.RunParams{
		JobID:       job.ID.String(),
		Concurrency: workers,
		TestMode:    job.TestMode,
	}
	if chunkCount == 0 {
		// Single-unit job: the one worker gets the whole SKU list and runs it
		// in a single pass.
		params.Mode = RunModeFull
		params.SKUs = job.SKUs
		params.Sources = job.Sources
	} else {
		// Chunked job: workers carry no SKUs and claim chunks until none are
		// left.
		params.Mode = RunModeChunkWorker
	}

	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			results <- d.trigger.TriggerRun(ctx, params)
		}()
	}

	outcome := Outcome{Mode: d.Mode(), Requested: workers}
	for i := 0; i < workers; i++ {
		if err := <-results; err != nil {
			outcome.Errors = append(outcome.Errors, err.Error())
		} else {
			outcome.Succeeded++
		}
	}

	if outcome.Succeeded == 0 {
		return outcome, fmt.Errorf("%w: %d attempts", ErrNoDispatches, outcome.Requested)
	}
	if len(outcome.Errors) > 0 {
		slog.Warn("partial dispatch",
			"job_id", job.ID,
			"requested", outcome.Requested,
			"succeeded", outcome.Succeeded,
		)
	}
	return outcome, nil
}
