package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nickborrello/baystate-coordinator/internal/store"
	"github.com/nickborrello/baystate-coordinator/pkg/models"
)

// Claim is one unit of work handed to a runner: a chunk of a partitioned
// job, or a whole unchunked job small enough for a single pass. Exactly one
// field is set.
type Claim struct {
	Chunk *models.Chunk `json:"chunk,omitempty"`
	Job   *models.Job   `json:"job,omitempty"`
}

// ClaimNext atomically hands the oldest eligible work to runnerName, or
// returns (nil, nil) when nothing is available. Losing a claim race is a
// routine outcome, not an error; the runner backs off and polls again.
// Chunks win over unchunked jobs so partitioned work drains first.
func (s *Service) ClaimNext(ctx context.Context, runnerName string) (*Claim, error) {
	staleBefore := time.Now().UTC().Add(-s.reclaimThreshold)

	chunk, err := s.store.ClaimNextChunk(ctx, runnerName, staleBefore)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrClaimConflict) {
		return s.claimNextJob(ctx, runnerName)
	}
	if err != nil {
		return nil, fmt.Errorf("claim next chunk: %w", err)
	}

	// First claim on a pull-mode job starts it. A job already running (push
	// mode, or a second chunk) makes this a no-op.
	if err := s.store.TransitionJob(ctx, chunk.JobID,
		models.JobStatusPending, models.JobStatusRunning); err != nil &&
		!errors.Is(err, store.ErrInvalidTransition) {
		slog.Warn("mark job running on claim", "job_id", chunk.JobID, "error", err)
	}

	jobID := chunk.JobID.String()
	chunkID := chunk.ID.String()
	s.touchRunner(ctx, store.RunnerUpdate{
		Name:           runnerName,
		Status:         models.RunnerStatusBusy,
		CurrentJobID:   &jobID,
		CurrentChunkID: &chunkID,
	})

	slog.Info("chunk claimed", "chunk_id", chunk.ID, "job_id", chunk.JobID, "runner", runnerName)
	return &Claim{Chunk: chunk}, nil
}

func (s *Service) claimNextJob(ctx context.Context, runnerName string) (*Claim, error) {
	job, err := s.store.ClaimNextJob(ctx)
	if errors.Is(err, store.ErrNotFound) {
		s.touchRunner(ctx, store.RunnerUpdate{Name: runnerName, Status: models.RunnerStatusPolling})
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}

	jobID := job.ID.String()
	s.touchRunner(ctx, store.RunnerUpdate{
		Name:         runnerName,
		Status:       models.RunnerStatusRunning,
		CurrentJobID: &jobID,
	})

	slog.Info("job claimed", "job_id", job.ID, "runner", runnerName)
	return &Claim{Job: job}, nil
}

// ReportResult records a runner's result for a chunk it holds and reconciles
// the owning job. Reports from a runner that no longer holds the claim, and
// duplicate reports for an already-terminal chunk, are ignored: duplicate
// delivery must never double-apply counts or resurrect a reassigned chunk.
func (s *Service) ReportResult(ctx context.Context, report store.ChunkReport) error {
	if report.Status != models.ChunkStatusCompleted && report.Status != models.ChunkStatusFailed {
		return fmt.Errorf("chunk result status must be completed or failed, got %q", report.Status)
	}

	chunk, err := s.store.GetChunk(ctx, report.ChunkID)
	if err != nil {
		return err
	}

	err = s.store.CompleteChunk(ctx, report)
	if errors.Is(err, store.ErrClaimConflict) {
		slog.Info("stale chunk report ignored",
			"chunk_id", report.ChunkID, "runner", report.RunnerName)
		return nil
	}
	if err != nil {
		return fmt.Errorf("record chunk result: %w", err)
	}

	s.touchRunner(ctx, store.RunnerUpdate{Name: report.RunnerName, Status: models.RunnerStatusIdle})

	if err := s.Reconcile(ctx, chunk.JobID); err != nil {
		return fmt.Errorf("reconcile job %s: %w", chunk.JobID, err)
	}
	return nil
}

// ReportJobResult finishes an unchunked job directly. The transition is
// conditioned on the job still running, so duplicate or late reports are
// no-ops.
func (s *Service) ReportJobResult(ctx context.Context, jobID uuid.UUID, succeeded bool, errorMessage string) error {
	to := models.JobStatusCompleted
	opts := []store.JobUpdateOption{}
	if !succeeded {
		to = models.JobStatusFailed
		if errorMessage == "" {
			errorMessage = "runner reported failure"
		}
		opts = append(opts, store.WithErrorMessage(errorMessage))
	}

	err := s.store.TransitionJob(ctx, jobID, models.JobStatusRunning, to, opts...)
	if errors.Is(err, store.ErrInvalidTransition) {
		return nil
	}
	return err
}

// Heartbeat records a runner's liveness signal, provisioning the runner row
// if a freshly credentialed runner reports in before its first claim.
func (s *Service) Heartbeat(ctx context.Context, update store.RunnerUpdate) error {
	if update.Status == "" {
		update.Status = models.RunnerStatusOnline
	}

	err := s.store.TouchRunner(ctx, update)
	if errors.Is(err, store.ErrNotFound) {
		if err := s.store.UpsertRunner(ctx, &models.Runner{
			Name:      update.Name,
			Status:    update.Status,
			Metadata:  update.Metadata,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return s.store.TouchRunner(ctx, update)
	}
	return err
}

func (s *Service) touchRunner(ctx context.Context, update store.RunnerUpdate) {
	if err := s.store.TouchRunner(ctx, update); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("touch runner", "runner", update.Name, "error", err)
	}
}
