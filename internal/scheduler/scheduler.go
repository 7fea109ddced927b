// Package scheduler partitions enrichment requests into claimable chunks,
// hands them to the dispatcher, and rolls chunk progress back up into job
// state.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nickborrello/baystate-coordinator/internal/dispatch"
	"github.com/nickborrello/baystate-coordinator/internal/store"
	"github.com/nickborrello/baystate-coordinator/pkg/models"
)

var ErrNoSKUs = errors.New("at least one SKU is required")

// SubmitRequest is a caller's enrichment request. Duplicate SKUs are passed
// through as-is; deduplication is the caller's concern.
type SubmitRequest struct {
	SKUs       []string
	Sources    []string
	TestMode   bool
	MaxRunners int
}

// Service coordinates job submission, chunk claiming, and reporting.
type Service struct {
	store            store.Store
	dispatcher       dispatch.Dispatcher
	chunkSize        int
	reclaimThreshold time.Duration
}

func NewService(s store.Store, d dispatch.Dispatcher, chunkSize int, reclaimThreshold time.Duration) *Service {
	return &Service{
		store:            s,
		dispatcher:       d,
		chunkSize:        chunkSize,
		reclaimThreshold: reclaimThreshold,
	}
}

// Submit creates a job, partitions it when it exceeds the chunk size, and
// dispatches it. A job whose chunks cannot be persisted or that cannot reach a
// single worker is marked failed rather than left pending forever.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*models.Job, dispatch.Outcome, error) {
	if len(req.SKUs) == 0 {
		return nil, dispatch.Outcome{}, ErrNoSKUs
	}

	sources := req.Sources
	if sources == nil {
		sources = []string{}
	}

	job := &models.Job{
		ID:         uuid.New(),
		SKUs:       req.SKUs,
		Sources:    sources,
		TestMode:   req.TestMode,
		MaxRunners: req.MaxRunners,
		Status:     models.JobStatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	chunks := partition(job, s.chunkSize)
	var err error
	if len(chunks) == 0 {
		err = s.store.CreateJob(ctx, job)
	} else {
		err = s.store.CreateJobWithChunks(ctx, job, chunks)
	}
	if err != nil {
		return nil, dispatch.Outcome{}, fmt.Errorf("persist job: %w", err)
	}

	outcome, dispatchErr := s.dispatcher.Dispatch(ctx, job, len(chunks))
	if dispatchErr != nil {
		msg := fmt.Sprintf("dispatch failed: %d of %d trigger calls succeeded",
			outcome.Succeeded, outcome.Requested)
		if terr := s.store.TransitionJob(ctx, job.ID,
			models.JobStatusPending, models.JobStatusFailed,
			store.WithErrorMessage(msg)); terr != nil {
			slog.Error("mark job failed after dispatch failure", "job_id", job.ID, "error", terr)
		}
		job.Status = models.JobStatusFailed
		job.ErrorMessage = &msg
		return job, outcome, nil
	}

	// In push mode a successful dispatch means workers are on the way; the
	// job starts running now. In pull mode the job stays pending until a
	// runner claims work.
	if outcome.Succeeded > 0 {
		if err := s.store.TransitionJob(ctx, job.ID,
			models.JobStatusPending, models.JobStatusRunning); err != nil {
			slog.Error("mark job running", "job_id", job.ID, "error", err)
		} else {
			job.Status = models.JobStatusRunning
		}
	}

	slog.Info("job submitted",
		"job_id", job.ID,
		"skus", len(job.SKUs),
		"chunks", len(chunks),
		"mode", outcome.Mode,
		"dispatched", outcome.Succeeded,
	)
	return job, outcome, nil
}

// partition slices the job's SKU list into contiguous, order-preserving
// windows of chunkSize. Jobs at or under the chunk size get no chunks at all:
// they run as a single unit.
func partition(job *models.Job, chunkSize int) []*models.Chunk {
	if len(job.SKUs) <= chunkSize {
		return nil
	}

	var chunks []*models.Chunk
	for start := 0; start < len(job.SKUs); start += chunkSize {
		end := start + chunkSize
		if end > len(job.SKUs) {
			end = len(job.SKUs)
		}
		chunks = append(chunks, &models.Chunk{
			ID:        uuid.New(),
			JobID:     job.ID,
			Index:     len(chunks),
			SKUs:      job.SKUs[start:end],
			Sources:   job.Sources,
			Status:    models.ChunkStatusPending,
			CreatedAt: job.CreatedAt,
		})
	}
	return chunks
}
