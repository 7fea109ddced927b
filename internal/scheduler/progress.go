package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nickborrello/baystate-coordinator/internal/cache"
	"github.com/nickborrello/baystate-coordinator/internal/store"
	"github.com/nickborrello/baystate-coordinator/pkg/models"
)

// JobStatusView is the operator-facing rollup of a job and its chunks.
type JobStatusView struct {
	Job     *models.Job    `json:"job"`
	Chunked bool           `json:"chunked"`
	Chunks  *ChunkProgress `json:"chunks,omitempty"`
}

// ChunkProgress aggregates chunk-level counters at read time.
type ChunkProgress struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Processed  int `json:"skus_processed"`
	Succeeded  int `json:"skus_succeeded"`
	FailedSKUs int `json:"skus_failed"`
}

// Progress serves aggregated job status views and owns the centralized
// terminal-state reconciliation for chunked jobs.
type Progress struct {
	store    store.Store
	cache    cache.Cache
	cacheTTL time.Duration
}

func NewProgress(s store.Store, c cache.Cache, cacheTTL time.Duration) *Progress {
	return &Progress{store: s, cache: c, cacheTTL: cacheTTL}
}

// Status returns the aggregated view for a job. Runners poll this endpoint,
// so terminal views are briefly cached; cache failures fall through to the
// store.
func (p *Progress) Status(ctx context.Context, jobID uuid.UUID) (*JobStatusView, error) {
	if p.cache != nil {
		if raw, ok, err := p.cache.Get(ctx, cache.JobStatusKey(jobID)); err == nil && ok {
			var view JobStatusView
			if json.Unmarshal(raw, &view) == nil {
				return &view, nil
			}
		}
	}

	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	view := &JobStatusView{Job: job}

	counts, err := p.store.ChunkCounts(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if counts.Total > 0 {
		view.Chunked = true
		view.Chunks = &ChunkProgress{
			Total:      counts.Total,
			Completed:  counts.Completed,
			Failed:     counts.Failed,
			Processed:  counts.Processed,
			Succeeded:  counts.Succeeded,
			FailedSKUs: counts.FailedSKUs,
		}
	}

	if p.cache != nil && job.Terminal() {
		if raw, err := json.Marshal(view); err == nil {
			if err := p.cache.Set(ctx, cache.JobStatusKey(jobID), raw, p.cacheTTL); err != nil {
				slog.Warn("cache job status", "job_id", jobID, "error", err)
			}
		}
	}

	return view, nil
}

// Reconcile evaluates the terminal-state rule for a chunked job: completed
// once every chunk is terminal and at least one succeeded, failed only when
// every chunk failed. Called after each chunk report so the computation stays
// centralized; a job an operator already failed is left alone.
func (s *Service) Reconcile(ctx context.Context, jobID uuid.UUID) error {
	counts, err := s.store.ChunkCounts(ctx, jobID)
	if err != nil {
		return err
	}
	if !counts.Terminal() {
		return nil
	}

	to := models.JobStatusCompleted
	opts := []store.JobUpdateOption{}
	if counts.Completed == 0 {
		to = models.JobStatusFailed
		opts = append(opts, store.WithErrorMessage(
			fmt.Sprintf("all %d chunks failed", counts.Total)))
	} else if counts.Failed > 0 {
		opts = append(opts, store.WithErrorMessage(
			fmt.Sprintf("%d of %d chunks failed", counts.Failed, counts.Total)))
	}

	err = s.store.TransitionJob(ctx, jobID, models.JobStatusRunning, to, opts...)
	if errors.Is(err, store.ErrInvalidTransition) {
		// Already terminal, or never started; either way there is nothing
		// left to reconcile.
		return nil
	}
	if err != nil {
		return err
	}

	slog.Info("job reconciled", "job_id", jobID, "status", to,
		"chunks_completed", counts.Completed, "chunks_failed", counts.Failed)
	return nil
}
