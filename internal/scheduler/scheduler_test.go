package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nickborrello/baystate-coordinator/internal/dispatch"
	"github.com/nickborrello/baystate-coordinator/internal/store"
	"github.com/nickborrello/baystate-coordinator/internal/store/storetest"
	"github.com/nickborrello/baystate-coordinator/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDispatcher struct {
	mode    string
	outcome dispatch.Outcome
	err     error
	calls   int
}

func (d *mockDispatcher) Dispatch(_ context.Context, _ *models.Job, _ int) (dispatch.Outcome, error) {
	d.calls++
	return d.outcome, d.err
}

func (d *mockDispatcher) Mode() string { return d.mode }

func makeSKUs(n int) []string {
	skus := make([]string, n)
	for i := range skus {
		skus[i] = fmt.Sprintf("SKU-%04d", i)
	}
	return skus
}

func TestPartition(t *testing.T) {
	t.Run("at or under chunk size yields no chunks", func(t *testing.T) {
		job := &models.Job{ID: uuid.New(), SKUs: makeSKUs(50)}
		assert.Nil(t, partition(job, 50))
	})

	t.Run("windows are contiguous and lossless", func(t *testing.T) {
		job := &models.Job{ID: uuid.New(), SKUs: makeSKUs(120)}
		chunks := partition(job, 50)
		require.Len(t, chunks, 3)

		assert.Len(t, chunks[0].SKUs, 50)
		assert.Len(t, chunks[1].SKUs, 50)
		assert.Len(t, chunks[2].SKUs, 20)

		var reassembled []string
		for i, c := range chunks {
			assert.Equal(t, i, c.Index)
			assert.Equal(t, job.ID, c.JobID)
			assert.Equal(t, models.ChunkStatusPending, c.Status)
			reassembled = append(reassembled, c.SKUs...)
		}
		assert.Equal(t, job.SKUs, reassembled)
	})

	t.Run("exact multiple has no short tail", func(t *testing.T) {
		job := &models.Job{ID: uuid.New(), SKUs: makeSKUs(100)}
		chunks := partition(job, 50)
		require.Len(t, chunks, 2)
		assert.Len(t, chunks[1].SKUs, 50)
	})
}

func TestSubmit_RequiresSKUs(t *testing.T) {
	svc := NewService(&storetest.Mock{}, &mockDispatcher{mode: "pull"}, 50, 10*time.Minute)

	_, _, err := svc.Submit(context.Background(), SubmitRequest{})
	assert.ErrorIs(t, err, ErrNoSKUs)
}

func TestSubmit_SmallJobStoredWithoutChunks(t *testing.T) {
	var createdPlain, createdChunked bool
	mock := &storetest.Mock{
		CreateJobFunc: func(_ context.Context, job *models.Job) error {
			createdPlain = true
			return nil
		},
		CreateJobWithChunksFunc: func(_ context.Context, _ *models.Job, _ []*models.Chunk) error {
			createdChunked = true
			return nil
		},
	}
	d := &mockDispatcher{mode: "pull", outcome: dispatch.Outcome{Mode: "pull", Requested: 1}}
	svc := NewService(mock, d, 50, 10*time.Minute)

	job, outcome, err := svc.Submit(context.Background(), SubmitRequest{SKUs: makeSKUs(10)})
	require.NoError(t, err)
	assert.True(t, createdPlain)
	assert.False(t, createdChunked)
	assert.Equal(t, 1, d.calls)
	// Pull mode never confirms workers, so the job waits for a claim.
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 0, outcome.Succeeded)
}

func TestSubmit_PushSuccessStartsJob(t *testing.T) {
	var transitions []string
	mock := &storetest.Mock{
		TransitionJobFunc: func(_ context.Context, _ uuid.UUID, from, to string, _ ...store.JobUpdateOption) error {
			transitions = append(transitions, from+"->"+to)
			return nil
		},
	}
	d := &mockDispatcher{
		mode:    "push",
		outcome: dispatch.Outcome{Mode: "push", Requested: 3, Succeeded: 2, Errors: []string{"worker 3: timeout"}},
	}
	svc := NewService(mock, d, 50, 10*time.Minute)

	job, outcome, err := svc.Submit(context.Background(), SubmitRequest{SKUs: makeSKUs(120), MaxRunners: 3})
	require.NoError(t, err)
	// Partial dispatch success is enough to run.
	assert.Equal(t, models.JobStatusRunning, job.Status)
	assert.Equal(t, 2, outcome.Succeeded)
	assert.Equal(t, []string{"pending->running"}, transitions)
}

func TestSubmit_DispatchFailureFailsJob(t *testing.T) {
	var failedMsg string
	mock := &storetest.Mock{
		TransitionJobFunc: func(_ context.Context, _ uuid.UUID, from, to string, opts ...store.JobUpdateOption) error {
			assert.Equal(t, models.JobStatusPending, from)
			assert.Equal(t, models.JobStatusFailed, to)
			failedMsg = "set"
			return nil
		},
	}
	d := &mockDispatcher{
		mode:    "push",
		outcome: dispatch.Outcome{Mode: "push", Requested: 3, Succeeded: 0},
		err:     dispatch.ErrNoDispatches,
	}
	svc := NewService(mock, d, 50, 10*time.Minute)

	job, _, err := svc.Submit(context.Background(), SubmitRequest{SKUs: makeSKUs(120)})
	require.NoError(t, err, "dispatch failure is reported through job state, not an error")
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Contains(t, *job.ErrorMessage, "0 of 3")
	assert.Equal(t, "set", failedMsg)
}

func TestSubmit_PersistErrorSurfaces(t *testing.T) {
	mock := &storetest.Mock{
		CreateJobWithChunksFunc: func(_ context.Context, _ *models.Job, _ []*models.Chunk) error {
			return errors.New("connection refused")
		},
	}
	d := &mockDispatcher{mode: "push"}
	svc := NewService(mock, d, 50, 10*time.Minute)

	_, _, err := svc.Submit(context.Background(), SubmitRequest{SKUs: makeSKUs(120)})
	require.Error(t, err)
	assert.Equal(t, 0, d.calls, "nothing is dispatched when persistence fails")
}

func TestClaimNext_ChunkAvailable(t *testing.T) {
	jobID := uuid.New()
	chunk := &models.Chunk{ID: uuid.New(), JobID: jobID, Status: models.ChunkStatusClaimed}

	var touched *store.RunnerUpdate
	var staleBeforeSeen time.Time
	mock := &storetest.Mock{
		ClaimNextChunkFunc: func(_ context.Context, runnerName string, staleBefore time.Time) (*models.Chunk, error) {
			assert.Equal(t, "runner-a", runnerName)
			staleBeforeSeen = staleBefore
			return chunk, nil
		},
		TouchRunnerFunc: func(_ context.Context, update store.RunnerUpdate) error {
			touched = &update
			return nil
		},
	}
	svc := NewService(mock, &mockDispatcher{mode: "pull"}, 50, 10*time.Minute)

	claim, err := svc.ClaimNext(context.Background(), "runner-a")
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, chunk, claim.Chunk)
	assert.Nil(t, claim.Job)

	assert.WithinDuration(t, time.Now().UTC().Add(-10*time.Minute), staleBeforeSeen, 5*time.Second)

	require.NotNil(t, touched)
	assert.Equal(t, models.RunnerStatusBusy, touched.Status)
	require.NotNil(t, touched.CurrentChunkID)
	assert.Equal(t, chunk.ID.String(), *touched.CurrentChunkID)
}

func TestClaimNext_FallsBackToUnchunkedJob(t *testing.T) {
	job := &models.Job{ID: uuid.New(), Status: models.JobStatusRunning}
	mock := &storetest.Mock{
		ClaimNextJobFunc: func(_ context.Context) (*models.Job, error) {
			return job, nil
		},
	}
	svc := NewService(mock, &mockDispatcher{mode: "pull"}, 50, 10*time.Minute)

	claim, err := svc.ClaimNext(context.Background(), "runner-a")
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Nil(t, claim.Chunk)
	assert.Equal(t, job, claim.Job)
}

func TestClaimNext_NothingAvailable(t *testing.T) {
	var touched *store.RunnerUpdate
	mock := &storetest.Mock{
		TouchRunnerFunc: func(_ context.Context, update store.RunnerUpdate) error {
			touched = &update
			return nil
		},
	}
	svc := NewService(mock, &mockDispatcher{mode: "pull"}, 50, 10*time.Minute)

	claim, err := svc.ClaimNext(context.Background(), "runner-a")
	require.NoError(t, err)
	assert.Nil(t, claim)

	require.NotNil(t, touched)
	assert.Equal(t, models.RunnerStatusPolling, touched.Status)
}

func TestReportResult_RejectsBadStatus(t *testing.T) {
	svc := NewService(&storetest.Mock{}, &mockDispatcher{mode: "pull"}, 50, 10*time.Minute)

	err := svc.ReportResult(context.Background(), store.ChunkReport{
		ChunkID: uuid.New(), RunnerName: "runner-a", Status: "claimed",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "completed or failed")
}

func TestReportResult_StaleReportIgnored(t *testing.T) {
	jobID := uuid.New()
	chunkID := uuid.New()
	reconciled := false
	mock := &storetest.Mock{
		GetChunkFunc: func(_ context.Context, _ uuid.UUID) (*models.Chunk, error) {
			return &models.Chunk{ID: chunkID, JobID: jobID}, nil
		},
		CompleteChunkFunc: func(_ context.Context, _ store.ChunkReport) error {
			return store.ErrClaimConflict
		},
		ChunkCountsFunc: func(_ context.Context, _ uuid.UUID) (store.ChunkCounts, error) {
			reconciled = true
			return store.ChunkCounts{}, nil
		},
	}
	svc := NewService(mock, &mockDispatcher{mode: "pull"}, 50, 10*time.Minute)

	err := svc.ReportResult(context.Background(), store.ChunkReport{
		ChunkID: chunkID, RunnerName: "runner-a", Status: models.ChunkStatusCompleted,
	})
	assert.NoError(t, err, "a reassigned chunk's late report is dropped silently")
	assert.False(t, reconciled)
}

func TestReportResult_ReconcilesJob(t *testing.T) {
	jobID := uuid.New()
	chunkID := uuid.New()
	var transition string
	mock := &storetest.Mock{
		GetChunkFunc: func(_ context.Context, _ uuid.UUID) (*models.Chunk, error) {
			return &models.Chunk{ID: chunkID, JobID: jobID}, nil
		},
		ChunkCountsFunc: func(_ context.Context, _ uuid.UUID) (store.ChunkCounts, error) {
			return store.ChunkCounts{Total: 2, Completed: 2, Processed: 100, Succeeded: 100}, nil
		},
		TransitionJobFunc: func(_ context.Context, _ uuid.UUID, from, to string, _ ...store.JobUpdateOption) error {
			transition = from + "->" + to
			return nil
		},
	}
	svc := NewService(mock, &mockDispatcher{mode: "pull"}, 50, 10*time.Minute)

	err := svc.ReportResult(context.Background(), store.ChunkReport{
		ChunkID: chunkID, RunnerName: "runner-a",
		Status: models.ChunkStatusCompleted, Processed: 50, Succeeded: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, "running->completed", transition)
}

func TestReportJobResult(t *testing.T) {
	t.Run("success completes the job", func(t *testing.T) {
		var transition string
		mock := &storetest.Mock{
			TransitionJobFunc: func(_ context.Context, _ uuid.UUID, from, to string, _ ...store.JobUpdateOption) error {
				transition = from + "->" + to
				return nil
			},
		}
		svc := NewService(mock, &mockDispatcher{mode: "pull"}, 50, 10*time.Minute)

		require.NoError(t, svc.ReportJobResult(context.Background(), uuid.New(), true, ""))
		assert.Equal(t, "running->completed", transition)
	})

	t.Run("failure records a message", func(t *testing.T) {
		var to string
		mock := &storetest.Mock{
			TransitionJobFunc: func(_ context.Context, _ uuid.UUID, _, target string, opts ...store.JobUpdateOption) error {
				to = target
				assert.NotEmpty(t, opts)
				return nil
			},
		}
		svc := NewService(mock, &mockDispatcher{mode: "pull"}, 50, 10*time.Minute)

		require.NoError(t, svc.ReportJobResult(context.Background(), uuid.New(), false, "scrape panicked"))
		assert.Equal(t, models.JobStatusFailed, to)
	})

	t.Run("late duplicate is a no-op", func(t *testing.T) {
		mock := &storetest.Mock{
			TransitionJobFunc: func(_ context.Context, _ uuid.UUID, _, _ string, _ ...store.JobUpdateOption) error {
				return store.ErrInvalidTransition
			},
		}
		svc := NewService(mock, &mockDispatcher{mode: "pull"}, 50, 10*time.Minute)

		assert.NoError(t, svc.ReportJobResult(context.Background(), uuid.New(), true, ""))
	})
}

func TestHeartbeat_ProvisionsUnknownRunner(t *testing.T) {
	touches := 0
	upserted := false
	mock := &storetest.Mock{
		TouchRunnerFunc: func(_ context.Context, update store.RunnerUpdate) error {
			touches++
			if touches == 1 {
				return store.ErrNotFound
			}
			return nil
		},
		UpsertRunnerFunc: func(_ context.Context, runner *models.Runner) error {
			upserted = true
			assert.Equal(t, "runner-new", runner.Name)
			return nil
		},
	}
	svc := NewService(mock, &mockDispatcher{mode: "pull"}, 50, 10*time.Minute)

	err := svc.Heartbeat(context.Background(), store.RunnerUpdate{Name: "runner-new"})
	require.NoError(t, err)
	assert.True(t, upserted)
	assert.Equal(t, 2, touches)
}
