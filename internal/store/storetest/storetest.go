// Package storetest provides a configurable in-test implementation of
// store.Store. Unset methods return store.ErrNotFound or zero values so a
// test only wires the calls it cares about.
package storetest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nickborrello/baystate-coordinator/internal/store"
	"github.com/nickborrello/baystate-coordinator/pkg/models"
)

type Mock struct {
	PingFunc                     func(ctx context.Context) error
	CreateJobFunc                func(ctx context.Context, job *models.Job) error
	CreateJobWithChunksFunc      func(ctx context.Context, job *models.Job, chunks []*models.Chunk) error
	GetJobFunc                   func(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobsFunc                 func(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error)
	TransitionJobFunc            func(ctx context.Context, id uuid.UUID, from, to string, opts ...store.JobUpdateOption) error
	CountPendingJobsFunc         func(ctx context.Context) (int, error)
	ClaimNextChunkFunc           func(ctx context.Context, runnerName string, staleBefore time.Time) (*models.Chunk, error)
	ClaimNextJobFunc             func(ctx context.Context) (*models.Job, error)
	CompleteChunkFunc            func(ctx context.Context, report store.ChunkReport) error
	GetChunkFunc                 func(ctx context.Context, id uuid.UUID) (*models.Chunk, error)
	ListChunksFunc               func(ctx context.Context, jobID uuid.UUID) ([]*models.Chunk, error)
	ChunkCountsFunc              func(ctx context.Context, jobID uuid.UUID) (store.ChunkCounts, error)
	CountPendingChunksFunc       func(ctx context.Context) (int, error)
	RequeueStaleChunksFunc       func(ctx context.Context, staleBefore time.Time) (int, error)
	UpsertRunnerFunc             func(ctx context.Context, runner *models.Runner) error
	TouchRunnerFunc              func(ctx context.Context, update store.RunnerUpdate) error
	GetRunnerFunc                func(ctx context.Context, name string) (*models.Runner, error)
	ListRunnersFunc              func(ctx context.Context) ([]*models.Runner, error)
	CountLiveRunnersFunc         func(ctx context.Context, seenSince time.Time) (int, error)
	CreateCredentialFunc         func(ctx context.Context, cred *models.Credential) error
	GetCredentialsByPrefixFunc   func(ctx context.Context, prefix string) ([]*models.Credential, error)
	ListCredentialsFunc          func(ctx context.Context) ([]*models.Credential, error)
	RevokeCredentialFunc         func(ctx context.Context, id uuid.UUID) error
	RevokeRunnerCredentialsFunc  func(ctx context.Context, runnerName string) (int, error)
	UpdateCredentialLastUsedFunc func(ctx context.Context, id uuid.UUID) error
	CountActiveCredentialsFunc   func(ctx context.Context) (int, error)
}

var _ store.Store = (*Mock)(nil)

func (m *Mock) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}

func (m *Mock) CreateJob(ctx context.Context, job *models.Job) error {
	if m.CreateJobFunc != nil {
		return m.CreateJobFunc(ctx, job)
	}
	return nil
}

func (m *Mock) CreateJobWithChunks(ctx context.Context, job *models.Job, chunks []*models.Chunk) error {
	if m.CreateJobWithChunksFunc != nil {
		return m.CreateJobWithChunksFunc(ctx, job, chunks)
	}
	return nil
}

func (m *Mock) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	if m.GetJobFunc != nil {
		return m.GetJobFunc(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *Mock) ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.Job, int, error) {
	if m.ListJobsFunc != nil {
		return m.ListJobsFunc(ctx, filter)
	}
	return nil, 0, nil
}

func (m *Mock) TransitionJob(ctx context.Context, id uuid.UUID, from, to string, opts ...store.JobUpdateOption) error {
	if m.TransitionJobFunc != nil {
		return m.TransitionJobFunc(ctx, id, from, to, opts...)
	}
	return nil
}

func (m *Mock) CountPendingJobs(ctx context.Context) (int, error) {
	if m.CountPendingJobsFunc != nil {
		return m.CountPendingJobsFunc(ctx)
	}
	return 0, nil
}

func (m *Mock) ClaimNextChunk(ctx context.Context, runnerName string, staleBefore time.Time) (*models.Chunk, error) {
	if m.ClaimNextChunkFunc != nil {
		return m.ClaimNextChunkFunc(ctx, runnerName, staleBefore)
	}
	return nil, store.ErrNotFound
}

func (m *Mock) ClaimNextJob(ctx context.Context) (*models.Job, error) {
	if m.ClaimNextJobFunc != nil {
		return m.ClaimNextJobFunc(ctx)
	}
	return nil, store.ErrNotFound
}

func (m *Mock) CompleteChunk(ctx context.Context, report store.ChunkReport) error {
	if m.CompleteChunkFunc != nil {
		return m.CompleteChunkFunc(ctx, report)
	}
	return nil
}

func (m *Mock) GetChunk(ctx context.Context, id uuid.UUID) (*models.Chunk, error) {
	if m.GetChunkFunc != nil {
		return m.GetChunkFunc(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *Mock) ListChunks(ctx context.Context, jobID uuid.UUID) ([]*models.Chunk, error) {
	if m.ListChunksFunc != nil {
		return m.ListChunksFunc(ctx, jobID)
	}
	return nil, nil
}

func (m *Mock) ChunkCounts(ctx context.Context, jobID uuid.UUID) (store.ChunkCounts, error) {
	if m.ChunkCountsFunc != nil {
		return m.ChunkCountsFunc(ctx, jobID)
	}
	return store.ChunkCounts{}, nil
}

func (m *Mock) CountPendingChunks(ctx context.Context) (int, error) {
	if m.CountPendingChunksFunc != nil {
		return m.CountPendingChunksFunc(ctx)
	}
	return 0, nil
}

func (m *Mock) RequeueStaleChunks(ctx context.Context, staleBefore time.Time) (int, error) {
	if m.RequeueStaleChunksFunc != nil {
		return m.RequeueStaleChunksFunc(ctx, staleBefore)
	}
	return 0, nil
}

func (m *Mock) UpsertRunner(ctx context.Context, runner *models.Runner) error {
	if m.UpsertRunnerFunc != nil {
		return m.UpsertRunnerFunc(ctx, runner)
	}
	return nil
}

func (m *Mock) TouchRunner(ctx context.Context, update store.RunnerUpdate) error {
	if m.TouchRunnerFunc != nil {
		return m.TouchRunnerFunc(ctx, update)
	}
	return nil
}

func (m *Mock) GetRunner(ctx context.Context, name string) (*models.Runner, error) {
	if m.GetRunnerFunc != nil {
		return m.GetRunnerFunc(ctx, name)
	}
	return nil, store.ErrNotFound
}

func (m *Mock) ListRunners(ctx context.Context) ([]*models.Runner, error) {
	if m.ListRunnersFunc != nil {
		return m.ListRunnersFunc(ctx)
	}
	return nil, nil
}

func (m *Mock) CountLiveRunners(ctx context.Context, seenSince time.Time) (int, error) {
	if m.CountLiveRunnersFunc != nil {
		return m.CountLiveRunnersFunc(ctx, seenSince)
	}
	return 0, nil
}

func (m *Mock) CreateCredential(ctx context.Context, cred *models.Credential) error {
	if m.CreateCredentialFunc != nil {
		return m.CreateCredentialFunc(ctx, cred)
	}
	return nil
}

func (m *Mock) GetCredentialsByPrefix(ctx context.Context, prefix string) ([]*models.Credential, error) {
	if m.GetCredentialsByPrefixFunc != nil {
		return m.GetCredentialsByPrefixFunc(ctx, prefix)
	}
	return nil, nil
}

func (m *Mock) ListCredentials(ctx context.Context) ([]*models.Credential, error) {
	if m.ListCredentialsFunc != nil {
		return m.ListCredentialsFunc(ctx)
	}
	return nil, nil
}

func (m *Mock) RevokeCredential(ctx context.Context, id uuid.UUID) error {
	if m.RevokeCredentialFunc != nil {
		return m.RevokeCredentialFunc(ctx, id)
	}
	return nil
}

func (m *Mock) RevokeRunnerCredentials(ctx context.Context, runnerName string) (int, error) {
	if m.RevokeRunnerCredentialsFunc != nil {
		return m.RevokeRunnerCredentialsFunc(ctx, runnerName)
	}
	return 0, nil
}

func (m *Mock) UpdateCredentialLastUsed(ctx context.Context, id uuid.UUID) error {
	if m.UpdateCredentialLastUsedFunc != nil {
		return m.UpdateCredentialLastUsedFunc(ctx, id)
	}
	return nil
}

func (m *Mock) CountActiveCredentials(ctx context.Context) (int, error) {
	if m.CountActiveCredentialsFunc != nil {
		return m.CountActiveCredentialsFunc(ctx)
	}
	return 0, nil
}
