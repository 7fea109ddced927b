package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nickborrello/baystate-coordinator/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrClaimConflict means a conditional update lost its race: the chunk was
// already claimed, already terminal, or claimed by someone else. Callers treat
// it as "no work" or as an idempotent no-op, never as a fault.
var ErrClaimConflict = errors.New("chunk claim conflict")

// ErrInvalidTransition means a job status update was conditioned on a prior
// status the row no longer has. Job transitions are monotonic and never revert.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	CreateJobWithChunks(ctx context.Context, job *models.Job, chunks []*models.Chunk) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)
	TransitionJob(ctx context.Context, id uuid.UUID, from, to string, opts ...JobUpdateOption) error
	CountPendingJobs(ctx context.Context) (int, error)

	ClaimNextChunk(ctx context.Context, runnerName string, staleBefore time.Time) (*models.Chunk, error)
	ClaimNextJob(ctx context.Context) (*models.Job, error)
	CompleteChunk(ctx context.Context, report ChunkReport) error
	GetChunk(ctx context.Context, id uuid.UUID) (*models.Chunk, error)
	ListChunks(ctx context.Context, jobID uuid.UUID) ([]*models.Chunk, error)
	ChunkCounts(ctx context.Context, jobID uuid.UUID) (ChunkCounts, error)
	CountPendingChunks(ctx context.Context) (int, error)
	RequeueStaleChunks(ctx context.Context, staleBefore time.Time) (int, error)

	UpsertRunner(ctx context.Context, runner *models.Runner) error
	TouchRunner(ctx context.Context, update RunnerUpdate) error
	GetRunner(ctx context.Context, name string) (*models.Runner, error)
	ListRunners(ctx context.Context) ([]*models.Runner, error)
	CountLiveRunners(ctx context.Context, seenSince time.Time) (int, error)

	CreateCredential(ctx context.Context, cred *models.Credential) error
	GetCredentialsByPrefix(ctx context.Context, prefix string) ([]*models.Credential, error)
	ListCredentials(ctx context.Context) ([]*models.Credential, error)
	RevokeCredential(ctx context.Context, id uuid.UUID) error
	RevokeRunnerCredentials(ctx context.Context, runnerName string) (int, error)
	UpdateCredentialLastUsed(ctx context.Context, id uuid.UUID) error
	CountActiveCredentials(ctx context.Context) (int, error)
}

// JobFilter narrows and paginates job listings.
type JobFilter struct {
	Status string
	Page   int
	Limit  int
}

// ChunkReport carries a runner's result for one claimed chunk. The update is
// conditioned on the chunk still being claimed by the reporting runner.
type ChunkReport struct {
	ChunkID      uuid.UUID
	RunnerName   string
	Status       string
	Processed    int
	Succeeded    int
	Failed       int
	ErrorMessage *string
}

// ChunkCounts is the read-time aggregation over a job's chunks.
type ChunkCounts struct {
	Total      int
	Completed  int
	Failed     int
	Processed  int
	Succeeded  int
	FailedSKUs int
}

// Terminal reports whether every chunk has reached a final state.
func (c ChunkCounts) Terminal() bool {
	return c.Total > 0 && c.Completed+c.Failed == c.Total
}

// RunnerUpdate mutates a runner's liveness fields on heartbeat/poll/claim.
type RunnerUpdate struct {
	Name           string
	Status         string
	CurrentJobID   *string
	CurrentChunkID *string
	Metadata       map[string]string
}

type jobUpdateParams struct {
	ErrorMessage *string
}

type JobUpdateOption func(*jobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}
