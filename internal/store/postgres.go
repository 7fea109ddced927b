package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nickborrello/baystate-coordinator/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

const jobColumns = `id, skus, sources, test_mode, max_runners, status, error_message, created_at, completed_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.SKUs, &j.Sources, &j.TestMode, &j.MaxRunners,
		&j.Status, &j.ErrorMessage, &j.CreatedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, skus, sources, test_mode, max_runners, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.SKUs, job.Sources, job.TestMode, job.MaxRunners, job.Status, job.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// CreateJobWithChunks inserts the job and all of its chunks in one
// transaction, so a partially partitioned job can never become visible.
func (s *PostgresStore) CreateJobWithChunks(ctx context.Context, job *models.Job, chunks []*models.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO jobs (id, skus, sources, test_mode, max_runners, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.SKUs, job.Sources, job.TestMode, job.MaxRunners, job.Status, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	rows := make([][]any, 0, len(chunks))
	for _, c := range chunks {
		rows = append(rows, []any{c.ID, c.JobID, c.Index, c.SKUs, c.Sources, c.Status, c.CreatedAt})
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"job_chunks"},
		[]string{"id", "job_id", "chunk_index", "skus", "sources", "status", "created_at"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("create chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error) {
	where := "TRUE"
	args := []any{}
	if filter.Status != "" {
		where = "status = $1"
		args = append(args, filter.Status)
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		jobColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, total, rows.Err()
}

// TransitionJob moves a job from one status to another in a single
// conditional update. A row that is no longer in the expected prior status is
// left untouched and ErrInvalidTransition is returned, which keeps transitions
// monotonic under concurrent writers.
func (s *PostgresStore) TransitionJob(ctx context.Context, id uuid.UUID, from, to string, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	query := `UPDATE jobs SET status = $3`
	args := []any{id, from, to}
	argIdx := 4

	if to == models.JobStatusCompleted || to == models.JobStatusFailed {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, time.Now().UTC())
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	query += ` WHERE id = $1 AND status = $2`

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("transition job: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}

func (s *PostgresStore) CountPendingJobs(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending jobs: %w", err)
	}
	return n, nil
}

// --- Chunks ---

const chunkColumns = `id, job_id, chunk_index, skus, sources, status, processed, succeeded, failed, error_message, claimed_by, claimed_at, created_at`

func scanChunk(row pgx.Row) (*models.Chunk, error) {
	var c models.Chunk
	err := row.Scan(&c.ID, &c.JobID, &c.Index, &c.SKUs, &c.Sources, &c.Status,
		&c.Processed, &c.Succeeded, &c.Failed, &c.ErrorMessage,
		&c.ClaimedBy, &c.ClaimedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ClaimNextChunk atomically assigns the oldest eligible chunk to runnerName.
// Eligible means pending, or claimed with a claim older than staleBefore
// (reclaim of an abandoned chunk). The row is locked with SKIP LOCKED so two
// concurrent claimants can never both win the same chunk; a claimant that
// finds nothing eligible gets ErrNotFound.
func (s *PostgresStore) ClaimNextChunk(ctx context.Context, runnerName string, staleBefore time.Time) (*models.Chunk, error) {
	c, err := scanChunk(s.pool.QueryRow(ctx,
		`WITH next AS (
		   SELECT c.id
		   FROM job_chunks c
		   JOIN jobs j ON j.id = c.job_id
		   WHERE j.status IN ('pending', 'running')
		     AND (c.status = 'pending'
		          OR (c.status = 'claimed' AND c.claimed_at < $2))
		   ORDER BY j.created_at, c.chunk_index
		   FOR UPDATE OF c SKIP LOCKED
		   LIMIT 1
		 )
		 UPDATE job_chunks c
		 SET status = 'claimed', claimed_by = $1, claimed_at = NOW(),
		     processed = 0, succeeded = 0, failed = 0, error_message = NULL
		 FROM next
		 WHERE c.id = next.id
		 RETURNING `+prefixed("c.", chunkColumns),
		runnerName, staleBefore))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim next chunk: %w", err)
	}
	return c, nil
}

// ClaimNextJob atomically starts the oldest pending unchunked job. Pull-mode
// runners that find no chunk eligible fall back to whole jobs small enough
// for a single pass. The conditional transition doubles as the claim.
func (s *PostgresStore) ClaimNextJob(ctx context.Context) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE jobs
		 SET status = 'running'
		 WHERE id = (
		   SELECT id FROM jobs
		   WHERE status = 'pending'
		     AND NOT EXISTS (SELECT 1 FROM job_chunks c WHERE c.job_id = jobs.id)
		   ORDER BY created_at
		   FOR UPDATE SKIP LOCKED
		   LIMIT 1
		 )
		 RETURNING `+jobColumns))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return j, nil
}

// CompleteChunk records a runner's result for a chunk it holds. The update is
// conditioned on the chunk still being claimed by the reporting runner, so a
// late report after reclaim, a duplicate report, or a report against a
// terminal chunk all affect zero rows and come back as ErrClaimConflict.
func (s *PostgresStore) CompleteChunk(ctx context.Context, report ChunkReport) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_chunks
		 SET status = $3, processed = $4, succeeded = $5, failed = $6, error_message = $7
		 WHERE id = $1 AND claimed_by = $2 AND status = 'claimed'`,
		report.ChunkID, report.RunnerName, report.Status,
		report.Processed, report.Succeeded, report.Failed, report.ErrorMessage)
	if err != nil {
		return fmt.Errorf("complete chunk: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimConflict
	}
	return nil
}

func (s *PostgresStore) GetChunk(ctx context.Context, id uuid.UUID) (*models.Chunk, error) {
	c, err := scanChunk(s.pool.QueryRow(ctx,
		`SELECT `+chunkColumns+` FROM job_chunks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListChunks(ctx context.Context, jobID uuid.UUID) ([]*models.Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+chunkColumns+` FROM job_chunks WHERE job_id = $1 ORDER BY chunk_index`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ChunkCounts aggregates a job's chunk progress at read time. Computing the
// rollup from the rows instead of maintaining counters means a reclaimed and
// re-reported chunk is never double-counted.
func (s *PostgresStore) ChunkCounts(ctx context.Context, jobID uuid.UUID) (ChunkCounts, error) {
	var counts ChunkCounts
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'completed'),
		        COUNT(*) FILTER (WHERE status = 'failed'),
		        COALESCE(SUM(processed), 0),
		        COALESCE(SUM(succeeded), 0),
		        COALESCE(SUM(failed), 0)
		 FROM job_chunks WHERE job_id = $1`, jobID,
	).Scan(&counts.Total, &counts.Completed, &counts.Failed,
		&counts.Processed, &counts.Succeeded, &counts.FailedSKUs)
	if err != nil {
		return ChunkCounts{}, fmt.Errorf("chunk counts: %w", err)
	}
	return counts, nil
}

func (s *PostgresStore) CountPendingChunks(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM job_chunks WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending chunks: %w", err)
	}
	return n, nil
}

// RequeueStaleChunks returns abandoned claims to the pending pool. Uses the
// same conditional discipline as claims, so concurrent reapers are safe.
func (s *PostgresStore) RequeueStaleChunks(ctx context.Context, staleBefore time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_chunks
		 SET status = 'pending', claimed_by = NULL, claimed_at = NULL
		 WHERE status = 'claimed' AND claimed_at < $1`, staleBefore)
	if err != nil {
		return 0, fmt.Errorf("requeue stale chunks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// --- Runners ---

const runnerColumns = `name, status, last_seen_at, last_auth_at, current_job_id, current_chunk_id, metadata, created_at`

func scanRunner(row pgx.Row) (*models.Runner, error) {
	var r models.Runner
	err := row.Scan(&r.Name, &r.Status, &r.LastSeenAt, &r.LastAuthAt,
		&r.CurrentJobID, &r.CurrentChunkID, &r.Metadata, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) UpsertRunner(ctx context.Context, runner *models.Runner) error {
	metadata := runner.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runners (name, status, metadata, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name) DO NOTHING`,
		runner.Name, runner.Status, metadata, runner.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert runner: %w", err)
	}
	return nil
}

// TouchRunner records a heartbeat: stored status, last-seen, and the runner's
// current assignment. Metadata is merged only when provided.
func (s *PostgresStore) TouchRunner(ctx context.Context, update RunnerUpdate) error {
	query := `UPDATE runners SET status = $2, last_seen_at = NOW(),
	          current_job_id = $3, current_chunk_id = $4`
	args := []any{update.Name, update.Status, update.CurrentJobID, update.CurrentChunkID}
	if update.Metadata != nil {
		query += `, metadata = metadata || $5::jsonb`
		args = append(args, update.Metadata)
	}
	query += ` WHERE name = $1`

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("touch runner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetRunner(ctx context.Context, name string) (*models.Runner, error) {
	r, err := scanRunner(s.pool.QueryRow(ctx,
		`SELECT `+runnerColumns+` FROM runners WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get runner: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListRunners(ctx context.Context) ([]*models.Runner, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+runnerColumns+` FROM runners ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list runners: %w", err)
	}
	defer rows.Close()

	var runners []*models.Runner
	for rows.Next() {
		r, err := scanRunner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan runner: %w", err)
		}
		runners = append(runners, r)
	}
	return runners, rows.Err()
}

func (s *PostgresStore) CountLiveRunners(ctx context.Context, seenSince time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM runners WHERE last_seen_at >= $1`, seenSince).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count live runners: %w", err)
	}
	return n, nil
}

// --- Credentials ---

const credentialColumns = `id, runner_name, secret_hash, prefix, description, admin, expires_at, revoked_at, last_used_at, created_at`

func scanCredential(row pgx.Row) (*models.Credential, error) {
	var c models.Credential
	err := row.Scan(&c.ID, &c.RunnerName, &c.SecretHash, &c.Prefix, &c.Description,
		&c.Admin, &c.ExpiresAt, &c.RevokedAt, &c.LastUsedAt, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) CreateCredential(ctx context.Context, cred *models.Credential) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runner_credentials (id, runner_name, secret_hash, prefix, description, admin, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		cred.ID, cred.RunnerName, cred.SecretHash, cred.Prefix, cred.Description,
		cred.Admin, cred.ExpiresAt, cred.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCredentialsByPrefix(ctx context.Context, prefix string) ([]*models.Credential, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+credentialColumns+` FROM runner_credentials
		 WHERE prefix = $1 AND revoked_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get credentials by prefix: %w", err)
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func (s *PostgresStore) ListCredentials(ctx context.Context) ([]*models.Credential, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+credentialColumns+` FROM runner_credentials ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// RevokeCredential marks a credential revoked. The row is kept for audit.
func (s *PostgresStore) RevokeCredential(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runner_credentials SET revoked_at = NOW()
		 WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RevokeRunnerCredentials(ctx context.Context, runnerName string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runner_credentials SET revoked_at = NOW()
		 WHERE runner_name = $1 AND revoked_at IS NULL`, runnerName)
	if err != nil {
		return 0, fmt.Errorf("revoke runner credentials: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) UpdateCredentialLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE runner_credentials SET last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update credential last used: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE runners SET last_auth_at = NOW(), last_seen_at = NOW()
		 WHERE name = (SELECT runner_name FROM runner_credentials WHERE id = $1)`, id)
	if err != nil {
		return fmt.Errorf("update runner auth: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountActiveCredentials(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM runner_credentials
		 WHERE revoked_at IS NULL AND (expires_at IS NULL OR expires_at > NOW())`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active credentials: %w", err)
	}
	return n, nil
}

// prefixed qualifies each column in a comma-separated list with alias.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, col := range cols {
		cols[i] = alias + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
