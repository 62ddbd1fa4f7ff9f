package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brimobile1016/VEO3-NEW01/internal/domain"
)

// JobRegistryPG implements domain.Registry on PostgreSQL, for deployments
// where job status has to survive a restart.
type JobRegistryPG struct {
	pool *pgxpool.Pool
}

// NewJobRegistry creates a job registry backed by PostgreSQL.
func NewJobRegistry(pool *pgxpool.Pool) *JobRegistryPG {
	return &JobRegistryPG{pool: pool}
}

var _ domain.Registry = (*JobRegistryPG)(nil)

// InitSchema creates the jobs table if it does not exist yet.
func (r *JobRegistryPG) InitSchema(ctx context.Context) error {
	query := `
CREATE TABLE IF NOT EXISTS jobs (
    id           TEXT PRIMARY KEY,
    kind         TEXT NOT NULL,
    status       TEXT NOT NULL,
    request_json JSONB NOT NULL,
    result_json  JSONB,
    error_json   JSONB,
    created_at   TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL
);
`
	_, err := r.pool.Exec(ctx, query)
	return err
}

// Create inserts a new job record.
func (r *JobRegistryPG) Create(ctx context.Context, job *domain.Job) error {
	requestJSON, resultJSON, errorJSON, err := encodeJob(job)
	if err != nil {
		return err
	}
	query := `
INSERT INTO jobs (id, kind, status, request_json, result_json, error_json, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.Kind,
		job.Status,
		requestJSON,
		resultJSON,
		errorJSON,
		job.CreatedAt,
		job.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	return err
}

// Get fetches a job by its identifier.
func (r *JobRegistryPG) Get(ctx context.Context, id string) (*domain.Job, error) {
	return scanJob(r.pool.QueryRow(ctx, selectJobQuery, id))
}

// Update applies mutate inside a transaction holding a row lock, so
// concurrent status transitions for the same job serialize instead of
// overwriting each other.
func (r *JobRegistryPG) Update(ctx context.Context, id string, mutate func(*domain.Job) error) (*domain.Job, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	job, err := scanJob(tx.QueryRow(ctx, selectJobQuery+" FOR UPDATE", id))
	if err != nil {
		return nil, err
	}
	if err := mutate(job); err != nil {
		return nil, err
	}

	_, resultJSON, errorJSON, err := encodeJob(job)
	if err != nil {
		return nil, err
	}
	query := `
UPDATE jobs
SET status = $2,
    result_json = $3,
    error_json = $4,
    updated_at = $5
WHERE id = $1;
`
	if _, err := tx.Exec(ctx, query, job.ID, job.Status, resultJSON, errorJSON, job.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return job, nil
}

// List returns all jobs ordered by creation time.
func (r *JobRegistryPG) List(ctx context.Context) ([]*domain.Job, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, kind, status, request_json, result_json, error_json, created_at, updated_at
FROM jobs
ORDER BY created_at;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

const selectJobQuery = `
SELECT id, kind, status, request_json, result_json, error_json, created_at, updated_at
FROM jobs
WHERE id = $1`

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job         domain.Job
		requestJSON []byte
		resultJSON  []byte
		errorJSON   []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.Kind,
		&job.Status,
		&requestJSON,
		&resultJSON,
		&errorJSON,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(requestJSON, &job.Request); err != nil {
		return nil, fmt.Errorf("decode request for job %s: %w", job.ID, err)
	}
	if len(resultJSON) > 0 {
		job.Result = &domain.JobResult{}
		if err := json.Unmarshal(resultJSON, job.Result); err != nil {
			return nil, fmt.Errorf("decode result for job %s: %w", job.ID, err)
		}
	}
	if len(errorJSON) > 0 {
		job.Error = &domain.JobError{}
		if err := json.Unmarshal(errorJSON, job.Error); err != nil {
			return nil, fmt.Errorf("decode error for job %s: %w", job.ID, err)
		}
	}
	return &job, nil
}

func encodeJob(job *domain.Job) (requestJSON, resultJSON, errorJSON []byte, err error) {
	if requestJSON, err = json.Marshal(job.Request); err != nil {
		return nil, nil, nil, fmt.Errorf("encode request for job %s: %w", job.ID, err)
	}
	if job.Result != nil {
		if resultJSON, err = json.Marshal(job.Result); err != nil {
			return nil, nil, nil, fmt.Errorf("encode result for job %s: %w", job.ID, err)
		}
	}
	if job.Error != nil {
		if errorJSON, err = json.Marshal(job.Error); err != nil {
			return nil, nil, nil, fmt.Errorf("encode error for job %s: %w", job.ID, err)
		}
	}
	return requestJSON, resultJSON, errorJSON, nil
}
