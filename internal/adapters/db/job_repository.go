package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"bidhall-marketplace-service/internal/domain/job"
	"bidhall-marketplace-service/internal/domain/shared"
)

// JobRepository implements the scheduled job persistence interface
type JobRepository struct {
	conn *Connection
}

// NewJobRepository creates a new job repository
func NewJobRepository(conn *Connection) *JobRepository {
	return &JobRepository{conn: conn}
}

const jobColumns = `id, type, entity, reference_id, run_at, status, retries, config, last_error,
		created_at, updated_at, started_at, completed_at`

// Create persists a new job. The partial unique index on
// (type, reference_id) for in-flight statuses rejects a second concurrent
// job of the same type for a reference.
func (r *JobRepository) Create(ctx context.Context, j *job.Job) error {
	cfg, err := json.Marshal(j.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal job config: %w", err)
	}

	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.conn.GetDB().ExecContext(ctx, query,
		j.ID,
		j.Type,
		j.Entity,
		j.ReferenceID,
		j.RunAt,
		j.Status,
		j.Retries,
		cfg,
		j.LastError,
		j.CreatedAt,
		j.UpdatedAt,
		j.StartedAt,
		j.CompletedAt,
	)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return shared.ErrJobAlreadyScheduled
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by ID
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE id = $1
	`

	j, err := scanJob(r.conn.GetDB().QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, shared.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return j, nil
}

// Update updates a job's status, retries and bookkeeping timestamps
func (r *JobRepository) Update(ctx context.Context, j *job.Job) error {
	cfg, err := json.Marshal(j.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal job config: %w", err)
	}

	query := `
		UPDATE jobs
		SET run_at = $2, status = $3, retries = $4, config = $5, last_error = $6,
		    updated_at = $7, started_at = $8, completed_at = $9
		WHERE id = $1
	`

	result, err := r.conn.GetDB().ExecContext(ctx, query,
		j.ID,
		j.RunAt,
		j.Status,
		j.Retries,
		cfg,
		j.LastError,
		j.UpdatedAt,
		j.StartedAt,
		j.CompletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return shared.ErrJobNotFound
	}

	return nil
}

// ListInFlight retrieves every pending or retry-queued job for boot reload
func (r *JobRepository) ListInFlight(ctx context.Context) ([]*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE status IN ('pending', 'retry_queued')
		ORDER BY run_at ASC
	`

	rows, err := r.conn.GetDB().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-flight jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// GetInFlightByReference retrieves the in-flight job of a type for a reference
func (r *JobRepository) GetInFlightByReference(ctx context.Context, jobType string, referenceID uuid.UUID) (*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE type = $1 AND reference_id = $2
		  AND status IN ('pending', 'running', 'retry_queued')
		LIMIT 1
	`

	j, err := scanJob(r.conn.GetDB().QueryRowContext(ctx, query, jobType, referenceID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, shared.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get in-flight job: %w", err)
	}

	return j, nil
}

// ListInFlightByReference retrieves all in-flight jobs for a reference
func (r *JobRepository) ListInFlightByReference(ctx context.Context, referenceID uuid.UUID) ([]*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE reference_id = $1
		  AND status IN ('pending', 'running', 'retry_queued')
		ORDER BY run_at ASC
	`

	rows, err := r.conn.GetDB().QueryContext(ctx, query, referenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list in-flight jobs by reference: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// DeleteTerminalBefore removes terminal jobs in the given statuses older than cutoff
func (r *JobRepository) DeleteTerminalBefore(ctx context.Context, statuses []job.Status, cutoff time.Time) (int64, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	query := `
		DELETE FROM jobs
		WHERE status = ANY($1)
		  AND updated_at < $2
	`

	result, err := r.conn.GetDB().ExecContext(ctx, query, pq.Array(names), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete terminal jobs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// FailStuckRunning force-fails jobs stuck in running since before cutoff
func (r *JobRepository) FailStuckRunning(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE jobs
		SET status = 'failed', last_error = 'stuck in running state', updated_at = NOW()
		WHERE status = 'running'
		  AND started_at < $1
	`

	result, err := r.conn.GetDB().ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stuck jobs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

func scanJob(row rowScanner) (*job.Job, error) {
	var j job.Job
	var cfg []byte
	var lastError sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&j.ID,
		&j.Type,
		&j.Entity,
		&j.ReferenceID,
		&j.RunAt,
		&j.Status,
		&j.Retries,
		&cfg,
		&lastError,
		&j.CreatedAt,
		&j.UpdatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(cfg, &j.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job config: %w", err)
	}
	if lastError.Valid {
		j.LastError = lastError.String
	}
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}

	return &j, nil
}

func collectJobs(rows *sql.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}
