package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bjpl/inteljobs/internal/domain"
)

// Execution is one durable row per terminal job run.
type Execution struct {
	ID         string
	JobID      string
	JobType    string
	Queue      string
	WorkerID   string
	Attempts   int
	Status     domain.State
	DurationMs int64
	Error      string
	ExecutedAt time.Time
}

// ExecutionRepository persists the execution log. The worker writes it
// best-effort: a failed insert is logged, never fatal to the job.
type ExecutionRepository interface {
	Record(ctx context.Context, exec *Execution) error
	GetByJobID(ctx context.Context, jobID string) (*Execution, error)
	ListRecent(ctx context.Context, jobType string, limit int) ([]*Execution, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps a pgxpool with the ExecutionRepository interface.
func NewRepository(pool *pgxpool.Pool) ExecutionRepository {
	return &repository{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (r *repository) Record(ctx context.Context, exec *Execution) error {
	if exec.ID == "" {
		exec.ID = uuid.New().String()
	}
	if exec.ExecutedAt.IsZero() {
		exec.ExecutedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO job_executions
			(id, job_id, job_type, queue, worker_id, attempts, status, duration_ms, error, executed_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		exec.ID, exec.JobID, exec.JobType, exec.Queue, exec.WorkerID,
		exec.Attempts, string(exec.Status), exec.DurationMs, exec.Error, exec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("record execution for job %s: %w", exec.JobID, err)
	}
	return nil
}

func (r *repository) GetByJobID(ctx context.Context, jobID string) (*Execution, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, job_id, job_type, queue, worker_id, attempts, status, duration_ms, error, executed_at
		FROM job_executions
		WHERE job_id = $1
		ORDER BY executed_at DESC
		LIMIT 1
	`, jobID)

	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.JobNotFoundError{JobID: jobID}
		}
		return nil, err
	}
	return exec, nil
}

func (r *repository) ListRecent(ctx context.Context, jobType string, limit int) ([]*Execution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, job_id, job_type, queue, worker_id, attempts, status, duration_ms, error, executed_at
		FROM job_executions
		WHERE ($1 = '' OR job_type = $1)
		ORDER BY executed_at DESC
		LIMIT $2
	`, jobType, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions for type %q: %w", jobType, err)
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

// scanExecution reads an execution row from any pgx row type.
func scanExecution(row interface {
	Scan(...any) error
}) (*Execution, error) {
	var exec Execution
	var statusStr string
	err := row.Scan(
		&exec.ID, &exec.JobID, &exec.JobType, &exec.Queue, &exec.WorkerID,
		&exec.Attempts, &statusStr, &exec.DurationMs, &exec.Error, &exec.ExecutedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	exec.Status = domain.State(statusStr)
	return &exec, nil
}
