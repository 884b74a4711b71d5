package queue

import (
	"context"
	"database/sql"
	"time"

	json "github.com/goccy/go-json"
)

type PostgresJobRepository struct {
	db *sql.DB
}

func NewPostgresJobRepository(db *sql.DB) *PostgresJobRepository {
	return &PostgresJobRepository{db: db}
}

func (r *PostgresJobRepository) Insert(ctx context.Context, name string, maxAttempts int, scheduledAt time.Time, args []any) (int64, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO formrelay_schema.jobs (
			name,
			payload,
			scheduled_at,
			max_attempts,
			created_at
		)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id
	`

	var jobID int64
	err = r.db.QueryRowContext(ctx, query, name, payload, scheduledAt, maxAttempts).Scan(&jobID)
	return jobID, err
}

func (r *PostgresJobRepository) FindByID(ctx context.Context, jobID int64) (*Job, error) {
	row := r.db.QueryRowContext(ctx, jobColumns+` WHERE id = $1`, jobID)
	return scanJob(row)
}

func (r *PostgresJobRepository) FetchDue(ctx context.Context, limit int, before time.Time) ([]Job, error) {
	rows, err := r.db.QueryContext(ctx, jobColumns+`
		WHERE status IN ('queued', 'retrying')
		  AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (r *PostgresJobRepository) Claim(ctx context.Context, jobID int64, lockedBy string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE formrelay_schema.jobs
		SET status = 'processing',
		    locked_by = $1,
		    locked_at = now(),
		    executed_at = now()
		WHERE id = $2 AND status IN ('queued', 'retrying')
	`, lockedBy, jobID)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (r *PostgresJobRepository) MarkSuccess(ctx context.Context, jobID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE formrelay_schema.jobs
		SET status = 'succeeded',
		    attempts = attempts + 1,
		    locked_by = NULL,
		    locked_at = NULL,
		    finished_at = now()
		WHERE id = $1 AND status = 'processing'
	`, jobID)
	return err
}

func (r *PostgresJobRepository) MarkFailure(ctx context.Context, jobID int64, errMsg string) (JobStatus, error) {
	var status JobStatus
	err := r.db.QueryRowContext(ctx, `
		UPDATE formrelay_schema.jobs
		SET attempts = attempts + 1,
		    last_error = $2,
		    locked_by = NULL,
		    locked_at = NULL,
		    status = CASE WHEN attempts + 1 >= max_attempts THEN 'dead' ELSE 'failed' END,
		    finished_at = CASE WHEN attempts + 1 >= max_attempts THEN now() ELSE finished_at END
		WHERE id = $1 AND status = 'processing'
		RETURNING status
	`, jobID, errMsg).Scan(&status)
	if err != nil {
		return "", err
	}
	return status, nil
}

func (r *PostgresJobRepository) ScheduleRetries(ctx context.Context, baseDelay time.Duration) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE formrelay_schema.jobs
		SET status = 'retrying',
		    scheduled_at = now() + ($1 * power(2, attempts - 1) * interval '1 second')
		WHERE status = 'failed' AND attempts < max_attempts
	`, int64(baseDelay.Seconds()))
	return err
}

func (r *PostgresJobRepository) UnlockStale(ctx context.Context, timeout time.Duration) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE formrelay_schema.jobs
		SET status = 'queued',
		    locked_by = NULL,
		    locked_at = NULL
		WHERE status = 'processing' AND locked_at <= now() - ($1 * interval '1 second')
	`, int64(timeout.Seconds()))
	return err
}

func (r *PostgresJobRepository) Close() error {
	return r.db.Close()
}

const jobColumns = `
	SELECT id,
	       name,
	       payload,
	       status,
	       attempts,
	       max_attempts,
	       scheduled_at,
	       executed_at,
	       finished_at,
	       last_error,
	       locked_by,
	       locked_at,
	       created_at
	FROM formrelay_schema.jobs
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var payload []byte
	if err := row.Scan(
		&job.ID,
		&job.Name,
		&payload,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.ScheduledAt,
		&job.ExecutedAt,
		&job.FinishedAt,
		&job.LastError,
		&job.LockedBy,
		&job.LockedAt,
		&job.CreatedAt,
	); err != nil {
		return nil, err
	}
	job.Payload = payload
	return &job, nil
}
