package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"formrelay/internal/models"
	"formrelay/internal/state"
)

var ErrNotFound = errors.New("submission not found")

type PostgresSubmissionRepository struct {
	db *sql.DB
}

func NewPostgresSubmissionRepository(db *sql.DB) *PostgresSubmissionRepository {
	return &PostgresSubmissionRepository{db: db}
}

func (r *PostgresSubmissionRepository) Insert(ctx context.Context, sub *models.Submission) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.State = state.StateCreated

	query := `
		INSERT INTO formrelay_schema.submissions (
			id,
			form_instance_id,
			form_type,
			owner_id,
			payload,
			state,
			max_attempts,
			encrypted_context,
			created_at,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
	`

	_, err := r.db.ExecContext(ctx, query,
		sub.ID,
		sub.FormInstanceID,
		sub.FormType,
		sub.OwnerID,
		[]byte(sub.Payload),
		sub.State,
		sub.MaxAttempts,
		sub.EncryptedContext,
	)
	return err
}

func (r *PostgresSubmissionRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id)
	return r.scanSubmission(row)
}

func (r *PostgresSubmissionRepository) HasActiveSubmission(ctx context.Context, formInstanceID uuid.UUID) (bool, error) {
	active := append(append([]state.SubmissionState{}, state.PendingStates...), state.SuccessStates...)
	states := make([]string, 0, len(active))
	for _, s := range active {
		states = append(states, s.String())
	}

	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM formrelay_schema.submissions
		WHERE form_instance_id = $1 AND state = ANY($2)
	`, formInstanceID, pq.Array(states)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("active submission lookup: %w", err)
	}
	return count > 0, nil
}

func (r *PostgresSubmissionRepository) MarkSubmitting(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.cas(ctx, `
		UPDATE formrelay_schema.submissions
		SET state = 'submitting',
		    attempts = attempts + 1,
		    updated_at = now()
		WHERE id = $1 AND state IN ('created', 'errored')
	`, id)
}

func (r *PostgresSubmissionRepository) MarkAccepted(ctx context.Context, id uuid.UUID, upstreamID string) (bool, error) {
	return r.cas(ctx, `
		UPDATE formrelay_schema.submissions
		SET state = 'accepted',
		    upstream_id = $2,
		    last_error = NULL,
		    finished_at = now(),
		    updated_at = now()
		WHERE id = $1 AND state IN ('submitting', 'paranoid_success')
	`, id, upstreamID)
}

func (r *PostgresSubmissionRepository) MarkParanoidSuccess(ctx context.Context, id uuid.UUID, upstreamID string) (bool, error) {
	return r.cas(ctx, `
		UPDATE formrelay_schema.submissions
		SET state = 'paranoid_success',
		    upstream_id = $2,
		    updated_at = now()
		WHERE id = $1 AND state = 'submitting'
	`, id, upstreamID)
}

func (r *PostgresSubmissionRepository) MarkRejected(ctx context.Context, id uuid.UUID, detail string) (bool, error) {
	return r.cas(ctx, `
		UPDATE formrelay_schema.submissions
		SET state = 'rejected',
		    last_error = $2,
		    finished_at = now(),
		    updated_at = now()
		WHERE id = $1 AND state IN ('submitting', 'paranoid_success')
	`, id, detail)
}

func (r *PostgresSubmissionRepository) MarkErrored(ctx context.Context, id uuid.UUID, errMsg string) (bool, error) {
	return r.cas(ctx, `
		UPDATE formrelay_schema.submissions
		SET state = 'errored',
		    last_error = $2,
		    updated_at = now()
		WHERE id = $1 AND state = 'submitting'
	`, id, errMsg)
}

func (r *PostgresSubmissionRepository) MarkExhausted(ctx context.Context, id uuid.UUID, errMsg string) (bool, error) {
	// Normally the row sits in errored when retries run out. A worker crash
	// between claiming and recording the error can leave it in created or
	// submitting; exhaustion still has to land.
	return r.cas(ctx, `
		UPDATE formrelay_schema.submissions
		SET state = 'exhausted',
		    last_error = $2,
		    finished_at = now(),
		    updated_at = now()
		WHERE id = $1 AND state IN ('created', 'submitting', 'errored')
	`, id, errMsg)
}

func (r *PostgresSubmissionRepository) FetchAwaitingDecision(ctx context.Context, limit int) ([]models.Submission, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+`
		WHERE upstream_id IS NOT NULL
		  AND state IN ('submitting', 'errored', 'paranoid_success')
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.Submission
	for rows.Next() {
		sub, err := r.scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (r *PostgresSubmissionRepository) DeleteSettledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM formrelay_schema.submissions
		WHERE created_at < $1
		  AND state NOT IN ('created', 'submitting', 'errored')
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresSubmissionRepository) Close() error {
	return r.db.Close()
}

func (r *PostgresSubmissionRepository) cas(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

const selectColumns = `
	SELECT id,
	       form_instance_id,
	       form_type,
	       owner_id,
	       payload,
	       state,
	       attempts,
	       max_attempts,
	       upstream_id,
	       last_error,
	       encrypted_context,
	       created_at,
	       updated_at,
	       finished_at
	FROM formrelay_schema.submissions
`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresSubmissionRepository) scanSubmission(row rowScanner) (*models.Submission, error) {
	var sub models.Submission
	var payload []byte
	err := row.Scan(
		&sub.ID,
		&sub.FormInstanceID,
		&sub.FormType,
		&sub.OwnerID,
		&payload,
		&sub.State,
		&sub.Attempts,
		&sub.MaxAttempts,
		&sub.UpstreamID,
		&sub.LastError,
		&sub.EncryptedContext,
		&sub.CreatedAt,
		&sub.UpdatedAt,
		&sub.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sub.Payload = payload
	return &sub, nil
}
