package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"formrelay/internal/models"
)

// SubmissionRepository is the single writer of submission state. Every Mark*
// method is a compare-and-set: it reports false when the row was not in a
// state the transition is allowed from, and callers treat that as a no-op,
// not an error.
type SubmissionRepository interface {
	Insert(ctx context.Context, sub *models.Submission) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Submission, error)

	// HasActiveSubmission reports whether the form instance already has a
	// pending or successful submission.
	HasActiveSubmission(ctx context.Context, formInstanceID uuid.UUID) (bool, error)

	MarkSubmitting(ctx context.Context, id uuid.UUID) (bool, error)
	MarkAccepted(ctx context.Context, id uuid.UUID, upstreamID string) (bool, error)
	MarkParanoidSuccess(ctx context.Context, id uuid.UUID, upstreamID string) (bool, error)
	MarkRejected(ctx context.Context, id uuid.UUID, detail string) (bool, error)
	MarkErrored(ctx context.Context, id uuid.UUID, errMsg string) (bool, error)
	MarkExhausted(ctx context.Context, id uuid.UUID, errMsg string) (bool, error)

	// FetchAwaitingDecision returns submitted-but-unsettled records for the
	// poller, bounded by limit.
	FetchAwaitingDecision(ctx context.Context, limit int) ([]models.Submission, error)

	// DeleteSettledBefore removes non-pending records created before cutoff.
	// Returns the number of rows removed.
	DeleteSettledBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}
