package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"formrelay/internal/models"
	"formrelay/internal/queue"
	"formrelay/internal/repository"
)

// Job names. The registry is closed over these; anything else in the jobs
// table is a typed error.
const (
	JobSubmitForm = "submit_form"
)

// SubmitHandler binds the controller to the queue: perform(submission_id,
// sealed_context_b64). Arguments stay small and serializable; the sealed
// context is opened only inside the job.
func SubmitHandler(c *Controller, maxAttempts int) queue.Handler {
	return queue.Handler{
		Name:        JobSubmitForm,
		MaxAttempts: maxAttempts,
		Run: func(ctx context.Context, args []any) error {
			if len(args) < 1 {
				return fmt.Errorf("submit_form: missing submission id argument")
			}
			raw, ok := args[0].(string)
			if !ok {
				return fmt.Errorf("submit_form: submission id is %T, want string", args[0])
			}
			id, err := uuid.Parse(raw)
			if err != nil {
				return fmt.Errorf("submit_form: parse submission id: %w", err)
			}

			var sealed []byte
			if len(args) > 1 {
				if s, ok := args[1].(string); ok && s != "" {
					if sealed, err = base64.StdEncoding.DecodeString(s); err != nil {
						return fmt.Errorf("submit_form: decode sealed context: %w", err)
					}
				}
			}
			return c.Run(ctx, id, sealed)
		},
		OnExhausted: c.OnRetriesExhausted,
	}
}

// Intake creates the submission record and enqueues its delivery job, behind
// the idempotency guard.
type Intake struct {
	repo     repository.SubmissionRepository
	guard    *IdempotencyGuard
	enqueuer queue.Enqueuer
}

func NewIntake(repo repository.SubmissionRepository, guard *IdempotencyGuard, enqueuer queue.Enqueuer) *Intake {
	return &Intake{repo: repo, guard: guard, enqueuer: enqueuer}
}

// DuplicateSubmissionError rejects a submission attempt for a form instance
// that already has one pending or succeeded.
type DuplicateSubmissionError struct {
	FormInstanceID uuid.UUID
}

func (e *DuplicateSubmissionError) Error() string {
	return fmt.Sprintf("form instance %s already has an active submission", e.FormInstanceID)
}

// Accept persists the submission and schedules delivery. The sealed context
// rides along as a job argument, base64-encoded, the same blob stored on the
// record.
func (i *Intake) Accept(ctx context.Context, sub *models.Submission) (int64, error) {
	needed, err := i.guard.SubmissionNeeded(ctx, sub.FormInstanceID)
	if err != nil {
		return 0, err
	}
	if !needed {
		return 0, &DuplicateSubmissionError{FormInstanceID: sub.FormInstanceID}
	}

	if err := i.repo.Insert(ctx, sub); err != nil {
		return 0, err
	}

	sealed := base64.StdEncoding.EncodeToString(sub.EncryptedContext)
	return i.enqueuer.Enqueue(ctx, JobSubmitForm, time.Now(), sub.ID.String(), sealed)
}
