package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"formrelay/internal/models"
	"formrelay/internal/repository"
	"formrelay/internal/state"
)

// ErrGatewayTimeout is returned when a submission does not settle within the
// caller's wall-clock budget. The submission itself keeps going; only the
// synchronous wait gives up.
var ErrGatewayTimeout = errors.New("gateway timeout waiting for submission to settle")

// Clock abstracts time for the await loop so tests run without real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Awaiter is the synchronous variant used by profile-style updates: block the
// caller until the submission settles or a wall-clock deadline passes.
type Awaiter struct {
	repo     repository.SubmissionRepository
	clock    Clock
	timeout  time.Duration
	interval time.Duration
}

func NewAwaiter(repo repository.SubmissionRepository, timeout, interval time.Duration) *Awaiter {
	return newAwaiterWithClock(repo, realClock{}, timeout, interval)
}

func newAwaiterWithClock(repo repository.SubmissionRepository, clock Clock, timeout, interval time.Duration) *Awaiter {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Awaiter{repo: repo, clock: clock, timeout: timeout, interval: interval}
}

// Await polls the record until it leaves the pending states. Returns the
// settled submission, or ErrGatewayTimeout once the deadline passes.
func (a *Awaiter) Await(ctx context.Context, submissionID uuid.UUID) (*models.Submission, error) {
	deadline := a.clock.Now().Add(a.timeout)

	for {
		sub, err := a.repo.FindByID(ctx, submissionID)
		if err != nil {
			return nil, err
		}
		if !state.IsPending(sub.State) {
			return sub, nil
		}

		if !a.clock.Now().Add(a.interval).Before(deadline) {
			return nil, ErrGatewayTimeout
		}
		if err := a.clock.Sleep(ctx, a.interval); err != nil {
			return nil, err
		}
	}
}
