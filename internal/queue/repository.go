package queue

import (
	"context"
	"time"
)

// JobRepository is the durable store behind the queue.
type JobRepository interface {
	Insert(ctx context.Context, name string, maxAttempts int, scheduledAt time.Time, args []any) (int64, error)
	FindByID(ctx context.Context, jobID int64) (*Job, error)
	FetchDue(ctx context.Context, limit int, before time.Time) ([]Job, error)

	// Claim flips a due job to processing for this instance. Returns false
	// when another worker got there first.
	Claim(ctx context.Context, jobID int64, lockedBy string) (bool, error)

	MarkSuccess(ctx context.Context, jobID int64) error
	// MarkFailure records the error and bumps the attempt counter; once
	// attempts reach max the job goes dead instead of failed.
	MarkFailure(ctx context.Context, jobID int64, errMsg string) (JobStatus, error)

	// ScheduleRetries moves failed jobs with attempts left back to retrying,
	// with an exponential delay based on the attempt count.
	ScheduleRetries(ctx context.Context, baseDelay time.Duration) error

	// UnlockStale requeues jobs stuck in processing longer than timeout,
	// e.g. after a worker crash.
	UnlockStale(ctx context.Context, timeout time.Duration) error

	Close() error
}
