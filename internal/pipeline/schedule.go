package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"formrelay/internal/lock"
)

// RunOnSchedule runs fn at each firing of a standard five-field cron
// expression. Each firing is guarded by a non-blocking advisory lock grab, so
// with several instances exactly one executes the duty and the rest skip the
// firing; when the holder dies, another instance picks up the next one.
// Blocks until ctx is cancelled.
func RunOnSchedule(ctx context.Context, name, expression string, locks lock.DistributedLockManager, lockID int, fn func(context.Context) error) error {
	for {
		next := calculateNextRun(expression, time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			runWithLock(ctx, name, locks, lockID, fn)
		}
	}
}

func runWithLock(ctx context.Context, name string, locks lock.DistributedLockManager, lockID int, fn func(context.Context) error) {
	held, err := locks.TryAcquire(lockID)
	if err != nil {
		log.Printf("%s: lock check failed: %v", name, err)
		return
	}
	if !held {
		log.Printf("%s: another instance holds the lock, skipping this firing", name)
		return
	}
	defer locks.Release(lockID)

	if err := fn(ctx); err != nil {
		log.Printf("%s: scheduled run failed: %v", name, err)
	}
}

func calculateNextRun(expr string, from time.Time) time.Time {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		log.Printf("schedule: invalid cron expression '%s': %v", expr, err)
		return from.Add(1 * time.Hour)
	}
	return schedule.Next(from)
}
