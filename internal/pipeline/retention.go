package pipeline

import (
	"context"
	"log"
	"time"

	"formrelay/internal/metrics"
	"formrelay/internal/repository"
)

// RetentionSweep deletes settled submissions past the retention window.
// Pending records are never touched; deletion is the only hard delete in the
// system and runs without retries.
type RetentionSweep struct {
	repo     repository.SubmissionRepository
	recorder metrics.Recorder
	maxAge   time.Duration
}

func NewRetentionSweep(repo repository.SubmissionRepository, recorder metrics.Recorder, maxAge time.Duration) *RetentionSweep {
	if maxAge <= 0 {
		maxAge = 2 * 30 * 24 * time.Hour
	}
	return &RetentionSweep{repo: repo, recorder: recorder, maxAge: maxAge}
}

func (s *RetentionSweep) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-s.maxAge)
	deleted, err := s.repo.DeleteSettledBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		log.Printf("retention: deleted %d settled submissions older than %s", deleted, cutoff.Format(time.RFC3339))
	}
	s.recorder.Increment("retention.sweeps")
	return nil
}
