package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

type mockJobRepository struct {
	mu    sync.Mutex
	jobs  map[int64]*Job
	idSeq int64

	InsertFunc          func(ctx context.Context, name string, maxAttempts int, scheduledAt time.Time, args []any) (int64, error)
	MarkFailureFunc     func(ctx context.Context, jobID int64, errMsg string) (JobStatus, error)
	ScheduleRetriesFunc func(ctx context.Context, baseDelay time.Duration) error
	UnlockStaleFunc     func(ctx context.Context, timeout time.Duration) error
}

func newMockJobRepository() *mockJobRepository {
	return &mockJobRepository{jobs: make(map[int64]*Job)}
}

func (m *mockJobRepository) Insert(ctx context.Context, name string, maxAttempts int, scheduledAt time.Time, args []any) (int64, error) {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, name, maxAttempts, scheduledAt, args)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	payload, err := json.Marshal(args)
	if err != nil {
		return 0, err
	}
	m.idSeq++
	m.jobs[m.idSeq] = &Job{
		ID:          m.idSeq,
		Name:        name,
		Payload:     payload,
		Status:      StatusQueued,
		MaxAttempts: maxAttempts,
		ScheduledAt: scheduledAt,
		CreatedAt:   time.Now(),
	}
	return m.idSeq, nil
}

func (m *mockJobRepository) FindByID(ctx context.Context, jobID int64) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, errors.New("job not found")
	}
	cp := *job
	return &cp, nil
}

func (m *mockJobRepository) FetchDue(ctx context.Context, limit int, before time.Time) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []Job
	for _, job := range m.jobs {
		if len(due) >= limit {
			break
		}
		if (job.Status == StatusQueued || job.Status == StatusRetrying) && !job.ScheduledAt.After(before) {
			due = append(due, *job)
		}
	}
	return due, nil
}

func (m *mockJobRepository) Claim(ctx context.Context, jobID int64, lockedBy string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || (job.Status != StatusQueued && job.Status != StatusRetrying) {
		return false, nil
	}
	job.Status = StatusProcessing
	job.LockedBy = &lockedBy
	now := time.Now()
	job.LockedAt = &now
	return true, nil
}

func (m *mockJobRepository) MarkSuccess(ctx context.Context, jobID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status != StatusProcessing {
		return nil
	}
	job.Status = StatusSucceeded
	job.Attempts++
	return nil
}

func (m *mockJobRepository) MarkFailure(ctx context.Context, jobID int64, errMsg string) (JobStatus, error) {
	if m.MarkFailureFunc != nil {
		return m.MarkFailureFunc(ctx, jobID, errMsg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status != StatusProcessing {
		return "", errors.New("job not processing")
	}
	job.Attempts++
	job.LastError = &errMsg
	if job.Attempts >= job.MaxAttempts {
		job.Status = StatusDead
	} else {
		job.Status = StatusFailed
	}
	return job.Status, nil
}

func (m *mockJobRepository) ScheduleRetries(ctx context.Context, baseDelay time.Duration) error {
	if m.ScheduleRetriesFunc != nil {
		return m.ScheduleRetriesFunc(ctx, baseDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.jobs {
		if job.Status == StatusFailed && job.Attempts < job.MaxAttempts {
			job.Status = StatusRetrying
			job.ScheduledAt = time.Now()
		}
	}
	return nil
}

func (m *mockJobRepository) UnlockStale(ctx context.Context, timeout time.Duration) error {
	if m.UnlockStaleFunc != nil {
		return m.UnlockStaleFunc(ctx, timeout)
	}
	return nil
}

func (m *mockJobRepository) Close() error { return nil }

func (m *mockJobRepository) status(jobID int64) JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[jobID].Status
}

type mockLockManager struct{}

func (mockLockManager) TryAcquire(lockID int) (bool, error) { return true, nil }
func (mockLockManager) Acquire(lockID int) error            { return nil }
func (mockLockManager) Release(lockID int) error            { return nil }
