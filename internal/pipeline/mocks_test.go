package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"formrelay/internal/models"
	"formrelay/internal/notify"
	"formrelay/internal/repository"
	"formrelay/internal/state"
	"formrelay/internal/upstream"
)

// mockSubmissionRepo mirrors the compare-and-set semantics of the Postgres
// repository: every Mark* only applies from the states the real UPDATE
// matches, and reports false otherwise.
type mockSubmissionRepo struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*models.Submission

	HasActiveSubmissionFunc func(ctx context.Context, formInstanceID uuid.UUID) (bool, error)
	FindByIDFunc            func(ctx context.Context, id uuid.UUID) (*models.Submission, error)
}

func newMockSubmissionRepo() *mockSubmissionRepo {
	return &mockSubmissionRepo{subs: make(map[uuid.UUID]*models.Submission)}
}

func (m *mockSubmissionRepo) add(sub *models.Submission) *models.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.State == "" {
		sub.State = state.StateCreated
	}
	sub.CreatedAt = time.Now()
	m.subs[sub.ID] = sub
	return sub
}

func (m *mockSubmissionRepo) Insert(ctx context.Context, sub *models.Submission) error {
	sub.State = state.StateCreated
	m.add(sub)
	return nil
}

func (m *mockSubmissionRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Submission, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (m *mockSubmissionRepo) HasActiveSubmission(ctx context.Context, formInstanceID uuid.UUID) (bool, error) {
	if m.HasActiveSubmissionFunc != nil {
		return m.HasActiveSubmissionFunc(ctx, formInstanceID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subs {
		if sub.FormInstanceID != formInstanceID {
			continue
		}
		if state.IsPending(sub.State) || sub.State == state.StateAccepted || sub.State == state.StateParanoidSuccess {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSubmissionRepo) transition(id uuid.UUID, allowed []state.SubmissionState, apply func(*models.Submission)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[id]
	if !ok {
		return false, nil
	}
	match := false
	for _, s := range allowed {
		if sub.State == s {
			match = true
			break
		}
	}
	if !match {
		return false, nil
	}
	apply(sub)
	sub.UpdatedAt = time.Now()
	return true, nil
}

func (m *mockSubmissionRepo) MarkSubmitting(ctx context.Context, id uuid.UUID) (bool, error) {
	return m.transition(id, []state.SubmissionState{state.StateCreated, state.StateErrored}, func(sub *models.Submission) {
		sub.State = state.StateSubmitting
		sub.Attempts++
	})
}

func (m *mockSubmissionRepo) MarkAccepted(ctx context.Context, id uuid.UUID, upstreamID string) (bool, error) {
	return m.transition(id, []state.SubmissionState{state.StateSubmitting, state.StateParanoidSuccess}, func(sub *models.Submission) {
		sub.State = state.StateAccepted
		sub.UpstreamID = &upstreamID
		sub.LastError = nil
		now := time.Now()
		sub.FinishedAt = &now
	})
}

func (m *mockSubmissionRepo) MarkParanoidSuccess(ctx context.Context, id uuid.UUID, upstreamID string) (bool, error) {
	return m.transition(id, []state.SubmissionState{state.StateSubmitting}, func(sub *models.Submission) {
		sub.State = state.StateParanoidSuccess
		sub.UpstreamID = &upstreamID
	})
}

func (m *mockSubmissionRepo) MarkRejected(ctx context.Context, id uuid.UUID, detail string) (bool, error) {
	return m.transition(id, []state.SubmissionState{state.StateSubmitting, state.StateParanoidSuccess}, func(sub *models.Submission) {
		sub.State = state.StateRejected
		sub.LastError = &detail
		now := time.Now()
		sub.FinishedAt = &now
	})
}

func (m *mockSubmissionRepo) MarkErrored(ctx context.Context, id uuid.UUID, errMsg string) (bool, error) {
	return m.transition(id, []state.SubmissionState{state.StateSubmitting}, func(sub *models.Submission) {
		sub.State = state.StateErrored
		sub.LastError = &errMsg
	})
}

func (m *mockSubmissionRepo) MarkExhausted(ctx context.Context, id uuid.UUID, errMsg string) (bool, error) {
	return m.transition(id, []state.SubmissionState{state.StateCreated, state.StateSubmitting, state.StateErrored}, func(sub *models.Submission) {
		sub.State = state.StateExhausted
		sub.LastError = &errMsg
		now := time.Now()
		sub.FinishedAt = &now
	})
}

func (m *mockSubmissionRepo) FetchAwaitingDecision(ctx context.Context, limit int) ([]models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Submission
	for _, sub := range m.subs {
		if len(out) >= limit {
			break
		}
		if sub.UpstreamID == nil {
			continue
		}
		switch sub.State {
		case state.StateSubmitting, state.StateErrored, state.StateParanoidSuccess:
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (m *mockSubmissionRepo) DeleteSettledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, sub := range m.subs {
		if sub.CreatedAt.Before(cutoff) && !state.IsPending(sub.State) {
			delete(m.subs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *mockSubmissionRepo) Close() error { return nil }

func (m *mockSubmissionRepo) get(id uuid.UUID) *models.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.subs[id]
	return &cp
}

// mockUpstreamClient scripts the adapter outcome per attempt.
type mockUpstreamClient struct {
	mu         sync.Mutex
	calls      int
	SubmitFunc func(ctx context.Context, sub *models.Submission, userContext []byte, call int) (*upstream.Receipt, error)
}

func (m *mockUpstreamClient) Submit(ctx context.Context, sub *models.Submission, userContext []byte) (*upstream.Receipt, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()
	return m.SubmitFunc(ctx, sub, userContext, call)
}

func (m *mockUpstreamClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockStatusClient struct {
	ListStatusesFunc func(ctx context.Context, upstreamIDs []string) ([]models.StatusRecord, error)
}

func (m *mockStatusClient) ListStatuses(ctx context.Context, upstreamIDs []string) ([]models.StatusRecord, error) {
	return m.ListStatusesFunc(ctx, upstreamIDs)
}

type sentEmail struct {
	Recipient  string
	TemplateID string
	Fields     notify.Personalization
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (m *mockNotifier) SendFailure(recipient, templateID string, fields notify.Personalization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentEmail{Recipient: recipient, TemplateID: templateID, Fields: fields})
	return nil
}

func (m *mockNotifier) sentEmails() []sentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentEmail(nil), m.sent...)
}

var errStoreDown = errors.New("store unreachable")

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	now    time.Time
	sleeps int
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	c.sleeps++
	return ctx.Err()
}
