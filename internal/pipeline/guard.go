package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"formrelay/internal/repository"
)

// IdempotencyGuard prevents duplicate upstream deliveries for one logical
// form instance. Read-only; the compare-and-set transitions in the repository
// carry the same invariant at write time.
type IdempotencyGuard struct {
	repo repository.SubmissionRepository
}

func NewIdempotencyGuard(repo repository.SubmissionRepository) *IdempotencyGuard {
	return &IdempotencyGuard{repo: repo}
}

// SubmissionNeeded reports whether a new submission should be created for
// the form instance. False when one is already pending or already succeeded.
// A store outage is an error, never a silent false.
func (g *IdempotencyGuard) SubmissionNeeded(ctx context.Context, formInstanceID uuid.UUID) (bool, error) {
	active, err := g.repo.HasActiveSubmission(ctx, formInstanceID)
	if err != nil {
		return false, fmt.Errorf("idempotency check for %s: %w", formInstanceID, err)
	}
	return !active, nil
}
