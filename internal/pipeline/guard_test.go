package pipeline

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formrelay/internal/models"
	"formrelay/internal/state"
)

func TestIdempotencyGuard_NoExistingSubmission(t *testing.T) {
	repo := newMockSubmissionRepo()
	guard := NewIdempotencyGuard(repo)

	needed, err := guard.SubmissionNeeded(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, needed)
}

func TestIdempotencyGuard_BlocksDuplicates(t *testing.T) {
	tests := []struct {
		name     string
		existing state.SubmissionState
		needed   bool
	}{
		{name: "pending created blocks", existing: state.StateCreated, needed: false},
		{name: "in-flight submitting blocks", existing: state.StateSubmitting, needed: false},
		{name: "errored awaiting retry blocks", existing: state.StateErrored, needed: false},
		{name: "accepted blocks", existing: state.StateAccepted, needed: false},
		{name: "paranoid success blocks", existing: state.StateParanoidSuccess, needed: false},
		{name: "rejected allows resubmission", existing: state.StateRejected, needed: true},
		{name: "exhausted allows resubmission", existing: state.StateExhausted, needed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockSubmissionRepo()
			formInstanceID := uuid.New()
			repo.add(&models.Submission{FormInstanceID: formInstanceID, State: tt.existing})

			guard := NewIdempotencyGuard(repo)
			needed, err := guard.SubmissionNeeded(context.Background(), formInstanceID)
			require.NoError(t, err)
			assert.Equal(t, tt.needed, needed)
		})
	}
}

func TestIdempotencyGuard_StoreErrorSurfaces(t *testing.T) {
	repo := newMockSubmissionRepo()
	repo.HasActiveSubmissionFunc = func(ctx context.Context, formInstanceID uuid.UUID) (bool, error) {
		return false, errStoreDown
	}

	guard := NewIdempotencyGuard(repo)
	_, err := guard.SubmissionNeeded(context.Background(), uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, errStoreDown)
}
