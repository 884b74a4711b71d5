package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formrelay/internal/metrics"
	"formrelay/internal/models"
	"formrelay/internal/repository"
	"formrelay/internal/state"
)

func TestRetentionSweep_DeletesOnlyOldSettledRecords(t *testing.T) {
	repo := newMockSubmissionRepo()
	recorder := metrics.NewMemoryRecorder()
	sweep := NewRetentionSweep(repo, recorder, 60*24*time.Hour)

	old := -90 * 24 * time.Hour
	oldAccepted := repo.add(&models.Submission{FormInstanceID: uuid.New(), State: state.StateAccepted})
	oldAccepted.CreatedAt = time.Now().Add(old)
	oldPending := repo.add(&models.Submission{FormInstanceID: uuid.New(), State: state.StateErrored})
	oldPending.CreatedAt = time.Now().Add(old)
	freshAccepted := repo.add(&models.Submission{FormInstanceID: uuid.New(), State: state.StateAccepted})

	require.NoError(t, sweep.Sweep(context.Background()))

	_, err := repo.FindByID(context.Background(), oldAccepted.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// Pending records survive regardless of age; fresh ones survive the cutoff.
	_, err = repo.FindByID(context.Background(), oldPending.ID)
	assert.NoError(t, err)
	_, err = repo.FindByID(context.Background(), freshAccepted.ID)
	assert.NoError(t, err)

	assert.Equal(t, 1, recorder.Count("retention.sweeps"))
}
