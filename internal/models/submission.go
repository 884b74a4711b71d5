package models

import (
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"formrelay/internal/state"
)

// Submission is the persisted record of one user's attempt to deliver a form
// to an upstream intake system. All state changes go through the repository's
// transition methods; nothing else writes these fields.
type Submission struct {
	ID             uuid.UUID
	FormInstanceID uuid.UUID
	FormType       string
	OwnerID        string
	Payload        json.RawMessage
	State          state.SubmissionState
	Attempts       int
	MaxAttempts    int
	// UpstreamID is assigned by the upstream system once a submit call
	// succeeds. Nil until then.
	UpstreamID *string
	LastError  *string
	// EncryptedContext carries the sealed user context needed by the upstream
	// call. Decrypted only inside the job, never logged.
	EncryptedContext []byte
	CreatedAt        time.Time
	UpdatedAt        time.Time
	FinishedAt       *time.Time
}

// FormFields is the subset of the payload the pipeline itself reads:
// the claimant's contact details used for failure notifications.
type FormFields struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
}

// ParseFormFields extracts the notification fields from the opaque payload.
// A payload that does not decode is reported, not tolerated silently.
func (s *Submission) ParseFormFields() (*FormFields, error) {
	var f FormFields
	if err := json.Unmarshal(s.Payload, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
