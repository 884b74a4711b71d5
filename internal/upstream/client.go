package upstream

import (
	"context"

	"formrelay/internal/models"
)

// Receipt is the normalized result of a successful submit call.
type Receipt struct {
	UpstreamID string
	// Status is the upstream's own status word for the fresh submission,
	// e.g. "vbms" (fully confirmed) or "success" (received, not confirmed).
	Status  string
	RawBody []byte
}

// Confirmed reports whether the receipt is a full confirmation rather than an
// ambiguous acknowledgement.
func (r *Receipt) Confirmed() bool {
	return r.Status == StatusConfirmed
}

// Upstream status words shared by the submit and polling responses.
const (
	StatusConfirmed = "vbms"
	StatusReceived  = "success"
	StatusError     = "error"
	StatusExpired   = "expired"
)

// Client delivers one submission to the upstream system. Implementations must
// not mutate the submission; interpreting the outcome belongs to the
// controller. Failures are typed: *TransientError is retryable,
// *PermanentError is not.
type Client interface {
	Submit(ctx context.Context, sub *models.Submission, userContext []byte) (*Receipt, error)
}

// StatusClient answers batched "what happened to these submissions" queries
// for the poller.
type StatusClient interface {
	ListStatuses(ctx context.Context, upstreamIDs []string) ([]models.StatusRecord, error)
}
