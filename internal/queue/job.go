package queue

import (
	"time"

	json "github.com/goccy/go-json"
)

// Job is one durable queue entry. Payload is the JSON-encoded argument list
// handed to the handler; arguments are small serializable values (ids,
// encoded blobs), never raw PII.
type Job struct {
	ID          int64
	Name        string
	Payload     json.RawMessage
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	ScheduledAt time.Time
	ExecutedAt  *time.Time
	FinishedAt  *time.Time
	LastError   *string
	LockedBy    *string
	LockedAt    *time.Time
	CreatedAt   time.Time
}

// Message is what the exhaustion hook receives once a job's retries are
// depleted: the original arguments plus the last recorded error. Arguments
// may be partial; hooks must decode them defensively.
type Message struct {
	JobID     int64
	Name      string
	Args      []any
	LastError string
	Attempts  int
}

// Result is the outcome of one job execution, sent from a worker goroutine to
// the result processor.
type Result struct {
	JobID       int64
	Name        string
	Args        []any
	Err         error
	Attempts    int
	MaxAttempts int
}
