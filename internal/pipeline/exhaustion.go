package pipeline

import (
	"context"
	"encoding/base64"
	"log"

	"github.com/google/uuid"

	"formrelay/internal/queue"
)

// Metric names for operational alerting on exhausted submissions. The
// silent-failure counter drives the dashboard alarm and fires on every
// exhaustion, whether or not a user-facing email goes out.
const (
	metricNoRetriesLeft = "worker.submit_form.failed_no_retries_left"
	metricSilentFailure = "silent_failure"
)

// OnRetriesExhausted is the queue's exhaustion hook for submission jobs. By
// the time it runs the job arguments may be partial or undecryptable, so
// everything here is defensive: decode what can be decoded, always record the
// operational metric, and only then attempt the user-facing notification.
func (c *Controller) OnRetriesExhausted(ctx context.Context, msg queue.Message) {
	submissionID, sealedContext := decodeExhaustedArgs(msg.Args)

	tags := []string{"job:" + msg.Name}
	if submissionID != uuid.Nil {
		tags = append(tags, "submission_id:"+submissionID.String())
	}
	c.recorder.Increment(metricNoRetriesLeft, tags...)
	c.recorder.Increment(metricSilentFailure, "service:formrelay", "function:"+msg.Name)

	if submissionID == uuid.Nil {
		log.Printf("exhaustion: job %d has no usable submission id, cannot settle record", msg.JobID)
		return
	}

	if _, err := c.repo.MarkExhausted(ctx, submissionID, msg.LastError); err != nil {
		log.Printf("exhaustion: mark exhausted %s: %v", submissionID, err)
		// The record could not be settled, but the metric above already
		// fired; fall through and still try to notify the user.
	}

	sub, err := c.repo.FindByID(ctx, submissionID)
	if err != nil {
		log.Printf("exhaustion: load submission %s: %v", submissionID, err)
		return
	}

	var decrypted []byte
	if len(sealedContext) > 0 {
		if decrypted, err = c.box.Open(sealedContext); err != nil {
			log.Printf("exhaustion: cannot open user context for %s: %v", submissionID, err)
			decrypted = nil
		}
	}

	c.sendFailureEmail(sub, decrypted)
}

// decodeExhaustedArgs pulls the submission id and the sealed user context out
// of the original job arguments. Either may be missing or malformed.
func decodeExhaustedArgs(args []any) (uuid.UUID, []byte) {
	var id uuid.UUID
	var sealed []byte

	if len(args) > 0 {
		if s, ok := args[0].(string); ok {
			if parsed, err := uuid.Parse(s); err == nil {
				id = parsed
			}
		}
	}
	if len(args) > 1 {
		if s, ok := args[1].(string); ok {
			if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
				sealed = raw
			}
		}
	}
	return id, sealed
}
