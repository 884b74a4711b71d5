package upstream

import (
	"errors"
	"fmt"
)

// TransientError is a failure that is safe to retry: timeouts, connection
// resets, upstream 5xx responses.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient upstream error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient upstream error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a failure that retrying cannot fix: validation failures
// and other upstream 4xx responses. The submission is rejected as-is.
type PermanentError struct {
	StatusCode int
	Detail     string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent upstream error (status %d): %s", e.StatusCode, e.Detail)
}

// IsTransient reports whether err should be handed back to the queue for a
// scheduled retry.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is a definitive rejection.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
