package notify

import "log"

// Personalization carries the template fields for a failure email.
type Personalization map[string]string

// Dispatcher sends user-facing emails. Fire and forget: callers never await
// delivery and must not let a dispatch error change submission state.
type Dispatcher interface {
	SendFailure(recipient, templateID string, fields Personalization) error
}

// LogDispatcher records the intent to send without talking to a delivery
// provider. The recipient address is not logged.
type LogDispatcher struct{}

func (LogDispatcher) SendFailure(recipient, templateID string, fields Personalization) error {
	log.Printf("notify: failure email queued, template=%s", templateID)
	return nil
}
