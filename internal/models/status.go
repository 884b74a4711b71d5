package models

// StatusRecord is one entry of an upstream "list statuses" response: the
// identifier the upstream system assigned at submit time and its current
// processing status.
type StatusRecord struct {
	UpstreamID string `json:"id"`
	Status     string `json:"status"`
}
