package state

// SubmissionState tracks what happened to one form submission on its way
// to the upstream intake system.
type SubmissionState string

const (
	StateCreated    SubmissionState = "created"
	StateSubmitting SubmissionState = "submitting"
	StateAccepted   SubmissionState = "accepted"
	// StateParanoidSuccess is an upstream "success" signal that is not a full
	// confirmation. Soft-terminal: the poller may later correct it.
	StateParanoidSuccess SubmissionState = "paranoid_success"
	StateRejected        SubmissionState = "rejected"
	StateErrored         SubmissionState = "errored"
	StateExhausted       SubmissionState = "exhausted"
)

func (s SubmissionState) String() string {
	return string(s)
}

var AllStates = []SubmissionState{
	StateCreated,
	StateSubmitting,
	StateAccepted,
	StateParanoidSuccess,
	StateRejected,
	StateErrored,
	StateExhausted,
}

// PendingStates are the states in which a submission still counts as
// in-flight for idempotency purposes.
var PendingStates = []SubmissionState{
	StateCreated,
	StateSubmitting,
	StateErrored,
}

// SuccessStates are the states that make a new submission for the same form
// instance redundant.
var SuccessStates = []SubmissionState{
	StateAccepted,
	StateParanoidSuccess,
}

type Transition struct {
	From SubmissionState
	To   SubmissionState
}

var ValidTransitions = []Transition{
	{From: StateCreated, To: StateSubmitting},
	{From: StateSubmitting, To: StateAccepted},
	{From: StateSubmitting, To: StateParanoidSuccess},
	{From: StateSubmitting, To: StateRejected},
	{From: StateSubmitting, To: StateErrored},
	{From: StateErrored, To: StateSubmitting},
	{From: StateErrored, To: StateExhausted},
	// Poller corrections once upstream settles on a final answer.
	{From: StateParanoidSuccess, To: StateAccepted},
	{From: StateParanoidSuccess, To: StateRejected},
}

func IsValidTransition(from, to SubmissionState) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further automatic transition may occur.
// paranoid_success is deliberately not terminal: the poller is allowed to
// settle it either way.
func IsTerminal(s SubmissionState) bool {
	switch s {
	case StateAccepted, StateRejected, StateExhausted:
		return true
	}
	return false
}

// IsPending reports whether the state counts as in-flight.
func IsPending(s SubmissionState) bool {
	for _, p := range PendingStates {
		if s == p {
			return true
		}
	}
	return false
}
