package constants

// Advisory lock ids. Each long-running loop holds one so only a single
// instance performs that duty at a time.
const (
	MigrationLock = iota
	RunnerLock
	RetryLock
	PollerLock
	RetentionLock
)

var Locks = []int{
	MigrationLock,
	RunnerLock,
	RetryLock,
	PollerLock,
	RetentionLock,
}

const (
	// DefaultMaxAttempts matches the retry ceiling used by the submission
	// jobs unless a handler overrides it.
	DefaultMaxAttempts = 16
)
