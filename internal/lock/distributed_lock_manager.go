package lock

// DistributedLockManager serializes cross-instance duties (runner, poller,
// retention sweep, migrations) so exactly one worker holds each at a time.
type DistributedLockManager interface {
	// TryAcquire reports false without blocking when another instance holds
	// the lock.
	TryAcquire(lockID int) (bool, error)
	Acquire(lockID int) error
	Release(lockID int) error
}
