package lock

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// PostgresDistributedLockManager uses session-level advisory locks over a
// single pinned connection. Session locks belong to the connection that took
// them, so acquire and release must run on the same one; going through the
// pool would let the pool hand Release a different connection and silently
// keep the lock held.
type PostgresDistributedLockManager struct {
	db *sql.DB

	mu   sync.Mutex
	conn *sql.Conn
}

func NewPostgresDistributedLockManager(db *sql.DB) *PostgresDistributedLockManager {
	return &PostgresDistributedLockManager{db: db}
}

// session returns the pinned connection, dialing it on first use. Callers
// hold l.mu.
func (l *PostgresDistributedLockManager) session(ctx context.Context) (*sql.Conn, error) {
	if l.conn != nil {
		return l.conn, nil
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to pin lock connection: %w", err)
	}
	l.conn = conn
	return conn, nil
}

func (l *PostgresDistributedLockManager) TryAcquire(lockID int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := l.session(ctx)
	if err != nil {
		return false, err
	}

	var acquired bool
	err = conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired)
	if err != nil {
		return false, fmt.Errorf("failed to try lock %d: %w", lockID, err)
	}
	return acquired, nil
}

func (l *PostgresDistributedLockManager) Acquire(lockID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := l.session(ctx)
	if err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		return fmt.Errorf("failed to acquire lock %d: %w", lockID, err)
	}
	return nil
}

func (l *PostgresDistributedLockManager) Release(lockID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := l.session(ctx)
	if err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", lockID); err != nil {
		return fmt.Errorf("failed to release lock %d: %w", lockID, err)
	}
	return nil
}

// Close returns the pinned connection to the pool, releasing every session
// lock still held on it.
func (l *PostgresDistributedLockManager) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return err
}
