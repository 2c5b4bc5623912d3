package persistence

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
)

// Locker serializes a critical section across all process instances sharing
// the database. The backing mechanism is an implementation choice; callers
// only see the key-scoped capability.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// AdvisoryLocker implements Locker with PostgreSQL transaction-scoped
// advisory locks: the lock is held while fn runs and released with the
// wrapping transaction, even if fn fails or the connection drops.
type AdvisoryLocker struct {
	db *PostgresDB
}

func NewAdvisoryLocker(db *PostgresDB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

// WithLock acquires the advisory lock for the hashed key, runs fn, and
// releases the lock at commit/rollback. Blocks until the lock is granted or
// the context is canceled.
func (l *AdvisoryLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return l.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", LockKey(key)); err != nil {
			return fmt.Errorf("failed to acquire advisory lock for %q: %w", key, err)
		}
		return fn(ctx)
	})
}

// LockKey hashes an arbitrary key into the 64-bit advisory lock space
func LockKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}
