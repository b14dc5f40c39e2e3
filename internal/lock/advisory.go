package lock

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AdvisoryMutex is the distributed OrderMutex, backed by Postgres advisory
// locks, so exclusion holds across horizontally scaled instances. The lock
// is session-scoped: it lives on one pooled connection that is pinned for
// the duration of the critical section and always unlocked on the way out.
type AdvisoryMutex struct {
	db      *sql.DB
	timeout time.Duration
	poll    time.Duration
}

func NewAdvisoryMutex(db *sql.DB, timeout time.Duration) *AdvisoryMutex {
	return &AdvisoryMutex{
		db:      db,
		timeout: timeout,
		poll:    50 * time.Millisecond,
	}
}

func (m *AdvisoryMutex) WithLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context) error) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	key := advisoryKey(orderID)
	deadline := time.Now().Add(m.timeout)
	for {
		var acquired bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&acquired); err != nil {
			return fmt.Errorf("try advisory lock: %w", err)
		}
		if acquired {
			break
		}
		if time.Now().After(deadline) {
			return ErrLockFailed
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrLockFailed, ctx.Err())
		case <-time.After(m.poll):
		}
	}

	defer func() {
		// Unlock must run even if ctx was cancelled inside fn, or the
		// session would keep the order locked until the connection dies.
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_, _ = conn.ExecContext(unlockCtx, "SELECT pg_advisory_unlock($1)", key)
	}()

	return fn(ctx)
}

// advisoryKey folds an order id into the bigint keyspace pg advisory locks
// use. Truncating the uuid keeps the mapping stable across instances.
func advisoryKey(orderID uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(orderID[:8]))
}
