// Package lock provides the per-order mutual-exclusion primitive that
// serializes every mutating operation against an order: webhook
// notifications, the shopper's redirect return, and synchronous gateway
// actions all funnel through the same lock.
package lock

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrLockFailed is returned when the lock could not be acquired within the
// configured bound. The caller's state is untouched; the critical section
// never ran.
var ErrLockFailed = errors.New("order lock not acquired")

// OrderMutex grants exclusive ownership of one order's mutable state for the
// duration of fn. The lock is released on every exit path, including a
// panic inside fn. Acquisition waits at most the mutex's configured
// timeout; on expiry WithLock returns ErrLockFailed without running fn.
//
// Per-order granularity keeps unrelated orders fully concurrent while
// totally ordering all mutations of a single order.
type OrderMutex interface {
	WithLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context) error) error
}
