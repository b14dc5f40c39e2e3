package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// KeyedMutex is the in-process OrderMutex: one semaphore per order id,
// created on demand and reclaimed when the last waiter leaves. Suitable for
// a single-instance deployment and for tests; scaled-out deployments use
// AdvisoryMutex instead.
type KeyedMutex struct {
	timeout time.Duration

	mu      sync.Mutex
	entries map[uuid.UUID]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

func NewKeyedMutex(timeout time.Duration) *KeyedMutex {
	return &KeyedMutex{
		timeout: timeout,
		entries: make(map[uuid.UUID]*entry),
	}
}

func (m *KeyedMutex) WithLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context) error) error {
	e := m.retain(orderID)
	defer m.release(orderID)

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
	case <-timer.C:
		return ErrLockFailed
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrLockFailed, ctx.Err())
	}
	defer func() { <-e.sem }()

	return fn(ctx)
}

func (m *KeyedMutex) retain(orderID uuid.UUID) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[orderID]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		m.entries[orderID] = e
	}
	e.refs++
	return e
}

func (m *KeyedMutex) release(orderID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[orderID]
	e.refs--
	if e.refs == 0 {
		delete(m.entries, orderID)
	}
}
