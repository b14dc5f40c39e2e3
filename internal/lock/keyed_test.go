package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adyen-notify/internal/lock"
)

func TestWithLockMutualExclusion(t *testing.T) {
	m := lock.NewKeyedMutex(5 * time.Second)
	orderID := uuid.New()
	ctx := context.Background()

	// A plain counter: races would be caught by -race, interleavings by the
	// inCritical check.
	var (
		counter    int
		inCritical int32
		mu         sync.Mutex
	)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithLock(ctx, orderID, func(ctx context.Context) error {
				mu.Lock()
				inCritical++
				assert.EqualValues(t, 1, inCritical, "two holders inside the critical section")
				counter++
				inCritical--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestWithLockTimeout(t *testing.T) {
	m := lock.NewKeyedMutex(50 * time.Millisecond)
	orderID := uuid.New()
	ctx := context.Background()

	hold := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = m.WithLock(ctx, orderID, func(ctx context.Context) error {
			close(hold)
			<-release
			return nil
		})
	}()
	<-hold

	err := m.WithLock(ctx, orderID, func(ctx context.Context) error {
		t.Fatal("fn must not run when the lock is not acquired")
		return nil
	})
	require.ErrorIs(t, err, lock.ErrLockFailed)
	close(release)
}

func TestWithLockReleasedOnError(t *testing.T) {
	m := lock.NewKeyedMutex(time.Second)
	orderID := uuid.New()
	ctx := context.Background()

	wantErr := errors.New("boom")
	err := m.WithLock(ctx, orderID, func(ctx context.Context) error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	// The failed call must not keep the order locked.
	err = m.WithLock(ctx, orderID, func(ctx context.Context) error { return nil })
	require.NoError(t, err)
}

func TestWithLockIndependentOrders(t *testing.T) {
	m := lock.NewKeyedMutex(100 * time.Millisecond)
	ctx := context.Background()

	first := uuid.New()
	second := uuid.New()

	hold := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.WithLock(ctx, first, func(ctx context.Context) error {
			close(hold)
			<-release
			return nil
		})
	}()
	<-hold

	// Holding one order must not delay another.
	err := m.WithLock(ctx, second, func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	close(release)
	<-done
}

func TestWithLockCancelledContext(t *testing.T) {
	m := lock.NewKeyedMutex(5 * time.Second)
	orderID := uuid.New()

	hold := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = m.WithLock(context.Background(), orderID, func(ctx context.Context) error {
			close(hold)
			<-release
			return nil
		})
	}()
	<-hold
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.WithLock(ctx, orderID, func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, lock.ErrLockFailed)
}
