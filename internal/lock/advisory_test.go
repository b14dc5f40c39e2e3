package lock_test

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"adyen-notify/internal/lock"
)

func advisoryDB(t *testing.T) *sql.DB {
	t.Helper()
	if os.Getenv("INTEGRATION") == "" {
		t.Skip("set INTEGRATION=1 to run container-backed tests")
	}

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("notify"),
		tcpostgres.WithUsername("notify"),
		tcpostgres.WithPassword("notify"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAdvisoryMutexMutualExclusion(t *testing.T) {
	db := advisoryDB(t)
	m := lock.NewAdvisoryMutex(db, 5*time.Second)
	orderID := uuid.New()
	ctx := context.Background()

	var (
		counter    int
		inCritical int
		mu         sync.Mutex
	)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithLock(ctx, orderID, func(ctx context.Context) error {
				mu.Lock()
				inCritical++
				assert.Equal(t, 1, inCritical, "two holders inside the critical section")
				counter++
				inCritical--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, counter)
}

func TestAdvisoryMutexTimeout(t *testing.T) {
	db := advisoryDB(t)
	m := lock.NewAdvisoryMutex(db, 300*time.Millisecond)
	orderID := uuid.New()
	ctx := context.Background()

	hold := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.WithLock(ctx, orderID, func(ctx context.Context) error {
			close(hold)
			<-release
			return nil
		})
	}()
	<-hold

	err := m.WithLock(ctx, orderID, func(ctx context.Context) error {
		t.Error("fn must not run when the lock is not acquired")
		return nil
	})
	require.ErrorIs(t, err, lock.ErrLockFailed)

	close(release)
	<-done

	// Released locks are acquirable again.
	require.NoError(t, m.WithLock(ctx, orderID, func(ctx context.Context) error { return nil }))
}

func TestAdvisoryMutexIndependentOrders(t *testing.T) {
	db := advisoryDB(t)
	m := lock.NewAdvisoryMutex(db, 300*time.Millisecond)
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

	require.NoError(t, m.WithLock(ctx, second, func(ctx context.Context) error { return nil }))

	close(release)
	<-done
}
