package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"adyen-notify/internal/domain"
	"adyen-notify/internal/lock"
	"adyen-notify/internal/repo/inmemory"
	"adyen-notify/internal/service"
	"adyen-notify/internal/worker"
)

type sweepEnv struct {
	orders        *inmemory.OrderRepo
	payments      *inmemory.PaymentRepo
	notifications *inmemory.NotificationRepo
	mutex         *lock.KeyedMutex
	worker        *worker.ReprocessWorker
}

func newSweepEnv(t *testing.T, lockTimeout time.Duration) *sweepEnv {
	t.Helper()

	e := &sweepEnv{
		orders:        inmemory.NewOrderRepo(),
		payments:      inmemory.NewPaymentRepo(),
		notifications: inmemory.NewNotificationRepo(),
		mutex:         lock.NewKeyedMutex(lockTimeout),
	}
	logger := zap.NewNop().Sugar()
	processor := service.NewProcessor(e.payments, e.orders, inmemory.NewLogEntryRepo(), inmemory.TxManager{}, logger)
	e.worker = worker.NewReprocessWorker(e.notifications, e.orders, e.mutex, processor, time.Minute, logger)
	return e
}

func (e *sweepEnv) seedOrder(t *testing.T, number string) (*domain.Order, *domain.Payment) {
	t.Helper()
	ctx := context.Background()

	order := &domain.Order{ID: uuid.New(), Number: number, Total: 2200, Currency: "EUR", State: domain.OrderPayment}
	require.NoError(t, e.orders.Create(ctx, nil, order))

	payment := &domain.Payment{
		ID:       uuid.New(),
		OrderID:  order.ID,
		Amount:   2200,
		Currency: "EUR",
		State:    domain.PaymentCheckout,
		Source:   domain.Source{Kind: domain.SourceHostedPage},
	}
	require.NoError(t, e.payments.Create(ctx, nil, payment))
	return order, payment
}

func (e *sweepEnv) storeNotification(t *testing.T, psp, merchantRef string) *domain.Notification {
	t.Helper()
	n := &domain.Notification{
		ID:                uuid.New(),
		PSPReference:      psp,
		MerchantReference: merchantRef,
		EventCode:         domain.EventAuthorisation,
		Success:           true,
		Value:             2200,
		Currency:          "EUR",
	}
	require.NoError(t, e.notifications.Insert(context.Background(), nil, n))
	return n
}

func (e *sweepEnv) pendingCount(t *testing.T) int {
	t.Helper()
	pending, err := e.notifications.FindUnprocessed(context.Background(), 100)
	require.NoError(t, err)
	return len(pending)
}

func TestSweepAppliesPendingNotifications(t *testing.T) {
	e := newSweepEnv(t, time.Second)
	_, payment := e.seedOrder(t, "R500")
	e.storeNotification(t, "790", "R500")

	require.NoError(t, e.worker.Sweep(context.Background()))

	fresh, err := e.payments.FindByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentProcessing, fresh.State)
	assert.Equal(t, "790", fresh.ResponseCode)
	assert.Zero(t, e.pendingCount(t))
}

func TestSweepDefersLockedOrders(t *testing.T) {
	e := newSweepEnv(t, 100*time.Millisecond)
	order, payment := e.seedOrder(t, "R501")
	e.storeNotification(t, "790", "R501")

	hold := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = e.mutex.WithLock(context.Background(), order.ID, func(ctx context.Context) error {
			close(hold)
			<-release
			return nil
		})
	}()
	<-hold

	require.NoError(t, e.worker.Sweep(context.Background()))
	assert.Equal(t, 1, e.pendingCount(t), "a locked order is deferred, not dropped")

	fresh, err := e.payments.FindByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCheckout, fresh.State)

	close(release)
	require.NoError(t, e.worker.Sweep(context.Background()))
	assert.Zero(t, e.pendingCount(t))
}

func TestSweepMarksUnknownOrders(t *testing.T) {
	e := newSweepEnv(t, time.Second)
	e.storeNotification(t, "790", "R999")

	require.NoError(t, e.worker.Sweep(context.Background()))
	assert.Zero(t, e.pendingCount(t))
}
