package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"adyen-notify/internal/domain"
	"adyen-notify/internal/lock"
	"adyen-notify/internal/repo"
)

// NotificationService is the ingestion pipeline for provider callbacks:
// build, durable dedup insert, then apply under the order lock.
type NotificationService struct {
	notifications repo.NotificationRepo
	orders        repo.OrderRepo
	payments      repo.PaymentRepo
	mutex         lock.OrderMutex
	processor     *Processor
	logger        *zap.SugaredLogger
}

func NewNotificationService(
	notifications repo.NotificationRepo,
	orders repo.OrderRepo,
	payments repo.PaymentRepo,
	mutex lock.OrderMutex,
	processor *Processor,
	logger *zap.SugaredLogger,
) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		orders:        orders,
		payments:      payments,
		mutex:         mutex,
		processor:     processor,
		logger:        logger,
	}
}

// Handle ingests one notification. Returned errors map onto the boundary
// responses: ErrDuplicateNotification means "already handled, acknowledge",
// lock.ErrLockFailed means "stored but not applied, ask the provider to
// retry". The insert happens before the lock, so a lock timeout never loses
// the event, it only defers its application.
func (s *NotificationService) Handle(ctx context.Context, params map[string]string) error {
	n, err := domain.BuildNotification(params)
	if err != nil {
		return err
	}

	if err := s.notifications.Insert(ctx, nil, n); err != nil {
		return err
	}

	order, err := s.resolveOrder(ctx, n)
	if err != nil {
		return err
	}
	if order == nil {
		// Keep the record for audit; there is no order to apply it to and
		// retrying will not change that.
		s.logger.Warnw("notification for unknown order",
			"merchant_reference", n.MerchantReference,
			"psp_reference", n.PSPReference,
			"event_code", n.EventCode,
		)
		return s.notifications.MarkProcessed(ctx, nil, n.ID)
	}

	err = s.mutex.WithLock(ctx, order.ID, func(ctx context.Context) error {
		if err := s.processor.Process(ctx, n); err != nil {
			return fmt.Errorf("process notification %s: %w", n.PSPReference, err)
		}
		return s.notifications.MarkProcessed(ctx, nil, n.ID)
	})
	return err
}

// resolveOrder finds the order whose lock the notification must be applied
// under. merchantReference is the fast path, but some events carry an empty
// or stale one; the provider references still identify the payment, and the
// payment knows its order.
func (s *NotificationService) resolveOrder(ctx context.Context, n *domain.Notification) (*domain.Order, error) {
	order, err := s.orders.FindByNumber(ctx, n.MerchantReference)
	if err != nil || order != nil {
		return order, err
	}
	for _, code := range []string{n.OriginalReference, n.PSPReference} {
		payment, err := s.payments.FindByResponseCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			return s.orders.FindByID(ctx, payment.OrderID)
		}
	}
	return nil, nil
}
