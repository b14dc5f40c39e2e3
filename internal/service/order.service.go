package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"adyen-notify/internal/database"
	"adyen-notify/internal/domain"
	"adyen-notify/internal/lock"
	"adyen-notify/internal/repo"
)

// OrderService drives the checkout side: creating orders, starting payment
// attempts and finalizing the order when the shopper returns from the
// provider's pages. The redirect return is the second actor racing the
// webhook for the same order, which is why it runs under the same
// OrderMutex.
type OrderService struct {
	orders     repo.OrderRepo
	payments   repo.PaymentRepo
	redirects  repo.RedirectChallengeRepo
	tx         database.TxManager
	paymentSvc *PaymentService
	mutex      lock.OrderMutex
	logger     *zap.SugaredLogger
}

func NewOrderService(
	orders repo.OrderRepo,
	payments repo.PaymentRepo,
	redirects repo.RedirectChallengeRepo,
	tx database.TxManager,
	paymentSvc *PaymentService,
	mutex lock.OrderMutex,
	logger *zap.SugaredLogger,
) *OrderService {
	return &OrderService{
		orders:     orders,
		payments:   payments,
		redirects:  redirects,
		tx:         tx,
		paymentSvc: paymentSvc,
		mutex:      mutex,
		logger:     logger,
	}
}

func (s *OrderService) CreateOrder(ctx context.Context, number string, total int64, currency string) (*domain.Order, error) {
	order := &domain.Order{
		ID:        uuid.New(),
		Number:    number,
		Total:     total,
		Currency:  currency,
		State:     domain.OrderPayment,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	err := s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		return s.orders.Create(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// StartCheckout creates a fresh payment attempt for the order and requests
// its authorisation. Any 3-D Secure challenges from earlier attempts are
// deleted in the same transaction that creates the payment, so a stale
// redirect can never complete the new attempt.
func (s *OrderService) StartCheckout(ctx context.Context, orderID uuid.UUID, src domain.Source) (*domain.Payment, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	var payment *domain.Payment
	err = s.mutex.WithLock(ctx, order.ID, func(ctx context.Context) error {
		return s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
			if err := s.redirects.DeleteForOrder(ctx, tx, order.ID); err != nil {
				return err
			}
			payment = &domain.Payment{
				ID:        uuid.New(),
				OrderID:   order.ID,
				Amount:    order.Total,
				Currency:  order.Currency,
				State:     domain.PaymentCheckout,
				Source:    src,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			}
			return s.payments.Create(ctx, tx, payment)
		})
	})
	if err != nil {
		return nil, err
	}

	if err := s.paymentSvc.Authorize(ctx, payment.ID); err != nil {
		return nil, fmt.Errorf("authorize payment %s: %w", payment.ID, err)
	}
	return s.payments.FindByID(ctx, payment.ID)
}

// FinalizeRedirect handles the shopper's return from the off-site
// authentication step. Signature verification happens at the transport
// layer; by the time we are here the parameters are trusted. The whole
// finalization runs under the order lock because an AUTHORISATION
// notification for the same order is typically in flight at this exact
// moment.
func (s *OrderService) FinalizeRedirect(ctx context.Context, orderNumber, pspReference, authResult string) error {
	order, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return err
	}
	if order == nil {
		return domain.ErrOrderNotFound
	}

	return s.mutex.WithLock(ctx, order.ID, func(ctx context.Context) error {
		payment, err := s.payments.FindLatestForOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if payment == nil {
			return domain.ErrPaymentNotFound
		}

		if authResult != "AUTHORISED" {
			s.logger.Infow("redirect returned without authorisation",
				"order", orderNumber, "auth_result", authResult)
			if payment.CanTransitionTo(domain.PaymentFailed) {
				return s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
					if err := payment.TransitionTo(domain.PaymentFailed); err != nil {
						return err
					}
					return s.payments.UpdateState(ctx, tx, payment.ID, domain.PaymentFailed)
				})
			}
			return nil
		}

		return s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
			// The webhook may have attached the reference already; first
			// writer wins, both agree on the value.
			if payment.ResponseCode == "" && pspReference != "" {
				if err := s.payments.SetResponseCode(ctx, tx, payment.ID, pspReference); err != nil {
					return err
				}
				payment.ResponseCode = pspReference
			}
			if payment.State == domain.PaymentCheckout {
				if err := payment.TransitionTo(domain.PaymentProcessing); err != nil {
					return err
				}
				if err := s.payments.UpdateState(ctx, tx, payment.ID, domain.PaymentProcessing); err != nil {
					return err
				}
			}
			if order.State != domain.OrderComplete {
				order.State = domain.OrderComplete
				order.UpdatedAt = time.Now()
				if err := s.orders.UpdateState(ctx, tx, order); err != nil {
					return err
				}
			}
			return nil
		})
	})
}
