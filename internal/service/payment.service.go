package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"adyen-notify/internal/database"
	"adyen-notify/internal/domain"
	"adyen-notify/internal/gateway"
	"adyen-notify/internal/lock"
	"adyen-notify/internal/repo"
)

// PaymentService runs synchronous gateway actions whose real outcome is not
// known until a later notification. Each action holds the order lock for its
// whole duration, gateway call included, and leaves the payment in the
// interim "processing" state when the provider accepted the request: the
// eventual notification must find it there, not back in checkout.
type PaymentService struct {
	payments  repo.PaymentRepo
	orders    repo.OrderRepo
	logs      repo.LogEntryRepo
	redirects repo.RedirectChallengeRepo
	tx        database.TxManager
	gw        gateway.Gateway
	mutex     lock.OrderMutex
	logger    *zap.SugaredLogger
}

func NewPaymentService(
	payments repo.PaymentRepo,
	orders repo.OrderRepo,
	logs repo.LogEntryRepo,
	redirects repo.RedirectChallengeRepo,
	tx database.TxManager,
	gw gateway.Gateway,
	mutex lock.OrderMutex,
	logger *zap.SugaredLogger,
) *PaymentService {
	return &PaymentService{
		payments:  payments,
		orders:    orders,
		logs:      logs,
		redirects: redirects,
		tx:        tx,
		gw:        gw,
		mutex:     mutex,
		logger:    logger,
	}
}

// Authorize requests authorisation for the payment. A redirect result is not
// a failure: the 3-D Secure parameters are stored as a challenge and the
// payment stays in checkout until the shopper returns.
func (s *PaymentService) Authorize(ctx context.Context, paymentID uuid.UUID) error {
	return s.withPayment(ctx, paymentID, func(ctx context.Context, payment *domain.Payment, order *domain.Order) error {
		resp, err := s.process(ctx, payment, false, func(ctx context.Context) (*gateway.Response, error) {
			return strategyFor(payment.Source.Kind, s.gw).authorize(ctx, payment, order.Number)
		})
		if resp != nil && resp.Redirect() {
			challenge := &domain.RedirectChallenge{
				ID:           uuid.New(),
				PaymentID:    payment.ID,
				MD:           resp.MD,
				PARequest:    resp.PARequest,
				IssuerURL:    resp.IssuerURL,
				PSPReference: resp.PSPReference,
				CreatedAt:    time.Now(),
			}
			return s.redirects.Create(ctx, nil, challenge)
		}
		if err != nil {
			return err
		}
		if resp.PSPReference != "" && payment.ResponseCode == "" {
			payment.ResponseCode = resp.PSPReference
			return s.payments.SetResponseCode(ctx, nil, payment.ID, resp.PSPReference)
		}
		return nil
	})
}

func (s *PaymentService) Capture(ctx context.Context, paymentID uuid.UUID) error {
	return s.withPayment(ctx, paymentID, func(ctx context.Context, payment *domain.Payment, _ *domain.Order) error {
		_, err := s.process(ctx, payment, false, func(ctx context.Context) (*gateway.Response, error) {
			return strategyFor(payment.Source.Kind, s.gw).capture(ctx, payment)
		})
		return err
	})
}

// Credit issues a refund request. Amount validation is the caller's job.
func (s *PaymentService) Credit(ctx context.Context, paymentID uuid.UUID, amount int64) error {
	return s.withPayment(ctx, paymentID, func(ctx context.Context, payment *domain.Payment, _ *domain.Order) error {
		_, err := s.process(ctx, payment, true, func(ctx context.Context) (*gateway.Response, error) {
			return strategyFor(payment.Source.Kind, s.gw).credit(ctx, payment, amount)
		})
		return err
	})
}

// Cancel asks the provider to cancel the payment. Sources with no
// programmatic refund API skip the gateway entirely: the informational log
// entry is the terminal outcome and the payment keeps its state.
func (s *PaymentService) Cancel(ctx context.Context, paymentID uuid.UUID) error {
	return s.withPayment(ctx, paymentID, func(ctx context.Context, payment *domain.Payment, _ *domain.Order) error {
		if payment.Source.RequiresManualRefund() {
			entry := domain.NewLogEntry(payment.ID, false,
				"cancellation requires a manual refund for this payment method", "")
			return s.logs.Create(ctx, nil, entry)
		}
		_, err := s.process(ctx, payment, true, func(ctx context.Context) (*gateway.Response, error) {
			return strategyFor(payment.Source.Kind, s.gw).cancel(ctx, payment)
		})
		return err
	})
}

// StoredPaymentMethods lists the shopper's recurring contracts, newest
// first.
func (s *PaymentService) StoredPaymentMethods(ctx context.Context, shopperReference string) ([]gateway.StoredPaymentMethod, error) {
	methods, err := s.gw.ListStoredPaymentMethods(ctx, shopperReference)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(methods, func(i, j int) bool {
		return methods[i].CreationDate.After(methods[j].CreationDate)
	})
	return methods, nil
}

// process wraps one gateway action in a local transaction. The payment moves
// to the interim processing state; if the call could not be made or the
// provider refused it the transaction rolls back and the payment keeps its
// prior state, but if the request was accepted the interim state commits even
// though the business outcome is still unknown. Refund-style actions run
// against settled payments (settledOK), which keep their state: the void
// arrives later as a notification. The attempt is always logged, outside the
// transaction, so the entry survives a rollback.
func (s *PaymentService) process(ctx context.Context, payment *domain.Payment, settledOK bool, action func(ctx context.Context) (*gateway.Response, error)) (*gateway.Response, error) {
	prior := payment.State
	advanced := false
	var resp *gateway.Response

	err := s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		switch {
		case payment.State == domain.PaymentProcessing:
		case settledOK && payment.State == domain.PaymentCompleted:
		default:
			if err := payment.TransitionTo(domain.PaymentProcessing); err != nil {
				return err
			}
			if err := s.payments.UpdateState(ctx, tx, payment.ID, domain.PaymentProcessing); err != nil {
				return err
			}
			advanced = true
		}
		r, aerr := action(ctx)
		if aerr != nil {
			return fmt.Errorf("gateway call: %w", aerr)
		}
		resp = r
		if !r.Success {
			return &domain.GatewayError{Message: r.Message, PSPReference: r.PSPReference}
		}
		return nil
	})
	if err != nil {
		payment.State = prior
		if advanced {
			// Redundant after a real rollback; stores without transactional
			// rollback need the explicit write.
			if revertErr := s.payments.UpdateState(ctx, nil, payment.ID, prior); revertErr != nil {
				s.logger.Errorw("restoring payment state failed", "payment_id", payment.ID, "error", revertErr)
			}
		}
	}

	switch {
	case err != nil && errors.Is(err, domain.ErrInvalidTransition):
		// No request was sent, nothing happened worth auditing.
	case resp == nil && err != nil:
		if logErr := s.logs.Create(ctx, nil, domain.NewLogEntry(payment.ID, false, err.Error(), "")); logErr != nil {
			s.logger.Errorw("writing log entry failed", "error", logErr)
		}
	case resp != nil:
		entry := domain.NewLogEntry(payment.ID, resp.Success, resp.Message, rawDetails(resp))
		if logErr := s.logs.Create(ctx, nil, entry); logErr != nil {
			s.logger.Errorw("writing log entry failed", "error", logErr)
		}
	}

	return resp, err
}

// withPayment resolves the payment, takes its order's lock and hands fn a
// fresh read of the payment. The re-read matters: the snapshot used to find
// the order may predate a concurrent notification that already moved the
// payment on.
func (s *PaymentService) withPayment(ctx context.Context, paymentID uuid.UUID, fn func(ctx context.Context, payment *domain.Payment, order *domain.Order) error) error {
	payment, order, err := s.load(ctx, paymentID)
	if err != nil {
		return err
	}
	return s.mutex.WithLock(ctx, payment.OrderID, func(ctx context.Context) error {
		fresh, err := s.payments.FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return domain.ErrPaymentNotFound
		}
		return fn(ctx, fresh, order)
	})
}

func (s *PaymentService) load(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, *domain.Order, error) {
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	if payment == nil {
		return nil, nil, domain.ErrPaymentNotFound
	}
	order, err := s.orders.FindByID(ctx, payment.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if order == nil {
		return nil, nil, domain.ErrOrderNotFound
	}
	return payment, order, nil
}

func rawDetails(resp *gateway.Response) string {
	details := ""
	for k, v := range resp.Raw {
		if details != "" {
			details += " "
		}
		details += k + "=" + v
	}
	return details
}
