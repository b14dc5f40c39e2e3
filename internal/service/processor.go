package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"adyen-notify/internal/database"
	"adyen-notify/internal/domain"
	"adyen-notify/internal/repo"
)

// Processor applies a stored notification to the payment it targets. Every
// call must happen while holding the OrderMutex for the notification's
// order; the processor itself does no locking.
//
// A processed notification produces at most one payment state transition and
// exactly one audit log entry. Events that do not fit the payment's current
// state are recorded and swallowed so manual reconciliation can pick them
// up; they never fail the request, since the notification record itself is
// already durable.
type Processor struct {
	payments repo.PaymentRepo
	orders   repo.OrderRepo
	logs     repo.LogEntryRepo
	tx       database.TxManager
	logger   *zap.SugaredLogger
}

func NewProcessor(
	payments repo.PaymentRepo,
	orders repo.OrderRepo,
	logs repo.LogEntryRepo,
	tx database.TxManager,
	logger *zap.SugaredLogger,
) *Processor {
	return &Processor{
		payments: payments,
		orders:   orders,
		logs:     logs,
		tx:       tx,
		logger:   logger,
	}
}

func (p *Processor) Process(ctx context.Context, n *domain.Notification) error {
	payment, err := p.resolvePayment(ctx, n)
	if err != nil {
		return err
	}
	if payment == nil {
		// Nothing to apply to. The stored notification remains the audit
		// record for this event.
		p.logger.Warnw("no payment resolved for notification",
			"psp_reference", n.PSPReference,
			"event_code", n.EventCode,
			"merchant_reference", n.MerchantReference,
		)
		return nil
	}

	if !n.Success {
		return p.handleFailure(ctx, payment, n)
	}

	switch n.EventCode {
	case domain.EventAuthorisation:
		return p.handleAuthorisation(ctx, payment, n)
	case domain.EventCapture:
		return p.handleCapture(ctx, payment, n)
	case domain.EventCancellation, domain.EventRefund, domain.EventCancelOrRefund:
		return p.handleReversal(ctx, payment, n)
	default:
		// The provider adds event codes on its own schedule; an unknown one
		// is recorded and otherwise ignored.
		return p.record(ctx, payment, n, true, fmt.Sprintf("ignored %s notification", n.EventCode))
	}
}

// resolvePayment finds the payment a notification targets, in a fixed
// precedence order: the payment holding originalReference (follow-up
// events), then the one holding pspReference (redelivered initial events),
// then the newest live payment of the merchantReference's order (the
// first-authorisation case, where the redirect return may not have attached
// the reference yet, or may be racing this very notification).
func (p *Processor) resolvePayment(ctx context.Context, n *domain.Notification) (*domain.Payment, error) {
	if n.FollowUp() {
		payment, err := p.payments.FindByResponseCode(ctx, n.OriginalReference)
		if err != nil || payment != nil {
			return payment, err
		}
	}
	payment, err := p.payments.FindByResponseCode(ctx, n.PSPReference)
	if err != nil || payment != nil {
		return payment, err
	}
	order, err := p.orders.FindByNumber(ctx, n.MerchantReference)
	if err != nil || order == nil {
		return nil, err
	}
	return p.payments.FindLatestForOrder(ctx, order.ID)
}

func (p *Processor) handleAuthorisation(ctx context.Context, payment *domain.Payment, n *domain.Notification) error {
	err := p.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		if payment.ResponseCode == "" {
			if err := p.payments.SetResponseCode(ctx, tx, payment.ID, n.PSPReference); err != nil {
				return err
			}
			payment.ResponseCode = n.PSPReference
		}
		// The authorisation was already granted optimistically at redirect
		// time, so a payment past checkout keeps its state.
		if payment.State == domain.PaymentCheckout {
			if err := payment.TransitionTo(domain.PaymentProcessing); err != nil {
				return err
			}
			return p.payments.UpdateState(ctx, tx, payment.ID, domain.PaymentProcessing)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return p.record(ctx, payment, n, true, "authorisation confirmed")
}

func (p *Processor) handleCapture(ctx context.Context, payment *domain.Payment, n *domain.Notification) error {
	if err := p.transition(ctx, payment, domain.PaymentCompleted); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return p.record(ctx, payment, n, false, "capture notification ignored: "+err.Error())
		}
		return err
	}
	return p.record(ctx, payment, n, true, fmt.Sprintf("capture of %d %s confirmed", n.Value, n.Currency))
}

func (p *Processor) handleReversal(ctx context.Context, payment *domain.Payment, n *domain.Notification) error {
	if err := p.transition(ctx, payment, domain.PaymentVoid); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return p.record(ctx, payment, n, false,
				fmt.Sprintf("%s notification ignored: %s", n.EventCode, err.Error()))
		}
		return err
	}
	return p.record(ctx, payment, n, true,
		fmt.Sprintf("%s of %d %s confirmed", n.EventCode, n.Value, n.Currency))
}

func (p *Processor) handleFailure(ctx context.Context, payment *domain.Payment, n *domain.Notification) error {
	reason := n.Reason
	if reason == "" {
		reason = fmt.Sprintf("%s refused by provider", n.EventCode)
	}

	// A payment already failed or voided stays put; the entry is the record
	// of the anomaly.
	if payment.State == domain.PaymentFailed || payment.State == domain.PaymentVoid {
		return p.record(ctx, payment, n, false, reason)
	}
	if err := p.transition(ctx, payment, domain.PaymentFailed); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return p.record(ctx, payment, n, false,
				fmt.Sprintf("failure notification ignored: %s", err.Error()))
		}
		return err
	}
	return p.record(ctx, payment, n, false, reason)
}

func (p *Processor) transition(ctx context.Context, payment *domain.Payment, next domain.PaymentState) error {
	if err := payment.TransitionTo(next); err != nil {
		return err
	}
	return p.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		return p.payments.UpdateState(ctx, tx, payment.ID, next)
	})
}

func (p *Processor) record(ctx context.Context, payment *domain.Payment, n *domain.Notification, success bool, message string) error {
	details := fmt.Sprintf("pspReference=%s originalReference=%s eventCode=%s success=%t",
		n.PSPReference, n.OriginalReference, n.EventCode, n.Success)
	return p.logs.Create(ctx, nil, domain.NewLogEntry(payment.ID, success, message, details))
}
