package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type PaymentState string

const (
	PaymentCheckout   PaymentState = "checkout"
	PaymentProcessing PaymentState = "processing"
	PaymentPending    PaymentState = "pending"
	PaymentCompleted  PaymentState = "completed"
	PaymentFailed     PaymentState = "failed"
	PaymentVoid       PaymentState = "void"
)

// paymentTransitions is the closed transition table. Transitions are
// monotonic: once completed or failed a payment can only be voided, and a
// void payment is terminal.
var paymentTransitions = map[PaymentState][]PaymentState{
	PaymentCheckout:   {PaymentProcessing, PaymentFailed},
	PaymentProcessing: {PaymentPending, PaymentCompleted, PaymentFailed},
	PaymentPending:    {PaymentCompleted, PaymentFailed},
	PaymentCompleted:  {PaymentVoid},
	PaymentFailed:     {PaymentVoid},
}

// Payment is one attempt to settle money against an order. ResponseCode
// holds the provider's PSP reference once known and is how later
// notifications find their way back to this payment.
type Payment struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	Amount       int64
	Currency     string
	State        PaymentState
	ResponseCode string
	Source       Source
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (p *Payment) CanTransitionTo(next PaymentState) bool {
	for _, s := range paymentTransitions[p.State] {
		if s == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the payment to the next state or returns
// ErrInvalidTransition. It mutates only the in-memory copy; persisting the
// change is the caller's job.
func (p *Payment) TransitionTo(next PaymentState) error {
	if !p.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.State, next)
	}
	p.State = next
	p.UpdatedAt = time.Now()
	return nil
}
