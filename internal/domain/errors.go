package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateNotification signals an exact redelivery. It is not a
	// failure: the receiver acknowledges and does nothing.
	ErrDuplicateNotification = errors.New("notification already received")

	// ErrInvalidTransition means a requested payment state change is not in
	// the transition table.
	ErrInvalidTransition = errors.New("invalid payment state transition")

	ErrOrderNotFound   = errors.New("order not found")
	ErrPaymentNotFound = errors.New("payment not found")
)

// GatewayError is a business failure reported by the payment provider, as
// opposed to a transport error reaching it.
type GatewayError struct {
	Message      string
	PSPReference string
}

func (e *GatewayError) Error() string {
	if e.PSPReference != "" {
		return fmt.Sprintf("gateway refused (psp %s): %s", e.PSPReference, e.Message)
	}
	return "gateway refused: " + e.Message
}
