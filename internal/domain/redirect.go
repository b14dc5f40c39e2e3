package domain

import (
	"time"

	"github.com/google/uuid"
)

// RedirectChallenge holds the transient 3-D Secure parameters for a payment
// whose authorisation requires the shopper to visit the issuer. At most one
// exists per payment, and all challenges for an order are deleted when its
// checkout restarts so a stale one can never be replayed.
type RedirectChallenge struct {
	ID           uuid.UUID
	PaymentID    uuid.UUID
	MD           string
	PARequest    string
	IssuerURL    string
	PSPReference string
	CreatedAt    time.Time
}
