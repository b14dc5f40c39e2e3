package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderState string

// The full order lifecycle; this service only ever moves an order from
// payment to complete, the other states are owned by the surrounding shop.
const (
	OrderCart     OrderState = "cart"
	OrderPayment  OrderState = "payment"
	OrderComplete OrderState = "complete"
	OrderCanceled OrderState = "canceled"
)

// Order is the aggregate root owning payments. Its number is what the
// provider echoes back as merchantReference, and its ID is the key every
// mutating request must lock on.
type Order struct {
	ID        uuid.UUID
	Number    string
	Total     int64
	Currency  string
	State     OrderState
	CreatedAt time.Time
	UpdatedAt time.Time
}
