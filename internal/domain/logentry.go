package domain

import (
	"time"

	"github.com/google/uuid"
)

// LogEntry is one immutable line of the audit trail: the outcome of a
// gateway interaction or of applying a notification, successful or not.
type LogEntry struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
	Success   bool
	Message   string
	Details   string
	CreatedAt time.Time
}

func NewLogEntry(paymentID uuid.UUID, success bool, message, details string) *LogEntry {
	return &LogEntry{
		ID:        uuid.New(),
		PaymentID: paymentID,
		Success:   success,
		Message:   message,
		Details:   details,
		CreatedAt: time.Now(),
	}
}
