package repo

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"adyen-notify/internal/domain"
)

// LogEntryRepo is the append-only audit trail. Entries are written for both
// successful and failed gateway interactions, outside the payment
// transaction, so they survive its rollback.
type LogEntryRepo interface {
	Create(ctx context.Context, tx *sql.Tx, entry *domain.LogEntry) error
	FindByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.LogEntry, error)
}

type logEntryRepo struct {
	db *sql.DB
}

func NewLogEntryRepo(db *sql.DB) LogEntryRepo {
	return &logEntryRepo{db: db}
}

func (r *logEntryRepo) Create(ctx context.Context, tx *sql.Tx, entry *domain.LogEntry) error {
	query := `INSERT INTO log_entries (id, payment_id, success, message, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := runner(r.db, tx).ExecContext(
		ctx, query,
		entry.ID, entry.PaymentID, entry.Success, entry.Message, entry.Details, entry.CreatedAt,
	)
	return err
}

func (r *logEntryRepo) FindByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.LogEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, payment_id, success, message, details, created_at
		 FROM log_entries WHERE payment_id = $1 ORDER BY created_at`,
		paymentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.Success, &e.Message, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
