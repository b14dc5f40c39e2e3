package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"adyen-notify/internal/domain"
)

// pgUniqueViolation is the Postgres error code for a unique-constraint hit.
const pgUniqueViolation = "23505"

type NotificationRepo interface {
	// Insert stores the notification atomically. A redelivery of the same
	// (psp_reference, event_code, success) tuple returns
	// domain.ErrDuplicateNotification; the unique index decides, never a
	// check-then-insert.
	Insert(ctx context.Context, tx *sql.Tx, n *domain.Notification) error
	FindUnprocessed(ctx context.Context, limit int) ([]domain.Notification, error)
	MarkProcessed(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
}

type notificationRepo struct {
	db *sql.DB
}

func NewNotificationRepo(db *sql.DB) NotificationRepo {
	return &notificationRepo{db: db}
}

func (r *notificationRepo) Insert(ctx context.Context, tx *sql.Tx, n *domain.Notification) error {
	additional, err := json.Marshal(n.AdditionalData)
	if err != nil {
		return err
	}

	query := `INSERT INTO adyen_notifications
		(id, psp_reference, original_reference, merchant_reference, event_code, success,
		 value, currency, event_date, reason, additional_data, processed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = runner(r.db, tx).ExecContext(
		ctx, query,
		n.ID, n.PSPReference, n.OriginalReference, n.MerchantReference, n.EventCode, n.Success,
		n.Value, n.Currency, nullTime(n.EventDate), n.Reason, additional, n.Processed, n.CreatedAt,
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return domain.ErrDuplicateNotification
	}
	return err
}

func (r *notificationRepo) FindUnprocessed(ctx context.Context, limit int) ([]domain.Notification, error) {
	query := `SELECT id, psp_reference, original_reference, merchant_reference, event_code, success,
		value, currency, event_date, reason, additional_data, processed, created_at
		FROM adyen_notifications
		WHERE processed = FALSE
		ORDER BY created_at
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

func (r *notificationRepo) MarkProcessed(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	_, err := runner(r.db, tx).ExecContext(
		ctx, `UPDATE adyen_notifications SET processed = TRUE WHERE id = $1`, id,
	)
	return err
}

func scanNotification(rows *sql.Rows) (*domain.Notification, error) {
	var (
		n          domain.Notification
		eventDate  sql.NullTime
		additional []byte
	)
	err := rows.Scan(
		&n.ID,
		&n.PSPReference,
		&n.OriginalReference,
		&n.MerchantReference,
		&n.EventCode,
		&n.Success,
		&n.Value,
		&n.Currency,
		&eventDate,
		&n.Reason,
		&additional,
		&n.Processed,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if eventDate.Valid {
		n.EventDate = eventDate.Time
	}
	if err := json.Unmarshal(additional, &n.AdditionalData); err != nil {
		return nil, err
	}
	return &n, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
