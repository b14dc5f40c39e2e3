package repo

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"adyen-notify/internal/domain"
)

type PaymentRepo interface {
	Create(ctx context.Context, tx *sql.Tx, p *domain.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	// FindByResponseCode resolves a payment from a provider reference.
	// Returns (nil, nil) when no payment carries it yet.
	FindByResponseCode(ctx context.Context, code string) (*domain.Payment, error)
	// FindLatestForOrder returns the order's newest payment that is still in
	// a live state (checkout, processing or pending), or (nil, nil).
	FindLatestForOrder(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error)
	UpdateState(ctx context.Context, tx *sql.Tx, id uuid.UUID, state domain.PaymentState) error
	SetResponseCode(ctx context.Context, tx *sql.Tx, id uuid.UUID, code string) error
}

type paymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) PaymentRepo {
	return &paymentRepo{db: db}
}

const paymentColumns = `id, order_id, amount, currency, state, response_code, source_kind, source_reference, created_at, updated_at`

func (r *paymentRepo) Create(ctx context.Context, tx *sql.Tx, p *domain.Payment) error {
	query := `INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := runner(r.db, tx).ExecContext(
		ctx, query,
		p.ID, p.OrderID, p.Amount, p.Currency, p.State, p.ResponseCode,
		p.Source.Kind, p.Source.Reference, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (r *paymentRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

func (r *paymentRepo) FindByResponseCode(ctx context.Context, code string) (*domain.Payment, error) {
	if code == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE response_code = $1 ORDER BY created_at DESC LIMIT 1`,
		code,
	)
	return scanPayment(row)
}

func (r *paymentRepo) FindLatestForOrder(ctx context.Context, orderID uuid.UUID) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE order_id = $1 AND state IN ($2, $3, $4)
		 ORDER BY created_at DESC LIMIT 1`,
		orderID, domain.PaymentCheckout, domain.PaymentProcessing, domain.PaymentPending,
	)
	return scanPayment(row)
}

func (r *paymentRepo) UpdateState(ctx context.Context, tx *sql.Tx, id uuid.UUID, state domain.PaymentState) error {
	_, err := runner(r.db, tx).ExecContext(
		ctx, `UPDATE payments SET state = $2, updated_at = now() WHERE id = $1`, id, state,
	)
	return err
}

func (r *paymentRepo) SetResponseCode(ctx context.Context, tx *sql.Tx, id uuid.UUID, code string) error {
	_, err := runner(r.db, tx).ExecContext(
		ctx, `UPDATE payments SET response_code = $2, updated_at = now() WHERE id = $1`, id, code,
	)
	return err
}

func scanPayment(row *sql.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.Amount,
		&p.Currency,
		&p.State,
		&p.ResponseCode,
		&p.Source.Kind,
		&p.Source.Reference,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
