package repo

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"adyen-notify/internal/domain"
)

type OrderRepo interface {
	Create(ctx context.Context, tx *sql.Tx, order *domain.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// FindByNumber resolves the order a merchantReference points at.
	// Returns (nil, nil) when unknown.
	FindByNumber(ctx context.Context, number string) (*domain.Order, error)
	UpdateState(ctx context.Context, tx *sql.Tx, order *domain.Order) error
}

type orderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepo {
	return &orderRepo{db: db}
}

const orderColumns = `id, number, total, currency, state, created_at, updated_at`

func (r *orderRepo) Create(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	query := `INSERT INTO orders (` + orderColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := runner(r.db, tx).ExecContext(
		ctx, query,
		order.ID, order.Number, order.Total, order.Currency, order.State, order.CreatedAt, order.UpdatedAt,
	)
	return err
}

func (r *orderRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (r *orderRepo) FindByNumber(ctx context.Context, number string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE number = $1`, number)
	return scanOrder(row)
}

func (r *orderRepo) UpdateState(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	_, err := runner(r.db, tx).ExecContext(
		ctx, `UPDATE orders SET state = $2, updated_at = now() WHERE id = $1`,
		order.ID, order.State,
	)
	return err
}

func scanOrder(row *sql.Row) (*domain.Order, error) {
	var order domain.Order
	err := row.Scan(
		&order.ID,
		&order.Number,
		&order.Total,
		&order.Currency,
		&order.State,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}
