package repo

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"adyen-notify/internal/domain"
)

type RedirectChallengeRepo interface {
	Create(ctx context.Context, tx *sql.Tx, rc *domain.RedirectChallenge) error
	FindByPayment(ctx context.Context, paymentID uuid.UUID) (*domain.RedirectChallenge, error)
	// DeleteForOrder removes every challenge tied to the order's payments.
	// Called when checkout restarts so an old 3-D Secure response cannot be
	// replayed against a new payment attempt.
	DeleteForOrder(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) error
}

type redirectChallengeRepo struct {
	db *sql.DB
}

func NewRedirectChallengeRepo(db *sql.DB) RedirectChallengeRepo {
	return &redirectChallengeRepo{db: db}
}

func (r *redirectChallengeRepo) Create(ctx context.Context, tx *sql.Tx, rc *domain.RedirectChallenge) error {
	query := `INSERT INTO redirect_challenges (id, payment_id, md, pa_request, issuer_url, psp_reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := runner(r.db, tx).ExecContext(
		ctx, query,
		rc.ID, rc.PaymentID, rc.MD, rc.PARequest, rc.IssuerURL, rc.PSPReference, rc.CreatedAt,
	)
	return err
}

func (r *redirectChallengeRepo) FindByPayment(ctx context.Context, paymentID uuid.UUID) (*domain.RedirectChallenge, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, payment_id, md, pa_request, issuer_url, psp_reference, created_at
		 FROM redirect_challenges WHERE payment_id = $1`,
		paymentID,
	)
	var rc domain.RedirectChallenge
	err := row.Scan(&rc.ID, &rc.PaymentID, &rc.MD, &rc.PARequest, &rc.IssuerURL, &rc.PSPReference, &rc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *redirectChallengeRepo) DeleteForOrder(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) error {
	_, err := runner(r.db, tx).ExecContext(
		ctx,
		`DELETE FROM redirect_challenges
		 WHERE payment_id IN (SELECT id FROM payments WHERE order_id = $1)`,
		orderID,
	)
	return err
}
