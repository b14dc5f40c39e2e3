package database

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order and must stay idempotent. The unique index
// on adyen_notifications is the dedup guarantee for the whole system: two
// identical deliveries racing each other resolve at the storage layer, not
// in application code.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		total BIGINT NOT NULL,
		currency TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id UUID PRIMARY KEY,
		order_id UUID NOT NULL REFERENCES orders (id),
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		state TEXT NOT NULL,
		response_code TEXT NOT NULL DEFAULT '',
		source_kind TEXT NOT NULL,
		source_reference TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_order ON payments (order_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_response_code ON payments (response_code)`,
	`CREATE TABLE IF NOT EXISTS adyen_notifications (
		id UUID PRIMARY KEY,
		psp_reference TEXT NOT NULL,
		original_reference TEXT NOT NULL DEFAULT '',
		merchant_reference TEXT NOT NULL DEFAULT '',
		event_code TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		value BIGINT NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT '',
		event_date TIMESTAMPTZ,
		reason TEXT NOT NULL DEFAULT '',
		additional_data JSONB NOT NULL DEFAULT '{}',
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_dedup
		ON adyen_notifications (psp_reference, event_code, success)`,
	`CREATE TABLE IF NOT EXISTS log_entries (
		id UUID PRIMARY KEY,
		payment_id UUID NOT NULL REFERENCES payments (id),
		success BOOLEAN NOT NULL,
		message TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS redirect_challenges (
		id UUID PRIMARY KEY,
		payment_id UUID NOT NULL UNIQUE REFERENCES payments (id),
		md TEXT NOT NULL,
		pa_request TEXT NOT NULL,
		issuer_url TEXT NOT NULL,
		psp_reference TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate brings the schema up to date.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
