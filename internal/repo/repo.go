package repo

import (
	"context"
	"database/sql"
)

// querier is satisfied by both *sql.DB and *sql.Tx. Mutating repo methods
// take an explicit *sql.Tx so the caller controls the transaction boundary;
// a nil tx falls back to the pool for standalone writes.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func runner(db *sql.DB, tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return db
}
