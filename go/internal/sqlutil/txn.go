package sqlutil

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Run executes fn inside a *sql.Tx.
// If fn returns an error the tx rolls back, else it commits.
func Run[T any](
	ctx context.Context,
	db *sql.DB,
	newQueries func(*sql.Tx) *T,
	fn func(q *T) error,
) error {
	tx, err := db.BeginTx(ctx, nil) // BEGIN
	if err != nil {
		return Classify(err)
	}
	q := newQueries(tx)
	if err := fn(q); err != nil {
		_ = tx.Rollback() // ROLLBACK
		return err
	}
	return Classify(tx.Commit()) // COMMIT
}
