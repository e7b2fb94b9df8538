package sqlutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgLockNotAvailable    = "55P03"
	pgSerializationFail   = "40001"
)

// Classify maps driver errors onto the gameerr taxonomy so the service layer
// can pick a status code without knowing about Postgres.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", gameerr.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgCheckViolation, pgLockNotAvailable, pgSerializationFail:
			return fmt.Errorf("%w: %s", gameerr.ErrConflict, pgErr.Message)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", gameerr.ErrNotFound, pgErr.Message)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.SafeToRetry(err) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", gameerr.ErrRemoteUnavailable, err)
	}
	return err
}
