package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL unique violation error code.
const uniqueViolationCode = "23505"

// isUniqueViolation reports whether err is a unique constraint violation,
// used to map duplicate primary keys onto store.ErrDuplicateID.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
