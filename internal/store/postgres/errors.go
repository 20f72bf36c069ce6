package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE classes this subsystem cares about. Grant/RLS refusals must map
// to a generic access-denied outcome; uniqueness conflicts get a distinct
// one; the two must never be confused.
const (
	codeUniqueViolation       = "23505"
	codeInsufficientPrivilege = "42501"
	codeDuplicateObject       = "42710"
	codeUndefinedObject       = "42704"
)

// IsUniqueViolation reports whether err is a uniqueness-constraint conflict.
func IsUniqueViolation(err error) bool {
	return hasSQLState(err, codeUniqueViolation)
}

// IsInsufficientPrivilege reports whether the database itself refused the
// statement, e.g. a read-only principal attempting a write or an RLS grant
// rejection.
func IsInsufficientPrivilege(err error) bool {
	return hasSQLState(err, codeInsufficientPrivilege)
}

// IsDuplicateObject reports whether a CREATE ROLE hit an existing role.
func IsDuplicateObject(err error) bool {
	return hasSQLState(err, codeDuplicateObject)
}

// IsUndefinedObject reports whether a DROP/GRANT referenced a missing role.
func IsUndefinedObject(err error) bool {
	return hasSQLState(err, codeUndefinedObject)
}

func hasSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
