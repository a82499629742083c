package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	sqlStateUniqueViolation    = "23505"
	sqlStateExclusionViolation = "23P01"
	sqlStateCheckViolation     = "23514"
)

// IsUniqueViolation reports whether the provided error references a Postgres
// unique violation constraint. When constraintName is provided, the helper looks
// for the constraint text in the error message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if pgErr := asPgError(err); pgErr != nil {
		return pgErr.Code == sqlStateUniqueViolation && matchesConstraint(pgErr, constraintName)
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// IsExclusionViolation reports whether err is a Postgres exclusion-constraint
// violation, raised by the reservation date-range constraint.
func IsExclusionViolation(err error, constraintName string) bool {
	pgErr := asPgError(err)
	if pgErr == nil {
		return false
	}
	return pgErr.Code == sqlStateExclusionViolation && matchesConstraint(pgErr, constraintName)
}

// IsCheckViolation reports whether err is a Postgres CHECK constraint violation.
func IsCheckViolation(err error, constraintName string) bool {
	pgErr := asPgError(err)
	if pgErr == nil {
		return false
	}
	return pgErr.Code == sqlStateCheckViolation && matchesConstraint(pgErr, constraintName)
}

func asPgError(err error) *pgconn.PgError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr
	}
	return nil
}

func matchesConstraint(pgErr *pgconn.PgError, constraintName string) bool {
	return constraintName == "" || pgErr.ConstraintName == constraintName
}
