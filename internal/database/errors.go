package database

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ViolatesConstraint reports whether err is a unique violation on the given
// index. Postgres names the index; SQLite lists the columns instead, so the
// columns are matched as a fallback.
func ViolatesConstraint(err error, index string, columns ...string) bool {
	if !IsUniqueViolation(err) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName == index
	}
	msg := err.Error()
	if strings.Contains(msg, index) {
		return true
	}
	if len(columns) == 0 {
		return false
	}
	for _, col := range columns {
		if !strings.Contains(msg, col) {
			return false
		}
	}
	return true
}
