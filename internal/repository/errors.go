package repository

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("duplicate value")
	ErrForeignKey        = errors.New("referenced record missing")
	ErrCheckViolation    = errors.New("value violates a check constraint")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStaleStatus       = errors.New("order status changed concurrently")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// ConstraintError reports which constraint rejected a write.
type ConstraintError struct {
	Kind       error
	Constraint string
}

func (e *ConstraintError) Error() string {
	return e.Kind.Error() + ": " + e.Constraint
}

func (e *ConstraintError) Unwrap() error { return e.Kind }

// Column guesses the offending column from a "<table>_<column>_(key|fkey)"
// constraint name.
func (e *ConstraintError) Column(table string) string {
	name := strings.TrimPrefix(e.Constraint, table+"_")
	name = strings.TrimSuffix(name, "_fkey")
	return strings.TrimSuffix(name, "_key")
}

func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return &ConstraintError{Kind: ErrDuplicate, Constraint: pgErr.ConstraintName}
	case pgForeignKeyViolation:
		return &ConstraintError{Kind: ErrForeignKey, Constraint: pgErr.ConstraintName}
	case pgCheckViolation:
		return &ConstraintError{Kind: ErrCheckViolation, Constraint: pgErr.ConstraintName}
	}
	return err
}
