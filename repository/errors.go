package repository

import (
	"errors"
	"fmt"

	"poolbet/domain/entities"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// mapPgError translates postgres error codes into domain sentinels, keeping
// the original error in the chain
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%w: %w", entities.ErrAlreadyJoined, err)
	case pgSerializationFailure, pgDeadlockDetected:
		return fmt.Errorf("%w: %w", entities.ErrStaleWrite, err)
	}
	return err
}

// isForeignKeyViolation reports whether err references a missing parent row
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}
