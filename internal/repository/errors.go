package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyReviewed    = errors.New("request already reviewed")
	ErrAlreadyClaimed     = errors.New("request already claimed")
	ErrDuplicateReference = errors.New("payment reference already used")
	ErrReasonConflict     = errors.New("mutation reason already used for a different mutation")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

var domainErrors = []error{
	ErrInsufficientFunds,
	ErrInvalidAmount,
	ErrNotFound,
	ErrAlreadyReviewed,
	ErrAlreadyClaimed,
	ErrDuplicateReference,
	ErrReasonConflict,
	ErrStorageUnavailable,
}

// storageErr leaves domain errors untouched and marks everything else
// coming out of the driver as ErrStorageUnavailable. A numeric overflow is
// the caller's amount, not the storage, so it maps to ErrInvalidAmount.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return err
		}
	}
	if isOutOfRange(err) {
		return fmt.Errorf("%w: %s: value out of range", ErrInvalidAmount, op)
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isOutOfRange(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22003"
}

// IsTransient reports whether err is a serialization failure or deadlock
// that the caller may retry as a whole.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return errors.Is(err, context.DeadlineExceeded)
}
