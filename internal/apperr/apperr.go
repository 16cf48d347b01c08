// Package apperr defines the error kinds shared by the reward ledger and the
// helpers that classify storage failures into them.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrInvalidInput marks malformed categories, weights, amounts or identifiers.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound indicates the referenced user, bin, deposit, offer or redemption does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientBalance means available points do not cover the requested debit.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrContention is returned after the bounded optimistic retries are exhausted.
	ErrContention = errors.New("contention")
	// ErrTimeout means the caller deadline expired before the transaction committed.
	ErrTimeout = errors.New("timeout")
	// ErrStorageUnavailable wraps infrastructure failures of the durable store.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrAlreadyUsed is returned when a redemption has already been marked used.
	ErrAlreadyUsed = errors.New("already used")
	// ErrDuplicateCode signals a redemption code collided with an existing one.
	ErrDuplicateCode = errors.New("duplicate code")
	// ErrExpired is returned when a redemption is used after its expiry.
	ErrExpired = errors.New("expired")
	// ErrOfferUnavailable is returned when an offer is outside its validity window.
	ErrOfferUnavailable = errors.New("offer unavailable")
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
)

// Invalid builds an ErrInvalidInput with a formatted detail message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotFound builds an ErrNotFound naming the missing entity.
func NotFound(entity, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, entity, id)
}

// Storage classifies an error returned by a store driver. Nil stays nil and
// errors already carrying a kind are returned unchanged.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	if hasKind(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return fmt.Errorf("%w: %v", ErrContention, err)
		case pgCheckViolation:
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}

// IsUniqueViolation reports whether err is a Postgres unique constraint failure,
// optionally restricted to the named constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// Retryable reports whether the caller may retry the same logical request.
func Retryable(err error) bool {
	return errors.Is(err, ErrContention) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrStorageUnavailable)
}

// HTTPStatus maps an error kind to the status code exposed by the gateway.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrOfferUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrAlreadyUsed), errors.Is(err, ErrDuplicateCode), errors.Is(err, ErrContention):
		return http.StatusConflict
	case errors.Is(err, ErrExpired):
		return http.StatusGone
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func hasKind(err error) bool {
	for _, kind := range []error{
		ErrInvalidInput, ErrNotFound, ErrInsufficientBalance, ErrContention, ErrTimeout,
		ErrStorageUnavailable, ErrAlreadyUsed, ErrDuplicateCode, ErrExpired, ErrOfferUnavailable,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
