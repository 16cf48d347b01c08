package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestStorageClassification(t *testing.T) {
	assert.NoError(t, Storage(nil))
	assert.ErrorIs(t, Storage(context.DeadlineExceeded), ErrTimeout)
	assert.ErrorIs(t, Storage(fmt.Errorf("wrapped: %w", context.Canceled)), ErrTimeout)
	assert.ErrorIs(t, Storage(&pgconn.PgError{Code: "40001"}), ErrContention)
	assert.ErrorIs(t, Storage(&pgconn.PgError{Code: "40P01"}), ErrContention)
	assert.ErrorIs(t, Storage(&pgconn.PgError{Code: "23514"}), ErrInvalidInput)
	assert.ErrorIs(t, Storage(errors.New("connection refused")), ErrStorageUnavailable)

	kinded := Invalid("weight %v", -1)
	assert.Same(t, kinded, Storage(kinded))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Storage(errors.New("down"))))
	assert.True(t, Retryable(fmt.Errorf("credit: %w", ErrContention)))
	assert.True(t, Retryable(ErrTimeout))
	assert.False(t, Retryable(ErrInsufficientBalance))
	assert.False(t, Retryable(Invalid("bad")))
	assert.False(t, Retryable(ErrAlreadyUsed))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		Invalid("x"):                     http.StatusBadRequest,
		NotFound("bin", "b-1"):           http.StatusNotFound,
		ErrInsufficientBalance:           http.StatusUnprocessableEntity,
		ErrAlreadyUsed:                   http.StatusConflict,
		ErrExpired:                       http.StatusGone,
		ErrTimeout:                       http.StatusGatewayTimeout,
		Storage(errors.New("down")):      http.StatusServiceUnavailable,
		errors.New("something unmapped"): http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "redemptions_code_key"})
	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "redemptions_code_key"))
	assert.False(t, IsUniqueViolation(err, "redemptions_pkey"))
	assert.False(t, IsUniqueViolation(errors.New("plain"), ""))
}
