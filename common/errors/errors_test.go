package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	err := New(ErrCodeEmptyOrder, "order must contain at least one item")
	assert.Equal(t, "[EMPTY_ORDER] order must contain at least one item", err.Error())

	cause := stderrors.New("connection refused")
	wrapped := Wrap(ErrCodeDatabaseError, "failed to begin transaction", cause)
	assert.Equal(t, "[DATABASE_ERROR] failed to begin transaction: connection refused", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestCodeOf_WalksWrapChain(t *testing.T) {
	inner := Newf(ErrCodeInsufficientStock, "insufficient stock for product %d", 7)
	outer := fmt.Errorf("assemble: %w", inner)

	assert.Equal(t, ErrCodeInsufficientStock, CodeOf(outer))
	assert.True(t, Is(outer, ErrCodeInsufficientStock))
	assert.Equal(t, ErrCodeUnknownError, CodeOf(stderrors.New("plain")))
	assert.False(t, Is(nil, ErrCodeUnknownError))
}

func TestClassification(t *testing.T) {
	tests := []struct {
		code       ErrorCode
		notFound   bool
		validation bool
		retryable  bool
	}{
		{ErrCodeOrderNotFound, true, false, false},
		{ErrCodeProductNotFound, true, false, false},
		{ErrCodeUserNotFound, true, false, false},
		{ErrCodeEmptyOrder, false, true, false},
		{ErrCodeInsufficientStock, false, true, false},
		{ErrCodeInvalidStatus, false, true, false},
		{ErrCodeInvalidTransition, false, true, false},
		{ErrCodeInvalidRequest, false, true, false},
		{ErrCodeDatabaseError, false, false, true},
		{ErrCodeConcurrencyConflict, false, false, true},
		{ErrCodeSerializationError, false, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := New(tt.code, "x")
			assert.Equal(t, tt.notFound, IsNotFound(err))
			assert.Equal(t, tt.validation, IsValidation(err))
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.Equal(t, tt.notFound || tt.validation, IsBusinessError(err))
		})
	}
}

func TestMessageOf(t *testing.T) {
	err := fmt.Errorf("handler: %w", Wrap(ErrCodeInvalidRequest, "invalid request body", stderrors.New("unexpected EOF")))
	assert.Equal(t, "invalid request body", MessageOf(err))
	assert.Equal(t, "plain", MessageOf(stderrors.New("plain")))
}
