package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err:  &AppError{Code: ErrCodeNotFound, Message: "resource not found"},
			want: "resource not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeInternal,
				Message: "failed to process",
				Cause:   errors.New("underlying error"),
			},
			want: "failed to process: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeInternal, "wrapped error")

	assert.ErrorIs(t, err, cause)
}

func TestStorage(t *testing.T) {
	assert.NoError(t, Storage(nil, "ignored"))

	cause := errors.New("connection reset")
	err := Storage(cause, "load job")
	require.Error(t, err)
	assert.True(t, IsStorage(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "load job: connection reset", err.Error())
}

func TestCodeHelpers_SeeThroughWrapping(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{name: "not found", err: NotFound("missing"), check: IsNotFound},
		{name: "conflict", err: Conflictf("job %s is terminal", "j1"), check: IsConflict},
		{name: "validation", err: ValidationField("doc_id", "required"), check: IsValidation},
		{name: "transform", err: Transform("bad payload"), check: IsTransform},
		{name: "delivery", err: Delivery("Webhook returned status 500"), check: IsDelivery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, tt.check(wrapped))
			assert.False(t, IsStorage(wrapped))
		})
	}
}

func TestGetField(t *testing.T) {
	assert.Equal(t, "webhook_url", GetField(ValidationField("webhook_url", "invalid")))
	assert.Empty(t, GetField(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), GetCode(errors.New("plain")))
}
