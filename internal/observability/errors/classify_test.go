package errors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/target/mmk-jobpipe/internal/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"app error", fmt.Errorf("wrap: %w", apperrors.NotFound("job not found")), "app_not_found"},
		{"storage", apperrors.Storage(errors.New("conn refused"), "update"), "app_storage"},
		{"plain", errors.New("boom"), "errors_errorstring"},
		{"path error", &os.PathError{Op: "open", Path: "x", Err: errors.New("nope")}, "errors_errorstring"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
