// Package errors buckets errors into short class names for metric tags.
package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	apperrors "github.com/target/mmk-jobpipe/internal/errors"
)

// Classify returns a low-cardinality class for err.
// Application errors are tagged by code, deadline and cancellation get fixed
// names, and anything else falls back to the innermost concrete type.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	}

	if code := apperrors.GetCode(err); code != "" {
		return "app_" + string(code)
	}

	var netErr net.Error
	if goerrors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	return typeName(innermost(err))
}

func innermost(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
	if name == "" {
		return "unknown"
	}
	return name
}
