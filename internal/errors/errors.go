package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a write lost to existing state (unique violation, terminal job).
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeStorage indicates the persistence layer is unavailable or failed.
	ErrCodeStorage ErrorCode = "storage"
	// ErrCodeTransform indicates a fault while deriving a job result.
	ErrCodeTransform ErrorCode = "transform"
	// ErrCodeDelivery indicates a webhook delivery failure.
	ErrCodeDelivery ErrorCode = "delivery"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message}
}

// Conflictf creates a new Conflict error with formatted message.
func Conflictf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// Storage wraps a persistence failure. A nil err yields nil.
func Storage(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{Code: ErrCodeStorage, Message: message, Cause: err}
}

// Transform creates a new Transform error.
func Transform(message string) *AppError {
	return &AppError{Code: ErrCodeTransform, Message: message}
}

// Delivery creates a new Delivery error.
func Delivery(message string) *AppError {
	return &AppError{Code: ErrCodeDelivery, Message: message}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool {
	return isCode(err, ErrCodeConflict)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsStorage checks if an error is a Storage error.
func IsStorage(err error) bool {
	return isCode(err, ErrCodeStorage)
}

// IsTransform checks if an error is a Transform error.
func IsTransform(err error) bool {
	return isCode(err, ErrCodeTransform)
}

// IsDelivery checks if an error is a Delivery error.
func IsDelivery(err error) bool {
	return isCode(err, ErrCodeDelivery)
}

// IsAppError checks if an error is an AppError with the given code.
func IsAppError(err error, code ErrorCode) bool {
	return isCode(err, code)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
