package errors

import (
	"context"
	"database/sql"
	"errors"
	"regexp"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// reKeyField extracts field name from unique violation detail: "Key (field)=(value) already exists.".
var reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)

// MapDBError maps database errors to AppError instances:
//   - sql/pgx no rows → NotFound
//   - unique violations → Conflict (with Field when it can be recovered)
//   - check and NOT NULL violations → Validation
//   - everything else, including context deadlines → Storage
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return &AppError{Code: ErrCodeNotFound, Message: "Resource not found", Cause: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Code: ErrCodeStorage, Message: "database operation timed out", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		return &AppError{Code: ErrCodeStorage, Message: "database operation canceled", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}

	return &AppError{Code: ErrCodeStorage, Message: "database unavailable", Cause: err}
}

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return &AppError{
			Code:    ErrCodeConflict,
			Message: "This value already exists.",
			Field:   uniqueViolationField(pgErr),
			Cause:   pgErr,
		}
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation, pgerrcode.InvalidTextRepresentation:
		return &AppError{
			Code:    ErrCodeValidation,
			Message: "Invalid data. Please check your input.",
			Field:   pgErr.ColumnName,
			Cause:   pgErr,
		}
	default:
		return &AppError{
			Code:    ErrCodeStorage,
			Message: "A database error occurred.",
			Cause:   pgErr,
		}
	}
}

func uniqueViolationField(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		return m[1]
	}
	return ""
}
