package errors

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestMapDBError_NilError(t *testing.T) {
	assert.NoError(t, MapDBError(nil))
}

func TestMapDBError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  ErrorCode
		wantField string
	}{
		{name: "pgx no rows", err: pgx.ErrNoRows, wantCode: ErrCodeNotFound},
		{name: "sql no rows", err: sql.ErrNoRows, wantCode: ErrCodeNotFound},
		{name: "deadline", err: context.DeadlineExceeded, wantCode: ErrCodeStorage},
		{name: "canceled", err: context.Canceled, wantCode: ErrCodeStorage},
		{
			name:      "unique violation with column",
			err:       &pgconn.PgError{Code: pgerrcode.UniqueViolation, ColumnName: "doc_id"},
			wantCode:  ErrCodeConflict,
			wantField: "doc_id",
		},
		{
			name: "unique violation from detail",
			err: &pgconn.PgError{
				Code:   pgerrcode.UniqueViolation,
				Detail: "Key (doc_id)=(abc) already exists.",
			},
			wantCode:  ErrCodeConflict,
			wantField: "doc_id",
		},
		{
			name:     "check violation",
			err:      &pgconn.PgError{Code: pgerrcode.CheckViolation},
			wantCode: ErrCodeValidation,
		},
		{
			name:     "connection failure",
			err:      &pgconn.PgError{Code: pgerrcode.ConnectionFailure},
			wantCode: ErrCodeStorage,
		},
		{name: "plain error", err: errors.New("dial tcp: refused"), wantCode: ErrCodeStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			assert.Equal(t, tt.wantCode, GetCode(err))
			assert.Equal(t, tt.wantField, GetField(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestMapDBError_PassesThroughAppError(t *testing.T) {
	orig := NotFound("job not found")
	assert.Same(t, orig, MapDBError(orig))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: pgerrcode.CheckViolation}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}
