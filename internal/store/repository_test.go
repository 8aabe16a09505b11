package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestConstraintViolation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     string
		wantName string
		wantOK   bool
	}{
		{
			name:     "duplicate email",
			err:      &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: constraintUserEmail},
			code:     pgUniqueViolation,
			wantName: constraintUserEmail,
			wantOK:   true,
		},
		{
			name:     "duplicate service name",
			err:      &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: constraintServiceName},
			code:     pgUniqueViolation,
			wantName: constraintServiceName,
			wantOK:   true,
		},
		{
			name:     "duplicate payment reference",
			err:      &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: constraintPaymentReference},
			code:     pgUniqueViolation,
			wantName: constraintPaymentReference,
			wantOK:   true,
		},
		{
			name:     "wrapped foreign key",
			err:      fmt.Errorf("insert failed: %w", &pgconn.PgError{Code: pgForeignKeyViolation, ConstraintName: "users_estate_id_fkey"}),
			code:     pgForeignKeyViolation,
			wantName: "users_estate_id_fkey",
			wantOK:   true,
		},
		{
			name: "different code",
			err:  &pgconn.PgError{Code: pgForeignKeyViolation, ConstraintName: constraintUserEmail},
			code: pgUniqueViolation,
		},
		{
			name: "not a postgres error",
			err:  errors.New("connection reset"),
			code: pgUniqueViolation,
		},
		{
			name: "nil",
			code: pgUniqueViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, ok := constraintViolation(tt.err, tt.code)
			if ok != tt.wantOK || name != tt.wantName {
				t.Fatalf("expected (%q, %v), got (%q, %v)", tt.wantName, tt.wantOK, name, ok)
			}
		})
	}
}
