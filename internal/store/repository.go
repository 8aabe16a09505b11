/**
 * @description
 * Data access layer for the estate billing service. All reads and writes go
 * through a single pgx connection pool injected at construction time.
 *
 * @notes
 * - Uniqueness rules (service name per estate, one obligation per user/service/
 *   period, unique payment reference) are enforced by database constraints and
 *   translated into the sentinel errors below.
 */
package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrEstateNotFound     = errors.New("estate not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrServiceNotFound    = errors.New("service not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrServiceNameTaken   = errors.New("a service with this name already exists in the estate")
	ErrServiceHasPayments = errors.New("service has payment records and cannot be deleted")
	ErrEmailTaken         = errors.New("email address is already registered")
	ErrDuplicateReference = errors.New("payment reference already in use")
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	constraintServiceName      = "services_estate_name_key"
	constraintPaymentReference = "payments_payment_reference_key"
	constraintUserEmail        = "users_email_key"
)

// Repository handles database operations for estates, services and payments.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// constraintViolation returns the violated constraint name when err is a
// Postgres error with the given SQLSTATE code.
func constraintViolation(err error, code string) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == code {
		return pgErr.ConstraintName, true
	}
	return "", false
}
