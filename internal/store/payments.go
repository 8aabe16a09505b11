package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/estatehub/billing-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const paymentColumns = `
	p.id, p.user_id, p.service_id, s.name, s.billing_cycle, p.amount, p.currency, p.status,
	p.gateway_status, p.payment_reference, p.billing_period_start, p.billing_period_end,
	p.due_date, p.paid_at, p.created_at, p.updated_at
`

const paymentsFrom = `FROM payments p JOIN services s ON s.id = p.service_id`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var payment domain.Payment
	if err := row.Scan(
		&payment.ID,
		&payment.UserID,
		&payment.ServiceID,
		&payment.ServiceName,
		&payment.BillingCycle,
		&payment.Amount,
		&payment.Currency,
		&payment.Status,
		&payment.GatewayStatus,
		&payment.PaymentReference,
		&payment.BillingPeriodStart,
		&payment.BillingPeriodEnd,
		&payment.DueDate,
		&payment.PaidAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *Repository) queryPayments(ctx context.Context, query string, args ...any) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := []domain.Payment{}
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *payment)
	}
	return payments, rows.Err()
}

// InsertPaymentIfAbsent creates a PENDING obligation unless one already exists for the
// same (user, service, billing period start). It reports whether a row was created.
// The uniqueness check happens inside the INSERT, so concurrent generators cannot
// both succeed.
func (r *Repository) InsertPaymentIfAbsent(ctx context.Context, payment *domain.Payment) (bool, error) {
	query := `
		INSERT INTO payments (
			user_id,
			service_id,
			amount,
			currency,
			status,
			payment_reference,
			billing_period_start,
			billing_period_end,
			due_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, service_id, billing_period_start) DO NOTHING
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		payment.UserID,
		payment.ServiceID,
		payment.Amount,
		payment.Currency,
		string(payment.Status),
		payment.PaymentReference,
		payment.BillingPeriodStart,
		payment.BillingPeriodEnd,
		payment.DueDate,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		if name, ok := constraintViolation(err, pgUniqueViolation); ok && name == constraintPaymentReference {
			return false, ErrDuplicateReference
		}
		return false, fmt.Errorf("failed to insert payment: %w", err)
	}
	return true, nil
}

// FindPayableObligation returns the PENDING obligation of a user for a service whose
// billing period contains now. One-time obligations stay payable while PENDING.
func (r *Repository) FindPayableObligation(ctx context.Context, userID, serviceID uuid.UUID, now time.Time) (*domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		` + paymentsFrom + `
		WHERE p.user_id = $1
		  AND p.service_id = $2
		  AND p.status = 'PENDING'
		  AND (
		        (p.billing_period_start <= $3 AND p.billing_period_end >= $3)
		     OR s.billing_cycle = 'ONE_TIME'
		  )
		ORDER BY p.billing_period_start DESC
		LIMIT 1
	`
	payment, err := scanPayment(r.db.QueryRow(ctx, query, userID, serviceID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

// SetPaymentReference overwrites the correlation reference of an obligation.
func (r *Repository) SetPaymentReference(ctx context.Context, paymentID uuid.UUID, reference string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE payments SET payment_reference = $2, updated_at = NOW() WHERE id = $1`,
		paymentID, reference)
	if err != nil {
		if name, ok := constraintViolation(err, pgUniqueViolation); ok && name == constraintPaymentReference {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to set payment reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// ReconcilePayment appends a gateway transaction and applies the status transition
// in one database transaction. settle sees the locked obligation and picks the new
// status. A COMPLETED obligation keeps its status; the transaction is still recorded.
func (r *Repository) ReconcilePayment(
	ctx context.Context,
	txn *domain.PaymentTransaction,
	at time.Time,
	settle func(domain.Payment) domain.PaymentStatus,
) (*domain.Payment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin reconcile transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	locked, err := scanPayment(tx.QueryRow(ctx,
		`SELECT `+paymentColumns+` `+paymentsFrom+` WHERE p.payment_reference = $1 FOR UPDATE OF p`,
		txn.PaymentReference,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	paymentID := locked.ID
	txn.PaymentID = paymentID
	insertTxn := `
		INSERT INTO payment_transactions (
			payment_id, payment_reference, transaction_id, transaction_ref, status,
			amount, currency, customer_name, customer_email, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	if err := tx.QueryRow(ctx, insertTxn,
		paymentID,
		txn.PaymentReference,
		txn.TransactionID,
		txn.TransactionRef,
		txn.Status,
		txn.Amount,
		txn.Currency,
		txn.CustomerName,
		txn.CustomerEmail,
		at,
	).Scan(&txn.ID); err != nil {
		return nil, fmt.Errorf("failed to insert payment transaction: %w", err)
	}
	txn.CreatedAt = at

	updatePayment := `
		UPDATE payments p
		SET status = CASE WHEN p.status = 'COMPLETED' THEN p.status ELSE $2::text END,
		    gateway_status = CASE WHEN p.status = 'COMPLETED' THEN p.gateway_status ELSE $3 END,
		    paid_at = CASE WHEN $2::text = 'COMPLETED' AND p.paid_at IS NULL THEN $4 ELSE p.paid_at END,
		    updated_at = $4
		FROM services s
		WHERE p.id = $1 AND s.id = p.service_id
		RETURNING ` + paymentColumns
	status := settle(*locked)
	payment, err := scanPayment(tx.QueryRow(ctx, updatePayment, paymentID, string(status), txn.Status, at))
	if err != nil {
		return nil, fmt.Errorf("failed to update payment status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit reconcile transaction: %w", err)
	}
	return payment, nil
}

// GetPaymentForUser loads one obligation owned by userID.
func (r *Repository) GetPaymentForUser(ctx context.Context, userID, paymentID uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` ` + paymentsFrom + ` WHERE p.id = $1 AND p.user_id = $2`
	payment, err := scanPayment(r.db.QueryRow(ctx, query, paymentID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

// ListPaymentsByUser returns every obligation of a user, newest period first.
func (r *Repository) ListPaymentsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	return r.queryPayments(ctx,
		`SELECT `+paymentColumns+` `+paymentsFrom+` WHERE p.user_id = $1 ORDER BY p.billing_period_start DESC, p.created_at DESC`,
		userID)
}

// ListPaymentsByEstate returns every obligation for services of an estate.
func (r *Repository) ListPaymentsByEstate(ctx context.Context, estateID uuid.UUID) ([]domain.Payment, error) {
	return r.queryPayments(ctx,
		`SELECT `+paymentColumns+` `+paymentsFrom+` WHERE s.estate_id = $1 ORDER BY p.billing_period_start DESC, p.created_at DESC`,
		estateID)
}

// ListCompletedPaymentsByUser returns a user's completed obligations, latest payment first.
func (r *Repository) ListCompletedPaymentsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	return r.queryPayments(ctx,
		`SELECT `+paymentColumns+` `+paymentsFrom+` WHERE p.user_id = $1 AND p.status = 'COMPLETED' ORDER BY p.paid_at DESC NULLS LAST`,
		userID)
}

// ListPendingPaymentsForUser returns a user's PENDING obligations whose period contains now.
func (r *Repository) ListPendingPaymentsForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		` + paymentsFrom + `
		WHERE p.user_id = $1
		  AND p.status = 'PENDING'
		  AND (
		        (p.billing_period_start <= $2 AND p.billing_period_end >= $2)
		     OR s.billing_cycle = 'ONE_TIME'
		  )
		ORDER BY p.due_date ASC
	`
	return r.queryPayments(ctx, query, userID, now)
}

// ListTransactionsByPayment returns the gateway log of an obligation, oldest first.
func (r *Repository) ListTransactionsByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentTransaction, error) {
	query := `
		SELECT id, payment_id, payment_reference, transaction_id, transaction_ref, status,
		       amount, currency, customer_name, customer_email, created_at
		FROM payment_transactions
		WHERE payment_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txns := []domain.PaymentTransaction{}
	for rows.Next() {
		var txn domain.PaymentTransaction
		if err := rows.Scan(
			&txn.ID,
			&txn.PaymentID,
			&txn.PaymentReference,
			&txn.TransactionID,
			&txn.TransactionRef,
			&txn.Status,
			&txn.Amount,
			&txn.Currency,
			&txn.CustomerName,
			&txn.CustomerEmail,
			&txn.CreatedAt,
		); err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// MonthlyRevenue sums completed obligations of an estate per calendar month of payment.
// Months are computed in the given IANA timezone.
func (r *Repository) MonthlyRevenue(ctx context.Context, estateID uuid.UUID, timezone string) ([]domain.MonthlyRevenue, error) {
	query := `
		SELECT to_char(date_trunc('month', COALESCE(p.paid_at, p.updated_at) AT TIME ZONE $2), 'YYYY-MM') AS month,
		       COALESCE(SUM(p.amount), 0) AS total,
		       COUNT(*) AS payments
		FROM payments p
		JOIN services s ON s.id = p.service_id
		WHERE s.estate_id = $1 AND p.status = 'COMPLETED'
		GROUP BY 1
		ORDER BY 1 ASC
	`
	rows, err := r.db.Query(ctx, query, estateID, timezone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	months := []domain.MonthlyRevenue{}
	for rows.Next() {
		var (
			month string
			total decimal.Decimal
			count int
		)
		if err := rows.Scan(&month, &total, &count); err != nil {
			return nil, err
		}
		months = append(months, domain.MonthlyRevenue{Month: month, Total: total, Count: count})
	}
	return months, rows.Err()
}
