package app

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/estatehub/billing-service/internal/domain"
	"github.com/estatehub/billing-service/internal/metrics"
	"github.com/estatehub/billing-service/internal/store"
)

// MapGatewayStatus translates the gateway's status vocabulary into PaymentStatus.
// Values the gateway may add later map to StatusUnrecognized instead of being coerced.
func MapGatewayStatus(raw string) domain.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "successful", "success", "completed":
		return domain.StatusCompleted
	case "failed", "cancelled", "canceled", "error":
		return domain.StatusFailed
	case "pending":
		return domain.StatusPending
	default:
		return domain.StatusUnrecognized
	}
}

// settledStatus keeps a successful callback COMPLETED only when it pays at least the
// obligation amount in the obligation currency. Anything short of that is left
// UNRECOGNIZED for an administrator to review.
func settledStatus(obligation domain.Payment, callback domain.GatewayCallback, mapped domain.PaymentStatus) domain.PaymentStatus {
	if mapped != domain.StatusCompleted {
		return mapped
	}
	if callback.Amount.LessThan(obligation.Amount) {
		return domain.StatusUnrecognized
	}
	if !strings.EqualFold(strings.TrimSpace(callback.Currency), obligation.Currency) {
		return domain.StatusUnrecognized
	}
	return mapped
}

// Reconcile applies a gateway callback to the obligation that owns its reference.
// The transaction log entry and the status change are committed together. Unknown
// references return store.ErrPaymentNotFound and write nothing.
func (s *Service) Reconcile(ctx context.Context, callback domain.GatewayCallback) (*domain.PaymentTransaction, error) {
	reference := strings.TrimSpace(callback.TxRef)
	if reference == "" {
		metrics.WebhooksRejected.WithLabelValues("missing_reference").Inc()
		return nil, ErrInvalidCallback
	}

	status := MapGatewayStatus(callback.Status)
	settle := func(obligation domain.Payment) domain.PaymentStatus {
		return settledStatus(obligation, callback, status)
	}
	txn := &domain.PaymentTransaction{
		PaymentReference: reference,
		TransactionID:    callback.TransactionID,
		TransactionRef:   callback.TransactionRef,
		Status:           callback.Status,
		Amount:           callback.Amount,
		Currency:         callback.Currency,
		CustomerName:     callback.CustomerName,
		CustomerEmail:    callback.CustomerEmail,
	}

	payment, err := s.repo.ReconcilePayment(ctx, txn, s.now().UTC(), settle)
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			metrics.WebhooksRejected.WithLabelValues("unknown_reference").Inc()
			log.Printf("level=warn component=reconciler msg=\"callback for unknown reference\" tx_ref=%s transaction_id=%s", reference, callback.TransactionID)
		}
		return nil, err
	}

	metrics.WebhooksReconciled.WithLabelValues(string(payment.Status)).Inc()
	if status == domain.StatusCompleted && payment.Status == domain.StatusUnrecognized {
		log.Printf("level=warn component=reconciler msg=\"successful callback does not settle obligation\" payment_id=%s expected=%s %s paid=%s %s", payment.ID, payment.Amount, payment.Currency, callback.Amount, callback.Currency)
	}
	if status == domain.StatusCompleted && payment.Status == domain.StatusCompleted && callback.Amount.GreaterThan(payment.Amount) {
		log.Printf("level=warn component=reconciler msg=\"obligation overpaid\" payment_id=%s expected=%s paid=%s", payment.ID, payment.Amount, callback.Amount)
	}
	log.Printf("level=info component=reconciler msg=\"callback applied\" payment_id=%s tx_ref=%s gateway_status=%q status=%s", payment.ID, reference, callback.Status, payment.Status)

	switch payment.Status {
	case domain.StatusCompleted:
		s.publishEvent(ctx, "estate.payment.completed", *payment)
	case domain.StatusFailed:
		s.publishEvent(ctx, "estate.payment.failed", *payment)
	default:
		s.publishEvent(ctx, "estate.payment.updated", *payment)
	}

	return txn, nil
}
