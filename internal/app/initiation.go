package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/estatehub/billing-service/internal/domain"
	"github.com/estatehub/billing-service/internal/metrics"
	"github.com/estatehub/billing-service/internal/store"
	"github.com/estatehub/billing-service/pkg/flutterwave"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FailedReferencePrefix marks a reference whose gateway call failed. The obligation
// stays PENDING and the next attempt mints a fresh reference.
const FailedReferencePrefix = "FAILED-"

// InitiationResult is returned to the resident after a hosted payment link was created.
type InitiationResult struct {
	PaymentID        uuid.UUID       `json:"payment_id"`
	PaymentReference string          `json:"payment_reference"`
	Link             string          `json:"link"`
	ServiceName      string          `json:"service_name"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Period           domain.Period   `json:"period"`
}

// InitiatePayment starts a gateway payment for the user's PENDING obligation on a service
// in the current billing period. It never creates obligations: when none is payable it
// returns ErrNoPaymentDue.
func (s *Service) InitiatePayment(ctx context.Context, userID, serviceID uuid.UUID) (*InitiationResult, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	service, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if service.EstateID != user.EstateID {
		return nil, store.ErrServiceNotFound
	}

	obligation, err := s.repo.FindPayableObligation(ctx, userID, serviceID, s.clock())
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			metrics.PaymentInitiations.WithLabelValues("no_payment_due").Inc()
			return nil, ErrNoPaymentDue
		}
		return nil, err
	}

	if s.lock != nil {
		release, acquired, lockErr := s.lock.Acquire(ctx, "payment-initiation:"+obligation.ID.String(), s.opts.InitiationLockTTL)
		switch {
		case lockErr != nil:
			log.Printf("level=warn component=initiation msg=\"initiation lock unavailable, continuing without it\" payment_id=%s err=%v", obligation.ID, lockErr)
		case !acquired:
			metrics.PaymentInitiations.WithLabelValues("in_progress").Inc()
			return nil, ErrPaymentInProgress
		default:
			defer release()
		}
	}

	reference := MintPaymentReference(service.EstateName, s.now())
	if err := s.repo.SetPaymentReference(ctx, obligation.ID, reference); err != nil {
		metrics.PaymentInitiations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to persist payment reference: %w", err)
	}

	request := flutterwave.PaymentRequest{
		TxRef:       reference,
		Amount:      json.Number(obligation.Amount.StringFixed(2)),
		Currency:    obligation.Currency,
		RedirectURL: s.opts.RedirectURL,
		Customer: flutterwave.Customer{
			Email:       user.Email,
			Name:        user.FullName(),
			PhoneNumber: user.Phone,
		},
		Customizations: flutterwave.Customizations{
			Title:       service.EstateName,
			Description: fmt.Sprintf("%s (%s to %s)", service.Name, obligation.BillingPeriodStart.Format("2006-01-02"), obligation.BillingPeriodEnd.Format("2006-01-02")),
		},
		Meta: map[string]string{
			"payment_id": obligation.ID.String(),
			"service_id": service.ID.String(),
			"user_id":    user.ID.String(),
		},
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.opts.GatewayTimeout)
	defer cancel()

	started := time.Now()
	link, err := s.gateway.CreatePaymentLink(gatewayCtx, request)
	metrics.GatewayDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		s.markReferenceFailed(ctx, obligation.ID)
		metrics.PaymentInitiations.WithLabelValues("gateway_failed").Inc()
		log.Printf("level=warn component=initiation msg=\"gateway call failed\" payment_id=%s reference=%s err=%v", obligation.ID, reference, err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	metrics.PaymentInitiations.WithLabelValues("link_created").Inc()
	log.Printf("level=info component=initiation msg=\"payment link created\" payment_id=%s user_id=%s reference=%s", obligation.ID, userID, reference)

	return &InitiationResult{
		PaymentID:        obligation.ID,
		PaymentReference: reference,
		Link:             link,
		ServiceName:      service.Name,
		Amount:           obligation.Amount,
		Currency:         obligation.Currency,
		Period: domain.Period{
			Start:   obligation.BillingPeriodStart,
			End:     obligation.BillingPeriodEnd,
			DueDate: obligation.DueDate,
		},
	}, nil
}

// markReferenceFailed swaps the reference for a unique failed marker. It runs detached
// from the request context so a cancelled caller still leaves the obligation retryable.
func (s *Service) markReferenceFailed(ctx context.Context, paymentID uuid.UUID) {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	sentinel := FailedReferencePrefix + uuid.NewString()
	if err := s.repo.SetPaymentReference(markCtx, paymentID, sentinel); err != nil {
		log.Printf("level=error component=initiation msg=\"failed to mark reference as failed\" payment_id=%s err=%v", paymentID, err)
	}
}
