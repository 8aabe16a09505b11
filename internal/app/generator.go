package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/estatehub/billing-service/internal/domain"
	"github.com/estatehub/billing-service/internal/metrics"
	"github.com/estatehub/billing-service/internal/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// GenerationResult summarizes one generation run over a set of services.
type GenerationResult struct {
	ServicesEvaluated  int `json:"services_evaluated"`
	ServicesFailed     int `json:"services_failed"`
	ObligationsCreated int `json:"obligations_created"`
}

// GenerateObligations creates the PENDING obligations of the billing period containing
// asOf for every non-admin member of the service's estate. Users that already have an
// obligation for the period are skipped, so repeated runs are no-ops. A failure for one
// user is logged and does not stop the others. It returns the number of rows created.
func (s *Service) GenerateObligations(ctx context.Context, service domain.Service, asOf time.Time) (int, error) {
	period := PeriodForService(service, asOf.In(s.loc))

	users, err := s.repo.ListBillableUsers(ctx, service.EstateID)
	if err != nil {
		return 0, fmt.Errorf("failed to list users for estate %s: %w", service.EstateID, err)
	}
	if len(users) == 0 {
		return 0, nil
	}

	var created atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.opts.GenerationConcurrency)

	for _, user := range users {
		user := user
		group.Go(func() error {
			payment := &domain.Payment{
				UserID:             user.ID,
				ServiceID:          service.ID,
				ServiceName:        service.Name,
				BillingCycle:       service.BillingCycle,
				Amount:             service.Price,
				Currency:           s.opts.Currency,
				Status:             domain.StatusPending,
				BillingPeriodStart: period.Start,
				BillingPeriodEnd:   period.End,
				DueDate:            period.DueDate,
			}
			reference := MintPaymentReference(service.EstateName, s.now())
			payment.PaymentReference = &reference

			inserted, err := s.repo.InsertPaymentIfAbsent(groupCtx, payment)
			if err != nil {
				metrics.GenerationFailures.WithLabelValues(string(service.BillingCycle)).Inc()
				if errors.Is(err, store.ErrDuplicateReference) {
					log.Printf("level=warn component=generator msg=\"payment reference collision, skipping\" service_id=%s user_id=%s reference=%s", service.ID, user.ID, reference)
					return nil
				}
				log.Printf("level=error component=generator msg=\"obligation insert failed\" service_id=%s user_id=%s err=%v", service.ID, user.ID, err)
				return nil
			}
			if !inserted {
				return nil
			}

			created.Add(1)
			metrics.ObligationsGenerated.WithLabelValues(string(service.BillingCycle)).Inc()
			s.publishEvent(groupCtx, "estate.payment.obligation_created", *payment)
			return nil
		})
	}
	_ = group.Wait()

	count := int(created.Load())
	log.Printf("level=info component=generator msg=\"obligations generated\" service_id=%s cycle=%s period_start=%s users=%d created=%d",
		service.ID, service.BillingCycle, period.Start.Format(time.RFC3339), len(users), count)
	return count, nil
}

// GenerateForCycles runs obligation generation for every active, non-expired service of
// the given cycles. A failing service is logged and counted; the run continues.
func (s *Service) GenerateForCycles(ctx context.Context, cycles ...domain.BillingCycle) (*GenerationResult, error) {
	now := s.clock()
	services, err := s.repo.ListBillableServices(ctx, cycles, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list billable services: %w", err)
	}
	return s.generateForServices(ctx, services, now), nil
}

// GenerateForEstate runs obligation generation for every active service of one estate.
func (s *Service) GenerateForEstate(ctx context.Context, estateID uuid.UUID) (*GenerationResult, error) {
	if _, err := s.repo.FindEstateByID(ctx, estateID); err != nil {
		return nil, err
	}

	services, err := s.repo.ListServicesByEstate(ctx, estateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list estate services: %w", err)
	}

	now := s.clock()
	billable := make([]domain.Service, 0, len(services))
	for _, service := range services {
		if service.IsActive && !service.Expired(now) {
			billable = append(billable, service)
		}
	}
	return s.generateForServices(ctx, billable, now), nil
}

func (s *Service) generateForServices(ctx context.Context, services []domain.Service, now time.Time) *GenerationResult {
	result := &GenerationResult{ServicesEvaluated: len(services)}
	for _, service := range services {
		created, err := s.GenerateObligations(ctx, service, now)
		if err != nil {
			result.ServicesFailed++
			log.Printf("level=error component=generator msg=\"service generation failed\" service_id=%s estate_id=%s err=%v", service.ID, service.EstateID, err)
			continue
		}
		result.ObligationsCreated += created
	}
	return result
}

// MintPaymentReference builds a correlation token of the form NAME-<unix millis>-<random>.
// Uniqueness is enforced by the database, not by this function.
func MintPaymentReference(estateName string, now time.Time) string {
	return fmt.Sprintf("%s-%d-%d", referencePrefix(estateName), now.UnixMilli(), rand.Intn(100000))
}

func referencePrefix(estateName string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToUpper(strings.TrimSpace(estateName)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash && b.Len() > 0 {
			b.WriteByte('-')
			lastDash = true
		}
	}
	prefix := strings.TrimSuffix(b.String(), "-")
	if prefix == "" {
		return "ESTATE"
	}
	return prefix
}
