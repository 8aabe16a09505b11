package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/estatehub/billing-service/internal/domain"
	"github.com/estatehub/billing-service/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateServiceInput holds the admin-supplied fields of a new service.
type CreateServiceInput struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	BillingCycle string          `json:"billing_cycle"`
	IsActive     *bool           `json:"is_active,omitempty"`
	EndDate      *time.Time      `json:"end_date,omitempty"`
}

// UpdateServiceInput holds the optional fields of a service update. The billing cycle
// cannot change once obligations may exist for it.
type UpdateServiceInput struct {
	Name         *string          `json:"name,omitempty"`
	Description  *string          `json:"description,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	IsActive     *bool            `json:"is_active,omitempty"`
	EndDate      *time.Time       `json:"end_date,omitempty"`
	ClearEndDate bool             `json:"clear_end_date,omitempty"`
}

// CreateService stores a new service and bills current residents for its first period
// right away. A generation failure is logged; the service itself stays created.
func (s *Service) CreateService(ctx context.Context, estateID uuid.UUID, input CreateServiceInput) (*domain.Service, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidService)
	}
	if !input.Price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be greater than zero", ErrInvalidService)
	}
	cycle, ok := domain.ParseBillingCycle(input.BillingCycle)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported billing cycle %q", ErrInvalidService, input.BillingCycle)
	}

	service := &domain.Service{
		EstateID:     estateID,
		Name:         name,
		Description:  strings.TrimSpace(input.Description),
		Price:        input.Price,
		BillingCycle: cycle,
		IsActive:     true,
		EndDate:      input.EndDate,
	}
	if input.IsActive != nil {
		service.IsActive = *input.IsActive
	}

	if err := s.repo.CreateService(ctx, service); err != nil {
		return nil, err
	}
	log.Printf("level=info component=catalogue msg=\"service created\" service_id=%s estate_id=%s cycle=%s", service.ID, estateID, cycle)

	if service.IsActive {
		if _, err := s.GenerateObligations(ctx, *service, service.CreatedAt); err != nil {
			log.Printf("level=error component=catalogue msg=\"initial obligation generation failed\" service_id=%s err=%v", service.ID, err)
		}
	}

	return service, nil
}

// GetService returns a service of the caller's estate.
func (s *Service) GetService(ctx context.Context, estateID, serviceID uuid.UUID) (*domain.Service, error) {
	service, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if service.EstateID != estateID {
		return nil, store.ErrServiceNotFound
	}
	return service, nil
}

// ListServices returns all services of an estate.
func (s *Service) ListServices(ctx context.Context, estateID uuid.UUID) ([]domain.Service, error) {
	return s.repo.ListServicesByEstate(ctx, estateID)
}

// UpdateService applies an admin update. Existing obligations keep the amount they
// were generated with.
func (s *Service) UpdateService(ctx context.Context, estateID, serviceID uuid.UUID, input UpdateServiceInput) (*domain.Service, error) {
	service, err := s.GetService(ctx, estateID, serviceID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidService)
		}
		service.Name = name
	}
	if input.Description != nil {
		service.Description = strings.TrimSpace(*input.Description)
	}
	if input.Price != nil {
		if !input.Price.IsPositive() {
			return nil, fmt.Errorf("%w: price must be greater than zero", ErrInvalidService)
		}
		service.Price = *input.Price
	}
	if input.IsActive != nil {
		service.IsActive = *input.IsActive
	}
	if input.ClearEndDate {
		service.EndDate = nil
	} else if input.EndDate != nil {
		service.EndDate = input.EndDate
	}

	if err := s.repo.UpdateService(ctx, service); err != nil {
		return nil, err
	}
	return service, nil
}

// DeleteService removes a service with no obligations. Services with payment history
// return store.ErrServiceHasPayments and should be deactivated instead.
func (s *Service) DeleteService(ctx context.Context, estateID, serviceID uuid.UUID) error {
	if _, err := s.GetService(ctx, estateID, serviceID); err != nil {
		return err
	}
	return s.repo.DeleteService(ctx, serviceID)
}
