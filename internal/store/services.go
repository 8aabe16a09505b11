package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/estatehub/billing-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const serviceColumns = `
	s.id, s.estate_id, e.name, s.name, s.description, s.price, s.billing_cycle,
	s.is_active, s.end_date, s.created_at, s.updated_at
`

func scanService(row pgx.Row) (*domain.Service, error) {
	var service domain.Service
	if err := row.Scan(
		&service.ID,
		&service.EstateID,
		&service.EstateName,
		&service.Name,
		&service.Description,
		&service.Price,
		&service.BillingCycle,
		&service.IsActive,
		&service.EndDate,
		&service.CreatedAt,
		&service.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &service, nil
}

func collectServices(rows pgx.Rows) ([]domain.Service, error) {
	defer rows.Close()

	services := []domain.Service{}
	for rows.Next() {
		service, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, *service)
	}
	return services, rows.Err()
}

// CreateService inserts a new billable service.
func (r *Repository) CreateService(ctx context.Context, service *domain.Service) error {
	query := `
		INSERT INTO services (estate_id, name, description, price, billing_cycle, is_active, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at, (SELECT name FROM estates WHERE id = $1)
	`
	err := r.db.QueryRow(ctx, query,
		service.EstateID,
		service.Name,
		service.Description,
		service.Price,
		string(service.BillingCycle),
		service.IsActive,
		service.EndDate,
	).Scan(&service.ID, &service.CreatedAt, &service.UpdatedAt, &service.EstateName)
	if err != nil {
		if name, ok := constraintViolation(err, pgUniqueViolation); ok && name == constraintServiceName {
			return ErrServiceNameTaken
		}
		if _, ok := constraintViolation(err, pgForeignKeyViolation); ok {
			return ErrEstateNotFound
		}
		return fmt.Errorf("failed to insert service: %w", err)
	}
	return nil
}

// GetService loads a service together with its estate name.
func (r *Repository) GetService(ctx context.Context, serviceID uuid.UUID) (*domain.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services s JOIN estates e ON e.id = s.estate_id WHERE s.id = $1`
	service, err := scanService(r.db.QueryRow(ctx, query, serviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return service, nil
}

// ListServicesByEstate returns every service of an estate ordered by creation.
func (r *Repository) ListServicesByEstate(ctx context.Context, estateID uuid.UUID) ([]domain.Service, error) {
	query := `
		SELECT ` + serviceColumns + `
		FROM services s
		JOIN estates e ON e.id = s.estate_id
		WHERE s.estate_id = $1
		ORDER BY s.created_at, s.id
	`
	rows, err := r.db.Query(ctx, query, estateID)
	if err != nil {
		return nil, err
	}
	return collectServices(rows)
}

// ListBillableServices returns active, non-expired services whose cycle is one of cycles.
func (r *Repository) ListBillableServices(ctx context.Context, cycles []domain.BillingCycle, now time.Time) ([]domain.Service, error) {
	names := make([]string, 0, len(cycles))
	for _, cycle := range cycles {
		names = append(names, string(cycle))
	}

	query := `
		SELECT ` + serviceColumns + `
		FROM services s
		JOIN estates e ON e.id = s.estate_id
		WHERE s.is_active = TRUE
		  AND s.billing_cycle = ANY($1::text[])
		  AND (s.end_date IS NULL OR s.end_date >= $2)
		ORDER BY s.created_at, s.id
	`
	rows, err := r.db.Query(ctx, query, names, now)
	if err != nil {
		return nil, err
	}
	return collectServices(rows)
}

// UpdateService persists the mutable fields of a service.
func (r *Repository) UpdateService(ctx context.Context, service *domain.Service) error {
	query := `
		UPDATE services
		SET name = $2, description = $3, price = $4, is_active = $5, end_date = $6, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query,
		service.ID,
		service.Name,
		service.Description,
		service.Price,
		service.IsActive,
		service.EndDate,
	).Scan(&service.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrServiceNotFound
		}
		if name, ok := constraintViolation(err, pgUniqueViolation); ok && name == constraintServiceName {
			return ErrServiceNameTaken
		}
		return fmt.Errorf("failed to update service: %w", err)
	}
	return nil
}

// DeleteService removes a service that no obligation references.
func (r *Repository) DeleteService(ctx context.Context, serviceID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM services WHERE id = $1`, serviceID)
	if err != nil {
		if _, ok := constraintViolation(err, pgForeignKeyViolation); ok {
			return ErrServiceHasPayments
		}
		return fmt.Errorf("failed to delete service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrServiceNotFound
	}
	return nil
}
