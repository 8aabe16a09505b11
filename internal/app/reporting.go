package app

import (
	"context"
	"time"

	"github.com/estatehub/billing-service/internal/domain"
	"github.com/estatehub/billing-service/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// UserServiceStatuses returns, for every service of the estate, the user's obligation
// for the current period or a PENDING placeholder priced at the service's list price.
func (s *Service) UserServiceStatuses(ctx context.Context, estateID, userID uuid.UUID, opts domain.ListOptions) (*domain.UserServiceStatuses, error) {
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.EstateID != estateID {
		return nil, store.ErrUserNotFound
	}

	services, err := s.repo.ListServicesByEstate(ctx, estateID)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPaymentsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := buildUserServiceStatuses(services, payments, s.clock())
	items = filterByStatus(items, opts.Status, func(item domain.ServicePaymentStatus) domain.PaymentStatus { return item.Status })
	page, pagination := paginate(items, opts.Page, opts.Limit)

	return &domain.UserServiceStatuses{UserID: userID, Items: page, Pagination: pagination}, nil
}

func buildUserServiceStatuses(services []domain.Service, payments []domain.Payment, now time.Time) []domain.ServicePaymentStatus {
	byService := make(map[uuid.UUID][]domain.Payment, len(services))
	for _, payment := range payments {
		byService[payment.ServiceID] = append(byService[payment.ServiceID], payment)
	}

	items := make([]domain.ServicePaymentStatus, 0, len(services))
	for _, service := range services {
		relevant := relevantPayment(service, byService[service.ID], now)
		if relevant == nil && !service.IsActive {
			continue
		}

		item := domain.ServicePaymentStatus{
			ServiceID:    service.ID,
			ServiceName:  service.Name,
			Description:  service.Description,
			BillingCycle: service.BillingCycle,
			Price:        service.Price,
			Amount:       service.Price,
			Status:       domain.StatusPending,
			Placeholder:  true,
		}
		if relevant != nil {
			id := relevant.ID
			start, end, due := relevant.BillingPeriodStart, relevant.BillingPeriodEnd, relevant.DueDate
			item.Amount = relevant.Amount
			item.Status = relevant.Status
			item.PaymentID = &id
			item.BillingPeriodStart = &start
			item.BillingPeriodEnd = &end
			item.DueDate = &due
			item.PaidAt = relevant.PaidAt
			item.Placeholder = false
		}
		items = append(items, item)
	}
	return items
}

// relevantPayment picks the obligation covering now. One-time services have a single
// obligation pinned to their creation instant, so the latest one is used.
func relevantPayment(service domain.Service, payments []domain.Payment, now time.Time) *domain.Payment {
	var picked *domain.Payment
	for i := range payments {
		payment := &payments[i]
		if service.BillingCycle != domain.CycleOneTime && !payment.CoversInstant(now) {
			continue
		}
		if picked == nil || payment.BillingPeriodStart.After(picked.BillingPeriodStart) {
			picked = payment
		}
	}
	return picked
}

// EstatePaymentMatrix resolves every (service, resident) pair of an estate to its latest
// obligation or a PENDING placeholder, with the dashboard totals.
func (s *Service) EstatePaymentMatrix(ctx context.Context, estateID uuid.UUID, opts domain.ListOptions) (*domain.EstatePaymentMatrix, error) {
	services, err := s.repo.ListServicesByEstate(ctx, estateID)
	if err != nil {
		return nil, err
	}
	users, err := s.repo.ListBillableUsers(ctx, estateID)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPaymentsByEstate(ctx, estateID)
	if err != nil {
		return nil, err
	}

	matrix := buildEstateMatrix(services, users, payments, s.clock(), opts)
	matrix.EstateID = estateID
	return matrix, nil
}

type cellKey struct {
	serviceID uuid.UUID
	userID    uuid.UUID
}

func buildEstateMatrix(services []domain.Service, users []domain.User, payments []domain.Payment, now time.Time, opts domain.ListOptions) *domain.EstatePaymentMatrix {
	latest := make(map[cellKey]domain.Payment, len(payments))
	for _, payment := range payments {
		key := cellKey{serviceID: payment.ServiceID, userID: payment.UserID}
		current, ok := latest[key]
		if !ok || payment.BillingPeriodStart.After(current.BillingPeriodStart) {
			latest[key] = payment
		}
	}

	entries := make([]domain.MatrixEntry, 0, len(services)*len(users))
	summary := domain.MatrixSummary{
		TotalServices:        len(services),
		TotalUsers:           len(users),
		TotalExpectedRevenue: decimal.Zero,
	}
	priceSum := decimal.Zero

	for _, service := range services {
		priceSum = priceSum.Add(service.Price)
		for _, user := range users {
			entry := domain.MatrixEntry{
				UserID:       user.ID,
				UserName:     user.FullName(),
				UserEmail:    user.Email,
				ServiceID:    service.ID,
				ServiceName:  service.Name,
				BillingCycle: service.BillingCycle,
				Amount:       service.Price,
				Status:       domain.StatusPending,
				Placeholder:  true,
			}
			if payment, ok := latest[cellKey{serviceID: service.ID, userID: user.ID}]; ok {
				id, due := payment.ID, payment.DueDate
				entry.Amount = payment.Amount
				entry.Status = payment.Status
				entry.PaymentID = &id
				entry.DueDate = &due
				entry.PaidAt = payment.PaidAt
				entry.Placeholder = false
			}

			switch entry.Status {
			case domain.StatusCompleted:
				summary.CompletedCount++
			case domain.StatusPending:
				summary.PendingCount++
			}
			entries = append(entries, entry)
		}
	}
	summary.TotalExpectedRevenue = priceSum.Mul(decimal.NewFromInt(int64(len(users))))

	currentMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	previousMonth := currentMonth.AddDate(0, -1, 0)
	nextMonth := currentMonth.AddDate(0, 1, 0)
	currentTotal, previousTotal := decimal.Zero, decimal.Zero
	for _, payment := range payments {
		if payment.Status != domain.StatusCompleted || payment.PaidAt == nil {
			continue
		}
		paidAt := payment.PaidAt.In(now.Location())
		switch {
		case !paidAt.Before(currentMonth) && paidAt.Before(nextMonth):
			currentTotal = currentTotal.Add(payment.Amount)
		case !paidAt.Before(previousMonth) && paidAt.Before(currentMonth):
			previousTotal = previousTotal.Add(payment.Amount)
		}
	}

	entries = filterByStatus(entries, opts.Status, func(entry domain.MatrixEntry) domain.PaymentStatus { return entry.Status })
	page, pagination := paginate(entries, opts.Page, opts.Limit)

	return &domain.EstatePaymentMatrix{
		Entries:            page,
		Pagination:         pagination,
		CurrentMonthTotal:  currentTotal,
		PreviousMonthTotal: previousTotal,
		Summary:            summary,
	}
}

// MonthlyRevenue returns completed payment totals per calendar month, oldest first.
func (s *Service) MonthlyRevenue(ctx context.Context, estateID uuid.UUID) ([]domain.MonthlyRevenue, error) {
	months, err := s.repo.MonthlyRevenue(ctx, estateID, s.opts.Timezone)
	if err != nil {
		return nil, err
	}
	for i := range months {
		if parsed, err := time.Parse("2006-01", months[i].Month); err == nil {
			months[i].Label = parsed.Format("January 2006")
		}
	}
	return months, nil
}

// UserPaymentSummaries returns per-resident completed totals and pending counts.
func (s *Service) UserPaymentSummaries(ctx context.Context, estateID uuid.UUID, page, limit int) (*domain.UserPaymentSummaries, error) {
	users, err := s.repo.ListBillableUsers(ctx, estateID)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPaymentsByEstate(ctx, estateID)
	if err != nil {
		return nil, err
	}

	items, pagination := paginate(buildUserPaymentSummaries(users, payments), page, limit)
	return &domain.UserPaymentSummaries{Items: items, Pagination: pagination}, nil
}

func buildUserPaymentSummaries(users []domain.User, payments []domain.Payment) []domain.UserPaymentSummary {
	index := make(map[uuid.UUID]int, len(users))
	summaries := make([]domain.UserPaymentSummary, len(users))
	for i, user := range users {
		index[user.ID] = i
		summaries[i] = domain.UserPaymentSummary{
			UserID:                user.ID,
			Name:                  user.FullName(),
			Email:                 user.Email,
			TotalCompletedPayment: decimal.Zero,
		}
	}

	for _, payment := range payments {
		i, ok := index[payment.UserID]
		if !ok {
			continue
		}
		switch payment.Status {
		case domain.StatusCompleted:
			summaries[i].TotalCompletedPayment = summaries[i].TotalCompletedPayment.Add(payment.Amount)
		case domain.StatusPending:
			summaries[i].PendingPaymentsCount++
		}
	}
	return summaries
}

// CompletedPaymentsSummary lists the user's completed obligations and their sum.
func (s *Service) CompletedPaymentsSummary(ctx context.Context, userID uuid.UUID) (*domain.CompletedPaymentsSummary, error) {
	payments, err := s.repo.ListCompletedPaymentsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, payment := range payments {
		total = total.Add(payment.Amount)
	}
	return &domain.CompletedPaymentsSummary{Payments: payments, Count: len(payments), Total: total}, nil
}

// PendingPaymentsForUser returns the user's PENDING obligations in their current period.
func (s *Service) PendingPaymentsForUser(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	return s.repo.ListPendingPaymentsForUser(ctx, userID, s.clock())
}

// TransactionsForPayment returns the gateway log of one of the user's obligations.
func (s *Service) TransactionsForPayment(ctx context.Context, userID, paymentID uuid.UUID) ([]domain.PaymentTransaction, error) {
	if _, err := s.repo.GetPaymentForUser(ctx, userID, paymentID); err != nil {
		return nil, err
	}
	return s.repo.ListTransactionsByPayment(ctx, paymentID)
}

func filterByStatus[T any](items []T, status domain.PaymentStatus, statusOf func(T) domain.PaymentStatus) []T {
	if status == "" {
		return items
	}
	filtered := make([]T, 0, len(items))
	for _, item := range items {
		if statusOf(item) == status {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

func paginate[T any](items []T, page, limit int) ([]T, domain.Pagination) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	total := len(items)
	pagination := domain.Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}

	if page > pagination.TotalPages {
		return []T{}, pagination
	}
	start := (page - 1) * limit
	end := start + limit
	if end > total {
		end = total
	}
	return items[start:end], pagination
}
