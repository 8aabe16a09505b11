/**
 * @description
 * Read models returned by the reporting endpoints and the payload types that
 * flow between the API layer and the billing engine.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pagination describes one page of a paginated listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// ListOptions carries the optional status filter and the page window.
type ListOptions struct {
	Status PaymentStatus
	Page   int
	Limit  int
}

// ServicePaymentStatus is one row of the per-user view: a service and the user's
// obligation for it, or a synthesized placeholder when none exists yet.
type ServicePaymentStatus struct {
	ServiceID          uuid.UUID       `json:"service_id"`
	ServiceName        string          `json:"service_name"`
	Description        string          `json:"description,omitempty"`
	BillingCycle       BillingCycle    `json:"billing_cycle"`
	Price              decimal.Decimal `json:"price"`
	Amount             decimal.Decimal `json:"amount"`
	Status             PaymentStatus   `json:"status"`
	PaymentID          *uuid.UUID      `json:"payment_id,omitempty"`
	BillingPeriodStart *time.Time      `json:"billing_period_start,omitempty"`
	BillingPeriodEnd   *time.Time      `json:"billing_period_end,omitempty"`
	DueDate            *time.Time      `json:"due_date,omitempty"`
	PaidAt             *time.Time      `json:"paid_at,omitempty"`
	Placeholder        bool            `json:"placeholder"`
}

// UserServiceStatuses is the paginated per-user view.
type UserServiceStatuses struct {
	UserID     uuid.UUID              `json:"user_id"`
	Items      []ServicePaymentStatus `json:"items"`
	Pagination Pagination             `json:"pagination"`
}

// MatrixEntry is one (user, service) cell of the estate matrix.
type MatrixEntry struct {
	UserID       uuid.UUID       `json:"user_id"`
	UserName     string          `json:"user_name"`
	UserEmail    string          `json:"user_email"`
	ServiceID    uuid.UUID       `json:"service_id"`
	ServiceName  string          `json:"service_name"`
	BillingCycle BillingCycle    `json:"billing_cycle"`
	Amount       decimal.Decimal `json:"amount"`
	Status       PaymentStatus   `json:"status"`
	PaymentID    *uuid.UUID      `json:"payment_id,omitempty"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
	Placeholder  bool            `json:"placeholder"`
}

// MatrixSummary holds the estate-level counters shown on the admin dashboard.
type MatrixSummary struct {
	TotalServices        int             `json:"total_services"`
	TotalUsers           int             `json:"total_users"`
	TotalExpectedRevenue decimal.Decimal `json:"total_expected_revenue"`
	CompletedCount       int             `json:"completed_count"`
	PendingCount         int             `json:"pending_count"`
}

// EstatePaymentMatrix is the services x residents cross product for one estate.
type EstatePaymentMatrix struct {
	EstateID           uuid.UUID       `json:"estate_id"`
	Entries            []MatrixEntry   `json:"entries"`
	Pagination         Pagination      `json:"pagination"`
	CurrentMonthTotal  decimal.Decimal `json:"current_month_total"`
	PreviousMonthTotal decimal.Decimal `json:"previous_month_total"`
	Summary            MatrixSummary   `json:"summary"`
}

// MonthlyRevenue is the completed-payment total of one calendar month.
type MonthlyRevenue struct {
	Month string          `json:"month"` // YYYY-MM
	Label string          `json:"label"` // e.g. "March 2024"
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// UserPaymentSummary aggregates one resident's payment history.
type UserPaymentSummary struct {
	UserID                uuid.UUID       `json:"user_id"`
	Name                  string          `json:"name"`
	Email                 string          `json:"email"`
	TotalCompletedPayment decimal.Decimal `json:"total_completed_payment"`
	PendingPaymentsCount  int             `json:"pending_payments_count"`
}

// UserPaymentSummaries is the paginated list of per-resident summaries.
type UserPaymentSummaries struct {
	Items      []UserPaymentSummary `json:"items"`
	Pagination Pagination           `json:"pagination"`
}

// CompletedPaymentsSummary lists a user's completed obligations and their total.
type CompletedPaymentsSummary struct {
	Payments []Payment       `json:"payments"`
	Count    int             `json:"count"`
	Total    decimal.Decimal `json:"total"`
}

// GatewayCallback is the gateway-neutral form of an inbound payment webhook.
type GatewayCallback struct {
	Event          string
	TxRef          string
	TransactionID  string
	TransactionRef string
	Status         string
	Amount         decimal.Decimal
	Currency       string
	CustomerName   string
	CustomerEmail  string
}
