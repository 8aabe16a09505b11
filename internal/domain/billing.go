/**
 * @description
 * Core domain models for estate billing: estates, users, billable services,
 * payment obligations and the gateway transaction log.
 *
 * @notes
 * - Money is carried as shopspring/decimal values and persisted as NUMERIC.
 * - Status values are normalized to the PaymentStatus enumeration; the raw
 *   gateway string is kept alongside for audit.
 */
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingCycle is the recurrence pattern of a billable service.
type BillingCycle string

const (
	CycleMonthly      BillingCycle = "MONTHLY"
	CycleQuarterly    BillingCycle = "QUARTERLY"
	CycleSemiAnnually BillingCycle = "SEMI_ANNUALLY"
	CycleAnnually     BillingCycle = "ANNUALLY"
	CycleOneTime      BillingCycle = "ONE_TIME"
)

// ParseBillingCycle normalizes user input into a BillingCycle.
// BI_ANNUALLY and YEARLY are accepted as aliases.
func ParseBillingCycle(raw string) (BillingCycle, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch normalized {
	case "MONTHLY":
		return CycleMonthly, true
	case "QUARTERLY":
		return CycleQuarterly, true
	case "SEMI_ANNUALLY", "BI_ANNUALLY":
		return CycleSemiAnnually, true
	case "ANNUALLY", "YEARLY":
		return CycleAnnually, true
	case "ONE_TIME":
		return CycleOneTime, true
	default:
		return BillingCycle(normalized), false
	}
}

// PaymentStatus is the internal lifecycle state of an obligation.
type PaymentStatus string

const (
	StatusPending      PaymentStatus = "PENDING"
	StatusCompleted    PaymentStatus = "COMPLETED"
	StatusFailed       PaymentStatus = "FAILED"
	StatusUnrecognized PaymentStatus = "UNRECOGNIZED"
)

// ParsePaymentStatus parses a status filter. The empty string means "no filter".
func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	switch PaymentStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, true
	case StatusCompleted:
		return StatusCompleted, true
	case StatusFailed:
		return StatusFailed, true
	case StatusUnrecognized:
		return StatusUnrecognized, true
	default:
		return "", false
	}
}

// Role is a user's role inside an estate.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Estate is a tenant of the platform.
type Estate struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a resident or administrator of exactly one estate.
type User struct {
	ID           uuid.UUID `json:"id"`
	EstateID     uuid.UUID `json:"estate_id"`
	Role         Role      `json:"role"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Service is a billable offering scoped to one estate.
type Service struct {
	ID           uuid.UUID       `json:"id"`
	EstateID     uuid.UUID       `json:"estate_id"`
	EstateName   string          `json:"estate_name,omitempty"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Price        decimal.Decimal `json:"price"`
	BillingCycle BillingCycle    `json:"billing_cycle"`
	IsActive     bool            `json:"is_active"`
	EndDate      *time.Time      `json:"end_date,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Expired reports whether the service has passed its optional end date.
func (s Service) Expired(now time.Time) bool {
	return s.EndDate != nil && now.After(*s.EndDate)
}

// Payment is a payment obligation: one user owes one amount for one service period.
// This struct maps directly to the `payments` table.
type Payment struct {
	ID                 uuid.UUID       `json:"id"`
	UserID             uuid.UUID       `json:"user_id"`
	ServiceID          uuid.UUID       `json:"service_id"`
	ServiceName        string          `json:"service_name,omitempty"`
	BillingCycle       BillingCycle    `json:"billing_cycle,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	Status             PaymentStatus   `json:"status"`
	GatewayStatus      *string         `json:"gateway_status,omitempty"`
	PaymentReference   *string         `json:"payment_reference,omitempty"`
	BillingPeriodStart time.Time       `json:"billing_period_start"`
	BillingPeriodEnd   time.Time       `json:"billing_period_end"`
	DueDate            time.Time       `json:"due_date"`
	PaidAt             *time.Time      `json:"paid_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// CoversInstant reports whether t falls inside the obligation's billing period.
func (p Payment) CoversInstant(t time.Time) bool {
	return !t.Before(p.BillingPeriodStart) && !t.After(p.BillingPeriodEnd)
}

// PaymentTransaction is an immutable log entry for one gateway callback.
type PaymentTransaction struct {
	ID               uuid.UUID       `json:"id"`
	PaymentID        uuid.UUID       `json:"payment_id"`
	PaymentReference string          `json:"payment_reference"`
	TransactionID    string          `json:"transaction_id"`
	TransactionRef   string          `json:"transaction_ref,omitempty"`
	Status           string          `json:"status"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	CustomerName     string          `json:"customer_name,omitempty"`
	CustomerEmail    string          `json:"customer_email,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Period is the [Start, End] interval an obligation covers, plus its due date.
type Period struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	DueDate time.Time `json:"due_date"`
}

// Contains reports whether t lies inside the period, bounds included.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}
