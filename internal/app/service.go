/**
 * @description
 * Core business logic for estate billing: obligation generation, payment
 * initiation, webhook reconciliation and the reporting views.
 *
 * @dependencies
 * - internal/store: sentinel errors for not-found and conflict cases.
 * - pkg/flutterwave: request type for the hosted payment link call.
 */
package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/estatehub/billing-service/internal/domain"
	"github.com/estatehub/billing-service/pkg/flutterwave"
	"github.com/google/uuid"
)

var (
	ErrNoPaymentDue       = errors.New("no payment due for this service in the current billing period")
	ErrGatewayUnavailable = errors.New("payment gateway is unavailable, please try again")
	ErrPaymentInProgress  = errors.New("a payment attempt for this obligation is already in progress")
	ErrInvalidCallback    = errors.New("webhook payload is missing the transaction reference")
	ErrInvalidService     = errors.New("invalid service details")
	ErrInvalidAccount     = errors.New("invalid account details")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

const eventsExchange = "estate.events"

// Repository defines the database operations the service needs.
type Repository interface {
	// Accounts
	CreateEstateWithAdmin(ctx context.Context, estate *domain.Estate, admin *domain.User) error
	CreateUser(ctx context.Context, user *domain.User) error
	FindEstateByID(ctx context.Context, estateID uuid.UUID) (*domain.Estate, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	ListBillableUsers(ctx context.Context, estateID uuid.UUID) ([]domain.User, error)

	// Services
	CreateService(ctx context.Context, service *domain.Service) error
	GetService(ctx context.Context, serviceID uuid.UUID) (*domain.Service, error)
	ListServicesByEstate(ctx context.Context, estateID uuid.UUID) ([]domain.Service, error)
	ListBillableServices(ctx context.Context, cycles []domain.BillingCycle, now time.Time) ([]domain.Service, error)
	UpdateService(ctx context.Context, service *domain.Service) error
	DeleteService(ctx context.Context, serviceID uuid.UUID) error

	// Payments
	InsertPaymentIfAbsent(ctx context.Context, payment *domain.Payment) (bool, error)
	FindPayableObligation(ctx context.Context, userID, serviceID uuid.UUID, now time.Time) (*domain.Payment, error)
	SetPaymentReference(ctx context.Context, paymentID uuid.UUID, reference string) error
	ReconcilePayment(ctx context.Context, txn *domain.PaymentTransaction, at time.Time, settle func(domain.Payment) domain.PaymentStatus) (*domain.Payment, error)
	GetPaymentForUser(ctx context.Context, userID, paymentID uuid.UUID) (*domain.Payment, error)
	ListPaymentsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error)
	ListPaymentsByEstate(ctx context.Context, estateID uuid.UUID) ([]domain.Payment, error)
	ListCompletedPaymentsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error)
	ListPendingPaymentsForUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]domain.Payment, error)
	ListTransactionsByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentTransaction, error)
	MonthlyRevenue(ctx context.Context, estateID uuid.UUID, timezone string) ([]domain.MonthlyRevenue, error)
}

// PaymentGateway creates hosted payment links.
type PaymentGateway interface {
	CreatePaymentLink(ctx context.Context, req flutterwave.PaymentRequest) (string, error)
}

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// InitiationLock serializes payment attempts on the same obligation across instances.
type InitiationLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// Options carries the tunables of the billing engine.
type Options struct {
	Currency              string
	RedirectURL           string
	Timezone              string
	GatewayTimeout        time.Duration
	GenerationConcurrency int
	InitiationLockTTL     time.Duration
	JWTSecret             string
	JWTIssuer             string
	TokenTTL              time.Duration
}

// Service provides the business logic for estate billing.
type Service struct {
	repo      Repository
	gateway   PaymentGateway
	publisher EventPublisher
	lock      InitiationLock
	opts      Options
	loc       *time.Location
	now       func() time.Time
}

// NewService creates a new billing service.
func NewService(repo Repository, gateway PaymentGateway, publisher EventPublisher, opts Options) *Service {
	loc, err := time.LoadLocation(opts.Timezone)
	if err != nil || strings.TrimSpace(opts.Timezone) == "" {
		log.Printf("level=warn component=billing msg=\"invalid timezone, defaulting to UTC\" timezone=%q", opts.Timezone)
		loc = time.UTC
		opts.Timezone = "UTC"
	}
	if strings.TrimSpace(opts.Currency) == "" {
		opts.Currency = "NGN"
	}
	if opts.GatewayTimeout <= 0 {
		opts.GatewayTimeout = 15 * time.Second
	}
	if opts.GenerationConcurrency <= 0 {
		opts.GenerationConcurrency = 8
	}
	if opts.InitiationLockTTL <= 0 {
		opts.InitiationLockTTL = 30 * time.Second
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}

	return &Service{
		repo:      repo,
		gateway:   gateway,
		publisher: publisher,
		opts:      opts,
		loc:       loc,
		now:       time.Now,
	}
}

// SetInitiationLock enables the distributed double-submit guard for payment initiation.
func (s *Service) SetInitiationLock(lock InitiationLock) {
	s.lock = lock
}

// Location returns the business timezone used for period calculations.
func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

type paymentEvent struct {
	PaymentID          uuid.UUID            `json:"payment_id"`
	UserID             uuid.UUID            `json:"user_id"`
	ServiceID          uuid.UUID            `json:"service_id"`
	Amount             string               `json:"amount"`
	Currency           string               `json:"currency"`
	Status             domain.PaymentStatus `json:"status"`
	GatewayStatus      *string              `json:"gateway_status,omitempty"`
	BillingPeriodStart time.Time            `json:"billing_period_start"`
	DueDate            time.Time            `json:"due_date"`
	Timestamp          time.Time            `json:"timestamp"`
}

func (s *Service) publishEvent(ctx context.Context, routingKey string, payment domain.Payment) {
	if s.publisher == nil {
		return
	}

	payload := paymentEvent{
		PaymentID:          payment.ID,
		UserID:             payment.UserID,
		ServiceID:          payment.ServiceID,
		Amount:             payment.Amount.StringFixed(2),
		Currency:           payment.Currency,
		Status:             payment.Status,
		GatewayStatus:      payment.GatewayStatus,
		BillingPeriodStart: payment.BillingPeriodStart,
		DueDate:            payment.DueDate,
		Timestamp:          time.Now(),
	}

	if err := s.publisher.Publish(ctx, eventsExchange, routingKey, payload); err != nil {
		log.Printf("level=warn component=events msg=\"publish failed\" routing_key=%s payment_id=%s err=%v", routingKey, payment.ID, err)
	}
}
