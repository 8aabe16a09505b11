/**
 * @description
 * HTTP handlers for the billing service. Handlers parse requests, call the billing
 * service and map its sentinel errors to status codes.
 *
 * @dependencies
 * - internal/app, internal/domain, internal/store: service logic, models and errors.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/estatehub/billing-service/internal/app"
	"github.com/estatehub/billing-service/internal/domain"
	"github.com/estatehub/billing-service/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingService is the application surface the handlers call.
type BillingService interface {
	Login(ctx context.Context, email, password string) (*app.LoginResult, error)
	CreateEstateWithAdmin(ctx context.Context, input app.CreateEstateInput) (*domain.Estate, *domain.User, error)
	RegisterResident(ctx context.Context, estateID uuid.UUID, input app.RegisterUserInput) (*domain.User, error)

	GenerateForCycles(ctx context.Context, cycles ...domain.BillingCycle) (*app.GenerationResult, error)
	GenerateForEstate(ctx context.Context, estateID uuid.UUID) (*app.GenerationResult, error)

	InitiatePayment(ctx context.Context, userID, serviceID uuid.UUID) (*app.InitiationResult, error)
	Reconcile(ctx context.Context, callback domain.GatewayCallback) (*domain.PaymentTransaction, error)

	ListServices(ctx context.Context, estateID uuid.UUID) ([]domain.Service, error)
	GetService(ctx context.Context, estateID, serviceID uuid.UUID) (*domain.Service, error)
	CreateService(ctx context.Context, estateID uuid.UUID, input app.CreateServiceInput) (*domain.Service, error)
	UpdateService(ctx context.Context, estateID, serviceID uuid.UUID, input app.UpdateServiceInput) (*domain.Service, error)
	DeleteService(ctx context.Context, estateID, serviceID uuid.UUID) error

	PendingPaymentsForUser(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error)
	UserServiceStatuses(ctx context.Context, estateID, userID uuid.UUID, opts domain.ListOptions) (*domain.UserServiceStatuses, error)
	CompletedPaymentsSummary(ctx context.Context, userID uuid.UUID) (*domain.CompletedPaymentsSummary, error)
	TransactionsForPayment(ctx context.Context, userID, paymentID uuid.UUID) ([]domain.PaymentTransaction, error)
	EstatePaymentMatrix(ctx context.Context, estateID uuid.UUID, opts domain.ListOptions) (*domain.EstatePaymentMatrix, error)
	UserPaymentSummaries(ctx context.Context, estateID uuid.UUID, page, limit int) (*domain.UserPaymentSummaries, error)
	MonthlyRevenue(ctx context.Context, estateID uuid.UUID) ([]domain.MonthlyRevenue, error)
}

// Handler holds the application service that handlers will interact with.
type Handler struct {
	service     BillingService
	webhookHash string
}

// NewHandler creates a new Handler. An empty webhookHash makes the webhook endpoint refuse
// every delivery.
func NewHandler(service BillingService, webhookHash string) *Handler {
	if strings.TrimSpace(webhookHash) == "" {
		log.Println("level=warn component=http msg=\"FLUTTERWAVE_WEBHOOK_HASH not set; webhooks will be refused\"")
	}
	return &Handler{service: service, webhookHash: strings.TrimSpace(webhookHash)}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, "login", err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

type estateCreatedResponse struct {
	Estate *domain.Estate `json:"estate"`
	Admin  *domain.User   `json:"admin"`
}

func (h *Handler) handleCreateEstate(w http.ResponseWriter, r *http.Request) {
	var req app.CreateEstateInput
	if !decodeJSON(w, r, &req) {
		return
	}

	estate, admin, err := h.service.CreateEstateWithAdmin(r.Context(), req)
	if err != nil {
		writeError(w, "create_estate", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, estateCreatedResponse{Estate: estate, Admin: admin})
}

func (h *Handler) handleRegisterResident(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	var req app.RegisterUserInput
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.RegisterResident(r.Context(), identity.EstateID, req)
	if err != nil {
		writeError(w, "register_resident", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleRunBilling(w http.ResponseWriter, r *http.Request) {
	var cycles []domain.BillingCycle
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("cycle"))) {
	case "", "monthly":
		cycles = app.MonthlyJobCycles
	case "annual":
		cycles = app.AnnualJobCycles
	default:
		http.Error(w, "cycle must be monthly or annual", http.StatusBadRequest)
		return
	}

	result, err := h.service.GenerateForCycles(r.Context(), cycles...)
	if err != nil {
		writeError(w, "run_billing", err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGenerateForEstate(w http.ResponseWriter, r *http.Request) {
	estateID, ok := uuidParam(w, r, "estateID")
	if !ok {
		return
	}

	result, err := h.service.GenerateForEstate(r.Context(), estateID)
	if err != nil {
		writeError(w, "generate_for_estate", err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

type initiatePaymentRequest struct {
	ServiceID string `json:"service_id"`
}

func (h *Handler) handleInitiatePayment(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	var req initiatePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	serviceID, err := uuid.Parse(strings.TrimSpace(req.ServiceID))
	if err != nil {
		http.Error(w, "service_id must be a valid UUID", http.StatusBadRequest)
		return
	}

	result, err := h.service.InitiatePayment(r.Context(), identity.UserID, serviceID)
	if err != nil {
		writeError(w, "initiate_payment", err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleListDuePayments(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	payments, err := h.service.PendingPaymentsForUser(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, "list_due_payments", err)
		return
	}
	respondWithJSON(w, http.StatusOK, payments)
}

func (h *Handler) handleUserServiceStatuses(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	h.respondServiceStatuses(w, r, identity.EstateID, identity.UserID)
}

func (h *Handler) handleResidentServiceStatuses(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	userID, ok := uuidParam(w, r, "userID")
	if !ok {
		return
	}
	h.respondServiceStatuses(w, r, identity.EstateID, userID)
}

func (h *Handler) respondServiceStatuses(w http.ResponseWriter, r *http.Request, estateID, userID uuid.UUID) {
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}

	statuses, err := h.service.UserServiceStatuses(r.Context(), estateID, userID, opts)
	if err != nil {
		writeError(w, "user_service_statuses", err)
		return
	}
	respondWithJSON(w, http.StatusOK, statuses)
}

func (h *Handler) handleCompletedPayments(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	summary, err := h.service.CompletedPaymentsSummary(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, "completed_payments", err)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	paymentID, ok := uuidParam(w, r, "paymentID")
	if !ok {
		return
	}

	transactions, err := h.service.TransactionsForPayment(r.Context(), identity.UserID, paymentID)
	if err != nil {
		writeError(w, "list_transactions", err)
		return
	}
	respondWithJSON(w, http.StatusOK, transactions)
}

func (h *Handler) handleListServices(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	services, err := h.service.ListServices(r.Context(), identity.EstateID)
	if err != nil {
		writeError(w, "list_services", err)
		return
	}
	respondWithJSON(w, http.StatusOK, services)
}

func (h *Handler) handleGetService(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	serviceID, ok := uuidParam(w, r, "serviceID")
	if !ok {
		return
	}

	service, err := h.service.GetService(r.Context(), identity.EstateID, serviceID)
	if err != nil {
		writeError(w, "get_service", err)
		return
	}
	respondWithJSON(w, http.StatusOK, service)
}

func (h *Handler) handleCreateService(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	var req app.CreateServiceInput
	if !decodeJSON(w, r, &req) {
		return
	}

	service, err := h.service.CreateService(r.Context(), identity.EstateID, req)
	if err != nil {
		writeError(w, "create_service", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, service)
}

func (h *Handler) handleUpdateService(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	serviceID, ok := uuidParam(w, r, "serviceID")
	if !ok {
		return
	}

	var req app.UpdateServiceInput
	if !decodeJSON(w, r, &req) {
		return
	}

	service, err := h.service.UpdateService(r.Context(), identity.EstateID, serviceID, req)
	if err != nil {
		writeError(w, "update_service", err)
		return
	}
	respondWithJSON(w, http.StatusOK, service)
}

func (h *Handler) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	serviceID, ok := uuidParam(w, r, "serviceID")
	if !ok {
		return
	}

	if err := h.service.DeleteService(r.Context(), identity.EstateID, serviceID); err != nil {
		writeError(w, "delete_service", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEstatePaymentMatrix(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}

	matrix, err := h.service.EstatePaymentMatrix(r.Context(), identity.EstateID, opts)
	if err != nil {
		writeError(w, "estate_payment_matrix", err)
		return
	}
	respondWithJSON(w, http.StatusOK, matrix)
}

func (h *Handler) handleUserPaymentSummaries(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	opts, ok := listOptions(w, r)
	if !ok {
		return
	}

	summaries, err := h.service.UserPaymentSummaries(r.Context(), identity.EstateID, opts.Page, opts.Limit)
	if err != nil {
		writeError(w, "user_payment_summaries", err)
		return
	}
	respondWithJSON(w, http.StatusOK, summaries)
}

type monthlyRevenueResponse struct {
	Months []domain.MonthlyRevenue `json:"months"`
	Total  decimal.Decimal         `json:"total"`
}

func (h *Handler) handleMonthlyRevenue(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	months, err := h.service.MonthlyRevenue(r.Context(), identity.EstateID)
	if err != nil {
		writeError(w, "monthly_revenue", err)
		return
	}

	total := decimal.Zero
	for _, month := range months {
		total = total.Add(month.Total)
	}
	if months == nil {
		months = []domain.MonthlyRevenue{}
	}
	respondWithJSON(w, http.StatusOK, monthlyRevenueResponse{Months: months, Total: total})
}

// statusForError maps service and store errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, app.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrServiceNameTaken),
		errors.Is(err, store.ErrServiceHasPayments),
		errors.Is(err, store.ErrEmailTaken),
		errors.Is(err, app.ErrPaymentInProgress):
		return http.StatusConflict
	case errors.Is(err, store.ErrServiceNotFound),
		errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrPaymentNotFound),
		errors.Is(err, store.ErrEstateNotFound),
		errors.Is(err, app.ErrNoPaymentDue):
		return http.StatusNotFound
	case errors.Is(err, app.ErrGatewayUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, app.ErrInvalidCallback),
		errors.Is(err, app.ErrInvalidService),
		errors.Is(err, app.ErrInvalidAccount):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, op string, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("level=error component=http op=%s status=%d err=%v", op, status, err)
		if status == http.StatusInternalServerError {
			http.Error(w, "Internal server error", status)
			return
		}
	}
	respondWithJSON(w, status, errorResponse{Error: err.Error()})
}

type errorResponse struct {
	Error string `json:"error"`
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		http.Error(w, name+" must be a valid UUID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func listOptions(w http.ResponseWriter, r *http.Request) (domain.ListOptions, bool) {
	query := r.URL.Query()
	opts := domain.ListOptions{
		Page:  atoiOrZero(query.Get("page")),
		Limit: atoiOrZero(query.Get("limit")),
	}
	if raw := query.Get("status"); raw != "" {
		status, ok := domain.ParsePaymentStatus(raw)
		if !ok {
			http.Error(w, "status must be one of PENDING, COMPLETED, FAILED, UNRECOGNIZED", http.StatusBadRequest)
			return opts, false
		}
		opts.Status = status
	}
	return opts, true
}

func atoiOrZero(raw string) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return value
}

// respondWithJSON writes JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
