package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/estatehub/billing-service/internal/app"
	"github.com/estatehub/billing-service/internal/domain"
	"github.com/estatehub/billing-service/internal/store"
	"github.com/estatehub/billing-service/pkg/auth"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	testSecret      = "0123456789abcdef0123456789abcdef"
	testIssuer      = "estate-billing"
	testInternalKey = "internal-key"
	testWebhookHash = "hook-secret"
)

type billingServiceStub struct {
	BillingService

	reconcileErr   error
	lastCallback   domain.GatewayCallback
	initiateErr    error
	initiateCalls  int
	matrixOpts     domain.ListOptions
	generateCycles []domain.BillingCycle
}

func (s *billingServiceStub) Reconcile(ctx context.Context, callback domain.GatewayCallback) (*domain.PaymentTransaction, error) {
	s.lastCallback = callback
	if s.reconcileErr != nil {
		return nil, s.reconcileErr
	}
	return &domain.PaymentTransaction{ID: uuid.New(), PaymentReference: callback.TxRef}, nil
}

func (s *billingServiceStub) InitiatePayment(ctx context.Context, userID, serviceID uuid.UUID) (*app.InitiationResult, error) {
	s.initiateCalls++
	if s.initiateErr != nil {
		return nil, s.initiateErr
	}
	return &app.InitiationResult{PaymentID: uuid.New(), Link: "https://checkout.example/pay"}, nil
}

func (s *billingServiceStub) EstatePaymentMatrix(ctx context.Context, estateID uuid.UUID, opts domain.ListOptions) (*domain.EstatePaymentMatrix, error) {
	s.matrixOpts = opts
	return &domain.EstatePaymentMatrix{EstateID: estateID, Entries: []domain.MatrixEntry{}}, nil
}

func (s *billingServiceStub) GenerateForCycles(ctx context.Context, cycles ...domain.BillingCycle) (*app.GenerationResult, error) {
	s.generateCycles = cycles
	return &app.GenerationResult{}, nil
}

type limiterStub struct {
	count int
	err   error
}

func (l *limiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if l.err != nil {
		return 0, 0, l.err
	}
	l.count++
	return l.count, 42, nil
}

func newTestRouter(service BillingService, limiter RateLimiter) http.Handler {
	return NewRouter(NewHandler(service, testWebhookHash), RouterConfig{
		InternalAPIKey:             testInternalKey,
		JWTSecret:                  testSecret,
		JWTIssuer:                  testIssuer,
		RateLimiter:                limiter,
		InitiateRateLimitPerMinute: 2,
	})
}

func bearerFor(t *testing.T, role domain.Role) string {
	t.Helper()
	token, _, err := auth.IssueToken(uuid.NewString(), uuid.NewString(), string(role), "member@example.com", testIssuer, time.Hour, []byte(testSecret))
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}
	return "Bearer " + token
}

func webhookRequest(body string, hash string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/flutterwave", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if hash != "" {
		req.Header.Set("verif-hash", hash)
	}
	return req
}

const chargeCompleted = `{"event":"charge.completed","data":{"id":9001,"tx_ref":"GREEN-COURT-1-1","flw_ref":"FLW-1","amount":5000,"currency":"NGN","status":"successful","customer":{"name":"Ada Obi","email":"ada@example.com"}}}`

func TestFlutterwaveWebhook_ReconcilesVerifiedCallback(t *testing.T) {
	service := &billingServiceStub{}
	rec := httptest.NewRecorder()

	newTestRouter(service, nil).ServeHTTP(rec, webhookRequest(chargeCompleted, testWebhookHash))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got := service.lastCallback
	if got.TxRef != "GREEN-COURT-1-1" || got.TransactionID != "9001" || got.TransactionRef != "FLW-1" || got.Status != "successful" {
		t.Fatalf("unexpected callback: %+v", got)
	}
	if !got.Amount.Equal(decimal.NewFromInt(5000)) || got.CustomerName != "Ada Obi" {
		t.Fatalf("unexpected callback payer fields: %+v", got)
	}
}

func TestFlutterwaveWebhook_RejectsBadHash(t *testing.T) {
	service := &billingServiceStub{}
	rec := httptest.NewRecorder()

	newTestRouter(service, nil).ServeHTTP(rec, webhookRequest(chargeCompleted, "wrong"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if service.lastCallback.TxRef != "" {
		t.Fatal("expected no reconciliation for an unverified webhook")
	}
}

func TestFlutterwaveWebhook_RefusesWhenHashUnset(t *testing.T) {
	service := &billingServiceStub{}
	router := NewRouter(NewHandler(service, "  "), RouterConfig{
		InternalAPIKey: testInternalKey,
		JWTSecret:      testSecret,
		JWTIssuer:      testIssuer,
	})

	for _, hash := range []string{"", "anything"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, webhookRequest(chargeCompleted, hash))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("hash %q: expected 503, got %d", hash, rec.Code)
		}
	}
	if service.lastCallback.TxRef != "" {
		t.Fatal("expected no reconciliation without a configured hash")
	}
}

func TestFlutterwaveWebhook_MapsReconcileErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "missing reference", err: app.ErrInvalidCallback, want: http.StatusBadRequest},
		{name: "unknown reference", err: store.ErrPaymentNotFound, want: http.StatusNotFound},
		{name: "database failure", err: errors.New("connection reset"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newTestRouter(&billingServiceStub{reconcileErr: tt.err}, nil).ServeHTTP(rec, webhookRequest(chargeCompleted, testWebhookHash))
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestFlutterwaveWebhook_RejectsMalformedJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&billingServiceStub{}, nil).ServeHTTP(rec, webhookRequest(`{"event":`, testWebhookHash))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAuthMiddleware_RequiresBearerToken(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/payments/due", nil)

	newTestRouter(&billingServiceStub{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireAdmin_BlocksResidents(t *testing.T) {
	service := &billingServiceStub{}
	router := newTestRouter(service, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/estate/payments?status=pending&page=2&limit=5", nil)
	req.Header.Set("Authorization", bearerFor(t, domain.RoleUser))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for resident, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/estate/payments?status=pending&page=2&limit=5", nil)
	req.Header.Set("Authorization", bearerFor(t, domain.RoleAdmin))
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d: %s", rec.Code, rec.Body.String())
	}
	want := domain.ListOptions{Status: domain.StatusPending, Page: 2, Limit: 5}
	if service.matrixOpts != want {
		t.Fatalf("expected options %+v, got %+v", want, service.matrixOpts)
	}
}

func TestEstatePaymentMatrix_RejectsUnknownStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/estate/payments?status=refunded", nil)
	req.Header.Set("Authorization", bearerFor(t, domain.RoleAdmin))

	newTestRouter(&billingServiceStub{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestInitiatePayment_MapsServiceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "created", err: nil, want: http.StatusOK},
		{name: "no payment due", err: app.ErrNoPaymentDue, want: http.StatusNotFound},
		{name: "gateway down", err: fmt.Errorf("%w: timeout", app.ErrGatewayUnavailable), want: http.StatusBadGateway},
		{name: "in progress", err: app.ErrPaymentInProgress, want: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/payments/initiate", strings.NewReader(fmt.Sprintf(`{"service_id":%q}`, uuid.NewString())))
			req.Header.Set("Authorization", bearerFor(t, domain.RoleUser))

			newTestRouter(&billingServiceStub{initiateErr: tt.err}, nil).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestInitiatePayment_RateLimited(t *testing.T) {
	service := &billingServiceStub{}
	router := newTestRouter(service, &limiterStub{})
	authHeader := bearerFor(t, domain.RoleUser)

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/payments/initiate", strings.NewReader(fmt.Sprintf(`{"service_id":%q}`, uuid.NewString())))
		req.Header.Set("Authorization", authHeader)
		router.ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected third request to be limited, got %d", last.Code)
	}
	if last.Header().Get("Retry-After") != "42" {
		t.Fatalf("expected Retry-After header, got %q", last.Header().Get("Retry-After"))
	}
	if service.initiateCalls != 2 {
		t.Fatalf("expected two initiations to reach the service, got %d", service.initiateCalls)
	}
}

func TestInitiatePayment_LimiterErrorAllowsRequest(t *testing.T) {
	service := &billingServiceStub{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/payments/initiate", strings.NewReader(fmt.Sprintf(`{"service_id":%q}`, uuid.NewString())))
	req.Header.Set("Authorization", bearerFor(t, domain.RoleUser))

	newTestRouter(service, &limiterStub{err: errors.New("redis down")}).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || service.initiateCalls != 1 {
		t.Fatalf("expected request to pass through, code=%d calls=%d", rec.Code, service.initiateCalls)
	}
}

func TestInternalRoutes_RequireAPIKey(t *testing.T) {
	service := &billingServiceStub{}
	router := newTestRouter(service, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/billing/run?cycle=annual", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/billing/run?cycle=annual", nil)
	req.Header.Set("X-Internal-API-Key", testInternalKey)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", rec.Code)
	}
	if len(service.generateCycles) != 1 || service.generateCycles[0] != domain.CycleAnnually {
		t.Fatalf("expected annual cycle run, got %v", service.generateCycles)
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: store.ErrServiceNameTaken, want: http.StatusConflict},
		{err: store.ErrServiceHasPayments, want: http.StatusConflict},
		{err: fmt.Errorf("lookup: %w", store.ErrUserNotFound), want: http.StatusNotFound},
		{err: app.ErrInvalidCredentials, want: http.StatusUnauthorized},
		{err: app.ErrInvalidService, want: http.StatusBadRequest},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Fatalf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
