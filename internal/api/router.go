/**
 * @description
 * HTTP router setup for the billing service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/estatehub/billing-service/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the credentials and limits the routes are guarded with.
type RouterConfig struct {
	InternalAPIKey             string
	JWTSecret                  string
	JWTIssuer                  string
	RateLimiter                RateLimiter
	InitiateRateLimitPerMinute int
	WebhookRateLimitPerMinute  int
}

// NewRouter creates a new Chi router and registers the billing routes.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Billing service is healthy"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Post("/auth/login", h.handleLogin)

	r.With(RateLimitMiddleware(cfg.RateLimiter, "webhook", cfg.WebhookRateLimitPerMinute)).
		Post("/webhooks/flutterwave", h.handleFlutterwaveWebhook)

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))
		r.Post("/estates", h.handleCreateEstate)
		r.Post("/billing/run", h.handleRunBilling)
		r.Post("/estates/{estateID}/billing/generate", h.handleGenerateForEstate)
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware([]byte(cfg.JWTSecret), cfg.JWTIssuer))

		r.With(RateLimitMiddleware(cfg.RateLimiter, "initiate", cfg.InitiateRateLimitPerMinute)).
			Post("/payments/initiate", h.handleInitiatePayment)
		r.Get("/payments/due", h.handleListDuePayments)
		r.Get("/payments/services", h.handleUserServiceStatuses)
		r.Get("/payments/completed", h.handleCompletedPayments)
		r.Get("/payments/{paymentID}/transactions", h.handleListTransactions)

		r.Get("/services", h.handleListServices)
		r.Get("/services/{serviceID}", h.handleGetService)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Post("/services", h.handleCreateService)
			r.Patch("/services/{serviceID}", h.handleUpdateService)
			r.Delete("/services/{serviceID}", h.handleDeleteService)
			r.Post("/residents", h.handleRegisterResident)

			r.Get("/estate/payments", h.handleEstatePaymentMatrix)
			r.Get("/estate/users/summary", h.handleUserPaymentSummaries)
			r.Get("/estate/users/{userID}/payments", h.handleResidentServiceStatuses)
			r.Get("/estate/revenue/monthly", h.handleMonthlyRevenue)
		})
	})

	return r
}
