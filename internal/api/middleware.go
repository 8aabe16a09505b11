/**
 * @description
 * Custom middleware for the HTTP router: session token authentication, the admin
 * guard, the internal API key check and Redis-backed rate limiting.
 *
 * @dependencies
 * - pkg/auth: HS256 token validation.
 */
package api

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/estatehub/billing-service/internal/domain"
	"github.com/estatehub/billing-service/pkg/auth"
	"github.com/google/uuid"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID   uuid.UUID
	EstateID uuid.UUID
	Role     domain.Role
	Email    string
}

// IsAdmin reports whether the caller administers its estate.
func (i Identity) IsAdmin() bool {
	return i.Role == domain.RoleAdmin
}

type contextKey string

const identityContextKey contextKey = "identity"

// WithIdentity stores the caller in ctx.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the caller stored by AuthMiddleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(Identity)
	return identity, ok
}

// AuthMiddleware validates the bearer session token and stores the caller's identity.
func AuthMiddleware(secret []byte, issuer string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := auth.ValidateToken(strings.TrimSpace(tokenString), secret, issuer)
			if err != nil {
				if errors.Is(err, auth.ErrExpiredToken) {
					http.Error(w, "Token expired", http.StatusUnauthorized)
					return
				}
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			userID, err := uuid.Parse(claims.UserID())
			if err != nil {
				http.Error(w, "Invalid token subject", http.StatusUnauthorized)
				return
			}
			estateID, err := uuid.Parse(claims.EstateID)
			if err != nil {
				http.Error(w, "Invalid token estate", http.StatusUnauthorized)
				return
			}

			identity := Identity{
				UserID:   userID,
				EstateID: estateID,
				Role:     domain.Role(claims.Role),
				Email:    claims.Email,
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireAdmin rejects callers that are not administrators of their estate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if !identity.IsAdmin() {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// InternalAuthMiddleware validates the internal API key for server-to-server calls.
func InternalAuthMiddleware(requiredKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiredKey == "" {
				http.Error(w, "Internal API is not configured", http.StatusServiceUnavailable)
				return
			}

			provided := r.Header.Get("X-Internal-API-Key")
			if provided == "" || provided != requiredKey {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter counts requests per scope and subject.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// RateLimitMiddleware allows limit requests per minute for each caller. Authenticated
// callers are keyed by user id, others by client address. Limiter errors let the
// request through.
func RateLimitMiddleware(limiter RateLimiter, scope string, limit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject := clientAddress(r)
			if identity, ok := IdentityFromContext(r.Context()); ok {
				subject = identity.UserID.String()
			}

			count, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), scope, subject, limit, time.Minute)
			if err != nil {
				log.Printf("level=warn component=rate_limit msg=\"limiter unavailable; allowing request\" scope=%s err=%v", scope, err)
				next.ServeHTTP(w, r)
				return
			}
			if count > limit {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddress(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first := strings.TrimSpace(strings.Split(forwarded, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
