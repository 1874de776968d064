package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mongoadapter "github.com/robertarktes/camp-registrations-and-payments/internal/adapters/mongo"
	"github.com/robertarktes/camp-registrations-and-payments/internal/domain"
	"github.com/robertarktes/camp-registrations-and-payments/internal/identity"
	"github.com/robertarktes/camp-registrations-and-payments/internal/observability"
	"github.com/robertarktes/camp-registrations-and-payments/internal/rateLimit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type ctxKey int

const callerKey ctxKey = iota

// Caller is the authenticated identity for the current request, with the
// admin flag resolved from the user directory.
type Caller struct {
	Email   string
	Name    string
	IsAdmin bool
}

func CallerFrom(ctx context.Context) (*Caller, bool) {
	caller, ok := ctx.Value(callerKey).(*Caller)
	return caller, ok
}

func withCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// Authenticate verifies the bearer token and resolves the caller's role.
// Requests without a valid token are rejected before any handler runs.
func Authenticate(verifier *identity.Verifier, users *mongoadapter.UserRepository, logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
				return
			}
			id, err := verifier.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
				return
			}
			caller := &Caller{Email: id.Email, Name: id.Name}
			isAdmin, err := users.IsAdmin(r.Context(), id.Email)
			if err != nil {
				logger.WithError(err).Warn("role lookup failed, treating caller as participant")
			}
			caller.IsAdmin = isAdmin
			next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), caller)))
		})
	}
}

// RequireAdmin gates a route on the resolved admin role. It must sit inside
// Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFrom(r.Context())
		if !ok || !caller.IsAdmin {
			writeError(w, domain.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit throttles per caller where authenticated, per remote address
// otherwise. Failing open on redis errors is handled inside the limiter.
func RateLimit(limiter *rateLimit.RateLimiter, rate int, period time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if caller, ok := CallerFrom(r.Context()); ok {
				key = caller.Email
			}
			if !limiter.Allow(r.Context(), key, rate, period) {
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Metrics counts requests by route pattern and status. The pattern is only
// known after routing, so it is read once the handler returns.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		observability.RequestsTotal.WithLabelValues(
			route,
			strconv.Itoa(ww.Status()),
			r.Method,
		).Inc()
	})
}

// Tracing opens a span per request and tags it with method and path.
func Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer("camp-registrations")
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
