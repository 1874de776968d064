package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	mongoadapter "github.com/robertarktes/camp-registrations-and-payments/internal/adapters/mongo"
	"github.com/robertarktes/camp-registrations-and-payments/internal/identity"
	"github.com/robertarktes/camp-registrations-and-payments/internal/observability"
	"github.com/robertarktes/camp-registrations-and-payments/internal/rateLimit"
)

const (
	requestRate   = 100
	requestPeriod = time.Minute
)

func NewRouter(
	h *Handlers,
	verifier *identity.Verifier,
	users *mongoadapter.UserRepository,
	limiter *rateLimit.RateLimiter,
	logger observability.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(Tracing)
	r.Use(Metrics)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", h.Healthz)
		r.Get("/readyz", h.Readyz)

		// Public surface: discovery, login, and the gateway callback.
		r.Group(func(r chi.Router) {
			r.Use(RateLimit(limiter, requestRate, requestPeriod))

			r.Post("/auth/token", h.IssueToken)
			r.Get("/camps", h.ListCamps)
			r.Get("/camps/{campID}", h.GetCamp)
			r.Get("/camps/{campID}/reviews", h.ListCampReviews)
			r.Get("/reviews", h.ListReviews)
			r.Post("/payments/callback", h.PaymentCallback)
		})

		// Authenticated surface.
		r.Group(func(r chi.Router) {
			r.Use(Authenticate(verifier, users, logger))
			r.Use(RateLimit(limiter, requestRate, requestPeriod))

			r.Post("/camps/{campID}/reservations", h.CreateReservation)
			r.Get("/reservations", h.ListMyReservations)
			r.Get("/reservations/{reservationID}", h.GetReservation)
			r.Delete("/reservations/{reservationID}", h.CancelReservation)

			r.Post("/reservations/{reservationID}/payment-intent", h.CreatePaymentIntent)
			r.Post("/payments/finalize", h.FinalizeRegistrations)
			r.Get("/payments/history", h.PaymentHistory)

			r.Post("/reviews", h.CreateReview)
			r.Get("/users/{email}", h.GetUser)

			// Admin surface.
			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin)

				r.Post("/camps", h.CreateCamp)
				r.Put("/camps/{campID}", h.UpdateCamp)
				r.Delete("/camps/{campID}", h.DeleteCamp)

				r.Get("/users", h.ListUsers)
				r.Delete("/users/{email}", h.DeleteUser)
				r.Post("/users/{email}/promote", h.PromoteUser)

				r.Get("/registrations", h.ListRegistrations)
				r.Post("/registrations/{registrationID}/confirm", h.ConfirmRegistration)
				r.Delete("/registrations/{registrationID}", h.RevokeRegistration)

				r.Get("/stats", h.OverallStats)
				r.Get("/stats/camps", h.PerCampStats)
			})
		})
	})

	return r
}
