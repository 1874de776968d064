package http

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	mongoadapter "github.com/robertarktes/camp-registrations-and-payments/internal/adapters/mongo"
	"github.com/robertarktes/camp-registrations-and-payments/internal/config"
	"github.com/robertarktes/camp-registrations-and-payments/internal/domain"
	"github.com/robertarktes/camp-registrations-and-payments/internal/idempotency"
	"github.com/robertarktes/camp-registrations-and-payments/internal/identity"
	"github.com/robertarktes/camp-registrations-and-payments/internal/observability"
	"github.com/robertarktes/camp-registrations-and-payments/internal/payment"
	"github.com/robertarktes/camp-registrations-and-payments/internal/registry"
	"github.com/robertarktes/camp-registrations-and-payments/internal/reservation"
	"github.com/robertarktes/camp-registrations-and-payments/internal/stats"
)

type Handlers struct {
	cfg          *config.Config
	registry     *registry.Registry
	reservations *reservation.Manager
	payments     *payment.Coordinator
	stats        *stats.Aggregator
	users        *mongoadapter.UserRepository
	reviews      *mongoadapter.ReviewRepository
	idemp        *idempotency.Idempotency
	verifier     *identity.Verifier
	logger       observability.Logger
}

func NewHandlers(
	cfg *config.Config,
	reg *registry.Registry,
	resv *reservation.Manager,
	pay *payment.Coordinator,
	agg *stats.Aggregator,
	users *mongoadapter.UserRepository,
	reviews *mongoadapter.ReviewRepository,
	idemp *idempotency.Idempotency,
	verifier *identity.Verifier,
	logger observability.Logger,
) *Handlers {
	return &Handlers{
		cfg:          cfg,
		registry:     reg,
		reservations: resv,
		payments:     pay,
		stats:        agg,
		users:        users,
		reviews:      reviews,
		idemp:        idemp,
		verifier:     verifier,
		logger:       logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) []byte {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrCapacityExceeded),
		errors.Is(err, domain.ErrDuplicateReservation),
		errors.Is(err, domain.ErrCampInUse),
		errors.Is(err, domain.ErrPaymentMismatch),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrSerializationFailure):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrReservationExpired),
		errors.Is(err, domain.ErrReservationNotPending):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// replayIdempotent serves a cached response for a repeated Idempotency-Key.
// Returns true when the request was already answered.
func (h *Handlers) replayIdempotent(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		h.logger.WithError(err).Warn("idempotency lookup failed")
		return false
	}
	if existing == nil {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(existing.Status)
	w.Write(existing.Result)
	return true
}

func (h *Handlers) storeIdempotent(r *http.Request, status int, body []byte) {
	key := r.Header.Get("Idempotency-Key")
	if err := h.idemp.Set(r.Context(), key, idempotency.Response{Status: status, Result: body}); err != nil {
		h.logger.WithError(err).Warn("idempotency store failed")
	}
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
