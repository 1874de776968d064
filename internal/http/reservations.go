package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/camp-registrations-and-payments/internal/domain"
)

type reservationResponse struct {
	ID          uuid.UUID `json:"id"`
	CampID      uuid.UUID `json:"camp_id"`
	HolderEmail string    `json:"holder_email"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func toReservationResponse(res domain.Reservation) reservationResponse {
	return reservationResponse{
		ID:          res.ID,
		CampID:      res.CampID,
		HolderEmail: res.HolderEmail,
		State:       string(res.State),
		CreatedAt:   res.CreatedAt,
		ExpiresAt:   res.ExpiresAt,
	}
}

func (h *Handlers) CreateReservation(w http.ResponseWriter, r *http.Request) {
	if h.replayIdempotent(w, r) {
		return
	}
	campID, err := uuid.Parse(chi.URLParam(r, "campID"))
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	caller, _ := CallerFrom(r.Context())

	res, err := h.reservations.Reserve(r.Context(), campID, caller.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	body := writeJSON(w, http.StatusCreated, toReservationResponse(*res))
	h.storeIdempotent(r, http.StatusCreated, body)
}

func (h *Handlers) GetReservation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "reservationID"))
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	caller, _ := CallerFrom(r.Context())

	res, err := h.reservations.Get(r.Context(), id, caller.Email, caller.IsAdmin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponse(*res))
}

func (h *Handlers) ListMyReservations(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())

	reservations, err := h.reservations.ListByHolder(r.Context(), caller.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]reservationResponse, 0, len(reservations))
	for _, res := range reservations {
		out = append(out, toReservationResponse(res))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "reservationID"))
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	caller, _ := CallerFrom(r.Context())

	if err := h.reservations.Cancel(r.Context(), id, caller.Email, caller.IsAdmin); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
