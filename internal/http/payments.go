package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/camp-registrations-and-payments/internal/domain"
)

type intentResponse struct {
	IntentID     string    `json:"intent_id"`
	ClientSecret string    `json:"client_secret"`
	AmountCents  int64     `json:"amount_cents"`
	Currency     string    `json:"currency"`
	CreatedAt    time.Time `json:"created_at"`
}

type registrationResponse struct {
	ID          uuid.UUID `json:"id"`
	CampID      uuid.UUID `json:"camp_id"`
	HolderEmail string    `json:"holder_email"`
	AmountCents int64     `json:"amount_cents"`
	PaymentRef  string    `json:"payment_ref"`
	Status      string    `json:"status"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

func toRegistrationResponse(reg domain.Registration) registrationResponse {
	return registrationResponse{
		ID:          reg.ID,
		CampID:      reg.CampID,
		HolderEmail: reg.HolderEmail,
		AmountCents: reg.AmountCents,
		PaymentRef:  reg.PaymentRef,
		Status:      string(reg.Status),
		ConfirmedAt: reg.ConfirmedAt,
	}
}

func (h *Handlers) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	if h.replayIdempotent(w, r) {
		return
	}
	reservationID, err := uuid.Parse(chi.URLParam(r, "reservationID"))
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	caller, _ := CallerFrom(r.Context())

	intent, err := h.payments.CreateIntent(r.Context(), reservationID, caller.Email, caller.IsAdmin)
	if err != nil {
		writeError(w, err)
		return
	}
	body := writeJSON(w, http.StatusCreated, intentResponse{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  intent.AmountCents,
		Currency:     intent.Currency,
		CreatedAt:    intent.CreatedAt,
	})
	h.storeIdempotent(r, http.StatusCreated, body)
}

type callbackRequest struct {
	IntentID string `json:"intent_id"`
	Status   string `json:"status"`
}

// PaymentCallback receives the gateway's asynchronous outcome. Repeated
// deliveries of the same success are acknowledged without re-settling.
func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IntentID == "" {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	if req.Status != "succeeded" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	reg, err := h.payments.ConfirmPayment(r.Context(), req.IntentID)
	if err != nil {
		writeError(w, err)
		return
	}
	if reg == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already settled"})
		return
	}
	writeJSON(w, http.StatusOK, toRegistrationResponse(*reg))
}

type finalizeRequest struct {
	ReservationIDs []uuid.UUID `json:"reservation_ids"`
	PaymentRef     string      `json:"payment_ref"`
}

// FinalizeRegistrations settles a cart of reservations under one payment
// reference.
func (h *Handlers) FinalizeRegistrations(w http.ResponseWriter, r *http.Request) {
	if h.replayIdempotent(w, r) {
		return
	}
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}

	regs, err := h.payments.FinalizeRegistrations(r.Context(), req.ReservationIDs, req.PaymentRef)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]registrationResponse, 0, len(regs))
	for _, reg := range regs {
		out = append(out, toRegistrationResponse(reg))
	}
	body := writeJSON(w, http.StatusCreated, out)
	h.storeIdempotent(r, http.StatusCreated, body)
}

func (h *Handlers) PaymentHistory(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFrom(r.Context())

	regs, err := h.payments.RegistrationsByHolder(r.Context(), caller.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]registrationResponse, 0, len(regs))
	for _, reg := range regs {
		out = append(out, toRegistrationResponse(reg))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.payments.Registrations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]registrationResponse, 0, len(regs))
	for _, reg := range regs {
		out = append(out, toRegistrationResponse(reg))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) ConfirmRegistration(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "registrationID"))
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	caller, _ := CallerFrom(r.Context())

	if err := h.payments.ConfirmRegistration(r.Context(), id, caller.IsAdmin); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.RegistrationConfirmed)})
}

func (h *Handlers) RevokeRegistration(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "registrationID"))
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	caller, _ := CallerFrom(r.Context())

	if err := h.payments.RevokeRegistration(r.Context(), id, caller.IsAdmin); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
