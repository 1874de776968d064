package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/camp-registrations-and-payments/internal/domain"
	"github.com/robertarktes/camp-registrations-and-payments/internal/registry"
)

type campRequest struct {
	Name         string    `json:"name"`
	FeeCents     int64     `json:"fee_cents"`
	StartsAt     time.Time `json:"starts_at"`
	Location     string    `json:"location"`
	Professional string    `json:"professional"`
	Capacity     int       `json:"capacity"`
}

type campResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	FeeCents     int64     `json:"fee_cents"`
	StartsAt     time.Time `json:"starts_at"`
	Location     string    `json:"location"`
	Professional string    `json:"professional"`
	Capacity     int       `json:"capacity"`
	Remaining    int       `json:"remaining"`
	CreatedBy    string    `json:"created_by,omitempty"`
}

func toCampResponse(c domain.Camp) campResponse {
	return campResponse{
		ID:           c.ID,
		Name:         c.Name,
		FeeCents:     c.FeeCents,
		StartsAt:     c.StartsAt,
		Location:     c.Location,
		Professional: c.Professional,
		Capacity:     c.Capacity,
		Remaining:    c.Remaining(),
		CreatedBy:    c.CreatedBy,
	}
}

func (h *Handlers) CreateCamp(w http.ResponseWriter, r *http.Request) {
	var req campRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	caller, _ := CallerFrom(r.Context())

	camp, err := h.registry.Create(r.Context(), registry.CampInput{
		Name:         req.Name,
		FeeCents:     req.FeeCents,
		StartsAt:     req.StartsAt,
		Location:     req.Location,
		Professional: req.Professional,
		Capacity:     req.Capacity,
	}, caller.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCampResponse(*camp))
}

func (h *Handlers) GetCamp(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "campID"))
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	camp, err := h.registry.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCampResponse(*camp))
}

func (h *Handlers) ListCamps(w http.ResponseWriter, r *http.Request) {
	camps, err := h.registry.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]campResponse, 0, len(camps))
	for _, c := range camps {
		out = append(out, toCampResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) UpdateCamp(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "campID"))
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	var req campRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	err = h.registry.Update(r.Context(), domain.Camp{
		ID:           id,
		Name:         req.Name,
		FeeCents:     req.FeeCents,
		StartsAt:     req.StartsAt,
		Location:     req.Location,
		Professional: req.Professional,
		Capacity:     req.Capacity,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	camp, err := h.registry.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCampResponse(*camp))
}

func (h *Handlers) DeleteCamp(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "campID"))
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	if err := h.registry.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
