package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mongoadapter "github.com/robertarktes/camp-registrations-and-payments/internal/adapters/mongo"
	"github.com/robertarktes/camp-registrations-and-payments/internal/domain"
)

type tokenRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// IssueToken registers the caller on first contact and hands back a signed
// access token.
func (h *Handlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		writeError(w, domain.ErrInvalidInput)
		return
	}

	user, err := h.users.Upsert(r.Context(), email, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := h.verifier.Issue(user.Email, user.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token, "role": user.Role})
}

func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(chi.URLParam(r, "email"))
	caller, _ := CallerFrom(r.Context())
	if !caller.IsAdmin && !strings.EqualFold(caller.Email, email) {
		writeError(w, domain.ErrForbidden)
		return
	}

	user, err := h.users.Get(r.Context(), email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(chi.URLParam(r, "email"))
	if err := h.users.Delete(r.Context(), email); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) PromoteUser(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(chi.URLParam(r, "email"))
	if err := h.users.Promote(r.Context(), email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"role": mongoadapter.RoleAdmin})
}

type reviewRequest struct {
	CampID  uuid.UUID `json:"camp_id"`
	Rating  int       `json:"rating"`
	Comment string    `json:"comment"`
}

func (h *Handlers) CreateReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	caller, _ := CallerFrom(r.Context())

	review := mongoadapter.ReviewDoc{
		ID:          uuid.New(),
		CampID:      req.CampID,
		AuthorEmail: caller.Email,
		Rating:      req.Rating,
		Comment:     req.Comment,
	}
	if err := h.reviews.Create(r.Context(), review); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

func (h *Handlers) ListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.reviews.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (h *Handlers) ListCampReviews(w http.ResponseWriter, r *http.Request) {
	campID, err := uuid.Parse(chi.URLParam(r, "campID"))
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	reviews, err := h.reviews.ListByCamp(r.Context(), campID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

func (h *Handlers) OverallStats(w http.ResponseWriter, r *http.Request) {
	snap, err := h.stats.Overall(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) PerCampStats(w http.ResponseWriter, r *http.Request) {
	rows, err := h.stats.PerCamp(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
