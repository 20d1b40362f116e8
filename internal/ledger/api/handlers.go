// Package api exposes balance HTTP endpoints.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"payledger/internal/common/api"
	"payledger/internal/common/middleware"
	"payledger/internal/ledger"
)

// Handler handles ledger HTTP requests
type Handler struct {
	service *ledger.Service
}

// NewHandler creates a new ledger handler
func NewHandler(service *ledger.Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the ledger routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.GetBalance)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(middleware.RoleAdmin))
		r.Get("/{ownerID}", h.GetOwnerBalance)
	})

	return r
}

// GetBalance handles GET /balance for the authenticated caller
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Unauthorized(w, "authentication required")
		return
	}

	h.writeBalance(w, r, userID)
}

// GetOwnerBalance handles GET /balance/{ownerID} for admins
func (h *Handler) GetOwnerBalance(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "ownerID")
	if ownerID == "" {
		api.BadRequest(w, "owner ID required")
		return
	}

	h.writeBalance(w, r, ownerID)
}

func (h *Handler) writeBalance(w http.ResponseWriter, r *http.Request, ownerID string) {
	balance, err := h.service.GetBalance(r.Context(), ownerID)
	if err != nil {
		api.InternalError(w, "failed to get balance")
		return
	}

	api.WriteData(w, http.StatusOK, map[string]any{
		"owner_id": ownerID,
		"balance":  balance,
	})
}
