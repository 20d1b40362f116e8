// Package api exposes withdrawal HTTP endpoints.
package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"payledger/internal/common/api"
	"payledger/internal/common/database"
	"payledger/internal/common/middleware"
	"payledger/internal/ledger"
	"payledger/internal/withdrawal"
)

// Handler handles withdrawal HTTP requests
type Handler struct {
	service *withdrawal.Service
}

// NewHandler creates a new withdrawal handler
func NewHandler(service *withdrawal.Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the withdrawal routes. Payouts move merchant money, so the
// whole surface requires the admin role.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequireRole(middleware.RoleAdmin))

	r.Post("/", h.CreateWithdrawal)
	r.Get("/{id}", h.GetWithdrawal)
	r.Patch("/{id}/status", h.UpdateStatus)

	return r
}

// CreateWithdrawalRequest is the API request for creating a withdrawal.
type CreateWithdrawalRequest struct {
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	Method        string `json:"method" validate:"required,max=50"`
	BankName      string `json:"bank_name" validate:"max=100"`
	AccountNumber string `json:"account_number" validate:"max=50"`
	AccountName   string `json:"account_name" validate:"max=100"`
	Note          string `json:"note" validate:"max=255"`
}

// CreateWithdrawal handles POST /withdrawals
func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Unauthorized(w, "authentication required")
		return
	}

	var req CreateWithdrawalRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	wd, err := h.service.Create(r.Context(), &withdrawal.CreateRequest{
		OwnerID:       userID,
		Amount:        req.Amount,
		Method:        req.Method,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
		Note:          req.Note,
	})
	if err != nil {
		switch {
		case errors.Is(err, withdrawal.ErrBelowMinimum):
			api.BadRequest(w, err.Error())
		case errors.Is(err, ledger.ErrInsufficientBalance):
			api.InsufficientFunds(w, "insufficient balance")
		default:
			api.InternalError(w, "failed to create withdrawal")
		}
		return
	}

	api.WriteData(w, http.StatusCreated, wd)
}

// GetWithdrawal handles GET /withdrawals/{id}
func (h *Handler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.BadRequest(w, "withdrawal ID required")
		return
	}

	wd, err := h.service.Get(r.Context(), id)
	if err != nil {
		if database.IsNotFound(err) {
			api.NotFound(w, "withdrawal not found")
			return
		}
		api.InternalError(w, "failed to get withdrawal")
		return
	}

	api.WriteData(w, http.StatusOK, wd)
}

// UpdateStatusRequest is the API request for a status transition.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=processing completed rejected"`
}

// UpdateStatus handles PATCH /withdrawals/{id}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.BadRequest(w, "withdrawal ID required")
		return
	}

	var req UpdateStatusRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	wd, err := h.service.Transition(r.Context(), id, withdrawal.Status(req.Status))
	if err != nil {
		switch {
		case database.IsNotFound(err):
			api.NotFound(w, "withdrawal not found")
		case errors.Is(err, withdrawal.ErrInvalidTransition):
			api.Conflict(w, err.Error())
		default:
			api.InternalError(w, "failed to update withdrawal")
		}
		return
	}

	api.WriteData(w, http.StatusOK, wd)
}
