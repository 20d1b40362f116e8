// Package api exposes payment intent HTTP endpoints.
package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"payledger/internal/common/api"
	"payledger/internal/common/database"
	"payledger/internal/common/middleware"
	"payledger/internal/payment"
)

// Handler handles payment HTTP requests
type Handler struct {
	service *payment.Service
}

// NewHandler creates a new payment handler
func NewHandler(service *payment.Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the payment routes. Callers must be authenticated; the
// settlement webhook is mounted separately because the gateway signs
// requests instead of carrying a bearer token.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreatePayment)
	r.Get("/{id}", h.GetPaymentStatus)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireRole(middleware.RoleAdmin))
		r.Post("/reconcile", h.Reconcile)
	})

	return r
}

// CreatePaymentRequest is the API request for creating a payment.
type CreatePaymentRequest struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Method string `json:"payment_method" validate:"required"`
	Note   string `json:"note" validate:"max=255"`
}

// CreatePayment handles POST /payments
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Unauthorized(w, "authentication required")
		return
	}

	var req CreatePaymentRequest
	if err := api.DecodeAndValidate(r, &req); err != nil {
		api.ValidationError(w, err)
		return
	}

	resp, err := h.service.CreateIntent(r.Context(), &payment.CreateIntentRequest{
		OwnerID: userID,
		Amount:  req.Amount,
		Method:  req.Method,
		Note:    req.Note,
		Meta: &payment.Metadata{
			IPAddress: r.RemoteAddr,
			UserAgent: r.UserAgent(),
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrInvalidAmount), errors.Is(err, payment.ErrInvalidMethod):
			api.BadRequest(w, err.Error())
		default:
			api.InternalError(w, "failed to create payment")
		}
		return
	}

	api.WriteData(w, http.StatusCreated, resp)
}

// GetPaymentStatus handles GET /payments/{id}
func (h *Handler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.BadRequest(w, "payment ID required")
		return
	}

	intent, err := h.service.GetStatus(r.Context(),
		id,
		middleware.GetUserID(r.Context()),
		middleware.GetUserRole(r.Context()),
	)
	if err != nil {
		switch {
		case database.IsNotFound(err):
			api.NotFound(w, "payment not found")
		case errors.Is(err, payment.ErrForbidden):
			api.Forbidden(w, "not your payment")
		default:
			api.InternalError(w, "failed to get payment")
		}
		return
	}

	api.WriteData(w, http.StatusOK, intent)
}

// Reconcile handles POST /payments/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	credited, err := h.service.ReconcileCredits(r.Context())
	if err != nil {
		api.InternalError(w, "reconciliation failed")
		return
	}

	api.WriteData(w, http.StatusOK, map[string]int{"credited": credited})
}
