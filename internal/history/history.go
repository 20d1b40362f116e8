// Package history builds the merged transaction feed: deposits and
// withdrawals for an owner, most recent first.
package history

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"payledger/internal/common/api"
	"payledger/internal/common/middleware"
	"payledger/internal/common/money"
	"payledger/internal/payment"
	"payledger/internal/withdrawal"
)

// Entry types in the feed.
const (
	TypeDeposit    = "deposit"
	TypeWithdrawal = "withdrawal"
)

// Entry is a single row of an owner's transaction history.
type Entry struct {
	ID     string      `json:"id"`
	Amount money.Money `json:"amount"`
	Type   string      `json:"type"`
	Method string      `json:"method"`
	Status string      `json:"status"`
	Date   time.Time   `json:"date"`
	Note   string      `json:"note,omitempty"`
}

// PaymentSource lists an owner's payment intents.
type PaymentSource interface {
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*payment.Intent, error)
}

// WithdrawalSource lists an owner's withdrawals.
type WithdrawalSource interface {
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*withdrawal.Withdrawal, error)
}

// Service merges both sources into one feed.
type Service struct {
	payments    PaymentSource
	withdrawals WithdrawalSource
}

// NewService creates a new history service.
func NewService(payments PaymentSource, withdrawals WithdrawalSource) *Service {
	return &Service{payments: payments, withdrawals: withdrawals}
}

// List returns up to limit entries for an owner, filtered by entryType
// ("deposit", "withdrawal", or "" for both), newest first. Each source is
// over-fetched by the full limit so the merge never starves one side.
func (s *Service) List(ctx context.Context, ownerID, entryType string, limit int) ([]Entry, error) {
	var entries []Entry

	if entryType == "" || entryType == TypeDeposit {
		intents, err := s.payments.ListByOwner(ctx, ownerID, limit)
		if err != nil {
			return nil, fmt.Errorf("listing payments: %w", err)
		}
		for _, intent := range intents {
			entries = append(entries, Entry{
				ID:     intent.ID,
				Amount: intent.Amount,
				Type:   TypeDeposit,
				Method: string(intent.Method),
				Status: string(intent.Status),
				Date:   intent.CreatedAt,
				Note:   intent.Note,
			})
		}
	}

	if entryType == "" || entryType == TypeWithdrawal {
		withdrawals, err := s.withdrawals.ListByOwner(ctx, ownerID, limit)
		if err != nil {
			return nil, fmt.Errorf("listing withdrawals: %w", err)
		}
		for _, wd := range withdrawals {
			entries = append(entries, Entry{
				ID:     wd.ID,
				Amount: wd.Amount,
				Type:   TypeWithdrawal,
				Method: wd.Method,
				Status: string(wd.Status),
				Date:   wd.CreatedAt,
				Note:   wd.Note,
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Date.After(entries[j].Date)
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Handler handles history HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates a new history handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the history routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.GetHistory)
	return r
}

// GetHistory handles GET /history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		api.Unauthorized(w, "authentication required")
		return
	}

	entryType := r.URL.Query().Get("type")
	switch entryType {
	case "", "all":
		entryType = ""
	case TypeDeposit, TypeWithdrawal:
	default:
		api.BadRequest(w, "type must be one of: all, deposit, withdrawal")
		return
	}

	limit := api.QueryInt(r, "limit", 50, 100)

	entries, err := h.service.List(r.Context(), userID, entryType, limit)
	if err != nil {
		api.InternalError(w, "failed to fetch history")
		return
	}
	if entries == nil {
		entries = []Entry{}
	}

	api.WriteData(w, http.StatusOK, entries)
}
