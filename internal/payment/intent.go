// Package payment owns the payment-intent lifecycle: creation, settlement,
// expiry, and the webhook entrypoint that drives it.
package payment

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"payledger/internal/common/money"
)

// Status represents the status of a payment intent.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusExpired Status = "expired"
	StatusFailed  Status = "failed"
)

// ParseStatus parses a gateway-reported terminal status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusSuccess, StatusFailed:
		return Status(s), nil
	default:
		return "", ErrInvalidStatus
	}
}

// Domain errors surfaced by the payment service.
var (
	ErrInvalidAmount = errors.New("amount out of bounds")
	ErrInvalidMethod = errors.New("unrecognized payment method")
	ErrInvalidStatus = errors.New("unrecognized settlement status")
	ErrForbidden     = errors.New("caller does not own this payment")
)

func isValidationError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidMethod) ||
		errors.Is(err, ErrInvalidStatus)
}

// Metadata captures request context at creation time. Write-once.
type Metadata struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Intent represents a requested deposit. Its lifecycle is independent of
// whether the underlying money movement ever completes: a pending intent
// either settles through an authenticated gateway notification or lapses
// into expired on the next status read.
type Intent struct {
	ID      string      `json:"id"`
	OwnerID string      `json:"owner_id"`
	Amount  money.Money `json:"amount"`
	Method  Method      `json:"method"`
	Note    string      `json:"note,omitempty"`
	Status  Status      `json:"status"`

	Metadata *Metadata `json:"metadata,omitempty"`

	// GatewayResponse retains the raw settlement payload for audit.
	GatewayResponse []byte `json:"gateway_response,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

// NewPaymentID generates a payment intent ID. ULIDs encode monotonic
// millisecond time plus random payload; collisions are treated as retryable
// by the creating service, never fatal.
func NewPaymentID() string {
	return "PAY" + ulid.Make().String()
}

// NewIntent creates a pending payment intent expiring after the given window.
func NewIntent(id, ownerID string, amount money.Money, method Method, note string, expiry time.Duration) (*Intent, error) {
	if id == "" {
		return nil, errors.New("id is required")
	}
	if ownerID == "" {
		return nil, errors.New("owner_id is required")
	}
	if !amount.IsPositive() {
		return nil, errors.New("amount must be positive")
	}

	now := time.Now().UTC()

	return &Intent{
		ID:        id,
		OwnerID:   ownerID,
		Amount:    amount,
		Method:    method,
		Note:      note,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(expiry),
	}, nil
}

// IsTerminal returns true if the intent has reached a final state.
// Terminal states are absorbing: no transition leads out of them.
func (i *Intent) IsTerminal() bool {
	return i.Status == StatusSuccess || i.Status == StatusExpired || i.Status == StatusFailed
}

// IsExpired reports whether a still-pending intent has outlived its window.
func (i *Intent) IsExpired(now time.Time) bool {
	return i.Status == StatusPending && now.After(i.ExpiresAt)
}

// MarkSettled transitions a pending intent to a gateway-reported terminal
// state. The persisted transition is additionally guarded by a conditional
// update in the store; this in-memory check catches misuse early.
func (i *Intent) MarkSettled(status Status, settledAt time.Time) error {
	if i.Status != StatusPending {
		return errors.New("can only settle pending intents")
	}
	if status != StatusSuccess && status != StatusFailed {
		return ErrInvalidStatus
	}
	t := settledAt.UTC()
	i.Status = status
	i.SettledAt = &t
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkExpired transitions a pending intent to expired.
func (i *Intent) MarkExpired() error {
	if i.Status != StatusPending {
		return errors.New("can only expire pending intents")
	}
	i.Status = StatusExpired
	i.UpdatedAt = time.Now().UTC()
	return nil
}
