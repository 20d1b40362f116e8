// Package withdrawal handles payout requests: funds leave the balance the
// moment a withdrawal is accepted, and come back only if it is rejected.
package withdrawal

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"payledger/internal/common/money"
)

// Status represents the status of a withdrawal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

// Domain errors surfaced by the withdrawal service.
var (
	ErrBelowMinimum      = errors.New("amount below minimum withdrawal")
	ErrInvalidTransition = errors.New("invalid withdrawal status transition")
)

// Withdrawal represents a payout request. The owner's balance is debited
// before the record is visible; a rejected withdrawal re-credits exactly
// once, keyed by the withdrawal id.
type Withdrawal struct {
	ID      string      `json:"id"`
	OwnerID string      `json:"owner_id"`
	Amount  money.Money `json:"amount"`
	Method  string      `json:"method"`

	BankName      string `json:"bank_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	AccountName   string `json:"account_name,omitempty"`
	Note          string `json:"note,omitempty"`

	Status Status `json:"status"`

	// Reversed marks that the rejection re-credit has been recorded.
	Reversed bool `json:"reversed,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// NewWithdrawalID generates a withdrawal ID.
func NewWithdrawalID() string {
	return "WD" + ulid.Make().String()
}

// NewWithdrawal creates a pending withdrawal.
func NewWithdrawal(id, ownerID string, amount money.Money, method, bankName, accountNumber, accountName, note string) (*Withdrawal, error) {
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

	return &Withdrawal{
		ID:            id,
		OwnerID:       ownerID,
		Amount:        amount,
		Method:        method,
		BankName:      bankName,
		AccountNumber: accountNumber,
		AccountName:   accountName,
		Note:          note,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// IsTerminal returns true if the withdrawal has reached a final state.
func (wd *Withdrawal) IsTerminal() bool {
	return wd.Status == StatusCompleted || wd.Status == StatusRejected
}

// CanTransitionTo reports whether a status change is legal. Processing is
// the only intermediate hop; both terminal states are reachable straight
// from pending.
func (wd *Withdrawal) CanTransitionTo(to Status) bool {
	switch wd.Status {
	case StatusPending:
		return to == StatusProcessing || to == StatusCompleted || to == StatusRejected
	case StatusProcessing:
		return to == StatusCompleted || to == StatusRejected
	default:
		return false
	}
}
