package events

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"payledger/internal/common/money"
)

// NATS subjects for domain events
const (
	SubjectPaymentCreated    = "payment.intent.created"
	SubjectPaymentSettled    = "payment.intent.settled"
	SubjectPaymentExpired    = "payment.intent.expired"
	SubjectPaymentFailed     = "payment.intent.failed"
	SubjectReconMismatch     = "payment.recon.mismatch"
	SubjectBalanceCredited   = "ledger.balance.credited"
	SubjectBalanceDebited    = "ledger.balance.debited"
	SubjectWithdrawalCreated = "withdrawal.created"
	SubjectWithdrawalUpdated = "withdrawal.updated"
)

// Type identifies the type of domain event.
type Type string

const (
	TypePaymentCreated    Type = "payment.intent.created"
	TypePaymentSettled    Type = "payment.intent.settled"
	TypePaymentExpired    Type = "payment.intent.expired"
	TypePaymentFailed     Type = "payment.intent.failed"
	TypeReconMismatch     Type = "payment.recon.mismatch"
	TypeBalanceCredited   Type = "ledger.balance.credited"
	TypeBalanceDebited    Type = "ledger.balance.debited"
	TypeWithdrawalCreated Type = "withdrawal.created"
	TypeWithdrawalUpdated Type = "withdrawal.updated"
)

// Envelope wraps all events with common metadata.
type Envelope struct {
	ID            string          `json:"id"`
	Type          Type            `json:"type"`
	CorrelationID string          `json:"correlation_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data"`
}

// NewEnvelope creates a new event envelope.
func NewEnvelope(eventType Type, correlationID string, data any) (*Envelope, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		ID:            ulid.Make().String(),
		Type:          eventType,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
		Data:          jsonData,
	}, nil
}

// DecodeData decodes the event data into a struct
func (e *Envelope) DecodeData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// PaymentCreatedEvent is published when a payment intent is created.
type PaymentCreatedEvent struct {
	PaymentID string      `json:"payment_id"`
	OwnerID   string      `json:"owner_id"`
	Amount    money.Money `json:"amount"`
	Method    string      `json:"method"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// PaymentUpdateEvent is published on any intent status transition.
type PaymentUpdateEvent struct {
	PaymentID string      `json:"payment_id"`
	OwnerID   string      `json:"owner_id"`
	Status    string      `json:"status"`
	Amount    money.Money `json:"amount"`
	SettledAt *time.Time  `json:"settled_at,omitempty"`
}

// ReconMismatchEvent is published when a settlement reports an amount that
// differs from the stored intent amount.
type ReconMismatchEvent struct {
	PaymentID      string      `json:"payment_id"`
	ExpectedAmount money.Money `json:"expected_amount"`
	ReportedAmount int64       `json:"reported_amount"`
	DetectedAt     time.Time   `json:"detected_at"`
}

// BalanceChangedEvent is published after a ledger credit or debit.
type BalanceChangedEvent struct {
	OwnerID        string `json:"owner_id"`
	AmountMinor    int64  `json:"amount_minor"`
	NewBalance     int64  `json:"new_balance"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// WithdrawalEvent is published on withdrawal creation and transitions.
type WithdrawalEvent struct {
	WithdrawalID string      `json:"withdrawal_id"`
	OwnerID      string      `json:"owner_id"`
	Amount       money.Money `json:"amount"`
	Status       string      `json:"status"`
}
