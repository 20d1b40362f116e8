// Package ledger owns user balances. Credits are exactly-once per
// idempotency key and debits can never take a balance below zero; every
// other package moves money only through this one.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"payledger/internal/common/events"
	"payledger/internal/common/money"
)

// ErrInsufficientBalance is returned when a debit would overdraw.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Store persists balances and applied credit keys.
type Store interface {
	// Credit applies a credit once per idempotency key. applied=false means
	// the key was seen before and the balance did not move.
	Credit(ctx context.Context, ownerID string, amountMinor int64, idempotencyKey string) (applied bool, newBalance int64, err error)

	// Debit atomically subtracts from a balance, failing with
	// ErrInsufficientBalance rather than going negative.
	Debit(ctx context.Context, ownerID string, amountMinor int64) (newBalance int64, err error)

	GetBalance(ctx context.Context, ownerID string) (int64, error)
}

// Publisher publishes events to NATS.
type Publisher interface {
	Publish(ctx context.Context, subject string, envelope *events.Envelope) error
}

// Service exposes balance operations to the rest of the system.
type Service struct {
	store     Store
	publisher Publisher
	currency  string
	logger    *slog.Logger
}

// NewService creates a new ledger service.
func NewService(store Store, publisher Publisher, currency string, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		currency:  currency,
		logger:    logger,
	}
}

// Credit adds funds to a balance exactly once per idempotency key.
// Replaying a key is a silent no-op, which is what makes settlement
// redelivery and reconciliation sweeps safe.
func (s *Service) Credit(ctx context.Context, ownerID string, amount money.Money, idempotencyKey string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("credit amount must be positive: %d", amount.AmountMinor)
	}
	if idempotencyKey == "" {
		return errors.New("idempotency key is required")
	}

	applied, newBalance, err := s.store.Credit(ctx, ownerID, amount.AmountMinor, idempotencyKey)
	if err != nil {
		return fmt.Errorf("applying credit: %w", err)
	}
	if !applied {
		s.logger.Debug("credit already applied",
			"owner_id", ownerID,
			"idempotency_key", idempotencyKey,
		)
		return nil
	}

	s.logger.Info("balance credited",
		"owner_id", ownerID,
		"amount", amount.AmountMinor,
		"new_balance", newBalance,
		"idempotency_key", idempotencyKey,
	)

	event := &events.BalanceChangedEvent{
		OwnerID:        ownerID,
		AmountMinor:    amount.AmountMinor,
		NewBalance:     newBalance,
		IdempotencyKey: idempotencyKey,
	}
	if env, err := events.NewEnvelope(events.TypeBalanceCredited, idempotencyKey, event); err == nil {
		s.publisher.Publish(ctx, events.SubjectBalanceCredited, env)
	}

	return nil
}

// Debit removes funds from a balance. The check and the subtraction are a
// single atomic statement in the store, so two concurrent debits can never
// both succeed against funds that cover only one.
func (s *Service) Debit(ctx context.Context, ownerID string, amount money.Money) error {
	if !amount.IsPositive() {
		return fmt.Errorf("debit amount must be positive: %d", amount.AmountMinor)
	}

	newBalance, err := s.store.Debit(ctx, ownerID, amount.AmountMinor)
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			return err
		}
		return fmt.Errorf("applying debit: %w", err)
	}

	s.logger.Info("balance debited",
		"owner_id", ownerID,
		"amount", amount.AmountMinor,
		"new_balance", newBalance,
	)

	event := &events.BalanceChangedEvent{
		OwnerID:     ownerID,
		AmountMinor: -amount.AmountMinor,
		NewBalance:  newBalance,
	}
	if env, err := events.NewEnvelope(events.TypeBalanceDebited, ownerID, event); err == nil {
		s.publisher.Publish(ctx, events.SubjectBalanceDebited, env)
	}

	return nil
}

// GetBalance returns an owner's current balance. Owners with no balance row
// yet read as zero.
func (s *Service) GetBalance(ctx context.Context, ownerID string) (money.Money, error) {
	balance, err := s.store.GetBalance(ctx, ownerID)
	if err != nil {
		return money.Money{}, fmt.Errorf("reading balance: %w", err)
	}
	return money.New(balance, money.Currency(s.currency)), nil
}
