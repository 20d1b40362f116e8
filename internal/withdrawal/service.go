package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"payledger/internal/common/events"
	"payledger/internal/common/money"
)

// Store persists withdrawals.
type Store interface {
	CreateWithdrawal(ctx context.Context, wd *Withdrawal) error
	GetWithdrawal(ctx context.Context, id string) (*Withdrawal, error)
	TransitionStatus(ctx context.Context, id string, from, to Status, processedAt *time.Time) (bool, error)
	MarkReversed(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Withdrawal, error)
}

// Ledger moves balance for withdrawals. Credit is idempotent per key.
type Ledger interface {
	Debit(ctx context.Context, ownerID string, amount money.Money) error
	Credit(ctx context.Context, ownerID string, amount money.Money, idempotencyKey string) error
}

// Publisher publishes events to NATS.
type Publisher interface {
	Publish(ctx context.Context, subject string, envelope *events.Envelope) error
}

// Config holds withdrawal service configuration.
type Config struct {
	MinAmount int64  `envconfig:"WITHDRAWAL_MIN_AMOUNT" default:"50000"`
	Currency  string `envconfig:"PAYMENT_CURRENCY" default:"IDR"`
}

// Service orchestrates the withdrawal lifecycle.
type Service struct {
	store     Store
	ledger    Ledger
	publisher Publisher
	cfg       Config
	logger    *slog.Logger
}

// NewService creates a new withdrawal service.
func NewService(store Store, ledger Ledger, publisher Publisher, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		ledger:    ledger,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// CreateRequest is the request to create a withdrawal.
type CreateRequest struct {
	OwnerID       string
	Amount        int64
	Method        string
	BankName      string
	AccountNumber string
	AccountName   string
	Note          string
}

// Create debits the owner's balance and records the withdrawal. The debit
// goes first: a withdrawal record must never exist that the balance did not
// pay for. If the record insert then fails, the debit is compensated with a
// credit keyed by the never-persisted withdrawal id.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*Withdrawal, error) {
	if req.Amount < s.cfg.MinAmount {
		return nil, fmt.Errorf("%w: minimum is %s",
			ErrBelowMinimum, money.New(s.cfg.MinAmount, money.Currency(s.cfg.Currency)))
	}

	amount := money.New(req.Amount, money.Currency(s.cfg.Currency))

	wd, err := NewWithdrawal(NewWithdrawalID(), req.OwnerID, amount,
		req.Method, req.BankName, req.AccountNumber, req.AccountName, req.Note)
	if err != nil {
		return nil, fmt.Errorf("create withdrawal: %w", err)
	}

	if err := s.ledger.Debit(ctx, wd.OwnerID, amount); err != nil {
		return nil, err
	}

	if err := s.store.CreateWithdrawal(ctx, wd); err != nil {
		if creditErr := s.ledger.Credit(ctx, wd.OwnerID, amount, wd.ID); creditErr != nil {
			s.logger.Error("failed to compensate debit after insert failure",
				"withdrawal_id", wd.ID,
				"owner_id", wd.OwnerID,
				"error", creditErr,
			)
		}
		return nil, fmt.Errorf("store withdrawal: %w", err)
	}

	s.logger.Info("withdrawal created",
		"withdrawal_id", wd.ID,
		"owner_id", wd.OwnerID,
		"amount", wd.Amount.AmountMinor,
	)
	s.publishEvent(ctx, wd, events.TypeWithdrawalCreated, events.SubjectWithdrawalCreated)

	return wd, nil
}

// Get retrieves a withdrawal by ID.
func (s *Service) Get(ctx context.Context, id string) (*Withdrawal, error) {
	return s.store.GetWithdrawal(ctx, id)
}

// ListByOwner lists an owner's withdrawals, most recent first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Withdrawal, error) {
	return s.store.ListByOwner(ctx, ownerID, limit)
}

// Transition moves a withdrawal to a new status. Rejection re-credits the
// owner's balance exactly once, keyed by the withdrawal id, so repeating a
// rejection never double-refunds.
func (s *Service) Transition(ctx context.Context, id string, to Status) (*Withdrawal, error) {
	wd, err := s.store.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}

	if wd.Status == to {
		// Idempotent repeat. A repeated rejection still re-asserts the
		// reversal in case the first attempt crashed before the credit.
		if to == StatusRejected {
			if err := s.reverse(ctx, wd); err != nil {
				return nil, err
			}
		}
		return wd, nil
	}

	if !wd.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, wd.Status, to)
	}

	var processedAt *time.Time
	if to == StatusCompleted || to == StatusRejected {
		now := time.Now().UTC()
		processedAt = &now
	}

	applied, err := s.store.TransitionStatus(ctx, id, wd.Status, to, processedAt)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Concurrent transition won; report what actually happened.
		return nil, errors.Join(ErrInvalidTransition, errors.New("concurrent status change"))
	}

	wd.Status = to
	wd.ProcessedAt = processedAt

	if to == StatusRejected {
		if err := s.reverse(ctx, wd); err != nil {
			return nil, err
		}
	}

	s.logger.Info("withdrawal transitioned",
		"withdrawal_id", wd.ID,
		"status", wd.Status,
	)
	s.publishEvent(ctx, wd, events.TypeWithdrawalUpdated, events.SubjectWithdrawalUpdated)

	return wd, nil
}

// reverse re-credits a rejected withdrawal. The ledger's idempotency key is
// the withdrawal id, so this is safe to call any number of times.
func (s *Service) reverse(ctx context.Context, wd *Withdrawal) error {
	if err := s.ledger.Credit(ctx, wd.OwnerID, wd.Amount, wd.ID); err != nil {
		return fmt.Errorf("reversing withdrawal %s: %w", wd.ID, err)
	}
	if !wd.Reversed {
		if err := s.store.MarkReversed(ctx, wd.ID); err != nil {
			return err
		}
		wd.Reversed = true
	}
	return nil
}

func (s *Service) publishEvent(ctx context.Context, wd *Withdrawal, eventType events.Type, subject string) {
	event := &events.WithdrawalEvent{
		WithdrawalID: wd.ID,
		OwnerID:      wd.OwnerID,
		Amount:       wd.Amount,
		Status:       string(wd.Status),
	}
	if env, err := events.NewEnvelope(eventType, wd.ID, event); err == nil {
		s.publisher.Publish(ctx, subject, env)
	}
}
