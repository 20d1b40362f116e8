package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"payledger/internal/common/database"
	"payledger/internal/common/events"
	"payledger/internal/common/middleware"
	"payledger/internal/common/money"
)

// Store persists payment intents.
type Store interface {
	CreateIntent(ctx context.Context, intent *Intent) error
	GetIntent(ctx context.Context, id string) (*Intent, error)
	TransitionStatus(ctx context.Context, id string, from, to Status, settledAt *time.Time, gatewayResponse []byte) (bool, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Intent, error)
	ListSettledUncredited(ctx context.Context, limit int) ([]*Intent, error)
}

// Ledger applies balance credits. Credit is idempotent per key: replaying
// the same key never moves the balance twice.
type Ledger interface {
	Credit(ctx context.Context, ownerID string, amount money.Money, idempotencyKey string) error
}

// Publisher publishes events to NATS.
type Publisher interface {
	Publish(ctx context.Context, subject string, envelope *events.Envelope) error
}

// Config holds payment service configuration.
type Config struct {
	CallbackSecret string        `envconfig:"GATEWAY_CALLBACK_SECRET" required:"true"`
	ExpiryWindow   time.Duration `envconfig:"PAYMENT_EXPIRY_WINDOW" default:"5m"`
	MinAmount      int64         `envconfig:"PAYMENT_MIN_AMOUNT" default:"1000"`
	MaxAmount      int64         `envconfig:"PAYMENT_MAX_AMOUNT" default:"10000000"`
	Currency       string        `envconfig:"PAYMENT_CURRENCY" default:"IDR"`
	CreateRetries  int           `envconfig:"PAYMENT_CREATE_RETRIES" default:"3"`
	ReconBatchSize int           `envconfig:"PAYMENT_RECON_BATCH" default:"100"`

	Methods MethodConfig
}

// Service orchestrates the payment intent lifecycle.
type Service struct {
	store     Store
	ledger    Ledger
	publisher Publisher
	adapters  *AdapterRegistry
	cfg       Config
	logger    *slog.Logger
}

// NewService creates a new payment service.
func NewService(store Store, ledger Ledger, publisher Publisher, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		ledger:    ledger,
		publisher: publisher,
		adapters:  NewAdapterRegistry(cfg.Methods),
		cfg:       cfg,
		logger:    logger,
	}
}

// CreateIntentRequest is the request to create a payment intent.
type CreateIntentRequest struct {
	OwnerID string    `json:"-"`
	Amount  int64     `json:"amount" validate:"required,gt=0"`
	Method  string    `json:"payment_method" validate:"required"`
	Note    string    `json:"note,omitempty" validate:"max=255"`
	Meta    *Metadata `json:"-"`
}

// CreateIntentResponse is the response from creating a payment intent.
type CreateIntentResponse struct {
	PaymentID    string      `json:"payment_id"`
	Amount       money.Money `json:"amount"`
	Method       Method      `json:"payment_method"`
	Status       Status      `json:"status"`
	ExpiresAt    time.Time   `json:"expires_at"`
	Instructions any         `json:"instructions"`
}

// CreateIntent validates, persists, and returns a pending payment intent
// together with its funding instructions. The intent is durable before the
// instructions are handed out: a crash after return leaves a pending row
// that either settles through the webhook or lapses into expired.
func (s *Service) CreateIntent(ctx context.Context, req *CreateIntentRequest) (*CreateIntentResponse, error) {
	if req.Amount < s.cfg.MinAmount || req.Amount > s.cfg.MaxAmount {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidAmount, req.Amount, s.cfg.MinAmount, s.cfg.MaxAmount)
	}

	method, err := ParseMethod(req.Method)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, req.Method)
	}

	amount := money.New(req.Amount, money.Currency(s.cfg.Currency))

	var intent *Intent
	for attempt := 0; ; attempt++ {
		intent, err = NewIntent(NewPaymentID(), req.OwnerID, amount, method, req.Note, s.cfg.ExpiryWindow)
		if err != nil {
			return nil, fmt.Errorf("create intent: %w", err)
		}
		intent.Metadata = req.Meta

		err = s.store.CreateIntent(ctx, intent)
		if err == nil {
			break
		}
		if database.IsUniqueViolation(err) && attempt < s.cfg.CreateRetries {
			s.logger.Warn("payment id collision, regenerating", "payment_id", intent.ID)
			continue
		}
		return nil, fmt.Errorf("store intent: %w", err)
	}

	event := &events.PaymentCreatedEvent{
		PaymentID: intent.ID,
		OwnerID:   intent.OwnerID,
		Amount:    intent.Amount,
		Method:    string(intent.Method),
		ExpiresAt: intent.ExpiresAt,
	}
	if env, err := events.NewEnvelope(events.TypePaymentCreated, correlationID(ctx, intent.ID), event); err == nil {
		s.publisher.Publish(ctx, events.SubjectPaymentCreated, env)
	}

	s.logger.Info("payment intent created",
		"payment_id", intent.ID,
		"owner_id", intent.OwnerID,
		"method", intent.Method,
		"amount", intent.Amount.AmountMinor,
	)

	return &CreateIntentResponse{
		PaymentID:    intent.ID,
		Amount:       intent.Amount,
		Method:       intent.Method,
		Status:       intent.Status,
		ExpiresAt:    intent.ExpiresAt,
		Instructions: s.adapters.Instructions(intent.Method, intent.ID, intent.Amount),
	}, nil
}

// GetStatus returns an intent, visible only to its owner or an admin.
// Reading a pending intent past its deadline expires it first, so callers
// never observe a stale pending state.
func (s *Service) GetStatus(ctx context.Context, paymentID, callerID, callerRole string) (*Intent, error) {
	intent, err := s.store.GetIntent(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if intent.OwnerID != callerID && callerRole != middleware.RoleAdmin {
		return nil, ErrForbidden
	}

	if intent.IsExpired(time.Now().UTC()) {
		applied, err := s.store.TransitionStatus(ctx, intent.ID, StatusPending, StatusExpired, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("expiring intent: %w", err)
		}
		// A concurrent settlement may have won the race. Either way the
		// persisted terminal state is the answer.
		intent, err = s.store.GetIntent(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		if applied && intent.Status == StatusExpired {
			s.publishUpdate(ctx, intent, events.TypePaymentExpired, events.SubjectPaymentExpired)
			s.logger.Info("payment intent expired", "payment_id", intent.ID)
		}
	}

	return intent, nil
}

// SettlementNotification is a verified gateway callback.
type SettlementNotification struct {
	PaymentID  string
	Status     string
	Amount     int64
	Timestamp  time.Time
	RawPayload []byte
}

// ApplySettlement applies a gateway settlement to an intent. Safe to replay:
// the status transition is conditional on pending and the ledger credit is
// keyed by payment id, so redelivered notifications settle into no-ops.
func (s *Service) ApplySettlement(ctx context.Context, n *SettlementNotification) error {
	reported, err := ParseStatus(n.Status)
	if err != nil {
		return fmt.Errorf("%w: %q", err, n.Status)
	}

	intent, err := s.store.GetIntent(ctx, n.PaymentID)
	if err != nil {
		return err
	}

	if intent.IsTerminal() {
		// Redelivery after a prior settlement. For a successful intent the
		// credit may still be missing if the process died between the
		// transition and the ledger write, so re-assert it.
		if intent.Status == StatusSuccess {
			return s.creditIntent(ctx, intent)
		}
		return nil
	}

	// Checked only on the first delivery; redeliveries return above, so a
	// persistent gateway discrepancy is reported once.
	if n.Amount != 0 && n.Amount != intent.Amount.AmountMinor {
		s.logger.Warn("settlement amount mismatch",
			"payment_id", intent.ID,
			"expected", intent.Amount.AmountMinor,
			"reported", n.Amount,
		)
		mismatch := &events.ReconMismatchEvent{
			PaymentID:      intent.ID,
			ExpectedAmount: intent.Amount,
			ReportedAmount: n.Amount,
			DetectedAt:     time.Now().UTC(),
		}
		if env, err := events.NewEnvelope(events.TypeReconMismatch, correlationID(ctx, intent.ID), mismatch); err == nil {
			s.publisher.Publish(ctx, events.SubjectReconMismatch, env)
		}
		// The stored amount stays authoritative for crediting.
	}

	settledAt := n.Timestamp
	if settledAt.IsZero() {
		settledAt = time.Now().UTC()
	}

	applied, err := s.store.TransitionStatus(ctx, intent.ID, StatusPending, reported, &settledAt, n.RawPayload)
	if err != nil {
		return fmt.Errorf("settling intent: %w", err)
	}
	if !applied {
		// Lost the race to another settlement or to lazy expiry. Re-read
		// and honor whatever terminal state won.
		intent, err = s.store.GetIntent(ctx, n.PaymentID)
		if err != nil {
			return err
		}
		if intent.Status == StatusSuccess {
			return s.creditIntent(ctx, intent)
		}
		return nil
	}

	intent.Status = reported
	intent.SettledAt = &settledAt

	if reported == StatusSuccess {
		if err := s.creditIntent(ctx, intent); err != nil {
			// The intent is already marked success. Returning the error
			// makes the gateway retry; the reconciliation sweep covers the
			// case where it never does.
			return err
		}
		s.publishUpdate(ctx, intent, events.TypePaymentSettled, events.SubjectPaymentSettled)
	} else {
		s.publishUpdate(ctx, intent, events.TypePaymentFailed, events.SubjectPaymentFailed)
	}

	s.logger.Info("payment intent settled",
		"payment_id", intent.ID,
		"status", intent.Status,
	)
	return nil
}

func (s *Service) creditIntent(ctx context.Context, intent *Intent) error {
	if err := s.ledger.Credit(ctx, intent.OwnerID, intent.Amount, intent.ID); err != nil {
		return fmt.Errorf("crediting intent %s: %w", intent.ID, err)
	}
	return nil
}

// ReconcileCredits replays ledger credits for successful intents that never
// got one. Run at startup and periodically; idempotency keys make overlap
// with live webhook traffic harmless.
func (s *Service) ReconcileCredits(ctx context.Context) (int, error) {
	intents, err := s.store.ListSettledUncredited(ctx, s.cfg.ReconBatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing uncredited intents: %w", err)
	}

	credited := 0
	for _, intent := range intents {
		if err := s.creditIntent(ctx, intent); err != nil {
			s.logger.Error("reconciliation credit failed",
				"payment_id", intent.ID,
				"error", err,
			)
			continue
		}
		credited++
		s.logger.Info("reconciled missing credit",
			"payment_id", intent.ID,
			"owner_id", intent.OwnerID,
			"amount", intent.Amount.AmountMinor,
		)
	}
	return credited, nil
}

// ListByOwner lists an owner's payment intents, most recent first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Intent, error) {
	return s.store.ListByOwner(ctx, ownerID, limit)
}

func (s *Service) publishUpdate(ctx context.Context, intent *Intent, eventType events.Type, subject string) {
	event := &events.PaymentUpdateEvent{
		PaymentID: intent.ID,
		OwnerID:   intent.OwnerID,
		Status:    string(intent.Status),
		Amount:    intent.Amount,
		SettledAt: intent.SettledAt,
	}
	if env, err := events.NewEnvelope(eventType, correlationID(ctx, intent.ID), event); err == nil {
		s.publisher.Publish(ctx, subject, env)
	}
}

func correlationID(ctx context.Context, fallback string) string {
	if id := middleware.GetCorrelationID(ctx); id != "" {
		return id
	}
	return fallback
}
