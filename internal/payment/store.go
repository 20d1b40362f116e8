package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"payledger/internal/common/database"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateIntent inserts a new payment intent. A duplicate id surfaces as a
// unique violation so the caller can regenerate and retry.
func (s *PostgresStore) CreateIntent(ctx context.Context, intent *Intent) error {
	query := `
		INSERT INTO payment_intents (
			id, owner_id, amount_minor, currency, method, note, status,
			metadata, gateway_response, created_at, updated_at, expires_at, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	metadata, _ := json.Marshal(intent.Metadata)

	_, err := s.db.Exec(ctx, query,
		intent.ID, intent.OwnerID, intent.Amount.AmountMinor, intent.Amount.Currency,
		intent.Method, intent.Note, intent.Status,
		metadata, intent.GatewayResponse,
		intent.CreatedAt, intent.UpdatedAt, intent.ExpiresAt, intent.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("inserting payment intent: %w", err)
	}
	return nil
}

const intentColumns = `
	id, owner_id, amount_minor, currency, method, note, status,
	metadata, gateway_response, created_at, updated_at, expires_at, settled_at
`

// GetIntent retrieves a payment intent by ID.
func (s *PostgresStore) GetIntent(ctx context.Context, id string) (*Intent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE id = $1`

	row := s.db.QueryRow(ctx, query, id)
	return scanIntent(row)
}

// TransitionStatus moves an intent from one status to another. The update is
// conditional on the current status, so concurrent settlements and lazy
// expiry race safely: the first writer wins and later attempts report
// applied=false.
func (s *PostgresStore) TransitionStatus(ctx context.Context, id string, from, to Status, settledAt *time.Time, gatewayResponse []byte) (bool, error) {
	query := `
		UPDATE payment_intents
		SET status = $3,
		    settled_at = COALESCE($4, settled_at),
		    gateway_response = COALESCE($5, gateway_response),
		    updated_at = now()
		WHERE id = $1 AND status = $2
	`

	tag, err := s.db.Exec(ctx, query, id, from, to, settledAt, gatewayResponse)
	if err != nil {
		return false, fmt.Errorf("transitioning intent %s to %s: %w", id, to, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByOwner lists an owner's intents, most recent first.
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Intent, error) {
	query := `
		SELECT ` + intentColumns + `
		FROM payment_intents
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing intents: %w", err)
	}
	defer rows.Close()

	var intents []*Intent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, intent)
	}
	return intents, rows.Err()
}

// ListSettledUncredited finds successful intents whose ledger credit never
// landed. Used by the reconciliation sweep after a crash between the status
// transition and the credit.
func (s *PostgresStore) ListSettledUncredited(ctx context.Context, limit int) ([]*Intent, error) {
	query := `
		SELECT ` + intentColumns + `
		FROM payment_intents p
		WHERE p.status = 'success'
		  AND NOT EXISTS (
			SELECT 1 FROM ledger_credits c WHERE c.idempotency_key = p.id
		  )
		ORDER BY p.settled_at ASC
		LIMIT $1
	`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing uncredited intents: %w", err)
	}
	defer rows.Close()

	var intents []*Intent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, intent)
	}
	return intents, rows.Err()
}

func scanIntent(row pgx.Row) (*Intent, error) {
	var i Intent
	var metadata []byte

	err := row.Scan(
		&i.ID, &i.OwnerID, &i.Amount.AmountMinor, &i.Amount.Currency,
		&i.Method, &i.Note, &i.Status,
		&metadata, &i.GatewayResponse,
		&i.CreatedAt, &i.UpdatedAt, &i.ExpiresAt, &i.SettledAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, database.ErrNotFound
		}
		return nil, err
	}

	if len(metadata) > 0 {
		json.Unmarshal(metadata, &i.Metadata)
	}

	return &i, nil
}
