package ledger

import (
	"context"
	"fmt"

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

// Credit records the idempotency key and moves the balance in one
// transaction. The key insert is the gate: ON CONFLICT DO NOTHING means a
// replayed key inserts zero rows and the balance update is skipped.
func (s *PostgresStore) Credit(ctx context.Context, ownerID string, amountMinor int64, idempotencyKey string) (bool, int64, error) {
	var applied bool
	var newBalance int64

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO ledger_credits (idempotency_key, owner_id, amount_minor, applied_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (idempotency_key) DO NOTHING
		`, idempotencyKey, ownerID, amountMinor)
		if err != nil {
			return fmt.Errorf("recording credit key: %w", err)
		}

		if tag.RowsAffected() == 0 {
			applied = false
			return nil
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO balances (owner_id, amount_minor, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (owner_id) DO UPDATE
			SET amount_minor = balances.amount_minor + EXCLUDED.amount_minor,
			    updated_at = now()
			RETURNING amount_minor
		`, ownerID, amountMinor).Scan(&newBalance)
		if err != nil {
			return fmt.Errorf("incrementing balance: %w", err)
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return applied, newBalance, nil
}

// Debit subtracts from a balance with the floor check in the WHERE clause.
// Zero rows updated means the funds were not there, whether because the
// balance is too low or the owner has no balance row at all.
func (s *PostgresStore) Debit(ctx context.Context, ownerID string, amountMinor int64) (int64, error) {
	var newBalance int64

	err := s.db.QueryRow(ctx, `
		UPDATE balances
		SET amount_minor = amount_minor - $2,
		    updated_at = now()
		WHERE owner_id = $1 AND amount_minor >= $2
		RETURNING amount_minor
	`, ownerID, amountMinor).Scan(&newBalance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrInsufficientBalance
		}
		return 0, fmt.Errorf("debiting balance: %w", err)
	}
	return newBalance, nil
}

// GetBalance reads an owner's balance, defaulting to zero.
func (s *PostgresStore) GetBalance(ctx context.Context, ownerID string) (int64, error) {
	var balance int64

	err := s.db.QueryRow(ctx, `
		SELECT amount_minor FROM balances WHERE owner_id = $1
	`, ownerID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return balance, nil
}
