package withdrawal

import (
	"context"
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

// CreateWithdrawal inserts a new withdrawal record.
func (s *PostgresStore) CreateWithdrawal(ctx context.Context, wd *Withdrawal) error {
	query := `
		INSERT INTO withdrawals (
			id, owner_id, amount_minor, currency, method,
			bank_name, account_number, account_name, note,
			status, reversed, created_at, updated_at, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := s.db.Exec(ctx, query,
		wd.ID, wd.OwnerID, wd.Amount.AmountMinor, wd.Amount.Currency, wd.Method,
		wd.BankName, wd.AccountNumber, wd.AccountName, wd.Note,
		wd.Status, wd.Reversed, wd.CreatedAt, wd.UpdatedAt, wd.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting withdrawal: %w", err)
	}
	return nil
}

const withdrawalColumns = `
	id, owner_id, amount_minor, currency, method,
	bank_name, account_number, account_name, note,
	status, reversed, created_at, updated_at, processed_at
`

// GetWithdrawal retrieves a withdrawal by ID.
func (s *PostgresStore) GetWithdrawal(ctx context.Context, id string) (*Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`

	row := s.db.QueryRow(ctx, query, id)
	return scanWithdrawal(row)
}

// TransitionStatus moves a withdrawal between statuses, conditional on the
// current one. Returns applied=false if another transition won.
func (s *PostgresStore) TransitionStatus(ctx context.Context, id string, from, to Status, processedAt *time.Time) (bool, error) {
	query := `
		UPDATE withdrawals
		SET status = $3,
		    processed_at = COALESCE($4, processed_at),
		    updated_at = now()
		WHERE id = $1 AND status = $2
	`

	tag, err := s.db.Exec(ctx, query, id, from, to, processedAt)
	if err != nil {
		return false, fmt.Errorf("transitioning withdrawal %s to %s: %w", id, to, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkReversed flags a rejected withdrawal's re-credit as recorded.
func (s *PostgresStore) MarkReversed(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE withdrawals SET reversed = TRUE, updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("marking withdrawal reversed: %w", err)
	}
	return nil
}

// ListByOwner lists an owner's withdrawals, most recent first.
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Withdrawal, error) {
	query := `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing withdrawals: %w", err)
	}
	defer rows.Close()

	var withdrawals []*Withdrawal
	for rows.Next() {
		wd, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, wd)
	}
	return withdrawals, rows.Err()
}

func scanWithdrawal(row pgx.Row) (*Withdrawal, error) {
	var wd Withdrawal

	err := row.Scan(
		&wd.ID, &wd.OwnerID, &wd.Amount.AmountMinor, &wd.Amount.Currency, &wd.Method,
		&wd.BankName, &wd.AccountNumber, &wd.AccountName, &wd.Note,
		&wd.Status, &wd.Reversed, &wd.CreatedAt, &wd.UpdatedAt, &wd.ProcessedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, database.ErrNotFound
		}
		return nil, err
	}

	return &wd, nil
}
