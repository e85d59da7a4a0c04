package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// BalanceRepository handles balance database operations. The debit is a
// single conditional UPDATE, so it can never drive a balance negative even
// under concurrent callers.
type BalanceRepository struct {
	db *DB
}

// NewBalanceRepository creates a new balance repository
func NewBalanceRepository(db *DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// Balance returns the subscriber's current balance. Unknown subscribers have
// a zero balance.
func (r *BalanceRepository) Balance(ctx context.Context, subscriberID string) (decimal.Decimal, error) {
	var amount decimal.Decimal
	query := `SELECT amount FROM balances WHERE subscriber_id = $1`

	err := r.db.conn.GetContext(ctx, &amount, query, subscriberID)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}

	return amount, nil
}

// Debit atomically subtracts amount from the subscriber's balance and returns
// the new balance. Returns ErrInsufficientBalance when the balance cannot
// cover the amount; nothing is mutated in that case.
func (r *BalanceRepository) Debit(ctx context.Context, subscriberID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("debit amount must be positive, got %s", amount)
	}

	var newBalance decimal.Decimal
	query := `
		UPDATE balances
		SET amount = amount - $2, updated_at = now()
		WHERE subscriber_id = $1 AND amount >= $2
		RETURNING amount
	`

	err := r.db.conn.GetContext(ctx, &newBalance, query, subscriberID, amount)
	if err == sql.ErrNoRows {
		return decimal.Zero, ErrInsufficientBalance
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to debit balance: %w", err)
	}

	return newBalance, nil
}

// Credit adds amount to the subscriber's balance, creating the row if needed,
// and returns the new balance. Used for deposits and for rolling back a debit
// whose paired ledger append failed.
func (r *BalanceRepository) Credit(ctx context.Context, subscriberID string, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("credit amount must be positive, got %s", amount)
	}

	var newBalance decimal.Decimal
	query := `
		INSERT INTO balances (subscriber_id, amount)
		VALUES ($1, $2)
		ON CONFLICT (subscriber_id)
		DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = now()
		RETURNING amount
	`

	err := r.db.conn.GetContext(ctx, &newBalance, query, subscriberID, amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to credit balance: %w", err)
	}

	return newBalance, nil
}
