package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
)

// GetBalance returns a user's credit balance. Users without a balance row have zero.
func (db *DB) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var raw string

	err := db.Pool.QueryRow(ctx, `SELECT balance::text FROM credit_balances WHERE user_id = $1`, userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}

		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}

	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance %q: %w", raw, err)
	}

	return balance, nil
}

// Deduct subtracts amount from a user's balance and records a ledger row.
// The update is conditional so the balance never goes negative; an uncovered
// amount returns ErrInsufficientCredit.
func (db *DB) Deduct(ctx context.Context, userID string, amount decimal.Decimal, reason string, metadata map[string]any) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal deduction metadata: %w", err)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin deduct: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // no-op after commit
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE credit_balances
		SET balance = balance - $2::numeric, updated_at = now()
		WHERE user_id = $1 AND balance >= $2::numeric
	`, userID, amount.String())
	if err != nil {
		return fmt.Errorf("deduct balance: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deduct %s from %s: %w", amount.String(), userID, coreerrors.ErrInsufficientCredit)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO credit_ledger (user_id, amount, reason, metadata)
		VALUES ($1, $2::numeric, $3, $4)
	`, userID, amount.Neg().String(), reason, meta); err != nil {
		return fmt.Errorf("record ledger entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit deduct: %w", err)
	}

	return nil
}
