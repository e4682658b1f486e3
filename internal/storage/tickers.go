package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
)

// ListTickersWithAnalysisEnabled returns tickers flagged for scheduled analysis, ordered by symbol.
func (db *DB) ListTickersWithAnalysisEnabled(ctx context.Context) ([]domain.Ticker, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, symbol, name
		FROM tickers
		WHERE analysis_enabled
		ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("list analysis tickers: %w", err)
	}
	defer rows.Close()

	var out []domain.Ticker

	for rows.Next() {
		var (
			t  domain.Ticker
			id pgtype.UUID
		)

		if err := rows.Scan(&id, &t.Symbol, &t.Name); err != nil {
			return nil, fmt.Errorf(errFmtScan, "ticker", err)
		}

		t.ID = fromUUID(id)
		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf(errFmtIterate, "tickers", err)
	}

	return out, nil
}

// FindTickerBySymbol looks up a ticker, returning ErrTickerNotFound when absent.
func (db *DB) FindTickerBySymbol(ctx context.Context, symbol string) (*domain.Ticker, error) {
	var (
		t  domain.Ticker
		id pgtype.UUID
	)

	err := db.Pool.QueryRow(ctx, `SELECT id, symbol, name FROM tickers WHERE symbol = $1`, symbol).
		Scan(&id, &t.Symbol, &t.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coreerrors.ErrTickerNotFound
		}

		return nil, fmt.Errorf("find ticker %s: %w", symbol, err)
	}

	t.ID = fromUUID(id)

	return &t, nil
}

// GetAnalysisOwner returns the user who enabled analysis for a ticker, or nil.
func (db *DB) GetAnalysisOwner(ctx context.Context, tickerID string) (*domain.AnalysisOwner, error) {
	var (
		owner domain.AnalysisOwner
		plan  string
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT u.id, u.plan_tier
		FROM tickers t
		JOIN users u ON u.id = t.analysis_owner_id
		WHERE t.id = $1
	`, toUUID(tickerID)).Scan(&owner.UserID, &plan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // no owner is a valid state
		}

		return nil, fmt.Errorf("get analysis owner: %w", err)
	}

	owner.PlanTier = domain.PlanTier(plan)

	return &owner, nil
}
