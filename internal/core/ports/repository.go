// Package ports provides domain-centric interfaces for the collaborators the
// ingestion and synthesis engines depend on. Postgres adapters live in
// internal/storage; in-memory doubles live in ports/mocks.
package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
)

// TickerDirectory resolves tracked symbols and who enabled analysis for them.
type TickerDirectory interface {
	ListTickersWithAnalysisEnabled(ctx context.Context) ([]domain.Ticker, error)
	// FindTickerBySymbol returns ErrTickerNotFound for unknown symbols.
	FindTickerBySymbol(ctx context.Context, symbol string) (*domain.Ticker, error)
	// GetAnalysisOwner returns nil when no user enabled analysis for the ticker.
	GetAnalysisOwner(ctx context.Context, tickerID string) (*domain.AnalysisOwner, error)
}

// CreditLedger holds user balances.
type CreditLedger interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	// Deduct fails with ErrInsufficientCredit when the balance does not cover amount.
	Deduct(ctx context.Context, userID string, amount decimal.Decimal, reason string, metadata map[string]any) error
}

// MarketCalendar reports whether a market session happens on a day.
type MarketCalendar interface {
	IsTradingDay(day time.Time) bool
}

// AnalysisRepository persists analyses and reads the posts they are built from.
type AnalysisRepository interface {
	// GetLatestAnalysis returns ErrNotFound when the symbol has no analysis.
	GetLatestAnalysis(ctx context.Context, symbol string) (*domain.Analysis, error)
	SaveAnalysis(ctx context.Context, a *domain.Analysis) error
	GetWindowStats(ctx context.Context, symbol string, start, end time.Time) (domain.WindowStats, error)
	GetPostsInWindow(ctx context.Context, symbol string, start, end time.Time, limit int) ([]domain.Post, error)
}
