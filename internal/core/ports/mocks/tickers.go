package mocks

import (
	"context"
	"sync"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
)

// TickerDirectory is a thread-safe in-memory implementation of ports.TickerDirectory.
type TickerDirectory struct {
	mu      sync.RWMutex
	tickers []domain.Ticker
	enabled map[string]bool
	owners  map[string]*domain.AnalysisOwner

	// GetAnalysisOwnerFn allows overriding GetAnalysisOwner behavior.
	GetAnalysisOwnerFn func(ctx context.Context, tickerID string) (*domain.AnalysisOwner, error)
}

// NewTickerDirectory creates an empty directory.
func NewTickerDirectory() *TickerDirectory {
	return &TickerDirectory{
		enabled: make(map[string]bool),
		owners:  make(map[string]*domain.AnalysisOwner),
	}
}

// Add registers a ticker with analysis enabled and an optional owner.
func (d *TickerDirectory) Add(t domain.Ticker, owner *domain.AnalysisOwner) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.tickers = append(d.tickers, t)
	d.enabled[t.ID] = true

	if owner != nil {
		d.owners[t.ID] = owner
	}
}

// ListTickersWithAnalysisEnabled returns enabled tickers in insertion order.
func (d *TickerDirectory) ListTickersWithAnalysisEnabled(_ context.Context) ([]domain.Ticker, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]domain.Ticker, 0, len(d.tickers))

	for _, t := range d.tickers {
		if d.enabled[t.ID] {
			out = append(out, t)
		}
	}

	return out, nil
}

// FindTickerBySymbol returns the ticker or ErrTickerNotFound.
func (d *TickerDirectory) FindTickerBySymbol(_ context.Context, symbol string) (*domain.Ticker, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, t := range d.tickers {
		if t.Symbol == symbol {
			found := t

			return &found, nil
		}
	}

	return nil, coreerrors.ErrTickerNotFound
}

// GetAnalysisOwner returns the owner registered with Add, or nil.
func (d *TickerDirectory) GetAnalysisOwner(ctx context.Context, tickerID string) (*domain.AnalysisOwner, error) {
	if d.GetAnalysisOwnerFn != nil {
		return d.GetAnalysisOwnerFn(ctx, tickerID)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	owner, ok := d.owners[tickerID]
	if !ok {
		return nil, nil //nolint:nilnil // no owner is a valid state
	}

	cp := *owner

	return &cp, nil
}
