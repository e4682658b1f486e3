package mocks

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
)

// Deduction is one recorded ledger entry.
type Deduction struct {
	UserID   string
	Amount   decimal.Decimal
	Reason   string
	Metadata map[string]any
}

// CreditLedger is a thread-safe in-memory implementation of ports.CreditLedger.
type CreditLedger struct {
	mu         sync.RWMutex
	balances   map[string]decimal.Decimal
	deductions []Deduction

	// DeductFn allows overriding Deduct behavior.
	DeductFn func(ctx context.Context, userID string, amount decimal.Decimal, reason string, metadata map[string]any) error
}

// NewCreditLedger creates a ledger where every user starts at zero.
func NewCreditLedger() *CreditLedger {
	return &CreditLedger{balances: make(map[string]decimal.Decimal)}
}

// SetBalance sets a user's balance directly.
func (c *CreditLedger) SetBalance(userID string, amount decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.balances[userID] = amount
}

// GetBalance returns the user's balance.
func (c *CreditLedger) GetBalance(_ context.Context, userID string) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.balances[userID], nil
}

// Deduct subtracts amount when covered, otherwise returns ErrInsufficientCredit.
func (c *CreditLedger) Deduct(ctx context.Context, userID string, amount decimal.Decimal, reason string, metadata map[string]any) error {
	if c.DeductFn != nil {
		return c.DeductFn(ctx, userID, amount, reason, metadata)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	balance := c.balances[userID]
	if balance.LessThan(amount) {
		return coreerrors.ErrInsufficientCredit
	}

	c.balances[userID] = balance.Sub(amount)
	c.deductions = append(c.deductions, Deduction{UserID: userID, Amount: amount, Reason: reason, Metadata: metadata})

	return nil
}

// Deductions returns a copy of the recorded deductions.
func (c *CreditLedger) Deductions() []Deduction {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]Deduction(nil), c.deductions...)
}
