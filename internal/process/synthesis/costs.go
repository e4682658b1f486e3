package synthesis

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
)

// Costs is the credit price of one analysis per quality tier.
type Costs map[domain.QualityTier]decimal.Decimal

// ParseCosts reads decimal prices for the low, standard and high tiers.
func ParseCosts(low, standard, high string) (Costs, error) {
	raw := map[domain.QualityTier]string{
		domain.QualityLow:      low,
		domain.QualityStandard: standard,
		domain.QualityHigh:     high,
	}

	costs := make(Costs, len(raw))

	for tier, s := range raw {
		v, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("parse %s credit cost %q: %w", tier, s, err)
		}

		if v.IsNegative() {
			return nil, fmt.Errorf("%s credit cost must not be negative: %s", tier, s)
		}

		costs[tier] = v
	}

	return costs, nil
}

// For returns the price for tier. Unknown tiers cost the standard price.
func (c Costs) For(tier domain.QualityTier) decimal.Decimal {
	if v, ok := c[tier]; ok {
		return v
	}

	return c[domain.QualityStandard]
}
