package synthesis

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/ticker-sentiment-bot/internal/core/domain"
)

func TestParseCosts(t *testing.T) {
	costs, err := ParseCosts("0.5", "2", "7.25")
	require.NoError(t, err)

	assert.True(t, costs.For(domain.QualityLow).Equal(decimal.RequireFromString("0.5")))
	assert.True(t, costs.For(domain.QualityHigh).Equal(decimal.RequireFromString("7.25")))
	assert.True(t, costs.For("unknown").Equal(decimal.NewFromInt(2)))
}

func TestParseCostsRejectsBadInput(t *testing.T) {
	_, err := ParseCosts("abc", "2", "3")
	assert.Error(t, err)

	_, err = ParseCosts("1", "-2", "3")
	assert.Error(t, err)
}
