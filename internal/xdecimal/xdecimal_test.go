package xdecimal

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightedAverage_MatchesScenarioS5(t *testing.T) {
	// (price=1, weight=5), (price=2, weight=2), (price=3, weight=1)
	// => (1*5 + 2*2 + 3*1) / (5+2+1) = 12/8 = 1.5
	prices := []decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(2), decimal.NewFromInt(3)}
	weights := []decimal.Decimal{decimal.NewFromInt(5), decimal.NewFromInt(2), decimal.NewFromInt(1)}

	avg, err := WeightedAverage(prices, weights)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromFloat(1.5).Equal(avg), "got %s", avg)
}

func TestWeightedAverage_EmptyIsError(t *testing.T) {
	_, err := WeightedAverage(nil, nil)
	assert.Error(t, err)
}

func TestWeightedAverage_ZeroWeightIsDivisionByZero(t *testing.T) {
	prices := []decimal.Decimal{decimal.NewFromInt(1)}
	weights := []decimal.Decimal{decimal.Zero}
	_, err := WeightedAverage(prices, weights)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestDiv_ByZero(t *testing.T) {
	_, err := Div(decimal.NewFromInt(10), decimal.Zero)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestDiv_QuantizesToAmountScale(t *testing.T) {
	v, err := Div(decimal.NewFromInt(1), decimal.NewFromInt(3))
	require.NoError(t, err)
	assert.Equal(t, int32(AmountScale), -v.Exponent())
}

func TestTokenToDecimal_ScalesByExponent(t *testing.T) {
	raw := big.NewInt(1_000_000_000_000_000_000) // 1e18
	v := TokenToDecimal(raw, 18)
	assert.True(t, decimal.NewFromInt(1).Equal(v))
}

func TestFromString_RejectsEmpty(t *testing.T) {
	_, err := FromString("")
	assert.Error(t, err)
}

func TestFromString_ParsesValid(t *testing.T) {
	v, err := FromString("123.456")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("123.456").Equal(v))
}
