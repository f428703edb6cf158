// Package xdecimal provides fixed-point decimal arithmetic for token
// amounts and prices, standing in for the reference implementation's
// decimal.Context(prec=78, rounding=ROUND_HALF_UP, traps=[...]).
//
// shopspring/decimal has no notion of a trapping context. Three traps
// are emulated with explicit guards below: DivisionByZero (Div),
// InvalidOperation for the empty string (FromString) and FloatOperation
// (no float64 constructor is offered). Clamped, Overflow, Subnormal and
// Underflow have no guard and do not raise errors.
package xdecimal

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// Precision is the working precision, matching decimal.Context(prec=78).
const Precision = 78

// AmountScale is the fractional scale used for all token amount fields
// (Numeric(precision=78, scale=18) columns).
const AmountScale = 18

// ErrDivisionByZero emulates the reference's DivisionByZero trap.
var ErrDivisionByZero = errors.New("xdecimal: division by zero")

func init() {
	decimal.DivisionPrecision = Precision
}

// TokenToDecimal converts a raw on-chain integer amount (e.g. a
// uint256 balance) scaled by 10^exp into a Decimal quantized to
// AmountScale fractional digits, half-up rounding.
func TokenToDecimal(value *big.Int, exp int32) decimal.Decimal {
	d := decimal.NewFromBigInt(value, 0)
	divisor := decimal.New(1, exp)
	return d.DivRound(divisor, AmountScale)
}

// Div performs guarded division, returning ErrDivisionByZero instead of
// shopspring's default behavior of returning a zero-value Decimal.
func Div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Decimal{}, ErrDivisionByZero
	}
	return a.DivRound(b, AmountScale), nil
}

// WeightedAverage computes Σ(price·weight)/Σ(weight), the native-price
// aggregation rule used by the bundle processor stage. Empty or
// mismatched slices return an error; an all-zero weight set returns
// ErrDivisionByZero.
func WeightedAverage(prices, weights []decimal.Decimal) (decimal.Decimal, error) {
	if len(prices) != len(weights) || len(prices) == 0 {
		return decimal.Decimal{}, errors.New("xdecimal: mismatched or empty price/weight slices")
	}
	sumNum := decimal.Zero
	sumWeight := decimal.Zero
	for i := range prices {
		sumNum = sumNum.Add(prices[i].Mul(weights[i]))
		sumWeight = sumWeight.Add(weights[i])
	}
	return Div(sumNum, sumWeight)
}

// FromString parses a base-10 string into a Decimal, rejecting the
// empty string outright (InvalidOperation emulation). There is
// deliberately no FromFloat wrapper in this package: mixing binary
// floating point into core arithmetic is forbidden, matching the
// reference's FloatOperation trap.
func FromString(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Decimal{}, errors.New("xdecimal: empty numeric string")
	}
	return decimal.NewFromString(s)
}
