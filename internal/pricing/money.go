package pricing

import (
	"math"

	"github.com/shopspring/decimal"
)

// Money represents a monetary amount. Arithmetic is exact; values are rounded
// to cents only when they leave the package.
type Money = decimal.Decimal

var hundred = decimal.NewFromInt(100)

// Round2 rounds m to two decimal places, half away from zero.
func Round2(m Money) Money {
	return m.Round(2)
}

// FromFloat converts a float amount (e.g. decoded from an upstream JSON payload).
func FromFloat(v float64) Money {
	return decimal.NewFromFloat(v)
}

// NullFromFloat converts v into a nullable amount. NaN and infinities map to null.
func NullFromFloat(v float64) decimal.NullDecimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(v))
}

// Null wraps m as a valid nullable amount.
func Null(m Money) decimal.NullDecimal {
	return decimal.NewNullDecimal(m)
}

// MinorUnits converts m into the smallest currency unit (paise, cents) after
// rounding to two decimal places.
func MinorUnits(m Money) int64 {
	return Round2(m).Mul(hundred).Round(0).IntPart()
}

// Lowest returns the minimum of base and every candidate.
func Lowest(base Money, candidates ...Money) Money {
	return decimal.Min(base, candidates...)
}
