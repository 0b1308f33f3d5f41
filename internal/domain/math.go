package domain

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// BasisPoints is the denominator for weights and tolerances (100.00%).
const BasisPoints = 10_000

// ValueToleranceBps bounds the relative difference accepted between a quote amount
// and the basket value supplied or removed against it.
const ValueToleranceBps = 10

var (
	bigZero = big.NewInt(0)
	bigBps  = big.NewInt(BasisPoints)
)

// Pow10 returns 10^n as a new big.Int.
func Pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// MulDiv returns floor(a * b / c). Returns zero when c is zero.
func MulDiv(a, b, c *big.Int) *big.Int {
	if c.Sign() == 0 {
		return new(big.Int)
	}
	return new(big.Int).Quo(new(big.Int).Mul(a, b), c)
}

// AssetValue converts an amount of an asset with assetDecimals native precision into
// quote value: amount * price / 10^assetDecimals, truncated.
func AssetValue(amount, price *big.Int, assetDecimals uint8) *big.Int {
	return MulDiv(amount, price, Pow10(assetDecimals))
}

// Rescale converts a value expressed with `from` decimals into `to` decimals,
// truncating when scaling down.
func Rescale(value *big.Int, from, to uint8) *big.Int {
	switch {
	case from == to:
		return new(big.Int).Set(value)
	case from > to:
		return new(big.Int).Quo(value, Pow10(from-to))
	default:
		return new(big.Int).Mul(value, Pow10(to-from))
	}
}

// ToleranceFor returns the absolute slack allowed around expected: ValueToleranceBps of
// expected plus one base unit per floor division (one per basket asset).
func ToleranceFor(expected *big.Int, divisions int) *big.Int {
	slack := MulDiv(expected, big.NewInt(ValueToleranceBps), bigBps)
	return slack.Add(slack, big.NewInt(int64(divisions)))
}

// WithinTolerance reports whether |actual - expected| <= ToleranceFor(expected, divisions).
func WithinTolerance(actual, expected *big.Int, divisions int) bool {
	diff := new(big.Int).Sub(actual, expected)
	return diff.Abs(diff).Cmp(ToleranceFor(expected, divisions)) <= 0
}

// IsZero reports whether v is nil or zero.
func IsZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}

// FormatUnits renders a raw token amount in whole units, e.g. 1500000 with 6 decimals is "1.5".
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return ToDecimal(amount, decimals).String()
}

// ToDecimal converts a raw token amount into a decimal in whole units.
func ToDecimal(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// ParseUnits parses a human amount ("12.5") into raw units with the given decimals.
// Extra fractional digits are truncated. Returns zero for invalid input.
func ParseUnits(value string, decimals uint8) *big.Int {
	value = strings.TrimSpace(value)
	if value == "" {
		return new(big.Int)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return new(big.Int)
	}
	return d.Shift(int32(decimals)).Truncate(0).BigInt()
}

// Ratio returns a/b as a decimal rounded to the given places, or zero when b is zero.
func Ratio(a, b *big.Int, places int32) decimal.Decimal {
	if IsZero(b) {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(a, 0).DivRound(decimal.NewFromBigInt(b, 0), places)
}
