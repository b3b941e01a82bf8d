// Package ledger holds the numeric primitives used by payments and revenue
// accounting: decimal precision per currency, fee splitting and percentage
// allocation.
package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// TokenPlaces matches on-chain USDT-equivalent precision.
	TokenPlaces int32 = 8
	// FiatPlaces is used for fiat-denominated subscription prices.
	FiatPlaces int32 = 2
)

var (
	hundred = decimal.NewFromInt(100)
	// PercentTolerance is the allowed drift when percentages must sum to 100.
	PercentTolerance = decimal.RequireFromString("0.01")
)

// Places returns the decimal precision amounts in the given currency are kept at.
func Places(currency string) int32 {
	switch strings.ToUpper(currency) {
	case "USD", "EUR", "GBP":
		return FiatPlaces
	default:
		return TokenPlaces
	}
}

// Round rounds an amount to the precision of currency.
func Round(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(Places(currency))
}

// SplitFee computes fee = amount × percent at the given precision and
// net = amount − fee. net + fee always equals amount exactly.
func SplitFee(amount, percent decimal.Decimal, places int32) (fee, net decimal.Decimal) {
	fee = amount.Mul(percent).Round(places)
	net = amount.Sub(fee)
	return fee, net
}

// SumsToHundred reports whether the percentages sum to 100 within PercentTolerance.
func SumsToHundred(percents []decimal.Decimal) (decimal.Decimal, bool) {
	total := decimal.Zero
	for _, p := range percents {
		total = total.Add(p)
	}
	return total, total.Sub(hundred).Abs().LessThanOrEqual(PercentTolerance)
}

// Allocate divides total among keys by percentage (0-100). Each share is
// rounded to places; the rounding residual is assigned to the smallest key so
// the shares always sum to total.
func Allocate(total decimal.Decimal, percents map[int64]decimal.Decimal, places int32) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal, len(percents))
	if len(percents) == 0 {
		return out
	}

	keys := make([]int64, 0, len(percents))
	for k := range percents {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	allocated := decimal.Zero
	for _, k := range keys {
		share := total.Mul(percents[k]).Div(hundred).Round(places)
		out[k] = share
		allocated = allocated.Add(share)
	}

	if residual := total.Round(places).Sub(allocated); !residual.IsZero() {
		out[keys[0]] = out[keys[0]].Add(residual)
	}
	return out
}

// Proportion returns total × part / whole rounded to places, or zero when whole is zero.
func Proportion(total decimal.Decimal, part, whole int64, places int32) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return total.Mul(decimal.NewFromInt(part)).DivRound(decimal.NewFromInt(whole), places)
}

// ParsePercentFraction parses a fee expressed as a fraction ("0.30" for 30%)
// and checks it lies in [0, 1].
func ParsePercentFraction(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid fraction %q: %w", s, err)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("fraction %s out of range [0,1]", d)
	}
	return d, nil
}
