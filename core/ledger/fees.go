package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeTable maps a payment type to the platform fee fraction retained on it.
type FeeTable map[string]decimal.Decimal

// DefaultFeeTable returns the platform's standard fees.
func DefaultFeeTable() FeeTable {
	return FeeTable{
		"subscription":     decimal.RequireFromString("0.30"),
		"job":              decimal.RequireFromString("0.05"),
		"model_purchase":   decimal.RequireFromString("0.05"),
		"api_subscription": decimal.RequireFromString("0.10"),
		"api_usage":        decimal.RequireFromString("0.10"),
	}
}

// Percent returns the fee fraction for paymentType.
func (t FeeTable) Percent(paymentType string) (decimal.Decimal, error) {
	p, ok := t[paymentType]
	if !ok {
		return decimal.Zero, fmt.Errorf("no platform fee configured for payment type %q", paymentType)
	}
	return p, nil
}

// Quote is the fee breakdown for an amount.
type Quote struct {
	Amount  decimal.Decimal
	Percent decimal.Decimal
	Fee     decimal.Decimal
	Net     decimal.Decimal
}

// Quote computes the platform fee for amount of paymentType in currency.
func (t FeeTable) Quote(paymentType, currency string, amount decimal.Decimal) (Quote, error) {
	pct, err := t.Percent(paymentType)
	if err != nil {
		return Quote{}, err
	}
	amount = Round(amount, currency)
	fee, net := SplitFee(amount, pct, Places(currency))
	return Quote{Amount: amount, Percent: pct, Fee: fee, Net: net}, nil
}
