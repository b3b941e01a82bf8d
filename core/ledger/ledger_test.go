package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFeeTableQuote(t *testing.T) {
	table := DefaultFeeTable()

	tests := []struct {
		name        string
		paymentType string
		currency    string
		amount      string
		fee         string
		net         string
	}{
		{"tron api usage", "api_usage", "USDT", "100", "10", "90"},
		{"subscription fiat", "subscription", "USD", "9.99", "3", "6.99"},
		{"job token precision", "job", "USDT", "0.12345679", "0.00617284", "0.11728395"},
		{"model purchase", "model_purchase", "USDT", "250", "12.5", "237.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := table.Quote(tt.paymentType, tt.currency, d(tt.amount))
			require.NoError(t, err)
			assert.True(t, d(tt.fee).Equal(q.Fee), "fee %s", q.Fee)
			assert.True(t, d(tt.net).Equal(q.Net), "net %s", q.Net)
			assert.True(t, q.Amount.Equal(q.Fee.Add(q.Net)))
		})
	}
}

func TestFeeTableUnknownType(t *testing.T) {
	_, err := DefaultFeeTable().Quote("tip", "USDT", d("1"))
	require.Error(t, err)
}

func TestSplitFeeInvariant(t *testing.T) {
	for _, amt := range []string{"0", "1", "0.00000001", "123456.78901234", "99.99999999"} {
		fee, net := SplitFee(d(amt), d("0.3"), TokenPlaces)
		assert.True(t, d(amt).Equal(fee.Add(net)), amt)
	}
}

func TestAllocateSumsToTotal(t *testing.T) {
	shares := Allocate(d("1000"), map[int64]decimal.Decimal{1: d("60"), 2: d("40")}, TokenPlaces)
	assert.True(t, d("600").Equal(shares[1]))
	assert.True(t, d("400").Equal(shares[2]))

	thirds := map[int64]decimal.Decimal{3: d("33.33"), 1: d("33.33"), 2: d("33.34")}
	shares = Allocate(d("100"), thirds, TokenPlaces)
	sum := decimal.Zero
	for _, v := range shares {
		sum = sum.Add(v)
	}
	assert.True(t, d("100").Equal(sum))
}

func TestSumsToHundred(t *testing.T) {
	_, ok := SumsToHundred([]decimal.Decimal{d("60"), d("40")})
	assert.True(t, ok)
	total, ok := SumsToHundred([]decimal.Decimal{d("33.33"), d("33.33"), d("33.33")})
	assert.True(t, ok, "99.99 is within tolerance")
	assert.Equal(t, "99.99", total.String())
	_, ok = SumsToHundred([]decimal.Decimal{d("33.3"), d("33.3"), d("33.3")})
	assert.False(t, ok)
	_, ok = SumsToHundred([]decimal.Decimal{d("50"), d("50.02")})
	assert.False(t, ok)
	_, ok = SumsToHundred([]decimal.Decimal{d("50"), d("49.995")})
	assert.True(t, ok)
}

func TestProportion(t *testing.T) {
	assert.True(t, d("250").Equal(Proportion(d("1000"), 1, 4, TokenPlaces)))
	assert.True(t, Proportion(d("1000"), 1, 0, TokenPlaces).IsZero())
}

func TestPeriod(t *testing.T) {
	p, err := NewPeriod(2025, 2)
	require.NoError(t, err)
	start, end := p.Bounds()
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), end)
	assert.True(t, p.Contains(time.Date(2025, 2, 28, 23, 59, 0, 0, time.UTC)))
	assert.False(t, p.Contains(end))
	assert.Equal(t, "2025-02", p.String())

	_, err = NewPeriod(2025, 13)
	assert.Error(t, err)
}

func TestParsePercentFraction(t *testing.T) {
	v, err := ParsePercentFraction(" 0.10 ")
	require.NoError(t, err)
	assert.True(t, d("0.1").Equal(v))

	_, err = ParsePercentFraction("1.5")
	assert.Error(t, err)
	_, err = ParsePercentFraction("abc")
	assert.Error(t, err)
}
