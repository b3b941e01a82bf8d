package repository

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"aiforge-core/core/errs"
	"aiforge-core/core/monitoring"
	"aiforge-core/core/nft"
	"aiforge-core/core/payment"
	"aiforge-core/core/registry"
	"aiforge-core/core/revenue"
	"aiforge-core/core/scheduler"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ registry.Store         = (*NodeRepository)(nil)
	_ monitoring.NodeCounter = (*NodeRepository)(nil)
	_ scheduler.Store        = (*JobRepository)(nil)
	_ payment.Store          = (*PaymentRepository)(nil)
	_ revenue.PaymentSource  = (*PaymentRepository)(nil)
	_ revenue.Store          = (*RevenueRepository)(nil)
	_ revenue.Catalog        = (*CatalogRepository)(nil)
	_ nft.Store              = (*NFTRepository)(nil)
)

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil, "x"))
	assert.ErrorIs(t, mapError(sql.ErrNoRows, "job j1"), errs.ErrNotFound)
	assert.ErrorIs(t, mapError(&pq.Error{Code: pgUniqueViolation, Constraint: "payments_tx_hash_key"}, "payment"), errs.ErrConflict)
	assert.ErrorIs(t, mapError(&pq.Error{Code: pgForeignKeyViolation}, "artifact"), errs.ErrNotFound)

	other := errors.New("connection reset")
	err := mapError(other, "node n1")
	assert.ErrorIs(t, err, other)
	assert.False(t, errs.Is(err, errs.ErrNotFound, errs.ErrConflict))
}

func TestJSONColumns(t *testing.T) {
	v, err := jsonValue(nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	var empty map[string]interface{}
	v, err = jsonValue(empty)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = jsonValue(map[string]interface{}{"gpu": "A100"})
	require.NoError(t, err)
	assert.Equal(t, `{"gpu":"A100"}`, v)

	var out map[string]interface{}
	require.NoError(t, scanJSON(nil, &out))
	assert.Nil(t, out)
	require.NoError(t, scanJSON([]byte(`{"gpu":"A100"}`), &out))
	assert.Equal(t, "A100", out["gpu"])
}

func TestSplitSharesRoundTrip(t *testing.T) {
	shares := map[int64]decimal.Decimal{
		1: decimal.RequireFromString("60"),
		2: decimal.RequireFromString("40"),
	}
	raw, err := encodeShares(shares)
	require.NoError(t, err)
	assert.JSONEq(t, `{"1":"60","2":"40"}`, raw)

	decoded, err := decodeShares([]byte(raw))
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.True(t, shares[1].Equal(decoded[1]))
	assert.True(t, shares[2].Equal(decoded[2]))

	_, err = decodeShares([]byte(`{"abc":"10"}`))
	assert.Error(t, err)
}

func TestNullableHelpers(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.True(t, nullString("0xabc").Valid)

	now := time.Now()
	assert.True(t, nullTime(&now).Valid)
	assert.False(t, nullTime(nil).Valid)
	assert.Nil(t, timePtr(sql.NullTime{}))

	n := int64(7)
	assert.Equal(t, int64(7), *int64Ptr(nullInt64(&n)))
	assert.Nil(t, int64Ptr(nullInt64(nil)))
}
