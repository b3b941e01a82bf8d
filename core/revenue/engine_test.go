package revenue

import (
	"context"
	"testing"
	"time"

	"aiforge-core/core/errs"
	"aiforge-core/core/ledger"
	"aiforge-core/core/memstore"
	"aiforge-core/core/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	groupID int64 = 3
	modelID int64 = 7
	owner   int64 = 1
	member  int64 = 2
)

var january = ledger.Period{Year: 2025, Month: 1}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setup(t *testing.T) (*Engine, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	store.AddModel(modelID, groupID)
	store.AddMember(groupID, owner, models.GroupRoleOwner)
	store.AddMember(groupID, member, models.GroupRoleMember)
	return NewEngine(store, store, store, nil, d("5")), store
}

func confirmed(t *testing.T, store *memstore.Store, typ models.PaymentType, amount, fee string, link models.LinkedEntity, at time.Time) {
	t.Helper()
	p := &models.Payment{
		Type:              typ,
		Status:            models.PaymentStatusConfirmed,
		Amount:            d(amount),
		PlatformFeeAmount: d(fee),
		NetAmount:         d(amount).Sub(d(fee)),
		Linked:            link,
		ConfirmedAt:       &at,
	}
	require.NoError(t, store.CreatePayment(context.Background(), p))
}

func configure(t *testing.T, e *Engine) {
	t.Helper()
	_, err := e.ConfigureSplit(context.Background(), owner, modelID, SplitConfig{
		Shares: map[int64]decimal.Decimal{owner: d("60"), member: d("40")},
	})
	require.NoError(t, err)
}

func TestSplitAppliesToNetTotal(t *testing.T) {
	e, store := setup(t)
	configure(t, e)
	confirmed(t, store, models.PaymentTypeAPIUsage, "1100", "100", models.LinkToModel(modelID), time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))

	b, err := e.CalculateGroupRevenueDistribution(context.Background(), modelID, january)
	require.NoError(t, err)

	assert.Equal(t, "1000", b.TotalRevenue.String())
	require.Len(t, b.Distribution, 2)
	assert.Equal(t, owner, b.Distribution[0].UserID)
	assert.Equal(t, "600", b.Distribution[0].Amount.String())
	assert.Equal(t, member, b.Distribution[1].UserID)
	assert.Equal(t, "400", b.Distribution[1].Amount.String())
}

func TestSubscriptionPoolFollowsUsage(t *testing.T) {
	e, store := setup(t)
	configure(t, e)
	mid := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

	confirmed(t, store, models.PaymentTypeSubscription, "1000", "300", models.LinkToSubscription(1), mid)
	// outside the period
	confirmed(t, store, models.PaymentTypeSubscription, "500", "150", models.LinkToSubscription(2), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		store.RecordAPIRequest(modelID, mid, true)
	}
	store.RecordAPIRequest(8, mid, true)
	store.RecordAPIRequest(8, mid, false)

	store.AddAPISubscription(55, modelID)
	confirmed(t, store, models.PaymentTypeAPISubscription, "100", "10", models.LinkToAPISubscription(55), mid)

	pool, err := e.SubscriptionPool(context.Background(), january)
	require.NoError(t, err)
	assert.Equal(t, "1000", pool.GrossRevenue.String())
	assert.Equal(t, "700", pool.ModelPool.String())
	assert.Equal(t, int64(4), pool.TotalUsage)
	assert.Equal(t, "525", pool.ModelShares[modelID].String())
	assert.Equal(t, "175", pool.ModelShares[8].String())

	b, err := e.CalculateGroupRevenueDistribution(context.Background(), modelID, january)
	require.NoError(t, err)
	assert.Equal(t, "525", b.SubscriptionShare.String())
	assert.Equal(t, "90", b.UsageRevenue.String())
	assert.Equal(t, "100", b.UsageGross.String())
	assert.Equal(t, "10", b.UsagePlatformFee.String())
	assert.Equal(t, "615", b.TotalRevenue.String())
}

func TestNoUsageMeansNoSubscriptionShare(t *testing.T) {
	e, store := setup(t)
	configure(t, e)
	confirmed(t, store, models.PaymentTypeSubscription, "1000", "300", models.LinkedEntity{}, time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC))

	b, err := e.CalculateGroupRevenueDistribution(context.Background(), modelID, january)
	require.NoError(t, err)
	assert.True(t, b.TotalRevenue.IsZero())
	for _, share := range b.Distribution {
		assert.True(t, share.Amount.IsZero())
	}
}

func TestCalculateWithoutSplit(t *testing.T) {
	e, _ := setup(t)
	_, err := e.CalculateGroupRevenueDistribution(context.Background(), modelID, january)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDistributeOnce(t *testing.T) {
	ctx := context.Background()
	e, store := setup(t)
	configure(t, e)
	confirmed(t, store, models.PaymentTypeAPIUsage, "1100", "100", models.LinkToModel(modelID), time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))

	first, err := e.DistributeRevenue(ctx, modelID, january)
	require.NoError(t, err)
	assert.True(t, first.IsDistributed)
	assert.NotNil(t, first.DistributedAt)

	// late revenue must not change the snapshot
	confirmed(t, store, models.PaymentTypeAPIUsage, "220", "20", models.LinkToModel(modelID), time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC))

	second, err := e.DistributeRevenue(ctx, modelID, january)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.TotalRevenue.Equal(second.TotalRevenue))
	assert.Equal(t, "1000", second.TotalRevenue.String())

	got, err := e.GetDistribution(ctx, modelID, january)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestDistributeRejectsOpenPeriod(t *testing.T) {
	e, _ := setup(t)
	configure(t, e)

	_, err := e.DistributeRevenue(context.Background(), modelID, ledger.PeriodOf(time.Now()))
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestConfigureSplitValidation(t *testing.T) {
	ctx := context.Background()
	e, store := setup(t)
	store.AddModel(9, 0)

	tests := []struct {
		name    string
		actor   int64
		model   int64
		shares  map[int64]decimal.Decimal
		wantErr error
	}{
		{"not a manager", member, modelID, map[int64]decimal.Decimal{owner: d("60"), member: d("40")}, errs.ErrForbidden},
		{"outsider", 99, modelID, map[int64]decimal.Decimal{owner: d("60"), member: d("40")}, errs.ErrForbidden},
		{"sum below 100", owner, modelID, map[int64]decimal.Decimal{owner: d("60"), member: d("39")}, errs.ErrValidation},
		{"non member", owner, modelID, map[int64]decimal.Decimal{owner: d("60"), 42: d("40")}, errs.ErrValidation},
		{"below minimum", owner, modelID, map[int64]decimal.Decimal{owner: d("96"), member: d("4")}, errs.ErrValidation},
		{"empty", owner, modelID, map[int64]decimal.Decimal{}, errs.ErrValidation},
		{"unknown model", owner, 404, map[int64]decimal.Decimal{owner: d("100")}, errs.ErrNotFound},
		{"personal model", owner, 9, map[int64]decimal.Decimal{owner: d("100")}, errs.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ConfigureSplit(ctx, tt.actor, tt.model, SplitConfig{Shares: tt.shares})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfigureSplitToleranceAndUpdate(t *testing.T) {
	ctx := context.Background()
	e, _ := setup(t)

	_, err := e.ConfigureSplit(ctx, owner, modelID, SplitConfig{
		Shares: map[int64]decimal.Decimal{owner: d("50.005"), member: d("50")},
	})
	require.NoError(t, err)

	zero := d("0")
	split, err := e.ConfigureSplit(ctx, owner, modelID, SplitConfig{
		Shares:        map[int64]decimal.Decimal{owner: d("97"), member: d("3")},
		MinPercentage: &zero,
	})
	require.NoError(t, err)
	assert.Equal(t, groupID, split.GroupID)

	got, err := e.GetSplit(ctx, modelID)
	require.NoError(t, err)
	assert.Equal(t, "97", got.PercentFor(owner).String())
	assert.True(t, got.MinPercentagePerMember.IsZero())
}

func TestUserEarnings(t *testing.T) {
	ctx := context.Background()
	e, store := setup(t)
	configure(t, e)
	confirmed(t, store, models.PaymentTypeAPIUsage, "1100", "100", models.LinkToModel(modelID), time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))

	earnings, err := e.GetUserEarningsFromGroups(ctx, member, january)
	require.NoError(t, err)
	assert.Equal(t, "400", earnings.TotalEarnings.String())
	require.Len(t, earnings.ByModel, 1)
	assert.Equal(t, modelID, earnings.ByModel[0].ModelID)

	none, err := e.GetUserEarningsFromGroups(ctx, 77, january)
	require.NoError(t, err)
	assert.True(t, none.TotalEarnings.IsZero())
	assert.Empty(t, none.ByModel)
}

func TestDefaultSplit(t *testing.T) {
	e, store := setup(t)
	store.AddMember(groupID, 5, models.GroupRoleViewer)

	split, err := e.DefaultSplit(context.Background(), groupID)
	require.NoError(t, err)
	require.Len(t, split, 3)
	assert.Equal(t, "33.34", split[owner].String())
	assert.Equal(t, "33.33", split[member].String())
	assert.Equal(t, "33.33", split[5].String())
}

func TestMonthlyRevenue(t *testing.T) {
	e, store := setup(t)
	at := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	confirmed(t, store, models.PaymentTypeSubscription, "10", "3", models.LinkedEntity{}, at)
	confirmed(t, store, models.PaymentTypeAPIUsage, "20", "2", models.LinkToModel(modelID), at)
	confirmed(t, store, models.PaymentTypeJob, "40", "2", models.LinkToJob(1), at)

	m, err := e.MonthlyRevenue(context.Background(), january)
	require.NoError(t, err)
	assert.Equal(t, "10", m.SubscriptionGross.String())
	assert.Equal(t, "20", m.APIGross.String())
	assert.Equal(t, "18", m.APINet.String())
	assert.Equal(t, "40", m.OtherGross.String())
	assert.Equal(t, 1, m.SubscriptionPaymentCnt)
	assert.Equal(t, 1, m.APIPaymentCnt)
}
