// Package revenue derives per-model and per-member earnings from confirmed
// payments and freezes them into distribution snapshots.
package revenue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"aiforge-core/core/errs"
	"aiforge-core/core/ledger"
	"aiforge-core/core/models"
	"aiforge-core/core/monitoring"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Store persists splits and distribution snapshots
type Store interface {
	GetSplit(ctx context.Context, modelID int64) (*models.GroupRevenueSplit, error)
	UpsertSplit(ctx context.Context, split *models.GroupRevenueSplit) error
	ListSplitsForModels(ctx context.Context, modelIDs []int64) ([]*models.GroupRevenueSplit, error)
	GetDistribution(ctx context.Context, modelID int64, period ledger.Period) (*models.RevenueDistribution, error)

	// CreateDistribution inserts d unless a row already exists for the same
	// model and period. It returns the stored row and whether d was inserted.
	CreateDistribution(ctx context.Context, d *models.RevenueDistribution) (*models.RevenueDistribution, bool, error)
}

// Catalog reads the group, model and API usage tables owned by the wider application
type Catalog interface {
	// ModelGroup returns the owning group of a model, 0 for personal models
	ModelGroup(ctx context.Context, modelID int64) (int64, error)
	GroupMembers(ctx context.Context, groupID int64) (map[int64]models.GroupRole, error)
	UserGroupModels(ctx context.Context, userID int64) ([]int64, error)
	APISubscriptionModel(ctx context.Context, apiSubscriptionID int64) (int64, error)
	// ModelUsage counts successful API requests per model in [from, to)
	ModelUsage(ctx context.Context, from, to time.Time) (map[int64]int64, error)
}

// PaymentSource lists confirmed payments
type PaymentSource interface {
	ConfirmedPayments(ctx context.Context, from, to time.Time, types ...models.PaymentType) ([]*models.Payment, error)
}

// Engine computes revenue breakdowns. Everything except Distribute is a
// pure derivation over confirmed payments.
type Engine struct {
	store           Store
	catalog         Catalog
	payments        PaymentSource
	metrics         *monitoring.Metrics
	minSplitPercent decimal.Decimal
	now             func() time.Time
}

// NewEngine creates a revenue engine. minSplitPercent is the default minimum
// share of a member when a split does not set its own.
func NewEngine(store Store, catalog Catalog, payments PaymentSource, metrics *monitoring.Metrics, minSplitPercent decimal.Decimal) *Engine {
	return &Engine{
		store:           store,
		catalog:         catalog,
		payments:        payments,
		metrics:         metrics,
		minSplitPercent: minSplitPercent,
		now:             time.Now,
	}
}

// SubscriptionPool sums the period's confirmed subscription payments and
// divides the model pool (gross minus platform fee) among models in
// proportion to their successful API requests.
func (e *Engine) SubscriptionPool(ctx context.Context, period ledger.Period) (*models.SubscriptionPool, error) {
	if err := period.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, errs.ErrValidation)
	}
	from, to := period.Bounds()

	payments, err := e.payments.ConfirmedPayments(ctx, from, to, models.PaymentTypeSubscription)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription payments: %w", err)
	}

	pool := &models.SubscriptionPool{
		Period:       period.String(),
		GrossRevenue: decimal.Zero,
		PlatformFee:  decimal.Zero,
		ModelShares:  map[int64]decimal.Decimal{},
	}
	for _, p := range payments {
		pool.GrossRevenue = pool.GrossRevenue.Add(p.Amount)
		pool.PlatformFee = pool.PlatformFee.Add(p.PlatformFeeAmount)
	}
	pool.ModelPool = pool.GrossRevenue.Sub(pool.PlatformFee)

	usage, err := e.catalog.ModelUsage(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load model usage: %w", err)
	}
	for _, n := range usage {
		pool.TotalUsage += n
	}
	for modelID, n := range usage {
		pool.ModelShares[modelID] = ledger.Proportion(pool.ModelPool, n, pool.TotalUsage, ledger.TokenPlaces)
	}
	return pool, nil
}

// usageRevenue is a model's API revenue for a period
type usageRevenue struct {
	Gross decimal.Decimal
	Fee   decimal.Decimal
	Net   decimal.Decimal
}

// modelUsageRevenue sums confirmed API payments linked to the model either
// directly or through one of its API subscriptions
func (e *Engine) modelUsageRevenue(ctx context.Context, modelID int64, period ledger.Period) (usageRevenue, error) {
	from, to := period.Bounds()
	out := usageRevenue{Gross: decimal.Zero, Fee: decimal.Zero, Net: decimal.Zero}

	payments, err := e.payments.ConfirmedPayments(ctx, from, to, models.PaymentTypeAPIUsage, models.PaymentTypeAPISubscription)
	if err != nil {
		return out, fmt.Errorf("failed to load api payments: %w", err)
	}

	subModels := map[int64]int64{}
	for _, p := range payments {
		linked, err := e.linkedModel(ctx, p.Linked, subModels)
		if err != nil {
			return out, err
		}
		if linked != modelID {
			continue
		}
		out.Gross = out.Gross.Add(p.Amount)
		out.Fee = out.Fee.Add(p.PlatformFeeAmount)
		out.Net = out.Net.Add(p.NetAmount)
	}
	return out, nil
}

func (e *Engine) linkedModel(ctx context.Context, link models.LinkedEntity, cache map[int64]int64) (int64, error) {
	switch link.Kind {
	case models.LinkModel:
		return link.ID, nil
	case models.LinkAPISubscription:
		if id, ok := cache[link.ID]; ok {
			return id, nil
		}
		id, err := e.catalog.APISubscriptionModel(ctx, link.ID)
		if errors.Is(err, errs.ErrNotFound) {
			id, err = 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to resolve api subscription %d: %w", link.ID, err)
		}
		cache[link.ID] = id
		return id, nil
	}
	return 0, nil
}

// CalculateGroupRevenueDistribution derives the model's net revenue for the
// period and splits it by the configured member percentages. Percentages
// apply to the combined subscription share and usage revenue.
func (e *Engine) CalculateGroupRevenueDistribution(ctx context.Context, modelID int64, period ledger.Period) (*models.RevenueBreakdown, error) {
	if err := period.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, errs.ErrValidation)
	}

	split, err := e.store.GetSplit(ctx, modelID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("no revenue split configured for model %d: %w", modelID, errs.ErrNotFound)
		}
		return nil, err
	}

	pool, err := e.SubscriptionPool(ctx, period)
	if err != nil {
		return nil, err
	}
	subscriptionShare, ok := pool.ModelShares[modelID]
	if !ok {
		subscriptionShare = decimal.Zero
	}

	usage, err := e.modelUsageRevenue(ctx, modelID, period)
	if err != nil {
		return nil, err
	}

	total := subscriptionShare.Add(usage.Net)
	return &models.RevenueBreakdown{
		ModelID:           modelID,
		Period:            period.String(),
		TotalRevenue:      total,
		SubscriptionShare: subscriptionShare,
		UsageRevenue:      usage.Net,
		UsageGross:        usage.Gross,
		UsagePlatformFee:  usage.Fee,
		Distribution:      memberShares(total, split.Shares),
	}, nil
}

func memberShares(total decimal.Decimal, percents map[int64]decimal.Decimal) []models.MemberShare {
	amounts := ledger.Allocate(total, percents, ledger.TokenPlaces)

	out := make([]models.MemberShare, 0, len(amounts))
	for userID, amount := range amounts {
		out = append(out, models.MemberShare{
			UserID:     userID,
			Percentage: percents[userID],
			Amount:     amount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// DistributeRevenue freezes the model's breakdown for a finished period.
// A period is distributed at most once; later calls return the first
// snapshot unchanged.
func (e *Engine) DistributeRevenue(ctx context.Context, modelID int64, period ledger.Period) (*models.RevenueDistribution, error) {
	if err := period.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, errs.ErrValidation)
	}
	if _, end := period.Bounds(); e.now().Before(end) {
		return nil, fmt.Errorf("period %s has not ended: %w", period, errs.ErrValidation)
	}

	existing, err := e.store.GetDistribution(ctx, modelID, period)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	breakdown, err := e.CalculateGroupRevenueDistribution(ctx, modelID, period)
	if err != nil {
		return nil, err
	}
	pool, err := e.SubscriptionPool(ctx, period)
	if err != nil {
		return nil, err
	}

	now := e.now().UTC()
	dist := &models.RevenueDistribution{
		ModelID:       modelID,
		PeriodYear:    period.Year,
		PeriodMonth:   period.Month,
		TotalRevenue:  breakdown.TotalRevenue,
		PlatformFee:   pool.PlatformFee,
		ModelPool:     pool.ModelPool,
		Details:       breakdown.Distribution,
		IsDistributed: true,
		DistributedAt: &now,
		CreatedAt:     now,
	}

	stored, created, err := e.store.CreateDistribution(ctx, dist)
	if err != nil {
		return nil, fmt.Errorf("failed to store distribution: %w", err)
	}
	if created {
		e.metrics.Distribution("revenue")
		log.WithFields(log.Fields{
			"model_id": modelID,
			"period":   period.String(),
			"total":    stored.TotalRevenue.String(),
		}).Info("revenue distributed")
	}
	return stored, nil
}

// GetDistribution returns the frozen snapshot of a period
func (e *Engine) GetDistribution(ctx context.Context, modelID int64, period ledger.Period) (*models.RevenueDistribution, error) {
	if err := period.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, errs.ErrValidation)
	}
	return e.store.GetDistribution(ctx, modelID, period)
}

// GetUserEarningsFromGroups sums the user's share of every group model in
// which they hold a non-zero percentage
func (e *Engine) GetUserEarningsFromGroups(ctx context.Context, userID int64, period ledger.Period) (*models.UserEarnings, error) {
	out := &models.UserEarnings{
		UserID:        userID,
		Period:        period.String(),
		TotalEarnings: decimal.Zero,
		ByModel:       []models.ModelEarning{},
	}

	modelIDs, err := e.catalog.UserGroupModels(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group models: %w", err)
	}
	if len(modelIDs) == 0 {
		return out, nil
	}

	splits, err := e.store.ListSplitsForModels(ctx, modelIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load splits: %w", err)
	}
	sort.Slice(splits, func(i, j int) bool { return splits[i].ModelID < splits[j].ModelID })

	for _, split := range splits {
		pct := split.PercentFor(userID)
		if !pct.IsPositive() {
			continue
		}
		breakdown, err := e.CalculateGroupRevenueDistribution(ctx, split.ModelID, period)
		if err != nil {
			return nil, err
		}
		earned := decimal.Zero
		for _, share := range breakdown.Distribution {
			if share.UserID == userID {
				earned = share.Amount
			}
		}
		out.TotalEarnings = out.TotalEarnings.Add(earned)
		out.ByModel = append(out.ByModel, models.ModelEarning{
			ModelID:    split.ModelID,
			Percentage: pct,
			Earnings:   earned,
		})
	}
	return out, nil
}

// MonthlyRevenue summarizes the period's confirmed revenue by stream
func (e *Engine) MonthlyRevenue(ctx context.Context, period ledger.Period) (*models.MonthlyRevenue, error) {
	if err := period.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, errs.ErrValidation)
	}
	from, to := period.Bounds()

	payments, err := e.payments.ConfirmedPayments(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}

	out := &models.MonthlyRevenue{
		Period:            period.String(),
		SubscriptionGross: decimal.Zero,
		SubscriptionFee:   decimal.Zero,
		APIGross:          decimal.Zero,
		APIFee:            decimal.Zero,
		APINet:            decimal.Zero,
		OtherGross:        decimal.Zero,
		OtherFee:          decimal.Zero,
	}
	for _, p := range payments {
		switch {
		case p.Type == models.PaymentTypeSubscription:
			out.SubscriptionGross = out.SubscriptionGross.Add(p.Amount)
			out.SubscriptionFee = out.SubscriptionFee.Add(p.PlatformFeeAmount)
			out.SubscriptionPaymentCnt++
		case p.Type.IsAPI():
			out.APIGross = out.APIGross.Add(p.Amount)
			out.APIFee = out.APIFee.Add(p.PlatformFeeAmount)
			out.APINet = out.APINet.Add(p.NetAmount)
			out.APIPaymentCnt++
		default:
			out.OtherGross = out.OtherGross.Add(p.Amount)
			out.OtherFee = out.OtherFee.Add(p.PlatformFeeAmount)
		}
	}
	return out, nil
}
