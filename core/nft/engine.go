package nft

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"aiforge-core/core/errs"
	"aiforge-core/core/ledger"
	"aiforge-core/core/models"
	"aiforge-core/core/monitoring"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// RewardBuilder turns a locked pool and the active shares into reward rows
type RewardBuilder = func(pool *models.NFTRewardPool, shares []*models.NFTShare) []*models.NFTReward

// Store persists shares, reward pools and rewards
type Store interface {
	ActiveShares(ctx context.Context) ([]*models.NFTShare, error)
	// CreateShare assigns the next share number. A duplicate token id fails with errs.ErrConflict.
	CreateShare(ctx context.Context, share *models.NFTShare) error
	SharesByOwner(ctx context.Context, userID *int64, wallet string) ([]*models.NFTShare, error)

	GetPool(ctx context.Context, period ledger.Period) (*models.NFTRewardPool, error)
	// CreatePool inserts pool unless one exists for the period, and returns the stored pool
	CreatePool(ctx context.Context, pool *models.NFTRewardPool) (*models.NFTRewardPool, error)

	// DistributeRewards locks the period's pool. When it is already
	// distributed the stored rewards are returned; otherwise the rewards from
	// build are inserted and the pool is marked distributed at the given time.
	DistributeRewards(ctx context.Context, period ledger.Period, at time.Time, build RewardBuilder) ([]*models.NFTReward, error)
	ListRewards(ctx context.Context, period ledger.Period) ([]*models.NFTReward, error)
	RewardsForShares(ctx context.Context, shareIDs []int64) ([]*models.NFTReward, error)
}

// RevenueSource supplies the confirmed revenue of a period
type RevenueSource interface {
	MonthlyRevenue(ctx context.Context, period ledger.Period) (*models.MonthlyRevenue, error)
}

// Engine computes and pays out the periodic reward pool of NFT share holders.
// Every active share weighs the same.
type Engine struct {
	store           Store
	revenue         RevenueSource
	subscriptionPct decimal.Decimal
	apiPct          decimal.Decimal
	metrics         *monitoring.Metrics
	now             func() time.Time
}

// NewEngine creates a reward engine. subscriptionPct and apiPct are the
// fractions of each revenue stream that go to the pool.
func NewEngine(store Store, revenue RevenueSource, subscriptionPct, apiPct decimal.Decimal, metrics *monitoring.Metrics) *Engine {
	return &Engine{
		store:           store,
		revenue:         revenue,
		subscriptionPct: subscriptionPct,
		apiPct:          apiPct,
		metrics:         metrics,
		now:             time.Now,
	}
}

// CalculateRewardPool returns the period's pool, creating it on first call.
// An existing pool is never recomputed, even when revenue changes later.
func (e *Engine) CalculateRewardPool(ctx context.Context, period ledger.Period) (*models.NFTRewardPool, error) {
	if err := period.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, errs.ErrValidation)
	}
	// a pool is frozen once stored, so the month must be over
	if _, end := period.Bounds(); e.now().Before(end) {
		return nil, fmt.Errorf("period %s has not ended: %w", period, errs.ErrValidation)
	}

	pool, err := e.store.GetPool(ctx, period)
	if err == nil {
		return pool, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	shares, err := e.store.ActiveShares(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count shares: %w", err)
	}

	pool = &models.NFTRewardPool{
		PeriodYear:               period.Year,
		PeriodMonth:              period.Month,
		SubscriptionRevenueShare: decimal.Zero,
		APIRevenueShare:          decimal.Zero,
		TotalPool:                decimal.Zero,
		TotalShares:              len(shares),
		RewardPerShare:           decimal.Zero,
		CalculatedAt:             e.now().UTC(),
	}

	if len(shares) > 0 {
		revenue, err := e.revenue.MonthlyRevenue(ctx, period)
		if err != nil {
			return nil, fmt.Errorf("failed to load revenue: %w", err)
		}
		pool.SubscriptionRevenueShare = revenue.SubscriptionGross.Mul(e.subscriptionPct).Round(ledger.TokenPlaces)
		pool.APIRevenueShare = revenue.APIGross.Mul(e.apiPct).Round(ledger.TokenPlaces)
		pool.TotalPool = pool.SubscriptionRevenueShare.Add(pool.APIRevenueShare)
		pool.RewardPerShare = pool.TotalPool.DivRound(decimal.NewFromInt(int64(len(shares))), ledger.TokenPlaces)
	}

	stored, err := e.store.CreatePool(ctx, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to store reward pool: %w", err)
	}
	return stored, nil
}

// DistributeRewards creates one reward per share counted in the pool at the
// frozen reward per share. Calling it again returns the same rewards.
func (e *Engine) DistributeRewards(ctx context.Context, period ledger.Period) ([]*models.NFTReward, error) {
	if _, err := e.CalculateRewardPool(ctx, period); err != nil {
		return nil, err
	}

	created := false
	rewards, err := e.store.DistributeRewards(ctx, period, e.now().UTC(), func(pool *models.NFTRewardPool, shares []*models.NFTShare) []*models.NFTReward {
		created = true
		return buildRewards(pool, shares)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to distribute rewards: %w", err)
	}

	if created {
		e.metrics.Distribution("nft")
		log.WithFields(log.Fields{"period": period.String(), "rewards": len(rewards)}).Info("nft rewards distributed")
	}
	return rewards, nil
}

// buildRewards pays the shares that existed when the pool was calculated,
// oldest first, up to the pool's share count
func buildRewards(pool *models.NFTRewardPool, shares []*models.NFTShare) []*models.NFTReward {
	if pool.TotalShares == 0 || !pool.TotalPool.IsPositive() {
		return nil
	}

	eligible := make([]*models.NFTShare, 0, len(shares))
	for _, s := range shares {
		if s.IsActive && !s.MintedAt.After(pool.CalculatedAt) {
			eligible = append(eligible, s)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ShareNumber < eligible[j].ShareNumber })
	if len(eligible) > pool.TotalShares {
		eligible = eligible[:pool.TotalShares]
	}

	pct := decimal.NewFromInt(100).DivRound(decimal.NewFromInt(int64(pool.TotalShares)), ledger.FiatPlaces)
	out := make([]*models.NFTReward, 0, len(eligible))
	for _, s := range eligible {
		out = append(out, &models.NFTReward{
			NFTShareID:       s.ID,
			PeriodYear:       pool.PeriodYear,
			PeriodMonth:      pool.PeriodMonth,
			RewardAmount:     pool.RewardPerShare,
			RewardPercentage: pct,
			TotalPoolAmount:  pool.TotalPool,
			TotalShares:      pool.TotalShares,
			PaymentStatus:    "pending",
		})
	}
	return out
}

// ShareMint describes a share minted on chain
type ShareMint struct {
	TokenID         int64  `json:"token_id"`
	OwnerWallet     string `json:"owner_wallet_address"`
	OwnerUserID     *int64 `json:"owner_user_id,omitempty"`
	ContractAddress string `json:"contract_address"`
	TxHash          string `json:"tx_hash,omitempty"`
	BlockNumber     *int64 `json:"block_number,omitempty"`
}

// RegisterShare records a minted share with the next sequential share number
func (e *Engine) RegisterShare(ctx context.Context, mint ShareMint) (*models.NFTShare, error) {
	if mint.TokenID <= 0 {
		return nil, fmt.Errorf("token_id must be positive: %w", errs.ErrValidation)
	}
	wallet := strings.TrimSpace(mint.OwnerWallet)
	if wallet == "" {
		return nil, fmt.Errorf("owner_wallet_address is required: %w", errs.ErrValidation)
	}
	if strings.HasPrefix(wallet, "0x") {
		wallet = strings.ToLower(wallet)
	}

	share := &models.NFTShare{
		TokenID:            mint.TokenID,
		OwnerWalletAddress: wallet,
		OwnerUserID:        mint.OwnerUserID,
		ContractAddress:    strings.ToLower(mint.ContractAddress),
		TxHash:             mint.TxHash,
		BlockNumber:        mint.BlockNumber,
		IsActive:           true,
		MintedAt:           e.now().UTC(),
	}
	if err := e.store.CreateShare(ctx, share); err != nil {
		return nil, err
	}
	return share, nil
}

// HolderRewards lists the rewards of a holder's shares, newest period first.
// userID takes precedence over wallet.
func (e *Engine) HolderRewards(ctx context.Context, userID *int64, wallet string) ([]*models.NFTReward, error) {
	if userID == nil && wallet == "" {
		return nil, fmt.Errorf("user id or wallet is required: %w", errs.ErrValidation)
	}
	if strings.HasPrefix(wallet, "0x") {
		wallet = strings.ToLower(wallet)
	}

	shares, err := e.store.SharesByOwner(ctx, userID, wallet)
	if err != nil {
		return nil, err
	}
	if len(shares) == 0 {
		return []*models.NFTReward{}, nil
	}

	ids := make([]int64, 0, len(shares))
	for _, s := range shares {
		ids = append(ids, s.ID)
	}
	rewards, err := e.store.RewardsForShares(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rewards, func(i, j int) bool {
		if rewards[i].PeriodYear != rewards[j].PeriodYear {
			return rewards[i].PeriodYear > rewards[j].PeriodYear
		}
		return rewards[i].PeriodMonth > rewards[j].PeriodMonth
	})
	return rewards, nil
}

// Rewards lists the rewards created for a period
func (e *Engine) Rewards(ctx context.Context, period ledger.Period) ([]*models.NFTReward, error) {
	if err := period.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", err, errs.ErrValidation)
	}
	return e.store.ListRewards(ctx, period)
}

// Stats summarizes active shares and distinct holders. The pool figures come
// from the last closed month since an open month has no pool yet.
func (e *Engine) Stats(ctx context.Context) (*models.NFTStats, error) {
	shares, err := e.store.ActiveShares(ctx)
	if err != nil {
		return nil, err
	}

	holders := map[string]struct{}{}
	for _, s := range shares {
		holders[s.OwnerWalletAddress] = struct{}{}
	}
	stats := &models.NFTStats{TotalShares: len(shares), TotalHolders: len(holders)}

	start, _ := ledger.PeriodOf(e.now()).Bounds()
	pool, err := e.store.GetPool(ctx, ledger.PeriodOf(start.AddDate(0, 0, -1)))
	switch {
	case err == nil:
		stats.CurrentPeriodPool = &pool.TotalPool
		stats.RewardPerShare = &pool.RewardPerShare
	case !errors.Is(err, errs.ErrNotFound):
		return nil, err
	}
	return stats, nil
}
