package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"aiforge-core/core/ledger"
	"aiforge-core/core/models"
	"aiforge-core/core/nft"

	"github.com/lib/pq"
)

// NFTRepository handles NFT shares, reward pools and rewards
type NFTRepository struct {
	db *DB
}

// NewNFTRepository creates a new NFT repository
func NewNFTRepository(db *DB) *NFTRepository {
	return &NFTRepository{db: db}
}

const shareColumns = `
	id, token_id, owner_wallet_address, owner_user_id, share_number,
	contract_address, tx_hash, block_number, is_active, minted_at`

func scanShare(row rowScanner) (*models.NFTShare, error) {
	var s models.NFTShare
	var userID, block sql.NullInt64
	err := row.Scan(&s.ID, &s.TokenID, &s.OwnerWalletAddress, &userID, &s.ShareNumber,
		&s.ContractAddress, &s.TxHash, &block, &s.IsActive, &s.MintedAt)
	if err != nil {
		return nil, err
	}
	s.OwnerUserID = int64Ptr(userID)
	s.BlockNumber = int64Ptr(block)
	return &s, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func listShares(ctx context.Context, q querier, query string, args ...interface{}) ([]*models.NFTShare, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shares := make([]*models.NFTShare, 0)
	for rows.Next() {
		s, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		shares = append(shares, s)
	}
	return shares, rows.Err()
}

// ActiveShares lists active shares by share number
func (r *NFTRepository) ActiveShares(ctx context.Context) ([]*models.NFTShare, error) {
	return listShares(ctx, r.db, `SELECT `+shareColumns+` FROM nft_shares WHERE is_active ORDER BY share_number`)
}

// CreateShare inserts a share with the next share number. The table lock
// serializes numbering between concurrent mints.
func (r *NFTRepository) CreateShare(ctx context.Context, share *models.NFTShare) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `LOCK TABLE nft_shares IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO nft_shares (
				token_id, owner_wallet_address, owner_user_id, share_number,
				contract_address, tx_hash, block_number, is_active, minted_at
			)
			SELECT $1, $2, $3, COALESCE(MAX(share_number), 0) + 1, $4, $5, $6, $7, $8
			FROM nft_shares
			RETURNING id, share_number
		`,
			share.TokenID,
			share.OwnerWalletAddress,
			nullInt64(share.OwnerUserID),
			share.ContractAddress,
			share.TxHash,
			nullInt64(share.BlockNumber),
			share.IsActive,
			share.MintedAt,
		).Scan(&share.ID, &share.ShareNumber)
		return mapError(err, fmt.Sprintf("token %d", share.TokenID))
	})
}

// SharesByOwner lists active shares of a user, or of a wallet when userID is nil
func (r *NFTRepository) SharesByOwner(ctx context.Context, userID *int64, wallet string) ([]*models.NFTShare, error) {
	if userID != nil {
		return listShares(ctx, r.db, `
			SELECT `+shareColumns+` FROM nft_shares
			WHERE is_active AND owner_user_id = $1 ORDER BY share_number`, *userID)
	}
	return listShares(ctx, r.db, `
		SELECT `+shareColumns+` FROM nft_shares
		WHERE is_active AND owner_wallet_address = $1 ORDER BY share_number`, wallet)
}

const poolColumns = `
	id, period_year, period_month, subscription_revenue_share, api_revenue_share,
	total_pool, total_shares, reward_per_share, is_distributed, calculated_at, distributed_at`

func scanPool(row rowScanner) (*models.NFTRewardPool, error) {
	var p models.NFTRewardPool
	var distributedAt sql.NullTime
	err := row.Scan(&p.ID, &p.PeriodYear, &p.PeriodMonth, &p.SubscriptionRevenueShare,
		&p.APIRevenueShare, &p.TotalPool, &p.TotalShares, &p.RewardPerShare,
		&p.IsDistributed, &p.CalculatedAt, &distributedAt)
	if err != nil {
		return nil, err
	}
	p.DistributedAt = timePtr(distributedAt)
	return &p, nil
}

// GetPool retrieves the reward pool of a period
func (r *NFTRepository) GetPool(ctx context.Context, period ledger.Period) (*models.NFTRewardPool, error) {
	p, err := scanPool(r.db.QueryRowContext(ctx,
		`SELECT `+poolColumns+` FROM nft_reward_pools WHERE period_year = $1 AND period_month = $2`,
		period.Year, period.Month))
	if err != nil {
		return nil, mapError(err, "reward pool "+period.String())
	}
	return p, nil
}

// CreatePool inserts pool unless the period already has one and returns the stored pool
func (r *NFTRepository) CreatePool(ctx context.Context, pool *models.NFTRewardPool) (*models.NFTRewardPool, error) {
	stored, err := scanPool(r.db.QueryRowContext(ctx, `
		INSERT INTO nft_reward_pools (
			period_year, period_month, subscription_revenue_share, api_revenue_share,
			total_pool, total_shares, reward_per_share, is_distributed, calculated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)
		ON CONFLICT (period_year, period_month) DO NOTHING
		RETURNING `+poolColumns,
		pool.PeriodYear,
		pool.PeriodMonth,
		pool.SubscriptionRevenueShare,
		pool.APIRevenueShare,
		pool.TotalPool,
		pool.TotalShares,
		pool.RewardPerShare,
		pool.CalculatedAt,
	))
	if err == sql.ErrNoRows {
		return r.GetPool(ctx, ledger.Period{Year: pool.PeriodYear, Month: pool.PeriodMonth})
	}
	if err != nil {
		return nil, mapError(err, "reward pool")
	}
	return stored, nil
}

// DistributeRewards locks the pool row and writes the rewards from build
// unless the period was already distributed
func (r *NFTRepository) DistributeRewards(ctx context.Context, period ledger.Period, at time.Time, build nft.RewardBuilder) ([]*models.NFTReward, error) {
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		pool, err := scanPool(tx.QueryRowContext(ctx, `
			SELECT `+poolColumns+` FROM nft_reward_pools
			WHERE period_year = $1 AND period_month = $2 FOR UPDATE
		`, period.Year, period.Month))
		if err != nil {
			return mapError(err, "reward pool "+period.String())
		}
		if pool.IsDistributed {
			return nil
		}

		shares, err := listShares(ctx, tx, `SELECT `+shareColumns+` FROM nft_shares WHERE is_active ORDER BY share_number`)
		if err != nil {
			return err
		}

		for _, reward := range build(pool, shares) {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO nft_rewards (
					nft_share_id, period_year, period_month, reward_amount, reward_percentage,
					total_pool_amount, total_shares, payment_tx_hash, payment_status, distributed_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`,
				reward.NFTShareID,
				reward.PeriodYear,
				reward.PeriodMonth,
				reward.RewardAmount,
				reward.RewardPercentage,
				reward.TotalPoolAmount,
				reward.TotalShares,
				reward.PaymentTxHash,
				reward.PaymentStatus,
				at,
			)
			if err != nil {
				return mapError(err, fmt.Sprintf("reward of share %d", reward.NFTShareID))
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE nft_reward_pools SET is_distributed = TRUE, distributed_at = $2 WHERE id = $1`,
			pool.ID, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.ListRewards(ctx, period)
}

const rewardColumns = `
	id, nft_share_id, period_year, period_month, reward_amount, reward_percentage,
	total_pool_amount, total_shares, payment_tx_hash, payment_status, distributed_at`

func (r *NFTRepository) listRewards(ctx context.Context, query string, args ...interface{}) ([]*models.NFTReward, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rewards := make([]*models.NFTReward, 0)
	for rows.Next() {
		var rw models.NFTReward
		var distributedAt sql.NullTime
		err := rows.Scan(&rw.ID, &rw.NFTShareID, &rw.PeriodYear, &rw.PeriodMonth,
			&rw.RewardAmount, &rw.RewardPercentage, &rw.TotalPoolAmount, &rw.TotalShares,
			&rw.PaymentTxHash, &rw.PaymentStatus, &distributedAt)
		if err != nil {
			return nil, err
		}
		rw.DistributedAt = timePtr(distributedAt)
		rewards = append(rewards, &rw)
	}
	return rewards, rows.Err()
}

// ListRewards lists the rewards of a period
func (r *NFTRepository) ListRewards(ctx context.Context, period ledger.Period) ([]*models.NFTReward, error) {
	return r.listRewards(ctx, `
		SELECT `+rewardColumns+` FROM nft_rewards
		WHERE period_year = $1 AND period_month = $2 ORDER BY id
	`, period.Year, period.Month)
}

// RewardsForShares lists every reward paid to the given shares
func (r *NFTRepository) RewardsForShares(ctx context.Context, shareIDs []int64) ([]*models.NFTReward, error) {
	return r.listRewards(ctx, `
		SELECT `+rewardColumns+` FROM nft_rewards WHERE nft_share_id = ANY($1) ORDER BY id
	`, pq.Array(shareIDs))
}
