package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NFTShare is one unit of platform ownership
type NFTShare struct {
	ID                 int64     `json:"id"`
	TokenID            int64     `json:"token_id"`
	OwnerWalletAddress string    `json:"owner_wallet_address"`
	OwnerUserID        *int64    `json:"owner_user_id,omitempty"`
	ShareNumber        int64     `json:"share_number"`
	ContractAddress    string    `json:"contract_address"`
	TxHash             string    `json:"tx_hash,omitempty"`
	BlockNumber        *int64    `json:"block_number,omitempty"`
	IsActive           bool      `json:"is_active"`
	MintedAt           time.Time `json:"minted_at"`
}

// NFTRewardPool is the reward pool of one period. At most one per period.
type NFTRewardPool struct {
	ID                       int64           `json:"id"`
	PeriodYear               int             `json:"period_year"`
	PeriodMonth              int             `json:"period_month"`
	SubscriptionRevenueShare decimal.Decimal `json:"subscription_revenue_share"`
	APIRevenueShare          decimal.Decimal `json:"api_revenue_share"`
	TotalPool                decimal.Decimal `json:"total_pool"`
	TotalShares              int             `json:"total_shares"`
	RewardPerShare           decimal.Decimal `json:"reward_per_share"`
	IsDistributed            bool            `json:"is_distributed"`
	CalculatedAt             time.Time       `json:"calculated_at"`
	DistributedAt            *time.Time      `json:"distributed_at,omitempty"`
}

// NFTReward is the frozen reward of one share for one period
type NFTReward struct {
	ID               int64           `json:"id"`
	NFTShareID       int64           `json:"nft_share_id"`
	PeriodYear       int             `json:"period_year"`
	PeriodMonth      int             `json:"period_month"`
	RewardAmount     decimal.Decimal `json:"reward_amount"`
	RewardPercentage decimal.Decimal `json:"reward_percentage"`
	TotalPoolAmount  decimal.Decimal `json:"total_pool_amount"`
	TotalShares      int             `json:"total_shares"`
	PaymentTxHash    string          `json:"payment_tx_hash,omitempty"`
	PaymentStatus    string          `json:"payment_status"`
	DistributedAt    *time.Time      `json:"distributed_at,omitempty"`
}

// NFTStats summarizes share ownership
type NFTStats struct {
	TotalShares       int              `json:"total_shares"`
	TotalHolders      int              `json:"total_holders"`
	CurrentPeriodPool *decimal.Decimal `json:"current_period_pool,omitempty"`
	RewardPerShare    *decimal.Decimal `json:"reward_per_share,omitempty"`
}
