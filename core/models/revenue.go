package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GroupRevenueSplit distributes a group model's net earnings among members
type GroupRevenueSplit struct {
	ID                     int64                     `json:"-"`
	ModelID                int64                     `json:"model_id"`
	GroupID                int64                     `json:"group_id"`
	Shares                 map[int64]decimal.Decimal `json:"split_config"` // user id -> percentage (0-100)
	MinPercentagePerMember decimal.Decimal           `json:"min_percentage"`
	UsageBonusPercent      decimal.Decimal           `json:"usage_bonus"`
	CreatedAt              time.Time                 `json:"created_at"`
	UpdatedAt              time.Time                 `json:"updated_at"`
}

// PercentFor returns the user's configured percentage, zero when absent
func (s *GroupRevenueSplit) PercentFor(userID int64) decimal.Decimal {
	if p, ok := s.Shares[userID]; ok {
		return p
	}
	return decimal.Zero
}

// MemberShare is one member's slice of a model's revenue
type MemberShare struct {
	UserID     int64           `json:"user_id"`
	Percentage decimal.Decimal `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
}

// RevenueBreakdown is the derived revenue of one model for one period
type RevenueBreakdown struct {
	ModelID           int64           `json:"model_id"`
	Period            string          `json:"period"`
	TotalRevenue      decimal.Decimal `json:"total_revenue"`      // net, platform fees removed
	SubscriptionShare decimal.Decimal `json:"subscription_share"` // from the model pool
	UsageRevenue      decimal.Decimal `json:"usage_revenue"`      // net of the API fee
	UsageGross        decimal.Decimal `json:"usage_gross_revenue"`
	UsagePlatformFee  decimal.Decimal `json:"usage_platform_fee"`
	Distribution      []MemberShare   `json:"distribution"`
}

// RevenueDistribution is the write-once snapshot of a distributed period
type RevenueDistribution struct {
	ID            int64           `json:"id"`
	ModelID       int64           `json:"model_id"`
	PeriodYear    int             `json:"period_year"`
	PeriodMonth   int             `json:"period_month"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	PlatformFee   decimal.Decimal `json:"platform_fee"`
	ModelPool     decimal.Decimal `json:"model_pool"`
	Details       []MemberShare   `json:"distribution"`
	IsDistributed bool            `json:"is_distributed"`
	DistributedAt *time.Time      `json:"distributed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// SubscriptionPool is the platform-wide subscription revenue of a period
type SubscriptionPool struct {
	Period       string                    `json:"period"`
	GrossRevenue decimal.Decimal           `json:"total_revenue"`
	PlatformFee  decimal.Decimal           `json:"platform_fee"`
	ModelPool    decimal.Decimal           `json:"model_pool"`
	TotalUsage   int64                     `json:"total_usage"`
	ModelShares  map[int64]decimal.Decimal `json:"model_shares"`
}

// MonthlyRevenue summarizes confirmed revenue of a period
type MonthlyRevenue struct {
	Period                 string          `json:"period"`
	SubscriptionGross      decimal.Decimal `json:"subscription_revenue"`
	SubscriptionFee        decimal.Decimal `json:"subscription_platform_fee"`
	APIGross               decimal.Decimal `json:"api_revenue"`
	APIFee                 decimal.Decimal `json:"api_platform_fee"`
	APINet                 decimal.Decimal `json:"api_net_revenue"`
	OtherGross             decimal.Decimal `json:"other_revenue"`
	OtherFee               decimal.Decimal `json:"other_platform_fee"`
	SubscriptionPaymentCnt int             `json:"subscription_payments"`
	APIPaymentCnt          int             `json:"api_payments"`
}

// UserEarnings is a user's derived earnings across group models
type UserEarnings struct {
	UserID        int64           `json:"user_id"`
	Period        string          `json:"period"`
	TotalEarnings decimal.Decimal `json:"total_earnings"`
	ByModel       []ModelEarning  `json:"by_model"`
}

// ModelEarning is a user's earning from one model
type ModelEarning struct {
	ModelID    int64           `json:"model_id"`
	Percentage decimal.Decimal `json:"percentage"`
	Earnings   decimal.Decimal `json:"earnings"`
}
