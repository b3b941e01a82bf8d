package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	"aiforge-core/core/ledger"
	"aiforge-core/core/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// RevenueRepository handles revenue splits and distribution snapshots
type RevenueRepository struct {
	db *DB
}

// NewRevenueRepository creates a new revenue repository
func NewRevenueRepository(db *DB) *RevenueRepository {
	return &RevenueRepository{db: db}
}

const splitColumns = `id, model_id, group_id, split_config, min_percentage, usage_bonus, created_at, updated_at`

// split_config is stored as {"<user id>": "<percent>"}
func encodeShares(shares map[int64]decimal.Decimal) (string, error) {
	m := make(map[string]decimal.Decimal, len(shares))
	for userID, pct := range shares {
		m[strconv.FormatInt(userID, 10)] = pct
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func decodeShares(raw []byte) (map[int64]decimal.Decimal, error) {
	var m map[string]decimal.Decimal
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	out := make(map[int64]decimal.Decimal, len(m))
	for k, v := range m {
		userID, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid member id %q: %w", k, err)
		}
		out[userID] = v
	}
	return out, nil
}

func scanSplit(row rowScanner) (*models.GroupRevenueSplit, error) {
	var s models.GroupRevenueSplit
	var config []byte
	err := row.Scan(&s.ID, &s.ModelID, &s.GroupID, &config, &s.MinPercentagePerMember,
		&s.UsageBonusPercent, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if s.Shares, err = decodeShares(config); err != nil {
		return nil, fmt.Errorf("decoding split of model %d: %w", s.ModelID, err)
	}
	return &s, nil
}

// GetSplit retrieves the split of a model
func (r *RevenueRepository) GetSplit(ctx context.Context, modelID int64) (*models.GroupRevenueSplit, error) {
	s, err := scanSplit(r.db.QueryRowContext(ctx,
		`SELECT `+splitColumns+` FROM group_revenue_splits WHERE model_id = $1`, modelID))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("split for model %d", modelID))
	}
	return s, nil
}

// UpsertSplit inserts or replaces the split of a model
func (r *RevenueRepository) UpsertSplit(ctx context.Context, split *models.GroupRevenueSplit) error {
	config, err := encodeShares(split.Shares)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO group_revenue_splits
			(model_id, group_id, split_config, min_percentage, usage_bonus, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (model_id) DO UPDATE SET
			group_id = EXCLUDED.group_id,
			split_config = EXCLUDED.split_config,
			min_percentage = EXCLUDED.min_percentage,
			usage_bonus = EXCLUDED.usage_bonus,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		split.ModelID,
		split.GroupID,
		config,
		split.MinPercentagePerMember,
		split.UsageBonusPercent,
		split.CreatedAt,
		split.UpdatedAt,
	).Scan(&split.ID, &split.CreatedAt)
	return mapError(err, fmt.Sprintf("split for model %d", split.ModelID))
}

// ListSplitsForModels returns the splits that exist among modelIDs
func (r *RevenueRepository) ListSplitsForModels(ctx context.Context, modelIDs []int64) ([]*models.GroupRevenueSplit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+splitColumns+` FROM group_revenue_splits WHERE model_id = ANY($1) ORDER BY model_id`,
		pq.Array(modelIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	splits := make([]*models.GroupRevenueSplit, 0)
	for rows.Next() {
		s, err := scanSplit(rows)
		if err != nil {
			return nil, err
		}
		splits = append(splits, s)
	}
	return splits, rows.Err()
}

const distributionColumns = `
	id, model_id, period_year, period_month, total_revenue, platform_fee,
	model_pool, distribution, is_distributed, distributed_at, created_at`

func scanDistribution(row rowScanner) (*models.RevenueDistribution, error) {
	var d models.RevenueDistribution
	var details []byte
	var distributedAt sql.NullTime
	err := row.Scan(&d.ID, &d.ModelID, &d.PeriodYear, &d.PeriodMonth, &d.TotalRevenue,
		&d.PlatformFee, &d.ModelPool, &details, &d.IsDistributed, &distributedAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.DistributedAt = timePtr(distributedAt)
	if err := scanJSON(details, &d.Details); err != nil {
		return nil, fmt.Errorf("decoding distribution %d: %w", d.ID, err)
	}
	return &d, nil
}

// GetDistribution retrieves the snapshot of a model for a period
func (r *RevenueRepository) GetDistribution(ctx context.Context, modelID int64, period ledger.Period) (*models.RevenueDistribution, error) {
	d, err := scanDistribution(r.db.QueryRowContext(ctx, `
		SELECT `+distributionColumns+` FROM revenue_distributions
		WHERE model_id = $1 AND period_year = $2 AND period_month = $3
	`, modelID, period.Year, period.Month))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("distribution for model %d in %s", modelID, period))
	}
	return d, nil
}

// CreateDistribution inserts d unless the period already has a snapshot, in
// which case the stored one is returned
func (r *RevenueRepository) CreateDistribution(ctx context.Context, d *models.RevenueDistribution) (*models.RevenueDistribution, bool, error) {
	details, err := jsonValue(d.Details)
	if err != nil {
		return nil, false, err
	}
	if details == nil {
		details = "[]"
	}

	stored, err := scanDistribution(r.db.QueryRowContext(ctx, `
		INSERT INTO revenue_distributions (
			model_id, period_year, period_month, total_revenue, platform_fee,
			model_pool, distribution, is_distributed, distributed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (model_id, period_year, period_month) DO NOTHING
		RETURNING `+distributionColumns,
		d.ModelID,
		d.PeriodYear,
		d.PeriodMonth,
		d.TotalRevenue,
		d.PlatformFee,
		d.ModelPool,
		details,
		d.IsDistributed,
		nullTime(d.DistributedAt),
		d.CreatedAt,
	))
	if err == sql.ErrNoRows {
		existing, err := r.GetDistribution(ctx, d.ModelID, ledger.Period{Year: d.PeriodYear, Month: d.PeriodMonth})
		return existing, false, err
	}
	if err != nil {
		return nil, false, mapError(err, fmt.Sprintf("distribution for model %d", d.ModelID))
	}
	return stored, true, nil
}
