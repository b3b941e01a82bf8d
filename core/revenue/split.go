package revenue

import (
	"context"
	"fmt"
	"sort"

	"aiforge-core/core/errs"
	"aiforge-core/core/ledger"
	"aiforge-core/core/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// SplitConfig is the input to ConfigureSplit. Percentages are 0-100.
type SplitConfig struct {
	Shares        map[int64]decimal.Decimal `json:"split_config"`
	MinPercentage *decimal.Decimal          `json:"min_percentage,omitempty"`
	UsageBonus    decimal.Decimal           `json:"usage_bonus"`
}

// ConfigureSplit creates or replaces the revenue split of a group model.
// The actor must be an owner or admin of the model's group.
func (e *Engine) ConfigureSplit(ctx context.Context, actorUserID, modelID int64, cfg SplitConfig) (*models.GroupRevenueSplit, error) {
	groupID, err := e.catalog.ModelGroup(ctx, modelID)
	if err != nil {
		return nil, err
	}
	if groupID == 0 {
		return nil, fmt.Errorf("model %d does not belong to a group: %w", modelID, errs.ErrValidation)
	}

	members, err := e.catalog.GroupMembers(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group members: %w", err)
	}
	if role, ok := members[actorUserID]; !ok || !role.CanManage() {
		log.WithFields(log.Fields{"user_id": actorUserID, "group_id": groupID, "model_id": modelID}).Warn("split change denied")
		return nil, fmt.Errorf("user %d cannot manage group %d: %w", actorUserID, groupID, errs.ErrForbidden)
	}

	minPct := e.minSplitPercent
	if cfg.MinPercentage != nil {
		minPct = *cfg.MinPercentage
	}
	if err := validateSplit(cfg.Shares, members, minPct); err != nil {
		return nil, err
	}
	if cfg.UsageBonus.IsNegative() {
		return nil, fmt.Errorf("usage_bonus must not be negative: %w", errs.ErrValidation)
	}

	split := &models.GroupRevenueSplit{
		ModelID:                modelID,
		GroupID:                groupID,
		Shares:                 cfg.Shares,
		MinPercentagePerMember: minPct,
		UsageBonusPercent:      cfg.UsageBonus,
		CreatedAt:              e.now().UTC(),
		UpdatedAt:              e.now().UTC(),
	}
	if err := e.store.UpsertSplit(ctx, split); err != nil {
		return nil, fmt.Errorf("failed to save split: %w", err)
	}

	log.WithFields(log.Fields{"model_id": modelID, "members": len(cfg.Shares)}).Info("revenue split configured")
	return split, nil
}

func validateSplit(shares map[int64]decimal.Decimal, members map[int64]models.GroupRole, minPct decimal.Decimal) error {
	if len(shares) == 0 {
		return fmt.Errorf("split_config must name at least one member: %w", errs.ErrValidation)
	}
	if minPct.IsNegative() || minPct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("min_percentage must be between 0 and 100: %w", errs.ErrValidation)
	}

	percents := make([]decimal.Decimal, 0, len(shares))
	for userID, pct := range shares {
		if _, ok := members[userID]; !ok {
			return fmt.Errorf("user %d is not a member of the group: %w", userID, errs.ErrValidation)
		}
		if pct.LessThan(minPct) {
			return fmt.Errorf("user %d has %s%% which is below minimum %s%%: %w", userID, pct, minPct, errs.ErrValidation)
		}
		percents = append(percents, pct)
	}

	if total, ok := ledger.SumsToHundred(percents); !ok {
		return fmt.Errorf("split percentages must sum to 100%%, got %s%%: %w", total, errs.ErrValidation)
	}
	return nil
}

// GetSplit returns the split configured for a model
func (e *Engine) GetSplit(ctx context.Context, modelID int64) (*models.GroupRevenueSplit, error) {
	return e.store.GetSplit(ctx, modelID)
}

// DefaultSplit proposes an equal split across the group's current members.
// Percentages are rounded to hundredths and still sum to exactly 100.
func (e *Engine) DefaultSplit(ctx context.Context, groupID int64) (map[int64]decimal.Decimal, error) {
	members, err := e.catalog.GroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return map[int64]decimal.Decimal{}, nil
	}

	ids := make([]int64, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	equal := decimal.NewFromInt(100).DivRound(decimal.NewFromInt(int64(len(ids))), 4)
	percents := make(map[int64]decimal.Decimal, len(ids))
	for _, id := range ids {
		percents[id] = equal
	}
	return ledger.Allocate(decimal.NewFromInt(100), percents, ledger.FiatPlaces), nil
}
