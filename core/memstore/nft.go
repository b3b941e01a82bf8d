package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"aiforge-core/core/errs"
	"aiforge-core/core/ledger"
	"aiforge-core/core/models"
)

func (s *Store) ActiveShares(_ context.Context) ([]*models.NFTShare, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeShares(), nil
}

// activeShares copies the active shares ordered by share number. Callers hold mu.
func (s *Store) activeShares() []*models.NFTShare {
	out := make([]*models.NFTShare, 0, len(s.shares))
	for _, sh := range s.shares {
		if sh.IsActive {
			c := *sh
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShareNumber < out[j].ShareNumber })
	return out
}

func (s *Store) CreateShare(_ context.Context, share *models.NFTShare) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var maxNumber int64
	for _, sh := range s.shares {
		if sh.TokenID == share.TokenID {
			return fmt.Errorf("token %d already registered: %w", share.TokenID, errs.ErrConflict)
		}
		if sh.ShareNumber > maxNumber {
			maxNumber = sh.ShareNumber
		}
	}
	share.ID = s.id()
	share.ShareNumber = maxNumber + 1
	c := *share
	s.shares = append(s.shares, &c)
	return nil
}

func (s *Store) SharesByOwner(_ context.Context, userID *int64, wallet string) ([]*models.NFTShare, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.NFTShare, 0)
	for _, sh := range s.activeShares() {
		switch {
		case userID != nil:
			if sh.OwnerUserID != nil && *sh.OwnerUserID == *userID {
				out = append(out, sh)
			}
		case sh.OwnerWalletAddress == wallet:
			out = append(out, sh)
		}
	}
	return out, nil
}

func (s *Store) GetPool(_ context.Context, period ledger.Period) (*models.NFTRewardPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[period]
	if !ok {
		return nil, fmt.Errorf("reward pool %s: %w", period, errs.ErrNotFound)
	}
	c := *p
	return &c, nil
}

func (s *Store) CreatePool(_ context.Context, pool *models.NFTRewardPool) (*models.NFTRewardPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	period := ledger.Period{Year: pool.PeriodYear, Month: pool.PeriodMonth}
	if existing, ok := s.pools[period]; ok {
		c := *existing
		return &c, nil
	}
	pool.ID = s.id()
	c := *pool
	s.pools[period] = &c
	out := c
	return &out, nil
}

func (s *Store) DistributeRewards(_ context.Context, period ledger.Period, at time.Time, build func(pool *models.NFTRewardPool, shares []*models.NFTShare) []*models.NFTReward) ([]*models.NFTReward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, ok := s.pools[period]
	if !ok {
		return nil, fmt.Errorf("reward pool %s: %w", period, errs.ErrNotFound)
	}
	if pool.IsDistributed {
		return s.rewardsFor(period), nil
	}

	poolCopy := *pool
	for _, r := range build(&poolCopy, s.activeShares()) {
		r.ID = s.id()
		r.DistributedAt = &at
		c := *r
		s.rewards = append(s.rewards, &c)
	}
	pool.IsDistributed = true
	pool.DistributedAt = &at
	return s.rewardsFor(period), nil
}

// rewardsFor copies the rewards of a period. Callers hold mu.
func (s *Store) rewardsFor(period ledger.Period) []*models.NFTReward {
	out := make([]*models.NFTReward, 0)
	for _, r := range s.rewards {
		if r.PeriodYear == period.Year && r.PeriodMonth == period.Month {
			c := *r
			out = append(out, &c)
		}
	}
	return out
}

func (s *Store) ListRewards(_ context.Context, period ledger.Period) ([]*models.NFTReward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rewardsFor(period), nil
}

func (s *Store) RewardsForShares(_ context.Context, shareIDs []int64) ([]*models.NFTReward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := map[int64]bool{}
	for _, id := range shareIDs {
		wanted[id] = true
	}
	out := make([]*models.NFTReward, 0)
	for _, r := range s.rewards {
		if wanted[r.NFTShareID] {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}
