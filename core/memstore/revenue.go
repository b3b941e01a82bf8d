package memstore

import (
	"context"
	"fmt"

	"aiforge-core/core/errs"
	"aiforge-core/core/ledger"
	"aiforge-core/core/models"

	"github.com/shopspring/decimal"
)

func copySplit(s *models.GroupRevenueSplit) *models.GroupRevenueSplit {
	c := *s
	c.Shares = make(map[int64]decimal.Decimal, len(s.Shares))
	for k, v := range s.Shares {
		c.Shares[k] = v
	}
	return &c
}

func (s *Store) GetSplit(_ context.Context, modelID int64) (*models.GroupRevenueSplit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	split, ok := s.splits[modelID]
	if !ok {
		return nil, fmt.Errorf("split for model %d: %w", modelID, errs.ErrNotFound)
	}
	return copySplit(split), nil
}

func (s *Store) UpsertSplit(_ context.Context, split *models.GroupRevenueSplit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.splits[split.ModelID]; ok {
		split.ID = existing.ID
		split.CreatedAt = existing.CreatedAt
	} else {
		split.ID = s.id()
	}
	s.splits[split.ModelID] = copySplit(split)
	return nil
}

func (s *Store) ListSplitsForModels(_ context.Context, modelIDs []int64) ([]*models.GroupRevenueSplit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.GroupRevenueSplit, 0, len(modelIDs))
	for _, id := range modelIDs {
		if split, ok := s.splits[id]; ok {
			out = append(out, copySplit(split))
		}
	}
	return out, nil
}

func (s *Store) GetDistribution(_ context.Context, modelID int64, period ledger.Period) (*models.RevenueDistribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.distributions[distKey{modelID, period}]
	if !ok {
		return nil, fmt.Errorf("distribution for model %d in %s: %w", modelID, period, errs.ErrNotFound)
	}
	c := *d
	return &c, nil
}

func (s *Store) CreateDistribution(_ context.Context, d *models.RevenueDistribution) (*models.RevenueDistribution, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := distKey{d.ModelID, ledger.Period{Year: d.PeriodYear, Month: d.PeriodMonth}}
	if existing, ok := s.distributions[key]; ok {
		c := *existing
		return &c, false, nil
	}
	d.ID = s.id()
	c := *d
	s.distributions[key] = &c
	out := c
	return &out, true, nil
}
