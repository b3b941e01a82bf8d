package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"aiforge-core/core/errs"
	"aiforge-core/core/models"
)

// AddModel registers a model owned by groupID (0 for a personal model)
func (s *Store) AddModel(modelID, groupID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelGroups[modelID] = groupID
}

// AddMember adds userID to groupID with role
func (s *Store) AddMember(groupID, userID int64, role models.GroupRole) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.members[groupID] == nil {
		s.members[groupID] = map[int64]models.GroupRole{}
	}
	s.members[groupID][userID] = role
}

// AddAPISubscription links an API subscription to the model it serves
func (s *Store) AddAPISubscription(subscriptionID, modelID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiSubs[subscriptionID] = modelID
}

// RecordAPIRequest logs one API request against a model
func (s *Store) RecordAPIRequest(modelID int64, at time.Time, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, apiRequest{modelID: modelID, at: at, success: success})
}

func (s *Store) ModelGroup(_ context.Context, modelID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groupID, ok := s.modelGroups[modelID]
	if !ok {
		return 0, fmt.Errorf("model %d: %w", modelID, errs.ErrNotFound)
	}
	return groupID, nil
}

func (s *Store) GroupMembers(_ context.Context, groupID int64) (map[int64]models.GroupRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[int64]models.GroupRole{}
	for userID, role := range s.members[groupID] {
		out[userID] = role
	}
	return out, nil
}

func (s *Store) UserGroupModels(_ context.Context, userID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []int64{}
	for modelID, groupID := range s.modelGroups {
		if groupID == 0 {
			continue
		}
		if _, ok := s.members[groupID][userID]; ok {
			out = append(out, modelID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) APISubscriptionModel(_ context.Context, subscriptionID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	modelID, ok := s.apiSubs[subscriptionID]
	if !ok {
		return 0, fmt.Errorf("api subscription %d: %w", subscriptionID, errs.ErrNotFound)
	}
	return modelID, nil
}

func (s *Store) ModelUsage(_ context.Context, from, to time.Time) (map[int64]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[int64]int64{}
	for _, r := range s.requests {
		if r.success && !r.at.Before(from) && r.at.Before(to) {
			out[r.modelID]++
		}
	}
	return out, nil
}

// AddAdminWallet grants admin rights to address
func (s *Store) AddAdminWallet(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adminWallets[normalizeWallet(address)] = struct{}{}
}

func (s *Store) IsAdminWallet(_ context.Context, address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.adminWallets[normalizeWallet(address)]
	return ok, nil
}

func normalizeWallet(address string) string {
	address = strings.TrimSpace(address)
	if strings.HasPrefix(address, "0x") {
		return strings.ToLower(address)
	}
	return address
}
