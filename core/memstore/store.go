// Package memstore keeps every core store in process memory. All operations
// run under a single mutex, which gives them the same atomicity the
// PostgreSQL stores get from row locks.
package memstore

import (
	"sync"
	"time"

	"aiforge-core/core/ledger"
	"aiforge-core/core/models"
)

type distKey struct {
	modelID int64
	period  ledger.Period
}

type apiRequest struct {
	modelID int64
	at      time.Time
	success bool
}

// Store is an in-memory implementation of the registry, scheduler, payment,
// revenue, nft and catalog stores
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	nextID int64

	nodes     map[string]*models.Node
	jobs      map[string]*models.Job
	events    map[string][]models.JobEvent
	artifacts map[string][]*models.JobArtifact

	payments map[int64]*models.Payment

	splits        map[int64]*models.GroupRevenueSplit
	distributions map[distKey]*models.RevenueDistribution

	shares  []*models.NFTShare
	pools   map[ledger.Period]*models.NFTRewardPool
	rewards []*models.NFTReward

	modelGroups map[int64]int64
	members     map[int64]map[int64]models.GroupRole
	apiSubs     map[int64]int64
	requests    []apiRequest

	adminWallets map[string]struct{}
}

// New creates an empty store
func New() *Store {
	return &Store{
		now:           time.Now,
		nodes:         map[string]*models.Node{},
		jobs:          map[string]*models.Job{},
		events:        map[string][]models.JobEvent{},
		artifacts:     map[string][]*models.JobArtifact{},
		payments:      map[int64]*models.Payment{},
		splits:        map[int64]*models.GroupRevenueSplit{},
		distributions: map[distKey]*models.RevenueDistribution{},
		pools:         map[ledger.Period]*models.NFTRewardPool{},
		modelGroups:   map[int64]int64{},
		members:       map[int64]map[int64]models.GroupRole{},
		apiSubs:       map[int64]int64{},
		adminWallets:  map[string]struct{}{},
	}
}

// id returns the next surrogate key. Callers hold mu.
func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
