package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"aiforge-core/core/errs"
	"aiforge-core/core/models"
)

func (s *Store) CreateNode(_ context.Context, node *models.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[node.NodeID]; ok {
		return fmt.Errorf("node %s already exists: %w", node.NodeID, errs.ErrConflict)
	}
	node.ID = s.id()
	c := *node
	s.nodes[node.NodeID] = &c
	return nil
}

func (s *Store) GetNode(_ context.Context, nodeID string) (*models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", nodeID, errs.ErrNotFound)
	}
	c := *n
	return &c, nil
}

func (s *Store) ListNodes(_ context.Context, offset, limit int) ([]*models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		c := *n
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, offset, limit), nil
}

func (s *Store) TouchNode(_ context.Context, nodeID string, at time.Time, resources map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[nodeID]
	if !ok {
		return fmt.Errorf("node %s: %w", nodeID, errs.ErrNotFound)
	}
	n.LastHeartbeat = &at
	n.IsActive = true
	if resources != nil {
		n.Resources = resources
	}
	n.UpdatedAt = at
	return nil
}

func (s *Store) SetNodeActive(_ context.Context, nodeID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[nodeID]
	if !ok {
		return fmt.Errorf("node %s: %w", nodeID, errs.ErrNotFound)
	}
	n.IsActive = active
	n.UpdatedAt = s.now().UTC()
	return nil
}

func (s *Store) DeactivateStaleNodes(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, n := range s.nodes {
		if n.IsActive && n.IsStale(cutoff) {
			n.IsActive = false
			n.UpdatedAt = s.now().UTC()
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) CountActiveNodes(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, node := range s.nodes {
		if node.IsActive {
			n++
		}
	}
	return n, nil
}
