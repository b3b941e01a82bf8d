package memstore

import (
	"context"
	"fmt"
	"sort"

	"aiforge-core/core/errs"
	"aiforge-core/core/models"
)

func (s *Store) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.JobID]; ok {
		return fmt.Errorf("job %s already exists: %w", job.JobID, errs.ErrConflict)
	}
	job.ID = s.id()
	c := *job
	s.jobs[job.JobID] = &c
	s.appendEvent(job.JobID, nil, job.Status, "submitted", nil)
	return nil
}

func (s *Store) GetJob(_ context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, errs.ErrNotFound)
	}
	c := *j
	return &c, nil
}

func (s *Store) ListJobs(_ context.Context, filter models.JobFilter) ([]*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Job, 0)
	for _, j := range s.jobs {
		if filter.Status != nil && j.Status != *filter.Status {
			continue
		}
		if filter.NodeID != "" && (j.NodeID == nil || *j.NodeID != filter.NodeID) {
			continue
		}
		c := *j
		out = append(out, &c)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID > out[b].ID })
	return page(out, filter.Offset, filter.Limit), nil
}

func (s *Store) ListJobEvents(_ context.Context, jobID string) ([]models.JobEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.events[jobID]
	out := make([]models.JobEvent, len(events))
	copy(out, events)
	return out, nil
}

// appendEvent records a transition. Callers hold mu.
func (s *Store) appendEvent(jobID string, from *models.JobStatus, to models.JobStatus, reason string, meta map[string]interface{}) {
	s.events[jobID] = append(s.events[jobID], models.JobEvent{
		ID:         s.id(),
		JobID:      jobID,
		At:         s.now().UTC(),
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
		MetaJSON:   meta,
	})
}

func (s *Store) ClaimJob(_ context.Context, nodeID string, guard func(node *models.Node, inFlight int) error) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", nodeID, errs.ErrNotFound)
	}

	inFlight := 0
	for _, j := range s.jobs {
		if j.NodeID != nil && *j.NodeID == nodeID && j.Status.InFlight() {
			inFlight++
		}
	}
	nodeCopy := *node
	if err := guard(&nodeCopy, inFlight); err != nil {
		return nil, err
	}

	var next *models.Job
	for _, j := range s.jobs {
		if j.Status != models.JobStatusPending || !node.CanRun(j) {
			continue
		}
		if next == nil || j.CreatedAt.Before(next.CreatedAt) ||
			(j.CreatedAt.Equal(next.CreatedAt) && j.ID < next.ID) {
			next = j
		}
	}
	if next == nil {
		return nil, nil
	}

	now := s.now().UTC()
	from := next.Status
	owner := nodeID
	next.Status = models.JobStatusAssigned
	next.NodeID = &owner
	next.StartedAt = &now
	next.UpdatedAt = now
	s.appendEvent(next.JobID, &from, next.Status, "claimed_by_node", map[string]interface{}{"node_id": nodeID})

	c := *next
	return &c, nil
}

func (s *Store) TransitionJob(_ context.Context, jobID, reason string, fn func(job *models.Job) error) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, errs.ErrNotFound)
	}

	next := *cur
	if err := fn(&next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now().UTC()

	if next.Status != cur.Status {
		from := cur.Status
		s.appendEvent(jobID, &from, next.Status, reason, nil)

		if next.NodeID != nil {
			if node, ok := s.nodes[*next.NodeID]; ok {
				switch next.Status {
				case models.JobStatusCompleted:
					node.TotalJobsCompleted++
				case models.JobStatusFailed:
					node.TotalJobsFailed++
				}
			}
		}
	}

	s.jobs[jobID] = &next
	c := next
	return &c, nil
}

func (s *Store) CreateArtifact(_ context.Context, artifact *models.JobArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[artifact.JobID]; !ok {
		return fmt.Errorf("job %s: %w", artifact.JobID, errs.ErrNotFound)
	}
	artifact.ID = s.id()
	c := *artifact
	s.artifacts[artifact.JobID] = append(s.artifacts[artifact.JobID], &c)
	return nil
}

func (s *Store) ListArtifacts(_ context.Context, jobID string) ([]*models.JobArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.JobArtifact, 0, len(s.artifacts[jobID]))
	for _, a := range s.artifacts[jobID] {
		c := *a
		out = append(out, &c)
	}
	return out, nil
}
