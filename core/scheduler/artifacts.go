package scheduler

import (
	"context"
	"fmt"

	"aiforge-core/core/errs"
	"aiforge-core/core/models"
)

// CheckOwner fails with errs.ErrForbidden unless nodeID holds jobID
func (s *Scheduler) CheckOwner(ctx context.Context, nodeID, jobID string) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	return owned(job, nodeID)
}

// RecordArtifact stores a reference to content a node produced for a job it owns
func (s *Scheduler) RecordArtifact(ctx context.Context, nodeID, jobID string, artifactType models.ArtifactType, cid string, size int64, meta map[string]interface{}) (*models.JobArtifact, error) {
	if !artifactType.Valid() {
		return nil, fmt.Errorf("unknown artifact type %q: %w", artifactType, errs.ErrValidation)
	}
	if cid == "" {
		return nil, fmt.Errorf("content id is required: %w", errs.ErrValidation)
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := owned(job, nodeID); err != nil {
		return nil, err
	}

	artifact := &models.JobArtifact{
		JobID:     jobID,
		Type:      artifactType,
		CID:       cid,
		Size:      size,
		CreatedAt: s.now().UTC(),
		MetaJSON:  meta,
	}
	if err := s.store.CreateArtifact(ctx, artifact); err != nil {
		return nil, fmt.Errorf("failed to record artifact: %w", err)
	}
	return artifact, nil
}

// Artifacts lists the artifacts recorded for a job
func (s *Scheduler) Artifacts(ctx context.Context, jobID string) ([]*models.JobArtifact, error) {
	if _, err := s.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.store.ListArtifacts(ctx, jobID)
}
