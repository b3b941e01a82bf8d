package storage

import (
	"context"
	"fmt"
	"time"

	"aiforge-core/core/errs"
	"aiforge-core/core/models"
)

// ArtifactRecorder records artifact references for jobs. *scheduler.Scheduler implements it.
type ArtifactRecorder interface {
	CheckOwner(ctx context.Context, nodeID, jobID string) error
	RecordArtifact(ctx context.Context, nodeID, jobID string, artifactType models.ArtifactType, cid string, size int64, meta map[string]interface{}) (*models.JobArtifact, error)
	Artifacts(ctx context.Context, jobID string) ([]*models.JobArtifact, error)
}

// ArtifactManager uploads job outputs into the content store and records them
type ArtifactManager struct {
	content  *ContentStore
	recorder ArtifactRecorder
}

// NewArtifactManager creates a new artifact manager
func NewArtifactManager(content *ContentStore, recorder ArtifactRecorder) *ArtifactManager {
	return &ArtifactManager{
		content:  content,
		recorder: recorder,
	}
}

// Upload stores data for a job the node owns and records the artifact
func (am *ArtifactManager) Upload(
	ctx context.Context,
	nodeID string,
	jobID string,
	artifactType models.ArtifactType,
	data []byte,
	metadata map[string]interface{},
) (*models.JobArtifact, error) {
	if !artifactType.Valid() {
		return nil, fmt.Errorf("unknown artifact type %q: %w", artifactType, errs.ErrValidation)
	}
	if err := am.recorder.CheckOwner(ctx, nodeID, jobID); err != nil {
		return nil, err
	}

	id, err := am.content.Put(ctx, data)
	if err != nil {
		return nil, err
	}

	meta := map[string]interface{}{}
	for k, v := range metadata {
		meta[k] = v
	}
	return am.recorder.RecordArtifact(ctx, nodeID, jobID, artifactType, id, int64(len(data)), meta)
}

// LatestCheckpoint returns the checkpoint with the highest step, falling back
// to the newest one when steps are missing
func (am *ArtifactManager) LatestCheckpoint(ctx context.Context, jobID string) (*models.JobArtifact, error) {
	artifacts, err := am.recorder.Artifacts(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var (
		latest     *models.JobArtifact
		latestStep = -1
		latestTime time.Time
	)
	for _, artifact := range artifacts {
		if artifact.Type != models.ArtifactTypeCheckpoint {
			continue
		}

		step, ok := stepOf(artifact.MetaJSON["step"])
		if !ok {
			if latestStep < 0 && artifact.CreatedAt.After(latestTime) {
				latestTime = artifact.CreatedAt
				latest = artifact
			}
			continue
		}
		if step > latestStep {
			latestStep = step
			latest = artifact
		}
	}

	if latest == nil {
		return nil, fmt.Errorf("no checkpoint for job %s: %w", jobID, errs.ErrNotFound)
	}
	return latest, nil
}

// stepOf reads a step counter that may have round-tripped through JSON
func stepOf(v interface{}) (int, bool) {
	switch s := v.(type) {
	case int:
		return s, true
	case int64:
		return int(s), true
	case float64:
		return int(s), true
	}
	return 0, false
}
