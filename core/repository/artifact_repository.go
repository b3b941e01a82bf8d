package repository

import (
	"context"
	"fmt"

	"aiforge-core/core/models"
)

// ArtifactRepository handles database operations for job artifacts
type ArtifactRepository struct {
	db *DB
}

// NewArtifactRepository creates a new artifact repository
func NewArtifactRepository(db *DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// GetJobArtifacts retrieves the artifacts of a job, optionally of one type
func (r *ArtifactRepository) GetJobArtifacts(ctx context.Context, jobID string, artifactType *models.ArtifactType) ([]*models.JobArtifact, error) {
	query := `
		SELECT id, job_id, type, cid, size, created_at, meta_json
		FROM job_artifacts
		WHERE job_id = $1
	`
	args := []interface{}{jobID}

	if artifactType != nil {
		args = append(args, *artifactType)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}

	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	artifacts := make([]*models.JobArtifact, 0)
	for rows.Next() {
		var artifact models.JobArtifact
		var meta []byte

		err := rows.Scan(
			&artifact.ID,
			&artifact.JobID,
			&artifact.Type,
			&artifact.CID,
			&artifact.Size,
			&artifact.CreatedAt,
			&meta,
		)
		if err != nil {
			return nil, err
		}

		if err := scanJSON(meta, &artifact.MetaJSON); err != nil {
			return nil, fmt.Errorf("decoding artifact %d: %w", artifact.ID, err)
		}

		artifacts = append(artifacts, &artifact)
	}

	return artifacts, rows.Err()
}

// CreateArtifact creates a new artifact record
func (r *ArtifactRepository) CreateArtifact(ctx context.Context, artifact *models.JobArtifact) error {
	meta, err := jsonValue(artifact.MetaJSON)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO job_artifacts (job_id, type, cid, size, meta_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err = r.db.QueryRowContext(ctx, query,
		artifact.JobID, artifact.Type, artifact.CID, artifact.Size, meta, artifact.CreatedAt,
	).Scan(&artifact.ID)
	return mapError(err, "artifact of job "+artifact.JobID)
}
