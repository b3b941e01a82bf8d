package models

import "time"

// JobEvent represents a state transition event for a job
type JobEvent struct {
	ID         int64                  `json:"-"`
	JobID      string                 `json:"job_id"`
	At         time.Time              `json:"at"`
	FromStatus *JobStatus             `json:"from_status,omitempty"`
	ToStatus   JobStatus              `json:"to_status"`
	Reason     string                 `json:"reason"`
	MetaJSON   map[string]interface{} `json:"meta,omitempty"`
}

// ArtifactType represents the type of job artifact
type ArtifactType string

const (
	ArtifactTypeCheckpoint ArtifactType = "checkpoint"
	ArtifactTypeLog        ArtifactType = "log"
	ArtifactTypeOutput     ArtifactType = "output"
	ArtifactTypeMetrics    ArtifactType = "metrics"
)

// Valid reports whether t is a known artifact type
func (t ArtifactType) Valid() bool {
	switch t {
	case ArtifactTypeCheckpoint, ArtifactTypeLog, ArtifactTypeOutput, ArtifactTypeMetrics:
		return true
	}
	return false
}

// JobArtifact is a content-addressed file produced by a job
type JobArtifact struct {
	ID        int64                  `json:"-"`
	JobID     string                 `json:"job_id"`
	Type      ArtifactType           `json:"type"`
	CID       string                 `json:"cid"`
	Size      int64                  `json:"size"`
	CreatedAt time.Time              `json:"created_at"`
	MetaJSON  map[string]interface{} `json:"meta,omitempty"`
}
