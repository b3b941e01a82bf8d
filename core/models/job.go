package models

import "time"

// Job represents a unit of work distributed to compute nodes
type Job struct {
	ID           int64                  `json:"-"`
	JobID        string                 `json:"id"`
	Type         JobType                `json:"type"`
	NodeID       *string                `json:"node_id,omitempty"` // Business id of the owning node
	Status       JobStatus              `json:"status"`
	Config       map[string]interface{} `json:"config"`
	InputFiles   []string               `json:"input_files,omitempty"`  // Content ids
	OutputFiles  []string               `json:"output_files,omitempty"` // Expected outputs
	DockerImage  string                 `json:"docker_image,omitempty"`
	Command      []string               `json:"command,omitempty"`
	Environment  map[string]string      `json:"environment,omitempty"`
	Progress     float64                `json:"progress"`
	Result       map[string]interface{} `json:"result,omitempty"`
	Error        string                 `json:"error,omitempty"`
	OutputCID    string                 `json:"output_cid,omitempty"`
	Requirements JobRequirements        `json:"requirements"`
	SpecYAML     string                 `json:"-"` // Original spec for replay/debug
	CreatedAt    time.Time              `json:"created_at"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// JobType represents the type of job
type JobType string

const (
	JobTypeTest      JobType = "test"
	JobTypeFinetune  JobType = "finetune"
	JobTypeMerge     JobType = "merge"
	JobTypeQuantize  JobType = "quantize"
	JobTypeInference JobType = "inference"
)

// Valid reports whether t is a known job type
func (t JobType) Valid() bool {
	switch t {
	case JobTypeTest, JobTypeFinetune, JobTypeMerge, JobTypeQuantize, JobTypeInference:
		return true
	}
	return false
}

// JobRequirements specifies the resource envelope of a job
type JobRequirements struct {
	MemoryLimit string  `json:"memory_limit,omitempty"` // e.g. "4G"
	CPULimit    float64 `json:"cpu_limit,omitempty"`    // CPU cores
	GPUs        int     `json:"gpus"`
}

// JobStatus represents the current status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusAssigned  JobStatus = "assigned"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Valid reports whether s is a known job status
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusAssigned, JobStatusRunning,
		JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed
// (retry of a failed job is the single admin exception).
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// InFlight reports whether the status counts against node capacity
func (s JobStatus) InFlight() bool {
	return s == JobStatusAssigned || s == JobStatusRunning
}

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:  {JobStatusAssigned, JobStatusCancelled},
	JobStatusAssigned: {JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
	JobStatusRunning:  {JobStatusRunning, JobStatusCompleted, JobStatusFailed},
	JobStatusFailed:   {JobStatusPending},
}

// CanTransition reports whether the job state machine allows from -> to
func (s JobStatus) CanTransition(to JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// JobFilter narrows job listings
type JobFilter struct {
	Status *JobStatus
	NodeID string
	Offset int
	Limit  int
}
