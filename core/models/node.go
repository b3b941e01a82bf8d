package models

import "time"

// Node represents a remote compute worker that executes jobs
type Node struct {
	ID                 int64                  `json:"-"`
	NodeID             string                 `json:"node_id"`
	Name               string                 `json:"name"`
	Description        string                 `json:"description,omitempty"`
	IsActive           bool                   `json:"is_active"`
	LastHeartbeat      *time.Time             `json:"last_heartbeat,omitempty"`
	Resources          map[string]interface{} `json:"resources,omitempty"` // CPU, GPU, memory info as reported by the node
	MaxConcurrentJobs  int                    `json:"max_concurrent_jobs"`
	GPUEnabled         bool                   `json:"gpu_enabled"`
	TotalJobsCompleted int                    `json:"total_jobs_completed"`
	TotalJobsFailed    int                    `json:"total_jobs_failed"`
	TokenHash          string                 `json:"-"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

// IsStale reports whether the node has been silent since before cutoff
func (n *Node) IsStale(cutoff time.Time) bool {
	return n.LastHeartbeat == nil || n.LastHeartbeat.Before(cutoff)
}

// CanRun reports whether the node satisfies a job's GPU requirement.
// 0-GPU jobs match any node; GPU jobs need a GPU-enabled node.
func (n *Node) CanRun(job *Job) bool {
	return job.Requirements.GPUs == 0 || n.GPUEnabled
}
