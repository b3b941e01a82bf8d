package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"aiforge-core/core/errs"
	"aiforge-core/core/models"
	"aiforge-core/core/monitoring"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ErrAtCapacity is returned by Poll when the node already runs
// max_concurrent_jobs jobs. It is not a failure for the node.
var ErrAtCapacity = fmt.Errorf("node at capacity: %w", errs.ErrConflict)

// ClaimGuard is evaluated inside the claim transaction with the locked node
// row and its current in-flight job count. Returning an error aborts the claim.
type ClaimGuard = func(node *models.Node, inFlight int) error

// Store persists jobs and their event log
type Store interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListJobs(ctx context.Context, filter models.JobFilter) ([]*models.Job, error)
	ListJobEvents(ctx context.Context, jobID string) ([]models.JobEvent, error)

	// ClaimJob atomically assigns the oldest compatible pending job to the
	// node. It returns (nil, nil) when nothing matches.
	ClaimJob(ctx context.Context, nodeID string, guard ClaimGuard) (*models.Job, error)

	// TransitionJob applies fn to the job under its row lock. A status change
	// is recorded as a job event with reason, and completed/failed outcomes
	// bump the owning node's counters in the same transaction.
	TransitionJob(ctx context.Context, jobID, reason string, fn func(job *models.Job) error) (*models.Job, error)

	CreateArtifact(ctx context.Context, artifact *models.JobArtifact) error
	ListArtifacts(ctx context.Context, jobID string) ([]*models.JobArtifact, error)
}

// SubmitRequest is the input to Submit
type SubmitRequest struct {
	Type         models.JobType         `json:"type"`
	Config       map[string]interface{} `json:"config"`
	InputFiles   []string               `json:"input_files"`
	OutputFiles  []string               `json:"output_files"`
	DockerImage  string                 `json:"docker_image"`
	Command      []string               `json:"command"`
	Environment  map[string]string      `json:"environment"`
	Requirements models.JobRequirements `json:"resource_limits"`
	SpecYAML     string                 `json:"-"`
}

// StatusReport is a node's progress update. Any field may be omitted.
type StatusReport struct {
	Status   *models.JobStatus      `json:"status,omitempty"`
	Progress *float64               `json:"progress,omitempty"`
	Result   map[string]interface{} `json:"result,omitempty"`
	Error    *string                `json:"error,omitempty"`
}

// Completion is a node's final report for a successful job
type Completion struct {
	Result    map[string]interface{} `json:"result"`
	OutputCID string                 `json:"output_cid,omitempty"`
	Progress  *float64               `json:"progress,omitempty"`
}

// Scheduler hands pending jobs to polling nodes first-come first-served,
// filtered only by GPU capability. There is no bin packing or priority: the
// oldest compatible job wins.
type Scheduler struct {
	store        Store
	announcer    Announcer
	metrics      *monitoring.Metrics
	staleCutoff  func() time.Time
	queueTimeout time.Duration
	now          func() time.Time
}

// NewScheduler creates a new scheduler. staleCutoff returns the heartbeat
// time before which polling nodes are rejected; it may be nil.
func NewScheduler(store Store, announcer Announcer, metrics *monitoring.Metrics, staleCutoff func() time.Time, queueTimeout time.Duration) *Scheduler {
	if announcer == nil {
		announcer = NopAnnouncer{}
	}
	if staleCutoff == nil {
		staleCutoff = func() time.Time { return time.Time{} }
	}
	if queueTimeout <= 0 {
		queueTimeout = 5 * time.Second
	}
	return &Scheduler{
		store:        store,
		announcer:    announcer,
		metrics:      metrics,
		staleCutoff:  staleCutoff,
		queueTimeout: queueTimeout,
		now:          time.Now,
	}
}

// Submit stores a pending job and announces it to nodes
func (s *Scheduler) Submit(ctx context.Context, req SubmitRequest) (*models.Job, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("unknown job type %q: %w", req.Type, errs.ErrValidation)
	}
	if req.Requirements.GPUs < 0 {
		return nil, fmt.Errorf("gpus must not be negative: %w", errs.ErrValidation)
	}
	if req.Requirements.CPULimit < 0 {
		return nil, fmt.Errorf("cpu_limit must not be negative: %w", errs.ErrValidation)
	}
	if req.Config == nil {
		req.Config = map[string]interface{}{}
	}

	now := s.now().UTC()
	job := &models.Job{
		JobID:        "job-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16],
		Type:         req.Type,
		Status:       models.JobStatusPending,
		Config:       req.Config,
		InputFiles:   req.InputFiles,
		OutputFiles:  req.OutputFiles,
		DockerImage:  req.DockerImage,
		Command:      req.Command,
		Environment:  req.Environment,
		Requirements: req.Requirements,
		SpecYAML:     req.SpecYAML,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	s.metrics.JobSubmitted()

	s.announce(ctx, job.JobID)
	return job, nil
}

// announce pushes a wake-up hint. Failures only delay discovery, nodes still
// find the job by polling.
func (s *Scheduler) announce(ctx context.Context, jobID string) {
	actx, cancel := context.WithTimeout(ctx, s.queueTimeout)
	defer cancel()

	if err := s.announcer.Announce(actx, jobID); err != nil {
		s.metrics.AnnounceFailed()
		log.WithField("job_id", jobID).Warnf("Failed to announce job: %v", err)
	}
}

// Poll claims the next job for a node. It returns (nil, nil) when no
// compatible job is pending and ErrAtCapacity when the node is full.
func (s *Scheduler) Poll(ctx context.Context, nodeID string) (*models.Job, error) {
	cutoff := s.staleCutoff()

	job, err := s.store.ClaimJob(ctx, nodeID, func(node *models.Node, inFlight int) error {
		if !node.IsActive {
			return fmt.Errorf("node %s is not active: %w", nodeID, errs.ErrForbidden)
		}
		if !cutoff.IsZero() && node.IsStale(cutoff) {
			return fmt.Errorf("node %s missed its heartbeat window: %w", nodeID, errs.ErrForbidden)
		}
		if inFlight >= node.MaxConcurrentJobs {
			return ErrAtCapacity
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAtCapacity) {
			s.metrics.PollAtCapacity()
		} else if errors.Is(err, errs.ErrForbidden) {
			log.WithField("node_id", nodeID).Warnf("Poll rejected: %v", err)
		}
		return nil, err
	}
	if job != nil {
		s.metrics.JobTransition(string(models.JobStatusAssigned))
		log.WithFields(log.Fields{"job_id": job.JobID, "node_id": nodeID}).Info("job assigned")
	}
	return job, nil
}

// owned verifies the job belongs to nodeID and logs mismatches for audit
func owned(job *models.Job, nodeID string) error {
	if job.NodeID == nil || *job.NodeID != nodeID {
		log.WithFields(log.Fields{"job_id": job.JobID, "node_id": nodeID}).Warn("node reported on a job it does not own")
		return fmt.Errorf("job %s is not assigned to node %s: %w", job.JobID, nodeID, errs.ErrForbidden)
	}
	return nil
}

func validProgress(p *float64) error {
	if p != nil && (*p < 0 || *p > 1) {
		return fmt.Errorf("progress must be between 0 and 1: %w", errs.ErrValidation)
	}
	return nil
}

// ReportStatus applies a node's progress report. A non-empty error forces
// the job to failed. Completion goes through Complete.
func (s *Scheduler) ReportStatus(ctx context.Context, nodeID, jobID string, report StatusReport) (*models.Job, error) {
	if err := validProgress(report.Progress); err != nil {
		return nil, err
	}

	var target *models.JobStatus
	if report.Status != nil {
		switch *report.Status {
		case models.JobStatusRunning, models.JobStatusFailed:
			target = report.Status
		case models.JobStatusCompleted:
			return nil, fmt.Errorf("use the complete operation to finish a job: %w", errs.ErrValidation)
		default:
			return nil, fmt.Errorf("nodes cannot report status %q: %w", *report.Status, errs.ErrValidation)
		}
	}
	if report.Error != nil && *report.Error != "" {
		failed := models.JobStatusFailed
		target = &failed
	}

	reason := "node_status_report"
	if target != nil && *target == models.JobStatusFailed {
		reason = "node_reported_failure"
	}

	job, err := s.store.TransitionJob(ctx, jobID, reason, func(job *models.Job) error {
		if err := owned(job, nodeID); err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return fmt.Errorf("job %s is already %s: %w", jobID, job.Status, errs.ErrConflict)
		}
		if target != nil && *target != job.Status {
			if !job.Status.CanTransition(*target) {
				return fmt.Errorf("cannot move job from %s to %s: %w", job.Status, *target, errs.ErrConflict)
			}
			job.Status = *target
		}
		if report.Progress != nil {
			job.Progress = *report.Progress
		}
		if report.Result != nil {
			job.Result = report.Result
		}
		if job.Status == models.JobStatusFailed {
			if report.Error != nil {
				job.Error = *report.Error
			}
			now := s.now().UTC()
			job.CompletedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if target != nil {
		s.metrics.JobTransition(string(job.Status))
	}
	return job, nil
}

// Complete marks an owned assigned or running job completed
func (s *Scheduler) Complete(ctx context.Context, nodeID, jobID string, c Completion) (*models.Job, error) {
	if err := validProgress(c.Progress); err != nil {
		return nil, err
	}

	job, err := s.store.TransitionJob(ctx, jobID, "node_completed", func(job *models.Job) error {
		if err := owned(job, nodeID); err != nil {
			return err
		}
		if !job.Status.CanTransition(models.JobStatusCompleted) {
			return fmt.Errorf("job %s is %s and cannot complete: %w", jobID, job.Status, errs.ErrConflict)
		}
		now := s.now().UTC()
		job.Status = models.JobStatusCompleted
		job.CompletedAt = &now
		job.Result = c.Result
		job.OutputCID = c.OutputCID
		job.Progress = 1.0
		if c.Progress != nil {
			job.Progress = *c.Progress
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.JobTransition(string(models.JobStatusCompleted))
	log.WithFields(log.Fields{"job_id": jobID, "node_id": nodeID}).Info("job completed")
	return job, nil
}

// Cancel cancels a pending or assigned job. Running jobs cannot be cancelled.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.store.TransitionJob(ctx, jobID, "cancelled", func(job *models.Job) error {
		if !job.Status.CanTransition(models.JobStatusCancelled) {
			return fmt.Errorf("job %s is %s and cannot be cancelled: %w", jobID, job.Status, errs.ErrConflict)
		}
		now := s.now().UTC()
		job.Status = models.JobStatusCancelled
		job.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.JobTransition(string(models.JobStatusCancelled))
	return job, nil
}

// Retry returns a failed job to the pending pool
func (s *Scheduler) Retry(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := s.store.TransitionJob(ctx, jobID, "admin_retry", func(job *models.Job) error {
		if job.Status != models.JobStatusFailed {
			return fmt.Errorf("only failed jobs can be retried, job %s is %s: %w", jobID, job.Status, errs.ErrConflict)
		}
		job.Status = models.JobStatusPending
		job.Error = ""
		job.NodeID = nil
		job.Progress = 0
		job.Result = nil
		job.OutputCID = ""
		job.StartedAt = nil
		job.CompletedAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.JobTransition(string(models.JobStatusPending))
	s.announce(ctx, jobID)
	return job, nil
}

// Get returns a job by id
func (s *Scheduler) Get(ctx context.Context, jobID string) (*models.Job, error) {
	return s.store.GetJob(ctx, jobID)
}

// List returns jobs matching filter, newest first
func (s *Scheduler) List(ctx context.Context, filter models.JobFilter) ([]*models.Job, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", *filter.Status, errs.ErrValidation)
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.ListJobs(ctx, filter)
}

// Events returns the transition log of a job, oldest first
func (s *Scheduler) Events(ctx context.Context, jobID string) ([]models.JobEvent, error) {
	if _, err := s.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.store.ListJobEvents(ctx, jobID)
}
