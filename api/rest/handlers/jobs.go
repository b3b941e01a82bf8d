package handlers

import (
	"net/http"
	"strings"
	"time"

	"aiforge-core/core/models"
	"aiforge-core/core/scheduler"
	"aiforge-core/core/spec"
	"aiforge-core/storage"

	"github.com/gorilla/mux"
)

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	scheduler *scheduler.Scheduler
	artifacts *storage.ArtifactManager
}

// NewJobHandler creates a new job handler
func NewJobHandler(sched *scheduler.Scheduler, artifacts *storage.ArtifactManager) *JobHandler {
	return &JobHandler{
		scheduler: sched,
		artifacts: artifacts,
	}
}

// SubmitJobRequest is either a JSON job or a YAML spec in spec_yaml
type SubmitJobRequest struct {
	scheduler.SubmitRequest
	SpecYAML string `json:"spec_yaml"`
}

// SubmitJobResponse represents the response after submitting a job
type SubmitJobResponse struct {
	ID        string           `json:"id"`
	Status    models.JobStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// SubmitJob handles POST /v1/jobs
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	submit := req.SubmitRequest
	if strings.TrimSpace(req.SpecYAML) != "" {
		parsed, err := spec.ParseJobSpec(req.SpecYAML)
		if err != nil {
			writeError(w, err)
			return
		}
		submit = *parsed
	}

	job, err := h.scheduler.Submit(r.Context(), submit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, SubmitJobResponse{
		ID:        job.JobID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	})
}

// GetJob handles GET /v1/jobs/{id}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.scheduler.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /v1/jobs
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	filter := models.JobFilter{
		NodeID: r.URL.Query().Get("node_id"),
		Offset: offset,
		Limit:  limit,
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := models.JobStatus(s)
		filter.Status = &status
	}

	jobs, err := h.scheduler.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": jobs})
}

// CancelJob handles POST /v1/jobs/{id}/cancel
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.scheduler.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     job.JobID,
		"status": job.Status,
	})
}

// RetryJob handles POST /v1/admin/jobs/{id}/retry
func (h *JobHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.scheduler.Retry(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     job.JobID,
		"status": job.Status,
	})
}

// GetJobEvents handles GET /v1/jobs/{id}/events
func (h *JobHandler) GetJobEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.scheduler.Events(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": events})
}

// GetJobArtifacts handles GET /v1/jobs/{id}/artifacts
func (h *JobHandler) GetJobArtifacts(w http.ResponseWriter, r *http.Request) {
	artifacts, err := h.scheduler.Artifacts(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	// Optional type filter
	if t := r.URL.Query().Get("type"); t != "" {
		filtered := make([]*models.JobArtifact, 0, len(artifacts))
		for _, a := range artifacts {
			if a.Type == models.ArtifactType(t) {
				filtered = append(filtered, a)
			}
		}
		artifacts = filtered
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": artifacts})
}

// GetLatestCheckpoint handles GET /v1/jobs/{id}/checkpoint
func (h *JobHandler) GetLatestCheckpoint(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.artifacts.LatestCheckpoint(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}
