package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"aiforge-core/core/errs"
	"aiforge-core/core/models"
	"aiforge-core/core/registry"
	"aiforge-core/core/scheduler"
	"aiforge-core/storage"

	"github.com/gorilla/mux"
)

// AnnouncementServer streams job announcements to a connected node
type AnnouncementServer interface {
	Serve(w http.ResponseWriter, r *http.Request, nodeID string)
}

// NodeHandler handles node-facing HTTP requests
type NodeHandler struct {
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	artifacts *storage.ArtifactManager
	announcer AnnouncementServer
	maxUpload int64
}

// NewNodeHandler creates a new node handler. announcer may be nil; maxUpload
// bounds artifact bodies.
func NewNodeHandler(reg *registry.Registry, sched *scheduler.Scheduler, artifacts *storage.ArtifactManager, announcer AnnouncementServer, maxUpload int64) *NodeHandler {
	if maxUpload <= 0 {
		maxUpload = 64 << 20
	}
	return &NodeHandler{
		registry:  reg,
		scheduler: sched,
		artifacts: artifacts,
		announcer: announcer,
		maxUpload: maxUpload,
	}
}

// RegisterNodeResponse carries the node and its one-time token
type RegisterNodeResponse struct {
	Node  *models.Node `json:"node"`
	Token string       `json:"token"`
}

// Register handles POST /v1/nodes/register
func (h *NodeHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registry.Registration
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	node, token, err := h.registry.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterNodeResponse{Node: node, Token: token})
}

// HeartbeatRequest optionally replaces the node's resource descriptor
type HeartbeatRequest struct {
	Resources map[string]interface{} `json:"resources"`
}

// Heartbeat handles POST /v1/nodes/{node_id}/heartbeat
func (h *NodeHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	nodeID := mux.Vars(r)["node_id"]
	if err := h.registry.Heartbeat(r.Context(), nodeID, req.Resources); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "node_id": nodeID})
}

// Poll handles POST /v1/nodes/{node_id}/jobs/poll
func (h *NodeHandler) Poll(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["node_id"]

	job, err := h.scheduler.Poll(r.Context(), nodeID)
	if errors.Is(err, scheduler.ErrAtCapacity) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"job": nil, "message": "Node at capacity"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if job == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"job": nil, "message": "No jobs available"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"job": job})
}

// ReportStatus handles POST /v1/nodes/{node_id}/jobs/{job_id}/status
func (h *NodeHandler) ReportStatus(w http.ResponseWriter, r *http.Request) {
	var report scheduler.StatusReport
	if err := decodeJSON(r, &report); err != nil {
		writeError(w, err)
		return
	}

	vars := mux.Vars(r)
	job, err := h.scheduler.ReportStatus(r.Context(), vars["node_id"], vars["job_id"], report)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// Complete handles POST /v1/nodes/{node_id}/jobs/{job_id}/complete
func (h *NodeHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var c scheduler.Completion
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, err)
		return
	}

	vars := mux.Vars(r)
	job, err := h.scheduler.Complete(r.Context(), vars["node_id"], vars["job_id"], c)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// UploadArtifact handles PUT /v1/nodes/{node_id}/jobs/{job_id}/artifacts/{type}.
// The body is the raw artifact; a numeric "step" query parameter tags checkpoints.
func (h *NodeHandler) UploadArtifact(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	meta := map[string]interface{}{}
	if s := r.URL.Query().Get("step"); s != "" {
		step, err := strconv.Atoi(s)
		if err != nil || step < 0 {
			writeError(w, fmt.Errorf("invalid step: %w", errs.ErrValidation))
			return
		}
		meta["step"] = step
	}
	if name := r.URL.Query().Get("name"); name != "" {
		meta["name"] = name
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, fmt.Errorf("artifact exceeds %d bytes: %w", tooLarge.Limit, errs.ErrValidation))
			return
		}
		writeError(w, fmt.Errorf("reading body: %v: %w", err, errs.ErrValidation))
		return
	}

	artifact, err := h.artifacts.Upload(r.Context(), vars["node_id"], vars["job_id"], models.ArtifactType(vars["type"]), data, meta)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, artifact)
}

// Announcements handles GET /v1/nodes/{node_id}/announcements (websocket)
func (h *NodeHandler) Announcements(w http.ResponseWriter, r *http.Request) {
	if h.announcer == nil {
		writeError(w, fmt.Errorf("announcements are disabled: %w", errs.ErrNotFound))
		return
	}
	h.announcer.Serve(w, r, mux.Vars(r)["node_id"])
}

// GetNode handles GET /v1/nodes/{node_id}
func (h *NodeHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	node, err := h.registry.Get(r.Context(), mux.Vars(r)["node_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// ListNodes handles GET /v1/nodes
func (h *NodeHandler) ListNodes(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	nodes, err := h.registry.List(r.Context(), offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": nodes})
}

// Activate handles POST /v1/admin/nodes/{node_id}/activate
func (h *NodeHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// Deactivate handles POST /v1/admin/nodes/{node_id}/deactivate
func (h *NodeHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *NodeHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	nodeID := mux.Vars(r)["node_id"]

	var err error
	if active {
		err = h.registry.Activate(r.Context(), nodeID)
	} else {
		err = h.registry.Deactivate(r.Context(), nodeID)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"node_id": nodeID, "is_active": active})
}

// Sweep handles POST /v1/admin/nodes/sweep
func (h *NodeHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	ids, err := h.registry.SweepStale(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deactivated": ids})
}
