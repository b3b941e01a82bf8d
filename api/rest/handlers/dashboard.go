package handlers

import (
	"net/http"
	"strconv"
	"time"

	"aiforge-core/core/ledger"
	"aiforge-core/core/models"
	"aiforge-core/core/monitoring"
	"aiforge-core/core/nft"
	"aiforge-core/core/revenue"
	"aiforge-core/core/scheduler"

	log "github.com/sirupsen/logrus"
)

// dashboardWindow is how many recent jobs the overview counts statuses over
const dashboardWindow = 500

// DashboardHandler serves the admin overview
type DashboardHandler struct {
	scheduler *scheduler.Scheduler
	nodes     monitoring.NodeCounter
	revenue   *revenue.Engine
	nft       *nft.Engine
	now       func() time.Time
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(
	sched *scheduler.Scheduler,
	nodes monitoring.NodeCounter,
	rev *revenue.Engine,
	rewards *nft.Engine,
) *DashboardHandler {
	return &DashboardHandler{
		scheduler: sched,
		nodes:     nodes,
		revenue:   rev,
		nft:       rewards,
		now:       time.Now,
	}
}

// GetOverview handles GET /v1/admin/dashboard?year=&month=
func (h *DashboardHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	period := ledger.PeriodOf(h.now())
	q := r.URL.Query()
	if q.Get("year") != "" || q.Get("month") != "" {
		var err error
		if period, err = parsePeriod(q.Get("year"), q.Get("month")); err != nil {
			writeError(w, err)
			return
		}
	}

	active, err := h.nodes.CountActiveNodes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	jobs, err := h.scheduler.List(r.Context(), models.JobFilter{Limit: dashboardWindow})
	if err != nil {
		writeError(w, err)
		return
	}
	byStatus := map[models.JobStatus]int{}
	for _, job := range jobs {
		byStatus[job.Status]++
	}

	monthly, err := h.revenue.MonthlyRevenue(r.Context(), period)
	if err != nil {
		writeError(w, err)
		return
	}

	response := map[string]interface{}{
		"period": period.String(),
		"nodes": map[string]interface{}{
			"active": active,
		},
		"jobs": map[string]interface{}{
			"window":    len(jobs),
			"by_status": byStatus,
		},
		"revenue": monthly,
	}

	// NFT stats are informational; a failure there does not hide the rest
	if stats, err := h.nft.Stats(r.Context()); err != nil {
		log.Warnf("Dashboard NFT stats unavailable: %v", err)
	} else {
		response["nft"] = stats
	}

	writeJSON(w, http.StatusOK, response)
}

// GetRecentJobs handles GET /v1/admin/dashboard/jobs?limit=
func (h *DashboardHandler) GetRecentJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	jobs, err := h.scheduler.List(r.Context(), models.JobFilter{Limit: limit})
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		item := map[string]interface{}{
			"job_id":     job.JobID,
			"type":       job.Type,
			"status":     job.Status,
			"node_id":    job.NodeID,
			"progress":   job.Progress,
			"created_at": job.CreatedAt,
		}
		if job.StartedAt != nil && job.CompletedAt != nil {
			item["duration_seconds"] = job.CompletedAt.Sub(*job.StartedAt).Seconds()
		}
		items = append(items, item)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}
