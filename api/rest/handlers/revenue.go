package handlers

import (
	"fmt"
	"net/http"
	"time"

	"aiforge-core/api/rest/middleware"
	"aiforge-core/core/errs"
	"aiforge-core/core/ledger"
	"aiforge-core/core/revenue"
)

// RevenueHandler handles group revenue splits and distributions
type RevenueHandler struct {
	engine *revenue.Engine
	now    func() time.Time
}

// NewRevenueHandler creates a new revenue handler
func NewRevenueHandler(engine *revenue.Engine) *RevenueHandler {
	return &RevenueHandler{engine: engine, now: time.Now}
}

func requireUser(r *http.Request) (int64, error) {
	actor := middleware.ActorFrom(r.Context())
	if actor.UserID == nil {
		return 0, fmt.Errorf("%s header is required: %w", middleware.HeaderUserID, errs.ErrForbidden)
	}
	return *actor.UserID, nil
}

// ConfigureSplit handles PUT /v1/models/{model_id}/revenue-split
func (h *RevenueHandler) ConfigureSplit(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	modelID, err := pathInt(r, "model_id")
	if err != nil {
		writeError(w, err)
		return
	}

	var cfg revenue.SplitConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeError(w, err)
		return
	}

	split, err := h.engine.ConfigureSplit(r.Context(), userID, modelID, cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, split)
}

// GetSplit handles GET /v1/models/{model_id}/revenue-split
func (h *RevenueHandler) GetSplit(w http.ResponseWriter, r *http.Request) {
	modelID, err := pathInt(r, "model_id")
	if err != nil {
		writeError(w, err)
		return
	}

	split, err := h.engine.GetSplit(r.Context(), modelID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, split)
}

// DefaultSplit handles GET /v1/groups/{group_id}/default-split
func (h *RevenueHandler) DefaultSplit(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathInt(r, "group_id")
	if err != nil {
		writeError(w, err)
		return
	}

	shares, err := h.engine.DefaultSplit(r.Context(), groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"group_id":     groupID,
		"split_config": shares,
	})
}

// CalculateRevenue handles GET /v1/models/{model_id}/revenue/{year}/{month}
// and previews the breakdown without persisting it
func (h *RevenueHandler) CalculateRevenue(w http.ResponseWriter, r *http.Request) {
	modelID, err := pathInt(r, "model_id")
	if err != nil {
		writeError(w, err)
		return
	}
	period, err := pathPeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}

	breakdown, err := h.engine.CalculateGroupRevenueDistribution(r.Context(), modelID, period)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

// GetDistribution handles GET /v1/models/{model_id}/distributions/{year}/{month}
func (h *RevenueHandler) GetDistribution(w http.ResponseWriter, r *http.Request) {
	modelID, err := pathInt(r, "model_id")
	if err != nil {
		writeError(w, err)
		return
	}
	period, err := pathPeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}

	dist, err := h.engine.GetDistribution(r.Context(), modelID, period)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dist)
}

// DistributeRevenue handles POST /v1/admin/models/{model_id}/distributions/{year}/{month}
func (h *RevenueHandler) DistributeRevenue(w http.ResponseWriter, r *http.Request) {
	modelID, err := pathInt(r, "model_id")
	if err != nil {
		writeError(w, err)
		return
	}
	period, err := pathPeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}

	dist, err := h.engine.DistributeRevenue(r.Context(), modelID, period)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dist)
}

// MyEarnings handles GET /v1/users/me/earnings?year=&month=. The current
// month is used when the period is omitted.
func (h *RevenueHandler) MyEarnings(w http.ResponseWriter, r *http.Request) {
	userID, err := requireUser(r)
	if err != nil {
		writeError(w, err)
		return
	}

	period := ledger.PeriodOf(h.now())
	q := r.URL.Query()
	if q.Get("year") != "" || q.Get("month") != "" {
		if period, err = parsePeriod(q.Get("year"), q.Get("month")); err != nil {
			writeError(w, err)
			return
		}
	}

	earnings, err := h.engine.GetUserEarningsFromGroups(r.Context(), userID, period)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, earnings)
}

// PlatformRevenue handles GET /v1/admin/revenue/{year}/{month}
func (h *RevenueHandler) PlatformRevenue(w http.ResponseWriter, r *http.Request) {
	period, err := pathPeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}

	monthly, err := h.engine.MonthlyRevenue(r.Context(), period)
	if err != nil {
		writeError(w, err)
		return
	}
	pool, err := h.engine.SubscriptionPool(r.Context(), period)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"revenue":           monthly,
		"subscription_pool": pool,
	})
}
