package handlers

import (
	"net/http"

	"aiforge-core/api/rest/middleware"
	"aiforge-core/core/nft"
)

// NFTHandler handles NFT share and reward requests
type NFTHandler struct {
	engine *nft.Engine
}

// NewNFTHandler creates a new NFT handler
func NewNFTHandler(engine *nft.Engine) *NFTHandler {
	return &NFTHandler{engine: engine}
}

// GetPool handles GET /v1/admin/nft/pools/{year}/{month}. The pool is calculated
// on first access and frozen afterwards.
func (h *NFTHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	period, err := pathPeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}

	pool, err := h.engine.CalculateRewardPool(r.Context(), period)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

// DistributePool handles POST /v1/admin/nft/pools/{year}/{month}/distribute
func (h *NFTHandler) DistributePool(w http.ResponseWriter, r *http.Request) {
	period, err := pathPeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rewards, err := h.engine.DistributeRewards(r.Context(), period)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"period":  period.String(),
		"rewards": rewards,
	})
}

// PoolRewards handles GET /v1/nft/pools/{year}/{month}/rewards
func (h *NFTHandler) PoolRewards(w http.ResponseWriter, r *http.Request) {
	period, err := pathPeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rewards, err := h.engine.Rewards(r.Context(), period)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rewards": rewards})
}

// HolderRewards handles GET /v1/nft/rewards?wallet=. Without a wallet the
// caller's user id and wallet headers are used.
func (h *NFTHandler) HolderRewards(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFrom(r.Context())
	userID, wallet := actor.UserID, actor.Wallet
	if q := r.URL.Query().Get("wallet"); q != "" {
		userID, wallet = nil, q
	}

	rewards, err := h.engine.HolderRewards(r.Context(), userID, wallet)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rewards": rewards})
}

// RegisterShare handles POST /v1/admin/nft/shares
func (h *NFTHandler) RegisterShare(w http.ResponseWriter, r *http.Request) {
	var mint nft.ShareMint
	if err := decodeJSON(r, &mint); err != nil {
		writeError(w, err)
		return
	}

	share, err := h.engine.RegisterShare(r.Context(), mint)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, share)
}

// Stats handles GET /v1/nft/stats
func (h *NFTHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
