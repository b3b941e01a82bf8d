package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"aiforge-core/api/rest/middleware"
	"aiforge-core/core/errs"
	"aiforge-core/core/models"
	"aiforge-core/core/payment"
)

// PaymentHandler handles payment HTTP requests. Callers only see payments
// sent from their own wallet unless the policy grants them admin.
type PaymentHandler struct {
	payments *payment.Service
	policy   middleware.AuthorizationPolicy
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments *payment.Service, policy middleware.AuthorizationPolicy) *PaymentHandler {
	return &PaymentHandler{payments: payments, policy: policy}
}

// owner returns the wallet a payment must come from for this caller, or ""
// for admins
func (h *PaymentHandler) owner(r *http.Request) (string, error) {
	actor := middleware.ActorFrom(r.Context())
	if h.policy != nil {
		admin, err := h.policy.IsAdmin(r.Context(), actor)
		if err != nil {
			return "", err
		}
		if admin {
			return "", nil
		}
	}
	if actor.Wallet == "" {
		return "", fmt.Errorf("wallet address required: %w", errs.ErrForbidden)
	}
	return actor.Wallet, nil
}

// CreatePayment handles POST /v1/payments
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req payment.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.FromAddress == "" {
		req.FromAddress = middleware.ActorFrom(r.Context()).Wallet
	}

	p, err := h.payments.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// VerifyPaymentRequest names the transaction that settles a payment
type VerifyPaymentRequest struct {
	TxHash  string         `json:"tx_hash"`
	Network models.Network `json:"network"`
}

// VerifyPayment handles POST /v1/payments/{id}/verify. An unreachable chain
// answers 202 with verified=false so the caller retries later.
func (h *PaymentHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req VerifyPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	owner, err := h.owner(r)
	if err != nil {
		writeError(w, err)
		return
	}
	current, err := h.payments.GetOwned(r.Context(), id, owner)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Network == "" {
		req.Network = current.Network
	}

	p, confirmed, err := h.payments.Verify(r.Context(), id, req.TxHash, req.Network)
	if errs.Is(err, errs.ErrInconclusive) {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"verified": false,
			"payment":  p,
			"message":  "blockchain unavailable, retry later",
		})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"verified": confirmed,
		"payment":  p,
	})
}

// GetPayment handles GET /v1/payments/{id}
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	owner, err := h.owner(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.payments.GetOwned(r.Context(), id, owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListPayments handles GET /v1/payments?address=...; the caller's wallet is
// used when address is omitted. Only admins may list another wallet.
func (h *PaymentHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	owner, err := h.owner(r)
	if err != nil {
		writeError(w, err)
		return
	}
	address := r.URL.Query().Get("address")
	switch {
	case address == "":
		address = middleware.ActorFrom(r.Context()).Wallet
	case owner != "" && !strings.EqualFold(address, owner):
		writeError(w, fmt.Errorf("cannot list payments of another wallet: %w", errs.ErrForbidden))
		return
	}

	payments, err := h.payments.ListForWallet(r.Context(), address, offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": payments})
}

// CancelPayment handles POST /v1/payments/{id}/cancel
func (h *PaymentHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	owner, err := h.owner(r)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.payments.Cancel(r.Context(), id, owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
