package handlers

import (
	"fmt"
	"io"
	"net/http"

	"aiforge-core/core/errs"
	"aiforge-core/storage"

	"github.com/gorilla/mux"
)

// ContentHandler stores and serves content-addressed blobs
type ContentHandler struct {
	content *storage.ContentStore
	maxBody int64
}

// NewContentHandler creates a content handler. maxBody bounds upload size.
func NewContentHandler(content *storage.ContentStore, maxBody int64) *ContentHandler {
	if maxBody <= 0 {
		maxBody = 64 << 20
	}
	return &ContentHandler{content: content, maxBody: maxBody}
}

// Upload handles POST /v1/content with the raw bytes as body
func (h *ContentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody+1))
	if err != nil {
		writeError(w, fmt.Errorf("failed to read body: %v: %w", err, errs.ErrValidation))
		return
	}
	if int64(len(data)) > h.maxBody {
		writeError(w, fmt.Errorf("content exceeds %d bytes: %w", h.maxBody, errs.ErrValidation))
		return
	}

	id, err := h.content.Put(r.Context(), data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"cid": id, "size": len(data)})
}

// Download handles GET /v1/content/{cid}
func (h *ContentHandler) Download(w http.ResponseWriter, r *http.Request) {
	data, err := h.content.Get(r.Context(), mux.Vars(r)["cid"])
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
