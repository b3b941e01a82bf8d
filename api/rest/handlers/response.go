package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"aiforge-core/core/errs"
	"aiforge-core/core/ledger"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeError maps the error taxonomy onto HTTP status codes
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errs.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errs.Is(err, errs.ErrForbidden):
		status = http.StatusForbidden
	case errs.Is(err, errs.ErrConflict, errs.ErrInvariant):
		status = http.StatusConflict
	case errs.Is(err, errs.ErrValidation):
		status = http.StatusBadRequest
	case errs.Is(err, errs.ErrInconclusive):
		status = http.StatusServiceUnavailable
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("Internal error: %v", err)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %v: %w", err, errs.ErrValidation)
	}
	return nil
}

func pathInt(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s: %w", name, errs.ErrValidation)
	}
	return v, nil
}

// pathPeriod reads the {year} and {month} route variables
func pathPeriod(r *http.Request) (ledger.Period, error) {
	vars := mux.Vars(r)
	return parsePeriod(vars["year"], vars["month"])
}

func parsePeriod(year, month string) (ledger.Period, error) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	if err1 != nil || err2 != nil {
		return ledger.Period{}, fmt.Errorf("invalid period %s-%s: %w", year, month, errs.ErrValidation)
	}
	p, err := ledger.NewPeriod(y, m)
	if err != nil {
		return ledger.Period{}, fmt.Errorf("%v: %w", err, errs.ErrValidation)
	}
	return p, nil
}

// pageParams reads offset and limit query parameters
func pageParams(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset: %w", errs.ErrValidation)
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("invalid limit: %w", errs.ErrValidation)
		}
	}
	return offset, limit, nil
}
