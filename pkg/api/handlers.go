package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ethpandaops/profiledb/pkg/archive"
	"github.com/ethpandaops/profiledb/pkg/codec"
	"github.com/ethpandaops/profiledb/pkg/query"
	"github.com/ethpandaops/profiledb/pkg/runs"
	"github.com/ethpandaops/profiledb/pkg/storage"
)

const (
	defaultListLimit   = 100
	maxListLimit       = 1000
	defaultHardHitDays = 5
	maxRunBodyBytes    = 32 << 20
	healthTimeout      = 500 * time.Millisecond
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// writeError maps repository errors to status codes.
func (s *server) writeError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, query.ErrInvalidCriteria):
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})
	case errors.Is(err, storage.ErrIntegrityViolation):
		writeJSON(w, http.StatusConflict, errorResponse{"run already exists"})
	case errors.Is(err, storage.ErrTimeout):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{"query timed out"})
	case errors.Is(err, codec.ErrDecode):
		s.log.WithError(err).Error(msg)
		writeJSON(w, http.StatusInternalServerError, errorResponse{"corrupt run"})
	case errors.Is(err, storage.ErrConnection):
		s.log.WithError(err).Error(msg)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{"database unavailable"})
	default:
		s.log.WithError(err).Error(msg)
		writeJSON(w, http.StatusInternalServerError, errorResponse{msg})
	}
}

// handleHealth reports whether the run store answers queries.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	var one int
	if err := s.db.Get(ctx, &one, "SELECT 1", nil); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListRuns lists runs, newest first.
func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	c := query.Criteria{
		OrderBy: []string{"timestamp"},
		Limit:   limit,
	}

	for _, column := range []string{"url", "canonical_url", "server_name", "server_id"} {
		if v := q.Get(column); v != "" {
			c = c.Eq(column, v)
		}
	}

	if v := q.Get("type"); v != "" {
		runType, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{"invalid type"})

			return
		}

		c = c.Eq("type", runType)
	}

	if prefix := q.Get("url_prefix"); prefix != "" {
		c = c.HasPrefix("url", prefix)
	}

	list, err := s.repo.GetRuns(r.Context(), c)
	if err != nil {
		s.writeError(w, err, "failed to list runs")

		return
	}

	if list == nil {
		list = []runs.Run{}
	}

	writeJSON(w, http.StatusOK, list)
}

// handleGetRun returns a decoded run with its comparative statistics.
func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	runType, err := parseInt(r.URL.Query().Get("type"), 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid type"})

		return
	}

	details, err := s.repo.GetRun(r.Context(), id, runType)
	if err != nil {
		s.writeError(w, err, "failed to load run")

		return
	}

	if details == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{"run not found"})

		return
	}

	writeJSON(w, http.StatusOK, details)
}

// createRunRequest is the ingestion payload.
type createRunRequest struct {
	ID         string        `json:"id"`
	Type       int           `json:"type"`
	URL        string        `json:"url"`
	ServerName string        `json:"server_name"`
	Timestamp  int64         `json:"timestamp"`
	Profile    runs.Profile  `json:"profile"`
	Get        runs.Snapshot `json:"get"`
	Cookie     runs.Snapshot `json:"cookie"`
	Post       runs.Snapshot `json:"post"`
}

// handleCreateRun stores a posted run.
func (s *server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRunBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid request body"})

		return
	}

	if len(req.Profile) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{"profile is required"})

		return
	}

	details := &runs.RequestDetails{
		URL:        req.URL,
		ServerName: req.ServerName,
		Get:        req.Get,
		Cookie:     req.Cookie,
		Post:       req.Post,
	}

	if req.Timestamp > 0 {
		details.Timestamp = time.Unix(req.Timestamp, 0)
	}

	id, err := s.repo.SaveRun(r.Context(), req.Profile, req.Type, req.ID, details)
	if err != nil {
		s.writeError(w, err, "failed to save run")

		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// handleExportRun archives a run.
func (s *server) handleExportRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	runType, err := parseInt(r.URL.Query().Get("type"), 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid type"})

		return
	}

	location, err := s.exporter.Export(r.Context(), id, runType)
	if err != nil {
		if errors.Is(err, archive.ErrRunNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{"run not found"})

			return
		}

		s.writeError(w, err, "failed to export run")

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"location": location})
}

// handleHardHit ranks recently profiled URLs.
func (s *server) handleHardHit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	days, err := parseInt(q.Get("days"), defaultHardHitDays)
	if err != nil || days < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid days"})

		return
	}

	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	c := query.Criteria{Limit: limit}
	if v := q.Get("server_id"); v != "" {
		c = c.Eq("server_id", v)
	}

	hits, err := s.repo.GetHardHit(r.Context(), days, c)
	if err != nil {
		s.writeError(w, err, "failed to load hard hits")

		return
	}

	if hits == nil {
		hits = []runs.HardHit{}
	}

	writeJSON(w, http.StatusOK, hits)
}

// handleURLStats returns the metric history of one URL or canonical URL.
func (s *server) handleURLStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	c := query.Criteria{
		OrderBy: []string{"timestamp"},
		Limit:   limit,
	}

	switch {
	case q.Get("url") != "":
		c = c.Eq("url", q.Get("url"))
	case q.Get("canonical_url") != "":
		c = c.Eq("canonical_url", q.Get("canonical_url"))
	default:
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"url or canonical_url is required"})

		return
	}

	stats, err := s.repo.GetURLStats(r.Context(), c)
	if err != nil {
		s.writeError(w, err, "failed to load url stats")

		return
	}

	if stats == nil {
		stats = []runs.URLStat{}
	}

	writeJSON(w, http.StatusOK, stats)
}

func parseInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}

	return strconv.Atoi(raw)
}

func parseLimit(raw string) (int, error) {
	limit, err := parseInt(raw, defaultListLimit)
	if err != nil || limit < 1 {
		return 0, errors.New("invalid limit")
	}

	return min(limit, maxListLimit), nil
}
