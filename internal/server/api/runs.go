// Package api provides read-only HTTP handlers over stored runs.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/posetrace/internal/pose"
	"github.com/ayusman/posetrace/internal/store"
)

// RunHandler handles HTTP requests for run resources.
type RunHandler struct {
	store *store.Store
}

// NewRunHandler creates a new RunHandler with the given store.
func NewRunHandler(s *store.Store) *RunHandler {
	return &RunHandler{store: s}
}

// ServeHTTP routes /api/runs, /api/runs/{id}, /api/runs/{id}/rows and
// /api/runs/{id}/frames.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/runs")
	path = strings.Trim(path, "/")

	if path == "" {
		h.list(w, r)
		return
	}

	parts := strings.Split(path, "/")
	id := parts[0]
	switch {
	case len(parts) == 1:
		h.get(w, r, id)
	case len(parts) == 2 && parts[1] == "rows":
		h.rows(w, r, id)
	case len(parts) == 2 && parts[1] == "frames":
		h.frames(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type listRunsResponse struct {
	Runs  []*store.Run `json:"runs"`
	Count int          `json:"count"`
}

type runResponse struct {
	*store.Run
	Counts map[pose.Status]int `json:"counts"`
}

type rowsResponse struct {
	RunID  string     `json:"run_id"`
	Status string     `json:"status,omitempty"`
	Rows   []pose.Row `json:"rows"`
	Count  int        `json:"count"`
}

type framesResponse struct {
	RunID  string               `json:"run_id"`
	Frames []store.FrameSummary `json:"frames"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.WithError(err).Warn("Encoding API response")
		}
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// lookup fetches a run and writes the error response when it fails.
func (h *RunHandler) lookup(w http.ResponseWriter, id string) (*store.Run, bool) {
	run, err := h.store.Runs().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return nil, false
	}
	return run, true
}

// list handles GET /api/runs.
func (h *RunHandler) list(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.Runs().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, http.StatusOK, listRunsResponse{Runs: runs, Count: len(runs)})
}

// get handles GET /api/runs/{id}.
func (h *RunHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	run, ok := h.lookup(w, id)
	if !ok {
		return
	}
	counts, err := h.store.Rows().CountByStatus(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count rows")
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Run: run, Counts: counts})
}

// rows handles GET /api/runs/{id}/rows with an optional status filter.
func (h *RunHandler) rows(w http.ResponseWriter, r *http.Request, id string) {
	status := r.URL.Query().Get("status")
	if status != "" {
		if _, ok := pose.ParseStatus(status); !ok {
			writeError(w, http.StatusBadRequest, "Invalid status")
			return
		}
	}

	if _, ok := h.lookup(w, id); !ok {
		return
	}

	rows, err := h.store.Rows().GetByRunID(id, pose.Status(status))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get rows")
		return
	}
	if rows == nil {
		rows = []pose.Row{}
	}
	writeJSON(w, http.StatusOK, rowsResponse{RunID: id, Status: status, Rows: rows, Count: len(rows)})
}

// frames handles GET /api/runs/{id}/frames.
func (h *RunHandler) frames(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := h.lookup(w, id); !ok {
		return
	}

	frames, err := h.store.Frames().GetByRunID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get frames")
		return
	}
	if frames == nil {
		frames = []store.FrameSummary{}
	}
	writeJSON(w, http.StatusOK, framesResponse{RunID: id, Frames: frames})
}
