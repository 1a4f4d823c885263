package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// History query bounds.
const (
	defaultHistoryHours = 24
	maxHistoryHours     = 24 * 31
	defaultHistoryStep  = 5 * time.Minute
)

// handleZoneHistory returns aggregated temperature history for a zone.
//
// GET /zones/{id}/history?hours=24&step=300
// Response: {"zone_id": "...", "points": [...], "count": N}
func (s *Server) handleZoneHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "history backend not configured")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.registry.Get(id); err != nil {
		s.writeZoneError(w, err, "get zone")
		return
	}

	hours := defaultHistoryHours
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxHistoryHours {
			writeBadRequest(w, "hours must be between 1 and 744")
			return
		}
		hours = n
	}

	step := defaultHistoryStep
	if v := r.URL.Query().Get("step"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeBadRequest(w, "step must be a positive number of seconds")
			return
		}
		step = time.Duration(n) * time.Second
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	points, err := s.history.QueryZoneTemperatures(r.Context(), id, since, step)
	if err != nil {
		s.logger.Error("history query failed", "zone_id", id, "error", err)
		writeInternalError(w, "failed to query history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"zone_id": id,
		"points":  points,
		"count":   len(points),
	})
}
