package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/hearth-core/internal/zone"
)

// handleListSchedules returns a zone's schedules sorted by ID.
//
// GET /zones/{id}/schedules
// Response: {"schedules": [...], "count": N}
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	z, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeZoneError(w, err, "get zone")
		return
	}

	schedules := make([]zone.Schedule, 0, len(z.Schedules))
	for _, sched := range z.Schedules {
		schedules = append(schedules, sched)
	}
	sort.Slice(schedules, func(i, j int) bool { return schedules[i].ID < schedules[j].ID })

	writeJSON(w, http.StatusOK, map[string]any{"schedules": schedules, "count": len(schedules)})
}

// handleCreateSchedule adds a schedule to a zone.
//
// POST /zones/{id}/schedules
// Body: Schedule JSON (id optional; generated when empty)
// Response: 201 Created with the updated zone
func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var sched zone.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	z, err := s.registry.AddSchedule(r.Context(), chi.URLParam(r, "id"), sched)
	if err != nil {
		s.writeZoneError(w, err, "create schedule")
		return
	}

	s.requestRefresh()
	writeJSON(w, http.StatusCreated, toZoneResponse(z))
}

// handleUpdateSchedule replaces a schedule on a zone.
//
// PUT /zones/{id}/schedules/{scheduleID}
// Body: Schedule JSON (id in the path wins)
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var sched zone.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	sched.ID = chi.URLParam(r, "scheduleID")

	z, err := s.registry.UpdateSchedule(r.Context(), chi.URLParam(r, "id"), sched)
	if err != nil {
		s.writeZoneError(w, err, "update schedule")
		return
	}

	s.requestRefresh()
	writeJSON(w, http.StatusOK, toZoneResponse(z))
}

// handleDeleteSchedule removes a schedule from a zone.
//
// DELETE /zones/{id}/schedules/{scheduleID}
// Response: 204 No Content
func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	_, err := s.registry.DeleteSchedule(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "scheduleID"))
	if err != nil {
		s.writeZoneError(w, err, "delete schedule")
		return
	}

	s.requestRefresh()
	w.WriteHeader(http.StatusNoContent)
}
