package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/hearth-core/internal/zone"
)

// handleAddDevice binds an entity to a zone.
//
// POST /zones/{id}/devices
// Body: {"entity_id": "climate.living_room", "type": "thermostat"}
// Response: 201 Created with the updated zone
func (s *Server) handleAddDevice(w http.ResponseWriter, r *http.Request) {
	var dev zone.Device
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	z, err := s.registry.AddDevice(r.Context(), chi.URLParam(r, "id"), dev)
	if err != nil {
		s.writeZoneError(w, err, "add device")
		return
	}

	s.requestRefresh()
	writeJSON(w, http.StatusCreated, toZoneResponse(z))
}

// handleRemoveDevice unbinds an entity from a zone.
//
// DELETE /zones/{id}/devices/{entityID}
// Response: 204 No Content
func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	_, err := s.registry.RemoveDevice(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "entityID"))
	if err != nil {
		s.writeZoneError(w, err, "remove device")
		return
	}

	s.requestRefresh()
	w.WriteHeader(http.StatusNoContent)
}
