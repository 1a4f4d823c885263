package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/hearth-core/internal/zone"
)

// handleGetGlobalConfig returns the registry-wide heating settings.
//
// GET /config
func (s *Server) handleGetGlobalConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.GlobalConfig())
}

// handleUpdateGlobalConfig replaces the registry-wide heating settings.
//
// PUT /config
// Body: GlobalConfig JSON
func (s *Server) handleUpdateGlobalConfig(w http.ResponseWriter, r *http.Request) {
	var cfg zone.GlobalConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.registry.UpdateGlobal(r.Context(), cfg); err != nil {
		s.writeZoneError(w, err, "update config")
		return
	}

	s.requestRefresh()
	writeJSON(w, http.StatusOK, s.registry.GlobalConfig())
}
