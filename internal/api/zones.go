package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/hearth-core/internal/zone"
)

// maxZoneNameLength bounds zone names in create/update requests.
const maxZoneNameLength = 128

// zoneResponse extends the persisted zone with its runtime state.
type zoneResponse struct {
	*zone.Zone
	State          zone.HeatingState   `json:"state"`
	PresenceActive bool                `json:"presence_active"`
	SensorsOffline bool                `json:"sensors_offline"`
	Preheat        *zone.PreheatWindow `json:"preheat,omitempty"`
}

func toZoneResponse(z *zone.Zone) zoneResponse {
	return zoneResponse{
		Zone:           z,
		State:          z.HeatingState,
		PresenceActive: z.PresenceActive,
		SensorsOffline: z.SensorsOffline,
		Preheat:        z.Preheat,
	}
}

// writeZoneError maps registry errors to HTTP responses.
func (s *Server) writeZoneError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, zone.ErrNotFound):
		writeNotFound(w, "zone not found")
	case errors.Is(err, zone.ErrScheduleNotFound):
		writeNotFound(w, "schedule not found")
	case errors.Is(err, zone.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, zone.ErrAlreadyExists):
		writeConflict(w, err.Error())
	case errors.Is(err, zone.ErrInvalidZone),
		errors.Is(err, zone.ErrInvalidSchedule),
		errors.Is(err, zone.ErrInvalidClock):
		writeBadRequest(w, err.Error())
	default:
		s.logger.Error("zone operation failed", "action", action, "error", err)
		writeInternalError(w, "failed to "+action)
	}
}

// handleListZones returns all configured zones.
//
// GET /zones
// Response: {"zones": [...], "count": N}
func (s *Server) handleListZones(w http.ResponseWriter, _ *http.Request) {
	zones := s.registry.List()
	out := make([]zoneResponse, 0, len(zones))
	for _, z := range zones {
		out = append(out, toZoneResponse(z))
	}
	writeJSON(w, http.StatusOK, map[string]any{"zones": out, "count": len(out)})
}

// handleCreateZone creates a new heating zone.
//
// POST /zones
// Body: Zone JSON (id optional; generated when empty)
// Response: 201 Created with the created zone
func (s *Server) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	var z zone.Zone
	if err := json.NewDecoder(r.Body).Decode(&z); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if z.Name == "" || len(z.Name) > maxZoneNameLength {
		writeBadRequest(w, "name is required and must be at most 128 characters")
		return
	}

	created, err := s.registry.Create(r.Context(), &z)
	if err != nil {
		s.writeZoneError(w, err, "create zone")
		return
	}

	s.requestRefresh()
	writeJSON(w, http.StatusCreated, toZoneResponse(created))
}

// handleGetZone returns a single zone by ID, including runtime state.
//
// GET /zones/{id}
func (s *Server) handleGetZone(w http.ResponseWriter, r *http.Request) {
	z, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeZoneError(w, err, "get zone")
		return
	}
	writeJSON(w, http.StatusOK, toZoneResponse(z))
}

// handleUpdateZone partially updates a zone via PATCH semantics.
//
// PATCH /zones/{id}
// Body: partial zone fields (name, base_target, hidden, night_boost,
// window_sensors, presence_sensors, preset_temps, shutdown_switches_when_idle)
// Response: updated zone JSON
func (s *Server) handleUpdateZone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	z, err := s.registry.Get(id)
	if err != nil {
		s.writeZoneError(w, err, "get zone")
		return
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil { //nolint:govet // shadow: err re-declared in nested scope, checked immediately
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(raw) == 0 {
		writeBadRequest(w, "no fields to update")
		return
	}

	if v, ok := raw["name"]; ok {
		var name string
		if json.Unmarshal(v, &name) == nil && name != "" {
			if len(name) > maxZoneNameLength {
				writeBadRequest(w, "name must be at most 128 characters")
				return
			}
			z.Name = name
		}
	}
	if v, ok := raw["base_target"]; ok {
		var target float64
		if json.Unmarshal(v, &target) == nil {
			z.BaseTarget = target
		}
	}
	if v, ok := raw["hidden"]; ok {
		var hidden bool
		if json.Unmarshal(v, &hidden) == nil {
			z.Hidden = hidden
		}
	}
	if v, ok := raw["shutdown_switches_when_idle"]; ok {
		var shutdown bool
		if json.Unmarshal(v, &shutdown) == nil {
			z.ShutdownSwitchesWhenIdle = shutdown
		}
	}
	if v, ok := raw["night_boost"]; ok {
		var nb zone.NightBoostConfig
		if json.Unmarshal(v, &nb) == nil {
			z.NightBoost = nb
		}
	}
	if v, ok := raw["window_sensors"]; ok {
		var sensors []zone.WindowSensor
		if json.Unmarshal(v, &sensors) == nil {
			z.WindowSensors = sensors
		}
	}
	if v, ok := raw["presence_sensors"]; ok {
		var sensors []string
		if json.Unmarshal(v, &sensors) == nil {
			z.PresenceSensors = sensors
		}
	}
	if v, ok := raw["preset_temps"]; ok {
		var temps map[zone.PresetMode]zone.PresetConfig
		if json.Unmarshal(v, &temps) == nil {
			z.PresetTemps = temps
		}
	}

	updated, err := s.registry.Update(r.Context(), z)
	if err != nil {
		s.writeZoneError(w, err, "update zone")
		return
	}

	s.requestRefresh()
	writeJSON(w, http.StatusOK, toZoneResponse(updated))
}

// handleDeleteZone removes a zone by ID.
//
// DELETE /zones/{id}
// Response: 204 No Content
func (s *Server) handleDeleteZone(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeZoneError(w, err, "delete zone")
		return
	}
	s.requestRefresh()
	w.WriteHeader(http.StatusNoContent)
}

// handleSetTarget sets a zone's base target temperature.
//
// PUT /zones/{id}/target
// Body: {"temperature": 21.5}
func (s *Server) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Temperature float64 `json:"temperature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	z, err := s.registry.SetBaseTarget(r.Context(), chi.URLParam(r, "id"), body.Temperature)
	if err != nil {
		s.writeZoneError(w, err, "set target")
		return
	}

	s.requestRefresh()
	writeJSON(w, http.StatusOK, toZoneResponse(z))
}

// handleSetEnabled enables or disables a zone.
//
// PUT /zones/{id}/enabled
// Body: {"enabled": false}
func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	z, err := s.registry.SetEnabled(r.Context(), chi.URLParam(r, "id"), body.Enabled)
	if err != nil {
		s.writeZoneError(w, err, "set enabled")
		return
	}

	s.requestRefresh()
	writeJSON(w, http.StatusOK, toZoneResponse(z))
}

// handleSetMode sets a zone's HVAC mode.
//
// PUT /zones/{id}/mode
// Body: {"mode": "heat"}
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode zone.HVACMode `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	z, err := s.registry.SetHVACMode(r.Context(), chi.URLParam(r, "id"), body.Mode)
	if err != nil {
		s.writeZoneError(w, err, "set mode")
		return
	}

	s.requestRefresh()
	writeJSON(w, http.StatusOK, toZoneResponse(z))
}

// handleSetPreset sets a zone's preset mode.
//
// PUT /zones/{id}/preset
// Body: {"preset": "eco"}
func (s *Server) handleSetPreset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Preset zone.PresetMode `json:"preset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	z, err := s.registry.SetPresetMode(r.Context(), chi.URLParam(r, "id"), body.Preset)
	if err != nil {
		s.writeZoneError(w, err, "set preset")
		return
	}

	s.requestRefresh()
	writeJSON(w, http.StatusOK, toZoneResponse(z))
}

// handleStartBoost starts a temporary boost on a zone.
//
// POST /zones/{id}/boost
// Body: {"temperature": 25.0, "duration_min": 60} (both optional)
func (s *Server) handleStartBoost(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Temperature float64 `json:"temperature"`
		DurationMin int     `json:"duration_min"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	duration := time.Duration(body.DurationMin) * time.Minute
	z, err := s.registry.StartBoost(r.Context(), chi.URLParam(r, "id"), body.Temperature, duration)
	if err != nil {
		s.writeZoneError(w, err, "start boost")
		return
	}

	s.requestRefresh()
	writeJSON(w, http.StatusOK, toZoneResponse(z))
}

// handleCancelBoost cancels an active boost.
//
// DELETE /zones/{id}/boost
func (s *Server) handleCancelBoost(w http.ResponseWriter, r *http.Request) {
	z, err := s.registry.CancelBoost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeZoneError(w, err, "cancel boost")
		return
	}

	s.requestRefresh()
	writeJSON(w, http.StatusOK, toZoneResponse(z))
}

// handleClearOverride clears a zone's manual override flag, returning
// the zone to schedule control.
//
// DELETE /zones/{id}/override
func (s *Server) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	z, err := s.registry.SetManualOverride(r.Context(), chi.URLParam(r, "id"), false, nil)
	if err != nil {
		s.writeZoneError(w, err, "clear override")
		return
	}

	s.requestRefresh()
	writeJSON(w, http.StatusOK, toZoneResponse(z))
}
