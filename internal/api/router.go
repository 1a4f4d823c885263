package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Global heating configuration
		r.Get("/config", s.handleGetGlobalConfig)
		r.Put("/config", s.handleUpdateGlobalConfig)

		// Zone endpoints
		r.Route("/zones", func(r chi.Router) {
			r.Get("/", s.handleListZones)
			r.Post("/", s.handleCreateZone)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetZone)
				r.Patch("/", s.handleUpdateZone)
				r.Delete("/", s.handleDeleteZone)

				// Heating actions
				r.Put("/target", s.handleSetTarget)
				r.Put("/enabled", s.handleSetEnabled)
				r.Put("/mode", s.handleSetMode)
				r.Put("/preset", s.handleSetPreset)
				r.Post("/boost", s.handleStartBoost)
				r.Delete("/boost", s.handleCancelBoost)
				r.Delete("/override", s.handleClearOverride)

				// Telemetry
				r.Get("/history", s.handleZoneHistory)

				// Schedule endpoints
				r.Route("/schedules", func(r chi.Router) {
					r.Get("/", s.handleListSchedules)
					r.Post("/", s.handleCreateSchedule)
					r.Put("/{scheduleID}", s.handleUpdateSchedule)
					r.Delete("/{scheduleID}", s.handleDeleteSchedule)
				})

				// Device endpoints
				r.Route("/devices", func(r chi.Router) {
					r.Post("/", s.handleAddDevice)
					r.Delete("/{entityID}", s.handleRemoveDevice)
				})
			})
		})

		// WebSocket for real-time zone state
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"zones":   s.registry.Count(),
	})
}
