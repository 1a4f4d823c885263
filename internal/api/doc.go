// Package api provides the HTTP REST API and WebSocket server for Hearth Core.
//
// It exposes zone configuration, schedules, boost and preset control,
// temperature history, and real-time zone state updates to user
// interfaces (wall panels, mobile apps, dashboards).
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
