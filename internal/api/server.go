package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/hearth-core/internal/infrastructure/config"
	"github.com/nerrad567/hearth-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/hearth-core/internal/infrastructure/logging"
	"github.com/nerrad567/hearth-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/hearth-core/internal/zone"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Refresher triggers an immediate control pass after a configuration
// change, instead of waiting for the next tick.
type Refresher interface {
	RequestRefresh()
}

// HistoryQuerier serves zone temperature history queries.
type HistoryQuerier interface {
	QueryZoneTemperatures(ctx context.Context, zoneID string, since time.Time, step time.Duration) ([]influxdb.TemperaturePoint, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Registry *zone.Registry
	MQTT     *mqtt.Client   // optional: enables WebSocket state relay
	History  HistoryQuerier // optional: enables the history endpoint
	Control  Refresher      // optional: nudges the control loop on mutations
	Version  string
}

// Server is the HTTP API server for Hearth Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	registry *zone.Registry
	mqtt     *mqtt.Client
	history  HistoryQuerier
	control  Refresher
	version  string
	server   *http.Server
	hub      *wsHub
	cancel   context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, registry)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("zone registry is required")
	}
	// MQTT is optional. Without it the WebSocket hub still accepts
	// clients but receives no state relay.

	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		registry: deps.Registry,
		mqtt:     deps.MQTT,
		history:  deps.History,
		control:  deps.Control,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, subscribes to MQTT
// zone state topics for real-time WebSocket broadcast, and launches the
// HTTP listener in a background goroutine. The server can be stopped
// with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = newWSHub(s.wsCfg, s.logger)
	go s.hub.run(srvCtx)

	// Relay zone state and engine events to WebSocket clients
	if err := s.subscribeZoneUpdates(); err != nil {
		s.logger.Warn("failed to subscribe to zone updates for WebSocket", "error", err)
	}

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// requestRefresh nudges the control loop after a configuration change.
func (s *Server) requestRefresh() {
	if s.control != nil {
		s.control.RequestRefresh()
	}
}
