// Hearth Core - Zone Heating Control Engine
//
// This is the main entry point for the Hearth Core application.
// Hearth is a standalone heating controller designed for:
//   - Zone-based control with schedules, presets and boost
//   - Offline-first operation on the local MQTT bus
//   - Adaptive pre-heating from learned heating rates
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/hearth-core/migrations"

	"github.com/nerrad567/hearth-core/internal/api"
	"github.com/nerrad567/hearth-core/internal/bridges/hamqtt"
	"github.com/nerrad567/hearth-core/internal/control"
	"github.com/nerrad567/hearth-core/internal/infrastructure/config"
	"github.com/nerrad567/hearth-core/internal/infrastructure/database"
	"github.com/nerrad567/hearth-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/hearth-core/internal/infrastructure/logging"
	"github.com/nerrad567/hearth-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/hearth-core/internal/learning"
	"github.com/nerrad567/hearth-core/internal/override"
	"github.com/nerrad567/hearth-core/internal/schedule"
	"github.com/nerrad567/hearth-core/internal/zone"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Hearth Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise zone registry
	registry := zone.NewRegistry(zone.NewSQLiteRepository(db))
	registry.SetLogger(log)
	if loadErr := registry.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading zone registry: %w", loadErr)
	}
	log.Info("zone registry initialised", "zones", registry.Count())

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	qos := byte(cfg.MQTT.QoS) // #nosec G115 -- QoS is validated to 0..2 at config load

	// Entity state bridge
	bridge := hamqtt.NewBridge(mqttClient, qos)
	bridge.SetLogger(log)

	// Heating rate learner
	learner := learning.NewEngine(registry)
	learner.SetLogger(log)
	if influxClient != nil {
		learner.SetRecorder(influxClient)
	}

	// Control loop
	resolver := control.NewCapabilityResolver(bridge)
	resolver.SetLogger(log)
	controlEngine := control.NewEngine(registry, bridge, resolver,
		time.Duration(cfg.Heating.ControlInterval)*time.Second, qos)
	controlEngine.SetLogger(log)
	controlEngine.SetLearner(learner)
	controlEngine.SetPublisher(mqttClient)
	if influxClient != nil {
		controlEngine.SetRecorder(influxClient)
	}

	// Schedule engine with smart pre-heat
	scheduler := schedule.NewEngine(registry,
		time.Duration(cfg.Heating.ScheduleInterval)*time.Second)
	scheduler.SetLogger(log)
	scheduler.SetPredictor(learner)
	scheduler.SetSensorReader(bridge)

	// Manual override detector, fed by the bridge's state changes
	detector := override.NewDetector(registry,
		time.Duration(cfg.Heating.OverrideDebounceMS)*time.Millisecond)
	detector.SetLogger(log)
	detector.SetRefresher(controlEngine)
	detector.SetSetpointTracker(controlEngine)
	defer detector.Shutdown()

	bridge.OnStateChange(detector.HandleStateChange)
	if startErr := bridge.Start(); startErr != nil {
		return fmt.Errorf("starting entity bridge: %w", startErr)
	}
	log.Info("entity bridge started")

	go controlEngine.Run(ctx)
	go scheduler.Run(ctx)
	log.Info("heating engines started",
		"control_interval_s", cfg.Heating.ControlInterval,
		"schedule_interval_s", cfg.Heating.ScheduleInterval,
	)

	// HTTP API and WebSocket server (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log,
			Registry: registry,
			MQTT:     mqttClient,
			Control:  controlEngine,
			Version:  version,
		}
		if influxClient != nil {
			deps.History = influxClient
		}
		apiServer, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Override detector
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Hearth Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HEARTH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HEARTH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
