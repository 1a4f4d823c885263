package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Hearth Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Heating   HeatingConfig   `yaml:"heating"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// HeatingConfig contains the timing parameters of the heating engine.
//
// Behavioural settings (hysteresis, frost protection, preset
// temperatures, valve fallbacks) live in the persisted zone registry
// so they can be changed at runtime. Only the fixed loop periods are
// configured here.
type HeatingConfig struct {
	// ControlInterval is the period of the control loop in seconds.
	ControlInterval int `yaml:"control_interval"`

	// ScheduleInterval is the period of the schedule engine in seconds.
	ScheduleInterval int `yaml:"schedule_interval"`

	// OverrideDebounceMS is the debounce delay for manual thermostat
	// changes in milliseconds.
	OverrideDebounceMS int `yaml:"override_debounce_ms"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HEARTH_SECTION_KEY
// For example: HEARTH_DATABASE_PATH, HEARTH_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Hearth",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/hearth.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hearth-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			URL:           "http://localhost:8086",
			Bucket:        "hearth",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Heating: HeatingConfig{
			ControlInterval:    30,
			ScheduleInterval:   60,
			OverrideDebounceMS: 2000,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HEARTH_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("HEARTH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("HEARTH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HEARTH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HEARTH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("HEARTH_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("HEARTH_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("HEARTH_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("HEARTH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when enabled")
		}
		if c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.org is required when enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when enabled")
		}
	}

	// Logging validation
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn, or error")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, "logging.format must be json or text")
	}

	// Heating validation: a zero interval would spin the loops
	if c.Heating.ControlInterval < 1 {
		errs = append(errs, "heating.control_interval must be at least 1 second")
	}
	if c.Heating.ScheduleInterval < 1 {
		errs = append(errs, "heating.schedule_interval must be at least 1 second")
	}
	if c.Heating.OverrideDebounceMS < 0 {
		errs = append(errs, "heating.override_debounce_ms must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReadTimeout returns the API read timeout as a Duration.
func (c *APIConfig) ReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (c *APIConfig) WriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (c *APIConfig) IdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}

// Interval returns the control loop period as a Duration.
func (c *HeatingConfig) Interval() time.Duration {
	return time.Duration(c.ControlInterval) * time.Second
}

// ScheduleTick returns the schedule engine tick period as a Duration.
func (c *HeatingConfig) ScheduleTick() time.Duration {
	return time.Duration(c.ScheduleInterval) * time.Second
}

// OverrideDebounce returns the manual override debounce delay as a Duration.
func (c *HeatingConfig) OverrideDebounce() time.Duration {
	return time.Duration(c.OverrideDebounceMS) * time.Millisecond
}
