package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  enabled: true
  host: "0.0.0.0"
  port: 8080
heating:
  control_interval: 30
  schedule_interval: 60
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}

	if cfg.Heating.ControlInterval != 30 {
		t.Errorf("Heating.ControlInterval = %d, want 30", cfg.Heating.ControlInterval)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
site:
  id: ""
database:
  path: "/tmp/test.db"
api:
  port: 8080
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	// validBase returns a config that passes validation; each case
	// mutates one field to exercise a single rule.
	validBase := func() *Config {
		cfg := defaultConfig()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing site ID",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "missing mqtt host",
			mutate:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid API port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid API port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name: "API port ignored when disabled",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.API.Port = 0
			},
			wantErr: false,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
		{
			name:    "zero control interval",
			mutate:  func(c *Config) { c.Heating.ControlInterval = 0 },
			wantErr: true,
		},
		{
			name:    "zero schedule interval",
			mutate:  func(c *Config) { c.Heating.ScheduleInterval = 0 },
			wantErr: true,
		},
		{
			name:    "negative debounce",
			mutate:  func(c *Config) { c.Heating.OverrideDebounceMS = -1 },
			wantErr: true,
		},
		{
			name: "influxdb enabled without org",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.Org = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Heating: HeatingConfig{
			ControlInterval:    30,
			ScheduleInterval:   60,
			OverrideDebounceMS: 2000,
		},
	}

	if got := cfg.API.ReadTimeout().Seconds(); got != 30 {
		t.Errorf("ReadTimeout() = %v, want 30", got)
	}

	if got := cfg.API.WriteTimeout().Seconds(); got != 45 {
		t.Errorf("WriteTimeout() = %v, want 45", got)
	}

	if got := cfg.API.IdleTimeout().Seconds(); got != 60 {
		t.Errorf("IdleTimeout() = %v, want 60", got)
	}

	if got := cfg.Heating.Interval().Seconds(); got != 30 {
		t.Errorf("Interval() = %v, want 30", got)
	}

	if got := cfg.Heating.ScheduleTick().Seconds(); got != 60 {
		t.Errorf("ScheduleTick() = %v, want 60", got)
	}

	if got := cfg.Heating.OverrideDebounce().Milliseconds(); got != 2000 {
		t.Errorf("OverrideDebounce() = %v, want 2000", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("HEARTH_DATABASE_PATH", "/custom/path.db")
	t.Setenv("HEARTH_MQTT_HOST", "mqtt.example.com")
	t.Setenv("HEARTH_MQTT_USERNAME", "testuser")
	t.Setenv("HEARTH_MQTT_PASSWORD", "testpass")
	t.Setenv("HEARTH_API_HOST", "192.168.1.1")
	t.Setenv("HEARTH_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("HEARTH_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}

	if cfg.Heating.ControlInterval != 30 {
		t.Errorf("defaultConfig Heating.ControlInterval = %d, want 30", cfg.Heating.ControlInterval)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig should validate, got %v", err)
	}
}
