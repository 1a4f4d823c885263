package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRun_ConfigPathMissing(t *testing.T) {
	t.Setenv("HEARTH_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() error = nil, want error for missing config file")
	}
}

func TestRun_EmptyDatabasePath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	cfg := `
site:
  id: test-site

database:
  path: ""
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "hearth-test"
  qos: 1
  reconnect:
    initial_delay: 1
    max_delay: 60

influxdb:
  enabled: false

logging:
  level: info
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: 8080
  timeouts:
    read: 30
    write: 60
    idle: 120
`
	if err := os.WriteFile(configPath, []byte(cfg), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("HEARTH_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() error = nil, want validation error for empty database path")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("HEARTH_CONFIG", "")
		os.Unsetenv("HEARTH_CONFIG")

		if got := getConfigPath(); got != defaultConfigPath {
			t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
		}
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("HEARTH_CONFIG", "/etc/hearth/config.yaml")

		if got := getConfigPath(); got != "/etc/hearth/config.yaml" {
			t.Errorf("getConfigPath() = %q, want the HEARTH_CONFIG value", got)
		}
	})
}
