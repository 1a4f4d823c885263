package influxdb_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/hearth-core/internal/infrastructure/config"
	"github.com/nerrad567/hearth-core/internal/infrastructure/influxdb"
)

// devConfig points at the local dev InfluxDB from docker-compose.yml.
func devConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "hearth-dev-token",
		Org:           "hearth",
		Bucket:        "metrics",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// devClient connects to the dev instance, skipping the test when it is not
// running, and closes the client when the test finishes.
func devClient(t *testing.T) *influxdb.Client {
	t.Helper()

	client, err := influxdb.Connect(devConfig())
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// writeErrors captures async write failures delivered via SetOnError.
type writeErrors struct {
	mu   sync.Mutex
	last error
}

func (w *writeErrors) record(err error) {
	w.mu.Lock()
	w.last = err
	w.mu.Unlock()
}

func (w *writeErrors) check(t *testing.T) {
	t.Helper()
	time.Sleep(100 * time.Millisecond) // let the error callback fire
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last != nil {
		t.Errorf("async write error = %v", w.last)
	}
}

// ─── Connection ──────────────────────────────────────────────────────────────

func TestConnect(t *testing.T) {
	client := devClient(t)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := devConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := devConfig()
	cfg.URL = "http://127.0.0.1:59999"

	if _, err := influxdb.Connect(cfg); err == nil {
		t.Fatal("Connect() error = nil for unreachable server")
	}
}

func TestConnect_BatchDefaults(t *testing.T) {
	// Zero and negative batch settings fall back to package defaults
	// rather than being passed to the client as-is.
	for _, tt := range []struct {
		name          string
		batchSize     int
		flushInterval int
	}{
		{name: "zero", batchSize: 0, flushInterval: 0},
		{name: "negative", batchSize: -5, flushInterval: -1},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := devConfig()
			cfg.BatchSize = tt.batchSize
			cfg.FlushInterval = tt.flushInterval

			client, err := influxdb.Connect(cfg)
			if err != nil {
				t.Skipf("InfluxDB not available: %v", err)
			}
			defer client.Close()

			if !client.IsConnected() {
				t.Error("IsConnected() = false after Connect()")
			}
		})
	}
}

// ─── Health Check ────────────────────────────────────────────────────────────

func TestHealthCheck(t *testing.T) {
	client := devClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheck_CancelledContext(t *testing.T) {
	client := devClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() error = nil, want error for cancelled context")
	}
}

// ─── Writes ──────────────────────────────────────────────────────────────────

func TestWrites(t *testing.T) {
	tests := []struct {
		name  string
		write func(c *influxdb.Client)
	}{
		{
			name: "zone temperature",
			write: func(c *influxdb.Client) {
				c.WriteZoneTemperature("hall", 19.4, 21.0, true)
			},
		},
		{
			name: "heating rate",
			write: func(c *influxdb.Client) {
				c.WriteHeatingRate("hall", 1.25, 45)
			},
		},
		{
			name: "heat source demand",
			write: func(c *influxdb.Client) {
				c.WriteHeatSourceDemand("climate.boiler", 41.0, true)
			},
		},
		{
			name: "raw point",
			write: func(c *influxdb.Client) {
				c.WritePoint(
					"boost_events",
					map[string]string{"zone_id": "hall"},
					map[string]interface{}{"target": 22.5, "minutes": 60},
				)
			},
		},
		{
			name: "raw point with timestamp",
			write: func(c *influxdb.Client) {
				c.WritePointWithTime(
					"boost_events",
					map[string]string{"zone_id": "kitchen"},
					map[string]interface{}{"target": 21.0},
					time.Now().Add(-time.Hour),
				)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := devClient(t)
			errs := &writeErrors{}
			client.SetOnError(errs.record)

			tt.write(client)
			client.Flush()
			errs.check(t)
		})
	}
}

// ─── Close ───────────────────────────────────────────────────────────────────

func TestClose(t *testing.T) {
	client, err := influxdb.Connect(devConfig())
	if err != nil {
		t.Skipf("InfluxDB not available: %v", err)
	}

	// Close should flush the point queued above without error.
	client.WriteZoneTemperature("hall", 18.0, 20.0, false)

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestClose_ZeroClient(t *testing.T) {
	client := &influxdb.Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
}
