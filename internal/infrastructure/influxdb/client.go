package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/hearth-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Client is the telemetry sink. Zone temperatures, setpoints, and heating
// events flow through the non-blocking write API in batches; the control
// loop never waits on InfluxDB.
//
// All methods are safe for concurrent use. Write failures surface
// asynchronously through the SetOnError callback.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig

	connected bool
	mu        sync.RWMutex

	// onWriteError receives async write failures from the batch writer.
	onWriteError func(err error)
}

// Connect builds a client for the configured InfluxDB v2 instance and
// verifies it with a ping before returning. Telemetry is optional, so a
// disabled config returns ErrDisabled rather than a nil client.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	// #nosec G115 -- both values forced positive above
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*1000), // API takes milliseconds
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:       cfg,
		connected: true,
	}
	go c.forwardWriteErrors(c.writeAPI.Errors())

	return c, nil
}

// forwardWriteErrors drains the write API's error channel into the
// registered callback. The channel closes when the client does.
func (c *Client) forwardWriteErrors(errCh <-chan error) {
	for err := range errCh {
		c.mu.RLock()
		callback := c.onWriteError
		c.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// Close flushes buffered points and shuts the client down. Safe on a zero
// Client.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

// HealthCheck pings the server, bounded by defaultPingTimeout.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(pingCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}
	return nil
}

// IsConnected reports the last known connection state. HealthCheck does an
// active ping; this does not.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError registers a callback for asynchronous write failures. The
// batch writer delivers errors out of band, so without a callback they are
// silently dropped.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onWriteError = callback
}

// Flush blocks until all buffered points are written. No-op after Close.
func (c *Client) Flush() {
	if c.writeAPI == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}
