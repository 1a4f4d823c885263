package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/hearth-core/internal/infrastructure/config"
)

// Client is the broker connection shared by the device bridge, the
// control loop's state publisher, and the API's WebSocket relay. It
// wraps paho with reconnect handling, subscription restoration, and
// the hearth/system/status presence document (retained online payload
// on connect, LWT on crash, offline payload on clean shutdown).
//
// All methods are safe for concurrent use.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	// subs is replayed against the broker every time the session
	// comes back, since a reconnect may land on a broker that lost
	// session state.
	subs  map[string]subscription
	subMu sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	onConnect    func()
	onDisconnect func(err error)
	cbMu         sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger receives handler errors and recovered panics. Satisfied by
// logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one inbound message. Paho invokes handlers
// on its own goroutines; a returned error is logged, never redelivered.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker described by cfg and blocks until the
// session is up or the connect timeout passes. The returned client
// has already announced itself on hearth/system/status.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	c := &Client{
		cfg:     cfg,
		options: opts,
		subs:    make(map[string]subscription),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect callback runs asynchronously and may not have
	// fired yet; mark connected here so IsConnected is true as soon
	// as Connect returns.
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return c, nil
}

func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.restoreSubscriptions()
	c.publishOnlineStatus()

	c.cbMu.RLock()
	cb := c.onConnect
	c.cbMu.RUnlock()
	if cb != nil {
		cb()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.cbMu.RLock()
	cb := c.onDisconnect
	c.cbMu.RUnlock()
	if cb != nil {
		cb(err)
	}
}

// restoreSubscriptions replays every tracked subscription. Failures
// are not reported; paho retries the session and the next reconnect
// replays again.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subs {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

func (c *Client) publishOnlineStatus() {
	payload := buildOnlinePayload(c.cfg.Broker.ClientID)
	c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
}

// Close announces a clean shutdown on the status topic, then
// disconnects with a quiesce window for in-flight publishes. The
// explicit offline payload is what tells consumers this was a
// shutdown rather than the LWT's crash marker.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		payload := buildOfflinePayload(c.cfg.Broker.ClientID)
		token := c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck reports the connection state for the startup health
// gate and the API health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known session state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetOnConnect registers a callback run on the initial connect and on
// every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.cbMu.Lock()
	c.onConnect = callback
	c.cbMu.Unlock()
}

// SetOnDisconnect registers a callback run when the session drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.cbMu.Lock()
	c.onDisconnect = callback
	c.cbMu.Unlock()
}

// SetLogger attaches a logger for handler errors. Without one,
// handler errors and recovered panics are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler adapts a MessageHandler to paho's signature with panic
// recovery, so one bad state document cannot take down the client's
// receive path.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("mqtt handler panic recovered",
						"topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("mqtt handler failed",
					"topic", msg.Topic(), "error", err)
			}
		}
	}
}
