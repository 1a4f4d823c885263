package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/hearth-core/internal/infrastructure/config"
	"github.com/nerrad567/hearth-core/internal/infrastructure/logging"
	"github.com/nerrad567/hearth-core/internal/infrastructure/mqtt"
)

// Client-facing message types.
const (
	wsMsgSubscribe   = "subscribe"
	wsMsgUnsubscribe = "unsubscribe"
	wsMsgPing        = "ping"
	wsMsgPong        = "pong"
	wsMsgEvent       = "event"
	wsMsgResponse    = "response"
	wsMsgError       = "error"
)

// Broadcast channels a client can subscribe to.
const (
	// channelZoneState carries per-zone heating state updates.
	channelZoneState = "zone.state"

	// channelEngineEvent carries engine events (boost expiry, preheat
	// start, window-open setback).
	channelEngineEvent = "engine.event"
)

// wsSendBufferSize is the per-client outbound buffer. A client that falls
// this far behind starts losing events rather than stalling broadcasts.
const wsSendBufferSize = 256

// wsMessage is the wire format in both directions.
type wsMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsChannelsPayload is the payload of subscribe and unsubscribe messages.
type wsChannelsPayload struct {
	Channels []string `json:"channels"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is the CORS middleware's problem.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// wsHub tracks connected clients and fans events out to them.
type wsHub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*wsClient]struct{}
	mu      sync.RWMutex
}

// wsClient is one connected browser or dashboard.
type wsClient struct {
	hub      *wsHub
	conn     *websocket.Conn
	send     chan []byte
	channels map[string]struct{}
	mu       sync.RWMutex
}

func newWSHub(cfg config.WebSocketConfig, logger *logging.Logger) *wsHub {
	return &wsHub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// run blocks until the context is cancelled, then disconnects everyone.
func (h *wsHub) run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

func (h *wsHub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.clientCount())
}

// unregister removes a client. Only the goroutine that actually removes it
// from the map closes the send channel, so a disconnect racing shutdown
// cannot double-close.
func (h *wsHub) unregister(c *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if existed {
		close(c.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.clientCount())
}

// broadcast sends an event to every client subscribed to the channel. The
// client list is snapshotted under the hub lock first so the hub and
// per-client locks are never held together.
func (h *wsHub) broadcast(channel string, payload any) {
	data, err := json.Marshal(wsMessage{
		Type:      wsMsgEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("marshalling broadcast failed", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if c.subscribed(channel) {
			c.trySend(data)
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", sent)
	}
}

func (h *wsHub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll drops every client so their writePump goroutines exit.
func (h *wsHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

// subscribeZoneUpdates relays the engine's MQTT zone state and event
// topics into WebSocket broadcasts.
func (s *Server) subscribeZoneUpdates() error {
	if s.mqtt == nil {
		return nil // no MQTT, no relay
	}

	topics := mqtt.Topics{}

	err := s.mqtt.Subscribe(topics.AllCoreZoneStates(), 1, func(t string, payload []byte) error {
		if s.hub == nil {
			return nil
		}
		var state map[string]any
		if err := json.Unmarshal(payload, &state); err != nil {
			s.logger.Warn("unparseable zone state, not relayed", "error", err, "topic", t)
			return nil
		}
		s.hub.broadcast(channelZoneState, state)
		return nil
	})
	if err != nil {
		return err
	}

	return s.mqtt.Subscribe(topics.AllCoreEvents(), 1, func(t string, payload []byte) error {
		if s.hub == nil {
			return nil
		}
		var event map[string]any
		if err := json.Unmarshal(payload, &event); err != nil {
			s.logger.Warn("unparseable engine event, not relayed", "error", err, "topic", t)
			return nil
		}
		// The event type is the final topic segment.
		if idx := strings.LastIndex(t, "/"); idx >= 0 {
			event["event"] = t[idx+1:]
		}
		s.hub.broadcast(channelEngineEvent, event)
		return nil
	})
}

// handleWebSocket upgrades the connection and hands it to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		channels: make(map[string]struct{}),
	}
	s.hub.register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func (c *wsClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	deadline := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	//nolint:errcheck // best-effort deadline on setup
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any traffic counts as liveness; browsers do not always answer
		// protocol pings.
		//nolint:errcheck // best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		c.handleMessage(message)
	}
}

func (c *wsClient) writePump(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// hub closed the channel
				//nolint:errcheck // best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one inbound frame.
func (c *wsClient) handleMessage(data []byte) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case wsMsgSubscribe:
		c.updateChannels(msg, true)
	case wsMsgUnsubscribe:
		c.updateChannels(msg, false)
	case wsMsgPing:
		c.sendResponse(msg.ID, wsMsgPong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// updateChannels applies a subscribe or unsubscribe request and confirms
// back to the client.
func (c *wsClient) updateChannels(msg wsMessage, add bool) {
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		c.sendError(msg.ID, "invalid payload")
		return
	}
	var req wsChannelsPayload
	if err := json.Unmarshal(payloadBytes, &req); err != nil {
		c.sendError(msg.ID, "invalid channels payload")
		return
	}

	c.mu.Lock()
	for _, ch := range req.Channels {
		if add {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
	c.mu.Unlock()

	key := "unsubscribed"
	if add {
		key = "subscribed"
		c.hub.logger.Info("websocket client subscribed", "channels", req.Channels)
	}
	c.sendResponse(msg.ID, wsMsgResponse, map[string]any{key: req.Channels})
}

// trySend queues data for the client without blocking. A full buffer drops
// the frame; a closed channel (disconnect racing a broadcast) is absorbed.
func (c *wsClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // send on closed channel during shutdown
	}()

	select {
	case c.send <- data:
	default:
	}
}

func (c *wsClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

func (c *wsClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(wsMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *wsClient) sendError(id, message string) {
	c.sendResponse(id, wsMsgError, map[string]string{"message": message})
}
