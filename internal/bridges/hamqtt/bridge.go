package hamqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/nerrad567/hearth-core/internal/infrastructure/mqtt"
)

// EntityState is the mirrored state of one integration entity.
type EntityState struct {
	// Value is the entity's primary state: a number for sensors, a
	// string like "heat"/"on"/"off" for actuators, "on"/"off" for
	// binary sensors.
	Value any `json:"value"`

	// Attributes carries entity metadata such as unit_of_measurement,
	// temperature, position, min, max.
	Attributes map[string]any `json:"attributes,omitempty"`

	// Available is false while the integration reports the entity
	// unreachable.
	Available bool `json:"available"`
}

// StateChange is delivered to change handlers on every state update.
type StateChange struct {
	EntityID string
	Old      *EntityState // nil the first time an entity is seen
	New      EntityState
}

// ChangeHandler receives state changes. Handlers run on the MQTT
// receive path and must not block.
type ChangeHandler func(change StateChange)

// MQTTClient is the subset of the MQTT client the bridge needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Bridge mirrors integration entity state into memory and routes
// commands back out.
//
// Thread Safety: all methods are safe for concurrent use. Change
// handlers must be registered before Start.
type Bridge struct {
	mqtt   MQTTClient
	qos    byte
	logger Logger

	statesMu sync.RWMutex
	states   map[string]EntityState

	handlers []ChangeHandler
}

// NewBridge creates a bridge over the given MQTT client.
func NewBridge(client MQTTClient, qos byte) *Bridge {
	return &Bridge{
		mqtt:   client,
		qos:    qos,
		logger: noopLogger{},
		states: make(map[string]EntityState),
	}
}

// SetLogger sets the logger used for bridge events.
func (b *Bridge) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// OnStateChange registers a handler for entity state changes.
// Must be called before Start.
func (b *Bridge) OnStateChange(h ChangeHandler) {
	b.handlers = append(b.handlers, h)
}

// Start subscribes to the entity state tree. Retained messages replay
// immediately, warming the cache.
func (b *Bridge) Start() error {
	topics := mqtt.Topics{}
	if err := b.mqtt.Subscribe(topics.AllEntityStates(), b.qos, b.handleState); err != nil {
		return fmt.Errorf("subscribing to entity states: %w", err)
	}
	b.logger.Info("entity state bridge started", "topic", topics.AllEntityStates())
	return nil
}

// handleState decodes one state message and updates the cache.
func (b *Bridge) handleState(topic string, payload []byte) error {
	entityID := strings.TrimPrefix(topic, mqtt.TopicPrefix+"/state/")
	if entityID == topic || entityID == "" || strings.Contains(entityID, "/") {
		b.logger.Warn("ignoring malformed state topic", "topic", topic)
		return nil
	}

	var state EntityState
	if err := json.Unmarshal(payload, &state); err != nil {
		b.logger.Warn("ignoring malformed state payload",
			"entity_id", entityID, "error", err)
		return nil
	}

	b.statesMu.Lock()
	var old *EntityState
	if prev, ok := b.states[entityID]; ok {
		prevCopy := prev
		old = &prevCopy
	}
	b.states[entityID] = state
	b.statesMu.Unlock()

	change := StateChange{EntityID: entityID, Old: old, New: state}
	for _, h := range b.handlers {
		h(change)
	}
	return nil
}

// ReadSensor returns the cached state of an entity. ErrEntityUnknown
// means no state message has been seen for it yet.
func (b *Bridge) ReadSensor(entityID string) (EntityState, error) {
	b.statesMu.RLock()
	defer b.statesMu.RUnlock()

	state, ok := b.states[entityID]
	if !ok {
		return EntityState{}, fmt.Errorf("%w: %s", ErrEntityUnknown, entityID)
	}
	return state, nil
}

// Known reports whether any state has been seen for the entity.
func (b *Bridge) Known(entityID string) bool {
	b.statesMu.RLock()
	defer b.statesMu.RUnlock()
	_, ok := b.states[entityID]
	return ok
}

// EntityCount returns the number of cached entities.
func (b *Bridge) EntityCount() int {
	b.statesMu.RLock()
	defer b.statesMu.RUnlock()
	return len(b.states)
}

// Command publishes a command for an entity.
func (b *Bridge) Command(entityID, action string, params map[string]any) error {
	if !b.mqtt.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(struct {
		Action string         `json:"action"`
		Params map[string]any `json:"params,omitempty"`
	}{Action: action, Params: params})
	if err != nil {
		return fmt.Errorf("marshaling command: %w", err)
	}

	topic := mqtt.Topics{}.EntityCommand(entityID)
	if err := b.mqtt.Publish(topic, payload, b.qos, false); err != nil {
		return fmt.Errorf("publishing command: %w", err)
	}

	b.logger.Debug("command sent", "entity_id", entityID, "action", action)
	return nil
}

// SetTemperature commands a climate or valve entity to a target
// temperature.
func (b *Bridge) SetTemperature(entityID string, temp float64) error {
	return b.Command(entityID, "set_temperature", map[string]any{"temperature": temp})
}

// SetPosition commands a valve entity to a position.
func (b *Bridge) SetPosition(entityID string, position float64) error {
	return b.Command(entityID, "set_position", map[string]any{"position": position})
}

// TurnOn switches an entity on.
func (b *Bridge) TurnOn(entityID string) error {
	return b.Command(entityID, "turn_on", nil)
}

// TurnOff switches an entity off.
func (b *Bridge) TurnOff(entityID string) error {
	return b.Command(entityID, "turn_off", nil)
}

// Domain returns the entity's domain, the part before the first dot.
func Domain(entityID string) (string, error) {
	domain, _, ok := strings.Cut(entityID, ".")
	if !ok || domain == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntityID, entityID)
	}
	return domain, nil
}

// NumericValue extracts the state value as a float64. JSON numbers
// arrive as float64; integrations that publish numbers as strings are
// tolerated.
func NumericValue(state EntityState) (float64, bool) {
	switch v := state.Value.(type) {
	case float64:
		return v, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// TemperatureC extracts a temperature reading in °C, converting from
// Fahrenheit when the entity reports a °F unit.
func TemperatureC(state EntityState) (float64, bool) {
	v, ok := NumericValue(state)
	if !ok {
		return 0, false
	}
	if unit, ok := state.Attributes["unit_of_measurement"].(string); ok {
		if unit == "°F" || unit == "F" {
			return (v - 32.0) * 5.0 / 9.0, true
		}
	}
	return v, true
}

// IsOn interprets a binary state value ("on"/"off", true/false).
func IsOn(state EntityState) bool {
	switch v := state.Value.(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(v)
		return s == "on" || s == "true" || s == "open" || s == "home" || s == "detected"
	case float64:
		return v != 0
	}
	return false
}

// AttrFloat extracts a numeric attribute.
func AttrFloat(state EntityState, key string) (float64, bool) {
	v, ok := state.Attributes[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
