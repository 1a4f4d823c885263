package control

import (
	"fmt"
	"sync"

	"github.com/nerrad567/hearth-core/internal/bridges/hamqtt"
)

// ControlMethod is how a valve-class actuator is driven.
type ControlMethod string

const (
	// ControlPosition drives the actuator by valve position.
	ControlPosition ControlMethod = "position"

	// ControlTemperature drives the actuator by setpoint temperature.
	ControlTemperature ControlMethod = "temperature"

	// ControlUnsupported marks an actuator the engine cannot drive.
	ControlUnsupported ControlMethod = "unsupported"
)

// Default position bounds when the entity does not advertise its own.
const (
	defaultMinPosition = 0.0
	defaultMaxPosition = 100.0
)

// DeviceCapability is the probed control profile of one actuator.
type DeviceCapability struct {
	Method      ControlMethod
	MinPosition float64
	MaxPosition float64
}

// SensorReader reads cached entity state.
type SensorReader interface {
	ReadSensor(entityID string) (hamqtt.EntityState, error)
}

// CapabilityResolver probes actuators once and caches the result, so
// the control loop never re-inspects attributes on every pass.
//
// Probe rules:
//   - domain "number": position control, bounds from min/max attributes
//   - domain "climate" with a "position" attribute: position control
//   - domain "climate" with a "temperature" or "target_temp_low"
//     attribute: temperature control
//   - anything else: unsupported, cached, skipped with a warning
type CapabilityResolver struct {
	reader SensorReader
	logger Logger

	mu    sync.Mutex
	cache map[string]DeviceCapability
}

// NewCapabilityResolver creates a resolver over the given state reader.
func NewCapabilityResolver(reader SensorReader) *CapabilityResolver {
	return &CapabilityResolver{
		reader: reader,
		logger: noopLogger{},
		cache:  make(map[string]DeviceCapability),
	}
}

// SetLogger sets the logger used for probe results.
func (r *CapabilityResolver) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Resolve returns the actuator's control profile, probing on first
// sight. An error means no state is available yet; the result is not
// cached so a later pass can retry.
func (r *CapabilityResolver) Resolve(entityID string) (DeviceCapability, error) {
	r.mu.Lock()
	if profile, ok := r.cache[entityID]; ok {
		r.mu.Unlock()
		return profile, nil
	}
	r.mu.Unlock()

	state, err := r.reader.ReadSensor(entityID)
	if err != nil {
		return DeviceCapability{}, fmt.Errorf("probing %s: %w", entityID, err)
	}

	profile := probe(entityID, state)

	r.mu.Lock()
	r.cache[entityID] = profile
	r.mu.Unlock()

	if profile.Method == ControlUnsupported {
		r.logger.Warn("actuator has no usable control method, skipping",
			"entity_id", entityID)
	} else {
		r.logger.Info("actuator capability resolved",
			"entity_id", entityID, "method", string(profile.Method))
	}
	return profile, nil
}

// Invalidate drops a cached profile, forcing a re-probe.
func (r *CapabilityResolver) Invalidate(entityID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, entityID)
}

func probe(entityID string, state hamqtt.EntityState) DeviceCapability {
	domain, err := hamqtt.Domain(entityID)
	if err != nil {
		return DeviceCapability{Method: ControlUnsupported}
	}

	switch domain {
	case "number":
		return positionCapability(state)
	case "climate":
		if _, ok := state.Attributes["position"]; ok {
			return positionCapability(state)
		}
		if _, ok := state.Attributes["temperature"]; ok {
			return DeviceCapability{Method: ControlTemperature}
		}
		if _, ok := state.Attributes["target_temp_low"]; ok {
			return DeviceCapability{Method: ControlTemperature}
		}
	}
	return DeviceCapability{Method: ControlUnsupported}
}

func positionCapability(state hamqtt.EntityState) DeviceCapability {
	profile := DeviceCapability{
		Method:      ControlPosition,
		MinPosition: defaultMinPosition,
		MaxPosition: defaultMaxPosition,
	}
	if v, ok := hamqtt.AttrFloat(state, "min"); ok {
		profile.MinPosition = v
	}
	if v, ok := hamqtt.AttrFloat(state, "max"); ok {
		profile.MaxPosition = v
	}
	return profile
}
