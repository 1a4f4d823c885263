package control

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/hearth-core/internal/bridges/hamqtt"
	"github.com/nerrad567/hearth-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/hearth-core/internal/zone"
)

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

// Registry is the subset of the zone registry the engine needs.
type Registry interface {
	List() []*zone.Zone
	GlobalConfig() zone.GlobalConfig
	ExpireBoosts(ctx context.Context, now time.Time) ([]string, error)
	SetCurrentTemp(id string, temp *float64) error
	SetWindowStates(id string, open map[string]bool) error
	SetPresence(id string, active bool) error
	SetHeatingState(id string, state zone.HeatingState) error
	SetPreheat(id string, w *zone.PreheatWindow) error
}

// Actuators reads entity state and drives actuators.
type Actuators interface {
	ReadSensor(entityID string) (hamqtt.EntityState, error)
	SetTemperature(entityID string, temp float64) error
	SetPosition(entityID string, position float64) error
	TurnOn(entityID string) error
	TurnOff(entityID string) error
}

// Learner receives heating run transitions for rate learning.
type Learner interface {
	StartEvent(zoneID string, startTemp float64, outdoorTemp *float64)
	EndEvent(ctx context.Context, zoneID string, endTemp float64) (bool, error)
	CancelEvent(zoneID string)
}

// Publisher publishes zone state and engine events to the bus.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Recorder receives time-series samples.
type Recorder interface {
	WriteZoneTemperature(zoneID string, current, target float64, heating bool)
	WriteHeatSourceDemand(entityID string, maxTarget float64, active bool)
}

// Engine is the periodic heating control loop.
type Engine struct {
	registry Registry
	bridge   Actuators
	resolver *CapabilityResolver
	interval time.Duration
	qos      byte

	learner   Learner
	publisher Publisher
	recorder  Recorder
	logger    Logger

	running       atomic.Bool
	kick          chan struct{}
	now           func() time.Time
	lastSetpoints sync.Map // entity ID -> float64
}

// NewEngine creates a control engine. Learner, publisher and recorder
// are optional and attached with setters.
func NewEngine(registry Registry, bridge Actuators, resolver *CapabilityResolver, interval time.Duration, qos byte) *Engine {
	return &Engine{
		registry: registry,
		bridge:   bridge,
		resolver: resolver,
		interval: interval,
		qos:      qos,
		logger:   noopLogger{},
		kick:     make(chan struct{}, 1),
		now:      time.Now,
	}
}

// SetLogger sets the logger used for engine events.
func (e *Engine) SetLogger(logger Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// SetLearner attaches a heating-rate learner.
func (e *Engine) SetLearner(l Learner) { e.learner = l }

// SetPublisher attaches a bus publisher for zone state and events.
func (e *Engine) SetPublisher(p Publisher) { e.publisher = p }

// SetRecorder attaches a time-series recorder.
func (e *Engine) SetRecorder(r Recorder) { e.recorder = r }

// Run executes control passes until ctx is cancelled. The first pass
// runs immediately.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("control loop started", "interval", e.interval)

	e.RunPass(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("control loop stopped")
			return
		case <-ticker.C:
			e.RunPass(ctx)
		case <-e.kick:
			e.RunPass(ctx)
		}
	}
}

// CommandedSetpoint returns the setpoint the engine last sent to a
// thermostat. The override detector uses it to tell engine echoes on
// the state mirror apart from genuine user adjustments.
func (e *Engine) CommandedSetpoint(entityID string) (float64, bool) {
	v, ok := e.lastSetpoints.Load(entityID)
	if !ok {
		return 0, false
	}
	return v.(float64), true
}

// RequestRefresh schedules an immediate control pass. Used after
// configuration changes and manual overrides so the new target takes
// effect without waiting out the interval.
func (e *Engine) RequestRefresh() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// RunPass executes one control pass. If the previous pass is still
// running the call is dropped instead of queued.
func (e *Engine) RunPass(ctx context.Context) {
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Warn("previous control pass still running, skipping")
		return
	}
	defer e.running.Store(false)

	now := e.now()

	expired, err := e.registry.ExpireBoosts(ctx, now)
	if err != nil {
		e.logger.Error("expiring boosts failed", "error", err)
	}
	for _, id := range expired {
		e.publishEvent("boost_expired", map[string]any{"zone_id": id})
	}

	global := e.registry.GlobalConfig()

	var (
		anyHeating bool
		maxTarget  float64
	)

	for _, z := range e.registry.List() {
		if !z.Enabled {
			e.shutdownZone(z, &global, now)
			continue
		}

		heating, target := e.controlZone(ctx, z, &global, now)
		if heating {
			anyHeating = true
			if target > maxTarget {
				maxTarget = target
			}
		}
	}

	e.driveHeatSource(&global, anyHeating, maxTarget)
}

// controlZone refreshes one zone's inputs, resolves its target, and
// drives its actuators. Reports whether the zone demands heat and at
// what target.
func (e *Engine) controlZone(ctx context.Context, z *zone.Zone, global *zone.GlobalConfig, now time.Time) (bool, float64) {
	current := e.refreshInputs(z, global)

	target := zone.EffectiveTarget(z, global, now)

	// Smart pre-heat raises the target ahead of a morning schedule.
	if z.Preheat != nil {
		if now.Before(z.Preheat.Until) {
			if z.Preheat.TargetTemp > target {
				target = z.Preheat.TargetTemp
			}
		} else {
			if err := e.registry.SetPreheat(z.ID, nil); err != nil {
				e.logger.Error("clearing preheat failed", "zone_id", z.ID, "error", err)
			}
			z.Preheat = nil
		}
	}

	// Frost protection is a floor under every other decision.
	if global.FrostProtectionEnabled && target < global.FrostProtectionTemp {
		target = global.FrostProtectionTemp
	}

	prev := z.HeatingState
	next := e.decide(z, current, target, global.Hysteresis)

	e.driveActuators(z, global, target, next == zone.HeatingStateHeating)
	e.recordTransition(ctx, z, prev, next, current)

	if err := e.registry.SetHeatingState(z.ID, next); err != nil {
		e.logger.Error("recording heating state failed", "zone_id", z.ID, "error", err)
	}

	if current != nil && e.recorder != nil {
		e.recorder.WriteZoneTemperature(z.ID, *current, target, next == zone.HeatingStateHeating)
	}
	e.publishZoneState(z, current, target, next, now)

	return next == zone.HeatingStateHeating, target
}

// shutdownZone stops a disabled zone's actuators and records the off
// state. A zone disabled mid-heat must not be left with its heaters
// running, so switches are turned off unconditionally and thermostats
// and valves are parked at their frost setback. Runs once per disable;
// a zone already off is left alone.
func (e *Engine) shutdownZone(z *zone.Zone, global *zone.GlobalConfig, now time.Time) {
	if z.HeatingState == zone.HeatingStateOff {
		return
	}

	setback := zone.WindowOpenFloor
	if global.FrostProtectionEnabled && global.FrostProtectionTemp > setback {
		setback = global.FrostProtectionTemp
	}

	for _, d := range z.Actuators() {
		var err error
		switch d.Type {
		case zone.DeviceTypeThermostat:
			e.lastSetpoints.Store(d.EntityID, setback)
			err = e.bridge.SetTemperature(d.EntityID, setback)

		case zone.DeviceTypeSwitch:
			err = e.bridge.TurnOff(d.EntityID)

		case zone.DeviceTypeValve:
			err = e.driveValve(d.EntityID, global, setback, false)
		}

		if err != nil {
			e.logger.Error("shutting down actuator failed",
				"zone_id", z.ID, "entity_id", d.EntityID, "error", err)
		}
	}

	// A heating run cut off by a disable says nothing about the zone's
	// heating rate.
	if e.learner != nil && z.HeatingState == zone.HeatingStateHeating {
		e.learner.CancelEvent(z.ID)
	}

	if err := e.registry.SetHeatingState(z.ID, zone.HeatingStateOff); err != nil {
		e.logger.Error("recording heating state failed", "zone_id", z.ID, "error", err)
	}
	z.HeatingState = zone.HeatingStateOff
	e.publishZoneState(z, z.CurrentTemp, setback, zone.HeatingStateOff, now)
	e.logger.Info("zone disabled, actuators shut down", "zone_id", z.ID)
}

// refreshInputs reads the zone's sensors and updates both the registry
// runtime cache and the local copy. Returns the mean temperature, or
// nil when no sensor produced a reading.
func (e *Engine) refreshInputs(z *zone.Zone, global *zone.GlobalConfig) *float64 {
	current := e.meanTemperature(z)
	if err := e.registry.SetCurrentTemp(z.ID, current); err != nil {
		e.logger.Error("recording current temp failed", "zone_id", z.ID, "error", err)
	}
	if current != nil {
		z.CurrentTemp = current
	}

	if len(z.WindowSensors) > 0 {
		open := make(map[string]bool, len(z.WindowSensors))
		for i := range z.WindowSensors {
			state, err := e.bridge.ReadSensor(z.WindowSensors[i].SensorID)
			if err != nil {
				continue
			}
			isOpen := state.Available && hamqtt.IsOn(state)
			open[z.WindowSensors[i].SensorID] = isOpen
			z.WindowSensors[i].Open = isOpen
		}
		if err := e.registry.SetWindowStates(z.ID, open); err != nil {
			e.logger.Error("recording window states failed", "zone_id", z.ID, "error", err)
		}
	}

	// Zone-local presence sensors are checked first; site-wide sensors
	// cover zones without their own.
	presence := e.anyOn(z.PresenceSensors)
	if !presence && len(z.PresenceSensors) == 0 {
		presence = e.anyOn(global.PresenceSensors)
	}
	if err := e.registry.SetPresence(z.ID, presence); err != nil {
		e.logger.Error("recording presence failed", "zone_id", z.ID, "error", err)
	}
	z.PresenceActive = presence

	return current
}

// meanTemperature averages the zone's temperature sensors, falling
// back on thermostat-reported readings. Unavailable sensors are
// excluded; Fahrenheit readings are converted.
func (e *Engine) meanTemperature(z *zone.Zone) *float64 {
	var sum float64
	var count int

	add := func(v float64) {
		sum += v
		count++
	}

	for _, sensorID := range z.TemperatureSensors() {
		state, err := e.bridge.ReadSensor(sensorID)
		if err != nil || !state.Available {
			continue
		}
		if v, ok := hamqtt.TemperatureC(state); ok {
			add(v)
		}
	}

	if count == 0 {
		for _, d := range z.Actuators() {
			if d.Type != zone.DeviceTypeThermostat {
				continue
			}
			state, err := e.bridge.ReadSensor(d.EntityID)
			if err != nil || !state.Available {
				continue
			}
			if v, ok := hamqtt.AttrFloat(state, "current_temperature"); ok {
				add(v)
			}
		}
	}

	if count == 0 {
		return nil
	}
	mean := sum / float64(count)
	return &mean
}

func (e *Engine) anyOn(sensorIDs []string) bool {
	for _, id := range sensorIDs {
		state, err := e.bridge.ReadSensor(id)
		if err != nil || !state.Available {
			continue
		}
		if hamqtt.IsOn(state) {
			return true
		}
	}
	return false
}

// decide applies the hysteresis contract. HVAC off always wins; a zone
// without a temperature reading keeps its previous state rather than
// guessing.
func (e *Engine) decide(z *zone.Zone, current *float64, target, hysteresis float64) zone.HeatingState {
	if z.HVACMode == zone.HVACModeOff {
		return zone.HeatingStateOff
	}
	if current == nil {
		if z.HeatingState == zone.HeatingStateHeating {
			return zone.HeatingStateHeating
		}
		return zone.HeatingStateIdle
	}

	switch {
	case *current < target-hysteresis:
		return zone.HeatingStateHeating
	case *current >= target:
		return zone.HeatingStateIdle
	default:
		// Inside the hysteresis band: hold the previous state.
		if z.HeatingState == zone.HeatingStateHeating {
			return zone.HeatingStateHeating
		}
		return zone.HeatingStateIdle
	}
}

// driveActuators pushes the decision to every actuator in the zone.
// Errors are logged per device and never abort the rest.
func (e *Engine) driveActuators(z *zone.Zone, global *zone.GlobalConfig, target float64, heat bool) {
	for _, d := range z.Actuators() {
		var err error
		switch d.Type {
		case zone.DeviceTypeThermostat:
			// Thermostats always track the setpoint so their display
			// and internal regulation follow the engine.
			e.lastSetpoints.Store(d.EntityID, target)
			err = e.bridge.SetTemperature(d.EntityID, target)

		case zone.DeviceTypeSwitch:
			if heat {
				err = e.bridge.TurnOn(d.EntityID)
			} else if z.ShutdownSwitchesWhenIdle {
				err = e.bridge.TurnOff(d.EntityID)
			}

		case zone.DeviceTypeValve:
			err = e.driveValve(d.EntityID, global, target, heat)
		}

		if err != nil {
			e.logger.Error("driving actuator failed",
				"zone_id", z.ID, "entity_id", d.EntityID, "error", err)
		}
	}
}

// driveValve drives a valve through its probed capability profile.
func (e *Engine) driveValve(entityID string, global *zone.GlobalConfig, target float64, heat bool) error {
	profile, err := e.resolver.Resolve(entityID)
	if err != nil {
		return err
	}

	switch profile.Method {
	case ControlPosition:
		if heat {
			return e.bridge.SetPosition(entityID, profile.MaxPosition)
		}
		// Fully closed, even when the entity advertises a nonzero
		// minimum travel.
		return e.bridge.SetPosition(entityID, 0)

	case ControlTemperature:
		if heat {
			setpoint := target + e.valveOffset(global)
			if floor := e.valveHeatingTemp(global); setpoint < floor {
				setpoint = floor
			}
			return e.bridge.SetTemperature(entityID, setpoint)
		}
		return e.bridge.SetTemperature(entityID, e.valveIdleTemp(global))
	}

	// Unsupported: probed, logged once, skipped thereafter.
	return nil
}

func (e *Engine) valveOffset(g *zone.GlobalConfig) float64 {
	if g.ValveOffset > 0 {
		return g.ValveOffset
	}
	return zone.DefaultValveOffset
}

func (e *Engine) valveHeatingTemp(g *zone.GlobalConfig) float64 {
	if g.ValveHeatingTemp > 0 {
		return g.ValveHeatingTemp
	}
	return zone.DefaultValveHeatingTemp
}

func (e *Engine) valveIdleTemp(g *zone.GlobalConfig) float64 {
	if g.ValveIdleTemp > 0 {
		return g.ValveIdleTemp
	}
	return zone.DefaultValveIdleTemp
}

// recordTransition feeds heating state edges to the learner. A run cut
// short by an opened window says nothing about the zone's heating rate
// and is cancelled instead of recorded.
func (e *Engine) recordTransition(ctx context.Context, z *zone.Zone, prev, next zone.HeatingState, current *float64) {
	if e.learner == nil || prev == next {
		return
	}

	switch {
	case next == zone.HeatingStateHeating && current != nil:
		e.learner.StartEvent(z.ID, *current, e.outdoorTemp(z))

	case prev == zone.HeatingStateHeating:
		if z.WindowOpen() || current == nil {
			e.learner.CancelEvent(z.ID)
			return
		}
		if _, err := e.learner.EndEvent(ctx, z.ID, *current); err != nil {
			e.logger.Error("recording heating event failed", "zone_id", z.ID, "error", err)
		}
	}
}

func (e *Engine) outdoorTemp(z *zone.Zone) *float64 {
	if z.NightBoost.OutdoorSensorID == "" {
		return nil
	}
	state, err := e.bridge.ReadSensor(z.NightBoost.OutdoorSensorID)
	if err != nil || !state.Available {
		return nil
	}
	if v, ok := hamqtt.TemperatureC(state); ok {
		return &v
	}
	return nil
}

// driveHeatSource commands the central heat source from the pass's
// aggregate demand.
func (e *Engine) driveHeatSource(global *zone.GlobalConfig, anyHeating bool, maxTarget float64) {
	if !global.HeatSourceEnabled || global.HeatSourceID == "" {
		return
	}

	entityID := global.HeatSourceID

	var err error
	if anyHeating {
		flowTarget := maxTarget + zone.HeatSourceOverhead
		domain, derr := hamqtt.Domain(entityID)
		if derr == nil && (domain == "climate" || domain == "water_heater") {
			err = e.bridge.SetTemperature(entityID, flowTarget)
		}
		if err == nil {
			err = e.bridge.TurnOn(entityID)
		}
	} else {
		err = e.bridge.TurnOff(entityID)
	}

	if err != nil {
		e.logger.Error("driving heat source failed", "entity_id", entityID, "error", err)
	}
	if e.recorder != nil {
		demand := 0.0
		if anyHeating {
			demand = maxTarget
		}
		e.recorder.WriteHeatSourceDemand(entityID, demand, anyHeating)
	}
}

// zoneStatus is the retained per-zone state document published to the
// bus for UIs and other consumers.
type zoneStatus struct {
	ZoneID         string    `json:"zone_id"`
	Name           string    `json:"name"`
	CurrentTemp    *float64  `json:"current_temp"`
	TargetTemp     float64   `json:"target_temp"`
	State          string    `json:"state"`
	WindowOpen     bool      `json:"window_open"`
	Presence       bool      `json:"presence"`
	BoostActive    bool      `json:"boost_active"`
	ManualOverride bool      `json:"manual_override"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (e *Engine) publishZoneState(z *zone.Zone, current *float64, target float64, state zone.HeatingState, now time.Time) {
	if e.publisher == nil {
		return
	}

	payload, err := json.Marshal(zoneStatus{
		ZoneID:         z.ID,
		Name:           z.Name,
		CurrentTemp:    current,
		TargetTemp:     target,
		State:          string(state),
		WindowOpen:     z.WindowOpen(),
		Presence:       z.PresenceActive,
		BoostActive:    z.Boost.Active,
		ManualOverride: z.ManualOverride,
		UpdatedAt:      now.UTC(),
	})
	if err != nil {
		return
	}

	topic := mqtt.Topics{}.CoreZoneState(z.ID)
	if err := e.publisher.Publish(topic, payload, e.qos, true); err != nil {
		e.logger.Error("publishing zone state failed", "zone_id", z.ID, "error", err)
	}
}

func (e *Engine) publishEvent(eventType string, fields map[string]any) {
	if e.publisher == nil {
		return
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return
	}
	topic := mqtt.Topics{}.CoreEvent(eventType)
	if err := e.publisher.Publish(topic, payload, e.qos, false); err != nil {
		e.logger.Error("publishing event failed", "type", eventType, "error", err)
	}
}
