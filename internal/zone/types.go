package zone

import (
	"time"
)

// HVACMode is the operating mode a zone is set to.
type HVACMode string

// Supported HVAC modes.
const (
	HVACModeHeat HVACMode = "heat"
	HVACModeCool HVACMode = "cool"
	HVACModeOff  HVACMode = "off"
)

// PresetMode selects a named comfort level for a zone.
type PresetMode string

// Supported preset modes. PresetNone disables preset handling and
// PresetBoost is reserved for the boost override (it never carries its
// own preset temperature).
const (
	PresetNone     PresetMode = "none"
	PresetAway     PresetMode = "away"
	PresetEco      PresetMode = "eco"
	PresetComfort  PresetMode = "comfort"
	PresetHome     PresetMode = "home"
	PresetSleep    PresetMode = "sleep"
	PresetActivity PresetMode = "activity"
	PresetBoost    PresetMode = "boost"
)

// DeviceType classifies a device attached to a zone.
type DeviceType string

// Supported device types.
const (
	DeviceTypeThermostat        DeviceType = "thermostat"
	DeviceTypeTemperatureSensor DeviceType = "temperature_sensor"
	DeviceTypeSwitch            DeviceType = "switch"
	DeviceTypeValve             DeviceType = "valve"
)

// WindowAction is what happens to a zone's target when a window opens.
type WindowAction string

// Supported window-open actions.
const (
	WindowActionNone       WindowAction = "none"
	WindowActionTurnOff    WindowAction = "turn_off"
	WindowActionReduceTemp WindowAction = "reduce_temperature"
)

// HeatingState is the engine-observed actuation state of a zone.
type HeatingState string

// Zone heating states. OFF whenever the zone is disabled or its HVAC
// mode is off; IDLE and HEATING alternate under the hysteresis rule.
const (
	HeatingStateOff     HeatingState = "off"
	HeatingStateIdle    HeatingState = "idle"
	HeatingStateHeating HeatingState = "heating"
)

// Temperature constants fixed by the control model.
const (
	// WindowOpenFloor is the frost-safe floor applied when an open
	// window turns a zone off or reduces it below safety.
	WindowOpenFloor = 5.0

	// DefaultWindowTempDrop is the reduction applied by
	// WindowActionReduceTemp when no per-sensor drop is configured.
	DefaultWindowTempDrop = 5.0

	// DefaultFrostProtectionTemp is the default frost protection floor.
	DefaultFrostProtectionTemp = 7.0

	// DefaultHysteresis is the default dead band in °C.
	DefaultHysteresis = 0.5

	// DefaultNightBoostOffset is the additive night boost in °C.
	DefaultNightBoostOffset = 0.5

	// Valve fallback temperatures for temperature-only valve actuators.
	DefaultValveHeatingTemp = 25.0
	DefaultValveIdleTemp    = 10.0
	DefaultValveOffset      = 10.0

	// HeatSourceOverhead is added to the highest heating zone target
	// when driving the central heat source.
	HeatSourceOverhead = 20.0

	// DefaultBoostTemp and DefaultBoostDuration describe a boost
	// started without explicit parameters.
	DefaultBoostTemp        = 25.0
	DefaultBoostDurationMin = 60
)

// DefaultPresetTemps returns the global preset temperature defaults.
func DefaultPresetTemps() map[PresetMode]float64 {
	return map[PresetMode]float64{
		PresetAway:     16.0,
		PresetEco:      18.0,
		PresetComfort:  22.0,
		PresetHome:     20.0,
		PresetSleep:    18.5,
		PresetActivity: 21.0,
	}
}

// Device is an actuator or sensor owned by a zone.
type Device struct {
	// EntityID is the external entity identifier, domain.object_id
	// (e.g., "climate.living_room", "sensor.hall_temperature").
	EntityID string `json:"entity_id"`

	// Type classifies how the control loop drives this device.
	Type DeviceType `json:"type"`

	// Topic optionally records the raw wire-protocol topic for the
	// device, informational only.
	Topic string `json:"topic,omitempty"`
}

// Schedule is a weekly heating window. End may be at or before Start,
// meaning the window crosses midnight into the following day.
//
// Temperature and Preset are mutually exclusive target sources;
// exactly one must be set.
type Schedule struct {
	ID        string       `json:"id"`
	DayOfWeek time.Weekday `json:"day_of_week"`
	Start     string       `json:"start"` // HH:MM
	End       string       `json:"end"`   // HH:MM
	Enabled   bool         `json:"enabled"`

	Temperature *float64    `json:"temperature,omitempty"`
	Preset      *PresetMode `json:"preset,omitempty"`
}

// PresetConfig describes one preset's temperature source for a zone.
type PresetConfig struct {
	// Temperature is the zone-local preset temperature.
	Temperature float64 `json:"temperature"`

	// UseGlobal selects the registry-wide preset temperature instead
	// of the zone-local one.
	UseGlobal bool `json:"use_global"`
}

// BoostState is a temporary highest-priority temperature override.
type BoostState struct {
	Active      bool      `json:"active"`
	EndTime     time.Time `json:"end_time"`
	Temperature float64   `json:"temperature"`
	DurationMin int       `json:"duration_min"`
}

// NightBoostConfig raises the resolved target during an overnight
// window, either a fixed window or a "smart" pre-heat ahead of a
// morning target time.
type NightBoostConfig struct {
	Enabled bool    `json:"enabled"`
	Offset  float64 `json:"offset"`
	Start   string  `json:"start"` // HH:MM
	End     string  `json:"end"`   // HH:MM

	// Smart switches from the fixed window to learned pre-heating:
	// the schedule engine predicts how long heating takes and opens a
	// pre-heat window ahead of TargetTime.
	Smart           bool   `json:"smart"`
	TargetTime      string `json:"target_time,omitempty"` // HH:MM
	OutdoorSensorID string `json:"outdoor_sensor_id,omitempty"`
}

// WindowSensor binds an openness sensor to a zone with the action to
// take while it reports open.
type WindowSensor struct {
	SensorID string       `json:"sensor_id"`
	Action   WindowAction `json:"action"`

	// TempDrop applies to WindowActionReduceTemp; zero means
	// DefaultWindowTempDrop.
	TempDrop float64 `json:"temp_drop,omitempty"`

	// Open is the cached sensor reading, refreshed by the control
	// loop. Not persisted.
	Open bool `json:"-"`
}

// LearningStats is the rolling heating-rate aggregate for a zone.
// Rates are in °C per hour.
type LearningStats struct {
	Count    int     `json:"count"`
	MeanRate float64 `json:"mean_rate"`
	MinRate  float64 `json:"min_rate"`
	MaxRate  float64 `json:"max_rate"`
}

// PreheatWindow marks a transient smart night-boost pre-heat period.
// While now < Until, the control loop raises the zone target to
// TargetTemp. Not persisted; recomputed by the schedule engine.
type PreheatWindow struct {
	TargetTemp float64   `json:"target_temp"`
	Until      time.Time `json:"until"`
}

// Zone is a controllable heating area.
type Zone struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Hidden  bool   `json:"hidden"`

	// BaseTarget is the fallback target temperature when no boost,
	// window, preset, or schedule applies.
	BaseTarget float64 `json:"base_target"`

	// CurrentTemp is the last-known mean of the zone's temperature
	// sensors; nil until the first successful reading.
	CurrentTemp *float64 `json:"current_temp,omitempty"`

	// ManualOverride is set when a human adjusted an actuator
	// directly; cleared by an explicit external action.
	ManualOverride bool `json:"manual_override"`

	HVACMode HVACMode `json:"hvac_mode"`

	// Devices is keyed by entity ID.
	Devices map[string]Device `json:"devices"`

	// Schedules is keyed by schedule ID.
	Schedules map[string]Schedule `json:"schedules"`

	PresetMode  PresetMode                  `json:"preset_mode"`
	PresetTemps map[PresetMode]PresetConfig `json:"preset_temps"`

	Boost      BoostState       `json:"boost"`
	NightBoost NightBoostConfig `json:"night_boost"`

	WindowSensors   []WindowSensor `json:"window_sensors"`
	PresenceSensors []string       `json:"presence_sensors"`

	// ShutdownSwitchesWhenIdle controls whether switch actuators are
	// turned off when the zone stops heating.
	ShutdownSwitchesWhenIdle bool `json:"shutdown_switches_when_idle"`

	Learning LearningStats `json:"learning"`

	// Runtime state, refreshed by the engine. Not persisted.
	HeatingState   HeatingState   `json:"-"`
	PresenceActive bool           `json:"-"`
	Preheat        *PreheatWindow `json:"-"`
	SensorsOffline bool           `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GlobalConfig holds registry-wide heating settings shared by all zones.
type GlobalConfig struct {
	// Hysteresis is the dead band in °C for the heat/stop decision.
	Hysteresis float64 `json:"hysteresis"`

	FrostProtectionEnabled bool    `json:"frost_protection_enabled"`
	FrostProtectionTemp    float64 `json:"frost_protection_temp"`

	// HeatSourceID is the central heat source entity (e.g., a boiler
	// climate entity); empty disables aggregation.
	HeatSourceID      string `json:"heat_source_id,omitempty"`
	HeatSourceEnabled bool   `json:"heat_source_enabled"`

	// Valve fallbacks for temperature-only valve actuators.
	ValveHeatingTemp float64 `json:"valve_heating_temp"`
	ValveIdleTemp    float64 `json:"valve_idle_temp"`
	ValveOffset      float64 `json:"valve_offset"`

	// PresetTemps are the global preset temperatures used by zones
	// whose PresetConfig selects UseGlobal.
	PresetTemps map[PresetMode]float64 `json:"preset_temps"`

	// PresenceSensors apply to every zone in addition to zone-local
	// sensors.
	PresenceSensors []string `json:"presence_sensors,omitempty"`
}

// DefaultGlobalConfig returns a GlobalConfig with standard defaults.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		Hysteresis:             DefaultHysteresis,
		FrostProtectionEnabled: true,
		FrostProtectionTemp:    DefaultFrostProtectionTemp,
		ValveHeatingTemp:       DefaultValveHeatingTemp,
		ValveIdleTemp:          DefaultValveIdleTemp,
		ValveOffset:            DefaultValveOffset,
		PresetTemps:            DefaultPresetTemps(),
	}
}

// Snapshot is the full persisted and published registry state.
type Snapshot struct {
	Zones   map[string]*Zone `json:"zones"`
	Global  GlobalConfig     `json:"global"`
	SavedAt time.Time        `json:"saved_at"`
}

// PresetTemp resolves the temperature for a preset, honouring the
// zone's per-preset global/local source flag. The boolean reports
// whether a temperature was found.
func (z *Zone) PresetTemp(preset PresetMode, global *GlobalConfig) (float64, bool) {
	if preset == PresetNone || preset == PresetBoost {
		return 0, false
	}

	cfg, ok := z.PresetTemps[preset]
	if ok && !cfg.UseGlobal {
		return cfg.Temperature, true
	}

	if global != nil {
		if temp, ok := global.PresetTemps[preset]; ok {
			return temp, true
		}
	}

	if ok {
		return cfg.Temperature, true
	}
	return 0, false
}

// TemperatureSensors returns the entity IDs of the zone's temperature
// sensor devices.
func (z *Zone) TemperatureSensors() []string {
	var ids []string
	for id, d := range z.Devices {
		if d.Type == DeviceTypeTemperatureSensor {
			ids = append(ids, id)
		}
	}
	return ids
}

// Actuators returns the zone's devices that receive heating commands
// (everything except temperature sensors).
func (z *Zone) Actuators() []Device {
	var out []Device
	for _, d := range z.Devices {
		if d.Type != DeviceTypeTemperatureSensor {
			out = append(out, d)
		}
	}
	return out
}

// WindowOpen reports whether any cached window sensor with an action
// is currently open.
func (z *Zone) WindowOpen() bool {
	for _, ws := range z.WindowSensors {
		if ws.Open && ws.Action != WindowActionNone {
			return true
		}
	}
	return false
}

// DeepCopy returns an independent copy of the zone.
// Modifications to the copy don't affect the original.
func (z *Zone) DeepCopy() *Zone {
	if z == nil {
		return nil
	}

	clone := *z

	if z.CurrentTemp != nil {
		temp := *z.CurrentTemp
		clone.CurrentTemp = &temp
	}

	clone.Devices = make(map[string]Device, len(z.Devices))
	for k, v := range z.Devices {
		clone.Devices[k] = v
	}

	clone.Schedules = make(map[string]Schedule, len(z.Schedules))
	for k, v := range z.Schedules {
		s := v
		if v.Temperature != nil {
			temp := *v.Temperature
			s.Temperature = &temp
		}
		if v.Preset != nil {
			preset := *v.Preset
			s.Preset = &preset
		}
		clone.Schedules[k] = s
	}

	clone.PresetTemps = make(map[PresetMode]PresetConfig, len(z.PresetTemps))
	for k, v := range z.PresetTemps {
		clone.PresetTemps[k] = v
	}

	clone.WindowSensors = make([]WindowSensor, len(z.WindowSensors))
	copy(clone.WindowSensors, z.WindowSensors)

	clone.PresenceSensors = make([]string, len(z.PresenceSensors))
	copy(clone.PresenceSensors, z.PresenceSensors)

	if z.Preheat != nil {
		preheat := *z.Preheat
		clone.Preheat = &preheat
	}

	return &clone
}

// DeepCopy returns an independent copy of the global config.
func (g *GlobalConfig) DeepCopy() GlobalConfig {
	clone := *g

	clone.PresetTemps = make(map[PresetMode]float64, len(g.PresetTemps))
	for k, v := range g.PresetTemps {
		clone.PresetTemps[k] = v
	}

	clone.PresenceSensors = make([]string, len(g.PresenceSensors))
	copy(clone.PresenceSensors, g.PresenceSensors)

	return clone
}

// DeepCopy returns an independent copy of the snapshot.
func (s *Snapshot) DeepCopy() *Snapshot {
	if s == nil {
		return nil
	}

	clone := &Snapshot{
		Global:  s.Global.DeepCopy(),
		SavedAt: s.SavedAt,
		Zones:   make(map[string]*Zone, len(s.Zones)),
	}
	for id, z := range s.Zones {
		clone.Zones[id] = z.DeepCopy()
	}
	return clone
}
