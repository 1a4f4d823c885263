package zone

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is set.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the in-memory source of truth for zones and global
// heating configuration, backed by a Repository.
//
// Configuration mutations are applied to a copy, persisted, and only
// then committed to the cache, so a failed save never leaves the cache
// ahead of storage. Runtime state (temperatures, window flags, heating
// state) is updated in place and never persisted.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Reads return deep copies; callers can never mutate shared state.
type Registry struct {
	repo   Repository
	logger Logger

	mu     sync.RWMutex
	zones  map[string]*Zone
	global GlobalConfig
	loaded bool
}

// NewRegistry creates a registry backed by the given repository.
// Call Load before use.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		logger: noopLogger{},
		zones:  make(map[string]*Zone),
		global: DefaultGlobalConfig(),
	}
}

// SetLogger sets the logger used for registry events.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Load populates the cache from the repository. A fresh installation
// with no stored snapshot starts with defaults.
func (r *Registry) Load(ctx context.Context) error {
	snap, err := r.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading zone registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if snap != nil {
		r.zones = make(map[string]*Zone, len(snap.Zones))
		for id, z := range snap.Zones {
			normalizeZone(z)
			r.zones[id] = z
		}
		r.global = snap.Global
		if r.global.PresetTemps == nil {
			r.global.PresetTemps = DefaultPresetTemps()
		}
	}
	r.loaded = true

	r.logger.Info("zone registry loaded", "zones", len(r.zones))
	return nil
}

// Count returns the number of zones.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.zones)
}

// Get returns a deep copy of the zone with the given ID.
func (r *Registry) Get(id string) (*Zone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	z, ok := r.zones[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return z.DeepCopy(), nil
}

// List returns deep copies of all zones, sorted by ID.
func (r *Registry) List() []*Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Zone, 0, len(r.zones))
	for _, z := range r.zones {
		out = append(out, z.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GlobalConfig returns a copy of the global heating configuration.
func (r *Registry) GlobalConfig() GlobalConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.global.DeepCopy()
}

// Snapshot returns a deep copy of the full registry state for the API
// and push layers.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := &Snapshot{
		Zones:   r.zones,
		Global:  r.global,
		SavedAt: time.Now().UTC(),
	}
	return snap.DeepCopy()
}

// Create adds a new zone. A missing ID is generated; sensible defaults
// are applied before validation. New zones start enabled.
func (r *Registry) Create(ctx context.Context, z *Zone) (*Zone, error) {
	clone := z.DeepCopy()
	if clone.ID == "" {
		clone.ID = uuid.New().String()
	}
	clone.Enabled = true
	clone.ShutdownSwitchesWhenIdle = true
	applyZoneDefaults(clone)

	if err := validateZone(clone); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		return nil, ErrNotLoaded
	}
	if _, exists := r.zones[clone.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, clone.ID)
	}

	now := time.Now().UTC()
	clone.CreatedAt = now
	clone.UpdatedAt = now

	r.zones[clone.ID] = clone
	if err := r.saveLocked(ctx); err != nil {
		delete(r.zones, clone.ID)
		return nil, err
	}

	r.logger.Info("zone created", "zone_id", clone.ID, "name", clone.Name)
	return clone.DeepCopy(), nil
}

// Update replaces a zone's configuration. Runtime state and CreatedAt
// are carried over from the cached zone.
func (r *Registry) Update(ctx context.Context, z *Zone) (*Zone, error) {
	if err := validateZone(z); err != nil {
		return nil, err
	}

	return r.mutate(ctx, z.ID, func(cur *Zone) error {
		clone := z.DeepCopy()
		clone.CreatedAt = cur.CreatedAt
		clone.CurrentTemp = cur.CurrentTemp
		clone.HeatingState = cur.HeatingState
		clone.PresenceActive = cur.PresenceActive
		clone.Preheat = cur.Preheat
		clone.SensorsOffline = cur.SensorsOffline
		*cur = *clone
		return nil
	})
}

// Delete removes a zone.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		return ErrNotLoaded
	}
	existing, ok := r.zones[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	delete(r.zones, id)
	if err := r.saveLocked(ctx); err != nil {
		r.zones[id] = existing
		return err
	}

	r.logger.Info("zone deleted", "zone_id", id)
	return nil
}

// SetBaseTarget sets a zone's base target temperature.
func (r *Registry) SetBaseTarget(ctx context.Context, id string, temp float64) (*Zone, error) {
	return r.mutate(ctx, id, func(z *Zone) error {
		z.BaseTarget = temp
		return nil
	})
}

// SetEnabled enables or disables a zone.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) (*Zone, error) {
	return r.mutate(ctx, id, func(z *Zone) error {
		z.Enabled = enabled
		return nil
	})
}

// SetHVACMode sets a zone's HVAC mode.
func (r *Registry) SetHVACMode(ctx context.Context, id string, mode HVACMode) (*Zone, error) {
	switch mode {
	case HVACModeHeat, HVACModeCool, HVACModeOff:
	default:
		return nil, fmt.Errorf("%w: hvac mode %q", ErrInvalidZone, mode)
	}
	return r.mutate(ctx, id, func(z *Zone) error {
		z.HVACMode = mode
		return nil
	})
}

// SetPresetMode sets a zone's preset mode.
func (r *Registry) SetPresetMode(ctx context.Context, id string, preset PresetMode) (*Zone, error) {
	switch preset {
	case PresetNone, PresetAway, PresetEco, PresetComfort, PresetHome, PresetSleep, PresetActivity:
	default:
		return nil, fmt.Errorf("%w: preset %q", ErrInvalidZone, preset)
	}
	return r.mutate(ctx, id, func(z *Zone) error {
		z.PresetMode = preset
		return nil
	})
}

// StartBoost activates boost mode. Zero temp or duration fall back to
// the defaults.
func (r *Registry) StartBoost(ctx context.Context, id string, temp float64, duration time.Duration) (*Zone, error) {
	if temp == 0 {
		temp = DefaultBoostTemp
	}
	if duration <= 0 {
		duration = DefaultBoostDurationMin * time.Minute
	}

	return r.mutate(ctx, id, func(z *Zone) error {
		z.Boost = BoostState{
			Active:      true,
			EndTime:     time.Now().UTC().Add(duration),
			Temperature: temp,
			DurationMin: int(duration.Minutes()),
		}
		return nil
	})
}

// CancelBoost clears an active boost.
func (r *Registry) CancelBoost(ctx context.Context, id string) (*Zone, error) {
	return r.mutate(ctx, id, func(z *Zone) error {
		z.Boost = BoostState{}
		return nil
	})
}

// ExpireBoosts clears every boost whose end time has passed, persisting
// once. Returns the IDs of the zones whose boost expired.
func (r *Registry) ExpireBoosts(ctx context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		return nil, ErrNotLoaded
	}

	var expired []string
	backup := make(map[string]BoostState)
	for id, z := range r.zones {
		if z.Boost.Active && !now.Before(z.Boost.EndTime) {
			backup[id] = z.Boost
			z.Boost = BoostState{}
			z.UpdatedAt = time.Now().UTC()
			expired = append(expired, id)
		}
	}

	if len(expired) == 0 {
		return nil, nil
	}

	if err := r.saveLocked(ctx); err != nil {
		for id, boost := range backup {
			r.zones[id].Boost = boost
		}
		return nil, err
	}

	sort.Strings(expired)
	r.logger.Debug("boosts expired", "zones", strings.Join(expired, ","))
	return expired, nil
}

// SetManualOverride flips a zone's manual-override flag. When adopting,
// the externally observed target becomes the zone's base target.
func (r *Registry) SetManualOverride(ctx context.Context, id string, on bool, adoptedTarget *float64) (*Zone, error) {
	return r.mutate(ctx, id, func(z *Zone) error {
		z.ManualOverride = on
		if on && adoptedTarget != nil {
			z.BaseTarget = *adoptedTarget
		}
		return nil
	})
}

// UpdateLearningStats replaces a zone's rolling heating-rate aggregate.
func (r *Registry) UpdateLearningStats(ctx context.Context, id string, stats LearningStats) (*Zone, error) {
	return r.mutate(ctx, id, func(z *Zone) error {
		z.Learning = stats
		return nil
	})
}

// AddSchedule adds a schedule to a zone. A missing schedule ID is
// generated.
func (r *Registry) AddSchedule(ctx context.Context, zoneID string, s Schedule) (*Zone, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if err := validateSchedule(s); err != nil {
		return nil, err
	}

	return r.mutate(ctx, zoneID, func(z *Zone) error {
		if _, exists := z.Schedules[s.ID]; exists {
			return fmt.Errorf("%w: schedule %s", ErrAlreadyExists, s.ID)
		}
		z.Schedules[s.ID] = s
		return nil
	})
}

// UpdateSchedule replaces an existing schedule on a zone.
func (r *Registry) UpdateSchedule(ctx context.Context, zoneID string, s Schedule) (*Zone, error) {
	if err := validateSchedule(s); err != nil {
		return nil, err
	}

	return r.mutate(ctx, zoneID, func(z *Zone) error {
		if _, exists := z.Schedules[s.ID]; !exists {
			return fmt.Errorf("%w: %s", ErrScheduleNotFound, s.ID)
		}
		z.Schedules[s.ID] = s
		return nil
	})
}

// DeleteSchedule removes a schedule from a zone.
func (r *Registry) DeleteSchedule(ctx context.Context, zoneID, scheduleID string) (*Zone, error) {
	return r.mutate(ctx, zoneID, func(z *Zone) error {
		if _, exists := z.Schedules[scheduleID]; !exists {
			return fmt.Errorf("%w: %s", ErrScheduleNotFound, scheduleID)
		}
		delete(z.Schedules, scheduleID)
		return nil
	})
}

// AddDevice attaches a device to a zone, keyed by entity ID.
func (r *Registry) AddDevice(ctx context.Context, zoneID string, d Device) (*Zone, error) {
	if d.EntityID == "" {
		return nil, fmt.Errorf("%w: device entity_id is required", ErrInvalidZone)
	}
	switch d.Type {
	case DeviceTypeThermostat, DeviceTypeTemperatureSensor, DeviceTypeSwitch, DeviceTypeValve:
	default:
		return nil, fmt.Errorf("%w: device type %q", ErrInvalidZone, d.Type)
	}

	return r.mutate(ctx, zoneID, func(z *Zone) error {
		z.Devices[d.EntityID] = d
		return nil
	})
}

// RemoveDevice detaches a device from a zone.
func (r *Registry) RemoveDevice(ctx context.Context, zoneID, entityID string) (*Zone, error) {
	return r.mutate(ctx, zoneID, func(z *Zone) error {
		if _, exists := z.Devices[entityID]; !exists {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, entityID)
		}
		delete(z.Devices, entityID)
		return nil
	})
}

// UpdateGlobal replaces the global heating configuration.
func (r *Registry) UpdateGlobal(ctx context.Context, g GlobalConfig) error {
	if g.Hysteresis <= 0 {
		return fmt.Errorf("%w: hysteresis must be positive", ErrInvalidZone)
	}
	if g.PresetTemps == nil {
		g.PresetTemps = DefaultPresetTemps()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		return ErrNotLoaded
	}

	prev := r.global
	r.global = g.DeepCopy()
	if err := r.saveLocked(ctx); err != nil {
		r.global = prev
		return err
	}

	r.logger.Info("global heating config updated")
	return nil
}

// =============================================================================
// Runtime state (in-memory only, never persisted)
// =============================================================================

// SetCurrentTemp records the latest mean temperature reading for a
// zone. A nil temp keeps the previous value and flags the zone's
// sensors as offline.
func (r *Registry) SetCurrentTemp(id string, temp *float64) error {
	return r.updateRuntime(id, func(z *Zone) {
		if temp != nil {
			v := *temp
			z.CurrentTemp = &v
			z.SensorsOffline = false
		} else {
			z.SensorsOffline = true
		}
	})
}

// SetWindowStates updates the cached open flags of a zone's window
// sensors from a sensor-ID keyed map. Sensors absent from the map keep
// their previous reading.
func (r *Registry) SetWindowStates(id string, open map[string]bool) error {
	return r.updateRuntime(id, func(z *Zone) {
		for i := range z.WindowSensors {
			if state, ok := open[z.WindowSensors[i].SensorID]; ok {
				z.WindowSensors[i].Open = state
			}
		}
	})
}

// SetPresence updates a zone's cached presence flag.
func (r *Registry) SetPresence(id string, active bool) error {
	return r.updateRuntime(id, func(z *Zone) {
		z.PresenceActive = active
	})
}

// SetHeatingState records the engine-observed actuation state.
func (r *Registry) SetHeatingState(id string, state HeatingState) error {
	return r.updateRuntime(id, func(z *Zone) {
		z.HeatingState = state
	})
}

// SetPreheat sets or clears (nil) a zone's smart pre-heat window.
func (r *Registry) SetPreheat(id string, w *PreheatWindow) error {
	return r.updateRuntime(id, func(z *Zone) {
		z.Preheat = w
	})
}

// =============================================================================
// Internals
// =============================================================================

// mutate applies fn to a copy of the zone, persists, and commits. The
// cache is rolled back if the save fails.
func (r *Registry) mutate(ctx context.Context, id string, fn func(*Zone) error) (*Zone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		return nil, ErrNotLoaded
	}
	existing, ok := r.zones[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	clone := existing.DeepCopy()
	if err := fn(clone); err != nil {
		return nil, err
	}
	clone.UpdatedAt = time.Now().UTC()

	r.zones[id] = clone
	if err := r.saveLocked(ctx); err != nil {
		r.zones[id] = existing
		return nil, err
	}

	return clone.DeepCopy(), nil
}

// updateRuntime applies fn to the cached zone in place without
// persisting. Used for transient engine state.
func (r *Registry) updateRuntime(id string, fn func(*Zone)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	z, ok := r.zones[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(z)
	return nil
}

// saveLocked persists the current cache. Caller must hold the write lock.
func (r *Registry) saveLocked(ctx context.Context) error {
	snap := &Snapshot{
		Zones:   r.zones,
		Global:  r.global,
		SavedAt: time.Now().UTC(),
	}
	if err := r.repo.Save(ctx, snap); err != nil {
		r.logger.Error("persisting zone registry failed", "error", err)
		return fmt.Errorf("persisting zone registry: %w", err)
	}
	return nil
}

// applyZoneDefaults fills zero-value fields of a new zone.
func applyZoneDefaults(z *Zone) {
	if z.HVACMode == "" {
		z.HVACMode = HVACModeHeat
	}
	if z.PresetMode == "" {
		z.PresetMode = PresetNone
	}
	if z.BaseTarget == 0 {
		z.BaseTarget = 20.0
	}
	if z.HeatingState == "" {
		z.HeatingState = HeatingStateOff
	}
	normalizeZone(z)
}

// normalizeZone ensures maps are non-nil after JSON round-trips.
func normalizeZone(z *Zone) {
	if z.Devices == nil {
		z.Devices = make(map[string]Device)
	}
	if z.Schedules == nil {
		z.Schedules = make(map[string]Schedule)
	}
	if z.PresetTemps == nil {
		z.PresetTemps = make(map[PresetMode]PresetConfig)
	}
	if z.HeatingState == "" {
		z.HeatingState = HeatingStateOff
	}
}

// validateZone checks zone invariants.
func validateZone(z *Zone) error {
	if z.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidZone)
	}
	if z.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidZone)
	}
	if z.BaseTarget < WindowOpenFloor || z.BaseTarget > 35 {
		return fmt.Errorf("%w: base target %.1f out of range", ErrInvalidZone, z.BaseTarget)
	}
	for _, s := range z.Schedules {
		if err := validateSchedule(s); err != nil {
			return err
		}
	}
	for _, ws := range z.WindowSensors {
		switch ws.Action {
		case WindowActionNone, WindowActionTurnOff, WindowActionReduceTemp:
		default:
			return fmt.Errorf("%w: window action %q", ErrInvalidZone, ws.Action)
		}
	}
	return nil
}

// validateSchedule checks schedule invariants: parseable times, a
// valid weekday, and exactly one target source.
func validateSchedule(s Schedule) error {
	if s.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidSchedule)
	}
	if s.DayOfWeek < time.Sunday || s.DayOfWeek > time.Saturday {
		return fmt.Errorf("%w: day %d", ErrInvalidSchedule, s.DayOfWeek)
	}
	if _, err := ParseClock(s.Start); err != nil {
		return fmt.Errorf("%w: start: %w", ErrInvalidSchedule, err)
	}
	if _, err := ParseClock(s.End); err != nil {
		return fmt.Errorf("%w: end: %w", ErrInvalidSchedule, err)
	}
	if (s.Temperature == nil) == (s.Preset == nil) {
		return fmt.Errorf("%w: exactly one of temperature or preset required", ErrInvalidSchedule)
	}
	return nil
}
