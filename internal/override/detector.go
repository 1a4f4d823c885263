package override

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/nerrad567/hearth-core/internal/bridges/hamqtt"
	"github.com/nerrad567/hearth-core/internal/zone"
)

// setpointEpsilon is the tolerance when comparing a mirrored setpoint
// against the engine's own commanded value.
const setpointEpsilon = 0.05

// Registry is the subset of the zone registry the detector needs.
type Registry interface {
	List() []*zone.Zone
	SetManualOverride(ctx context.Context, id string, on bool, adoptedTarget *float64) (*zone.Zone, error)
}

// Refresher triggers an immediate control pass.
type Refresher interface {
	RequestRefresh()
}

// SetpointTracker reports the setpoint the control engine last
// commanded for an actuator, so its echoes can be ignored.
type SetpointTracker interface {
	CommandedSetpoint(entityID string) (float64, bool)
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

// Detector turns debounced thermostat setpoint changes into zone
// manual overrides.
//
// Thread Safety: HandleStateChange and Shutdown are safe for
// concurrent use.
type Detector struct {
	registry  Registry
	refresher Refresher
	tracker   SetpointTracker
	debounce  time.Duration
	logger    Logger

	mu       sync.Mutex
	timers   map[string]*time.Timer
	shutdown bool
}

// NewDetector creates a detector. The refresher and tracker are
// optional.
func NewDetector(registry Registry, debounce time.Duration) *Detector {
	return &Detector{
		registry: registry,
		debounce: debounce,
		logger:   noopLogger{},
		timers:   make(map[string]*time.Timer),
	}
}

// SetLogger sets the logger used for detector events.
func (d *Detector) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// SetRefresher attaches a control pass trigger.
func (d *Detector) SetRefresher(r Refresher) { d.refresher = r }

// SetSetpointTracker attaches the engine's commanded-setpoint record.
func (d *Detector) SetSetpointTracker(t SetpointTracker) { d.tracker = t }

// HandleStateChange inspects one entity state change. Wire this to the
// bridge's OnStateChange.
func (d *Detector) HandleStateChange(change hamqtt.StateChange) {
	if change.Old == nil {
		// First sighting carries no before/after to compare.
		return
	}

	newTemp, ok := hamqtt.AttrFloat(change.New, "temperature")
	if !ok {
		return
	}
	if oldTemp, ok := hamqtt.AttrFloat(*change.Old, "temperature"); ok && oldTemp == newTemp {
		return
	}

	// Only a lone setpoint change counts. A mode flip or a measured
	// temperature update arriving in the same message means this is an
	// ordinary state refresh, not a dial turn.
	if !valueEqual(change.Old.Value, change.New.Value) {
		return
	}
	oldCur, oldOK := hamqtt.AttrFloat(*change.Old, "current_temperature")
	newCur, newOK := hamqtt.AttrFloat(change.New, "current_temperature")
	if oldOK && newOK && oldCur != newCur {
		return
	}

	zoneID, tracked := d.owningZone(change.EntityID)
	if !tracked {
		return
	}

	if d.tracker != nil {
		if commanded, ok := d.tracker.CommandedSetpoint(change.EntityID); ok {
			if math.Abs(commanded-newTemp) < setpointEpsilon {
				return
			}
		}
	}

	d.arm(change.EntityID, zoneID, newTemp)
}

// owningZone finds the zone that owns the entity as a thermostat.
func (d *Detector) owningZone(entityID string) (string, bool) {
	for _, z := range d.registry.List() {
		dev, ok := z.Devices[entityID]
		if ok && dev.Type == zone.DeviceTypeThermostat {
			return z.ID, true
		}
	}
	return "", false
}

// arm starts (or restarts) the debounce timer for an actuator. Only
// the newest pending timer per actuator survives, so the adopted value
// is always the last one dialled.
func (d *Detector) arm(entityID, zoneID string, temp float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.shutdown {
		return
	}
	if t, ok := d.timers[entityID]; ok {
		t.Stop()
	}
	d.timers[entityID] = time.AfterFunc(d.debounce, func() {
		d.adopt(entityID, zoneID, temp)
	})

	d.logger.Debug("override debounce armed",
		"entity_id", entityID, "zone_id", zoneID, "temperature", temp)
}

// adopt fires after a quiet debounce period.
func (d *Detector) adopt(entityID, zoneID string, temp float64) {
	d.mu.Lock()
	if d.shutdown {
		d.mu.Unlock()
		return
	}
	delete(d.timers, entityID)
	d.mu.Unlock()

	if _, err := d.registry.SetManualOverride(context.Background(), zoneID, true, &temp); err != nil {
		d.logger.Error("adopting manual override failed",
			"zone_id", zoneID, "entity_id", entityID, "error", err)
		return
	}

	d.logger.Info("manual override adopted",
		"zone_id", zoneID, "entity_id", entityID, "temperature", temp)

	if d.refresher != nil {
		d.refresher.RequestRefresh()
	}
}

// Shutdown cancels every pending debounce timer. No override is
// adopted after Shutdown returns.
func (d *Detector) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.shutdown = true
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
}

// Pending returns the number of armed debounce timers.
func (d *Detector) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

func valueEqual(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}
