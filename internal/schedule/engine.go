package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/hearth-core/internal/bridges/hamqtt"
	"github.com/nerrad567/hearth-core/internal/zone"
)

const (
	// PreheatSafetyMargin is added to the predicted heat-up time so the
	// zone reaches temperature slightly early rather than slightly late.
	PreheatSafetyMargin = 10 * time.Minute

	// morningWindowEnd bounds the search for a morning schedule start.
	morningWindowEnd = 12 * 60 // minutes since midnight
)

// Registry is the subset of the zone registry the engine needs.
type Registry interface {
	List() []*zone.Zone
	GlobalConfig() zone.GlobalConfig
	SetBaseTarget(ctx context.Context, id string, temp float64) (*zone.Zone, error)
	SetPresetMode(ctx context.Context, id string, preset zone.PresetMode) (*zone.Zone, error)
	SetPreheat(id string, w *zone.PreheatWindow) error
}

// Predictor estimates heat-up time in minutes.
type Predictor interface {
	PredictMinutes(zoneID string, from, to float64, outdoorTemp *float64) (int, bool)
}

// SensorReader reads cached entity state for outdoor sensors.
type SensorReader interface {
	ReadSensor(entityID string) (hamqtt.EntityState, error)
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

// Engine applies schedules on a fixed tick.
type Engine struct {
	registry  Registry
	predictor Predictor
	reader    SensorReader
	interval  time.Duration
	logger    Logger

	mu          sync.Mutex
	lastApplied map[string]string // zone ID -> applied schedule ID

	now func() time.Time
}

// NewEngine creates a schedule engine. The predictor and reader are
// optional; without them smart pre-heat is disabled.
func NewEngine(registry Registry, interval time.Duration) *Engine {
	return &Engine{
		registry:    registry,
		interval:    interval,
		logger:      noopLogger{},
		lastApplied: make(map[string]string),
		now:         time.Now,
	}
}

// SetLogger sets the logger used for schedule events.
func (e *Engine) SetLogger(logger Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// SetPredictor attaches a heat-up predictor for smart pre-heat.
func (e *Engine) SetPredictor(p Predictor) { e.predictor = p }

// SetSensorReader attaches a state reader for outdoor sensors.
func (e *Engine) SetSensorReader(r SensorReader) { e.reader = r }

// Run executes ticks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info("schedule engine started", "interval", e.interval)

	e.Tick(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("schedule engine stopped")
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick processes every zone once.
func (e *Engine) Tick(ctx context.Context) {
	now := e.now()
	global := e.registry.GlobalConfig()

	for _, z := range e.registry.List() {
		if !z.Enabled {
			continue
		}
		if z.ManualOverride {
			// A manually overridden zone is the user's until they
			// release it.
			continue
		}

		e.applySchedule(ctx, z, now)
		e.updatePreheat(z, &global, now)
	}
}

// applySchedule applies the zone's active schedule once per window
// entry.
func (e *Engine) applySchedule(ctx context.Context, z *zone.Zone, now time.Time) {
	active, ok := z.ActiveSchedule(now)

	e.mu.Lock()
	applied, hasApplied := e.lastApplied[z.ID]
	e.mu.Unlock()

	if !ok {
		if hasApplied {
			e.mu.Lock()
			delete(e.lastApplied, z.ID)
			e.mu.Unlock()
			e.logger.Debug("schedule window left", "zone_id", z.ID, "schedule_id", applied)
		}
		return
	}

	if hasApplied && applied == active.ID {
		return
	}

	switch {
	case active.Temperature != nil:
		if _, err := e.registry.SetBaseTarget(ctx, z.ID, *active.Temperature); err != nil {
			e.logger.Error("applying schedule target failed",
				"zone_id", z.ID, "schedule_id", active.ID, "error", err)
			return
		}
	case active.Preset != nil:
		if _, err := e.registry.SetPresetMode(ctx, z.ID, *active.Preset); err != nil {
			e.logger.Error("applying schedule preset failed",
				"zone_id", z.ID, "schedule_id", active.ID, "error", err)
			return
		}
	default:
		return
	}

	e.mu.Lock()
	e.lastApplied[z.ID] = active.ID
	e.mu.Unlock()

	e.logger.Info("schedule applied",
		"zone_id", z.ID, "schedule_id", active.ID)
}

// updatePreheat opens a smart pre-heat window when the predicted
// heat-up time says the zone must start now to be warm by the morning
// target time.
func (e *Engine) updatePreheat(z *zone.Zone, global *zone.GlobalConfig, now time.Time) {
	nb := z.NightBoost
	if !nb.Enabled || !nb.Smart || e.predictor == nil {
		return
	}
	if z.Preheat != nil {
		// A window is already open; the control loop clears it when it
		// elapses.
		return
	}
	if z.CurrentTemp == nil {
		return
	}

	targetTime, targetTemp, ok := e.morningTarget(z, global, now)
	if !ok {
		return
	}
	if !now.Before(targetTime) {
		return
	}

	minutes, ok := e.predictor.PredictMinutes(z.ID, *z.CurrentTemp, targetTemp, e.outdoorTemp(z))
	if !ok {
		return
	}

	start := targetTime.Add(-time.Duration(minutes)*time.Minute - PreheatSafetyMargin)
	if now.Before(start) {
		return
	}

	if err := e.registry.SetPreheat(z.ID, &zone.PreheatWindow{
		TargetTemp: targetTemp,
		Until:      targetTime,
	}); err != nil {
		e.logger.Error("opening preheat window failed", "zone_id", z.ID, "error", err)
		return
	}
	e.logger.Info("preheat window opened",
		"zone_id", z.ID,
		"target_temp", targetTemp,
		"until", targetTime,
		"predicted_minutes", minutes)
}

// morningTarget resolves when the zone next needs to be warm and at
// what temperature: the earliest morning schedule today, or the
// configured night boost target time with the zone's base target.
// Preset-referencing schedules count too, at the preset's resolved
// temperature.
func (e *Engine) morningTarget(z *zone.Zone, global *zone.GlobalConfig, now time.Time) (time.Time, float64, bool) {
	var (
		bestStart = -1
		bestTemp  float64
	)

	for _, s := range z.Schedules {
		if !s.Enabled || s.DayOfWeek != now.Weekday() {
			continue
		}
		temp, ok := scheduleTemp(z, s, global)
		if !ok {
			continue
		}
		start, err := zone.ParseClock(s.Start)
		if err != nil || start >= morningWindowEnd {
			continue
		}
		if bestStart == -1 || start < bestStart {
			bestStart = start
			bestTemp = temp
		}
	}

	if bestStart >= 0 {
		return atMinutes(now, bestStart), bestTemp, true
	}

	if z.NightBoost.TargetTime != "" {
		start, err := zone.ParseClock(z.NightBoost.TargetTime)
		if err == nil {
			return atMinutes(now, start), z.BaseTarget, true
		}
	}
	return time.Time{}, 0, false
}

// scheduleTemp resolves a schedule's temperature, following a preset
// reference through the zone's preset resolution.
func scheduleTemp(z *zone.Zone, s zone.Schedule, global *zone.GlobalConfig) (float64, bool) {
	if s.Temperature != nil {
		return *s.Temperature, true
	}
	if s.Preset != nil {
		return z.PresetTemp(*s.Preset, global)
	}
	return 0, false
}

func (e *Engine) outdoorTemp(z *zone.Zone) *float64 {
	if e.reader == nil || z.NightBoost.OutdoorSensorID == "" {
		return nil
	}
	state, err := e.reader.ReadSensor(z.NightBoost.OutdoorSensorID)
	if err != nil || !state.Available {
		return nil
	}
	if v, ok := hamqtt.TemperatureC(state); ok {
		return &v
	}
	return nil
}

// atMinutes returns today's date at the given minutes since midnight,
// in now's location.
func atMinutes(now time.Time, minutes int) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), minutes/60, minutes%60, 0, 0, now.Location())
}
