package schedule

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/hearth-core/internal/bridges/hamqtt"
	"github.com/nerrad567/hearth-core/internal/zone"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type mockRegistry struct {
	mu    sync.Mutex
	zones map[string]*zone.Zone

	targetsApplied []float64
	presetsApplied []zone.PresetMode
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{zones: make(map[string]*zone.Zone)}
}

func (m *mockRegistry) add(z *zone.Zone) *zone.Zone {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zones[z.ID] = z
	return z
}

func (m *mockRegistry) List() []*zone.Zone {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*zone.Zone, 0, len(m.zones))
	for _, z := range m.zones {
		out = append(out, z.DeepCopy())
	}
	return out
}

func (m *mockRegistry) GlobalConfig() zone.GlobalConfig {
	return zone.DefaultGlobalConfig()
}

func (m *mockRegistry) SetBaseTarget(_ context.Context, id string, temp float64) (*zone.Zone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", zone.ErrNotFound, id)
	}
	z.BaseTarget = temp
	m.targetsApplied = append(m.targetsApplied, temp)
	return z.DeepCopy(), nil
}

func (m *mockRegistry) SetPresetMode(_ context.Context, id string, preset zone.PresetMode) (*zone.Zone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", zone.ErrNotFound, id)
	}
	z.PresetMode = preset
	m.presetsApplied = append(m.presetsApplied, preset)
	return z.DeepCopy(), nil
}

func (m *mockRegistry) SetPreheat(id string, w *zone.PreheatWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zones[id].Preheat = w
	return nil
}

type stubPredictor struct {
	minutes int
	ok      bool
}

func (s *stubPredictor) PredictMinutes(string, float64, float64, *float64) (int, bool) {
	return s.minutes, s.ok
}

// 2026-08-24 is a Monday.
func at(h, m int) time.Time {
	return time.Date(2026, 8, 24, h, m, 0, 0, time.UTC)
}

func f(v float64) *float64 { return &v }

func scheduledZone() *zone.Zone {
	return &zone.Zone{
		ID: "hall", Name: "Hall", Enabled: true,
		BaseTarget: 18.0,
		HVACMode:   zone.HVACModeHeat,
		PresetMode: zone.PresetNone,
		Devices:    map[string]zone.Device{},
		Schedules: map[string]zone.Schedule{
			"morning": {
				ID: "morning", DayOfWeek: time.Monday,
				Start: "06:30", End: "08:30",
				Enabled: true, Temperature: f(21.0),
			},
		},
	}
}

func engineAt(reg *mockRegistry, now time.Time) *Engine {
	e := NewEngine(reg, time.Minute)
	e.now = func() time.Time { return now }
	return e
}

// ─── Schedule Application ───────────────────────────────────────────────────

func TestTick_AppliesScheduleOnce(t *testing.T) {
	reg := newMockRegistry()
	reg.add(scheduledZone())
	engine := engineAt(reg, at(7, 0))

	engine.Tick(context.Background())
	if len(reg.targetsApplied) != 1 || reg.targetsApplied[0] != 21.0 {
		t.Fatalf("targets applied = %v, want [21.0]", reg.targetsApplied)
	}

	// Same window, later tick: no re-application.
	engine.now = func() time.Time { return at(7, 30) }
	engine.Tick(context.Background())
	if len(reg.targetsApplied) != 1 {
		t.Errorf("targets applied = %v, want a single application per window", reg.targetsApplied)
	}
}

func TestTick_UserAdjustmentSticksWithinWindow(t *testing.T) {
	reg := newMockRegistry()
	reg.add(scheduledZone())
	engine := engineAt(reg, at(7, 0))

	engine.Tick(context.Background())

	// User nudges the target mid-window; the engine must not fight it.
	reg.mu.Lock()
	reg.zones["hall"].BaseTarget = 22.5
	reg.mu.Unlock()

	engine.now = func() time.Time { return at(7, 30) }
	engine.Tick(context.Background())

	reg.mu.Lock()
	got := reg.zones["hall"].BaseTarget
	reg.mu.Unlock()
	if got != 22.5 {
		t.Errorf("base target = %.1f, want the user's 22.5 preserved", got)
	}
}

func TestTick_ReappliesOnWindowReentry(t *testing.T) {
	reg := newMockRegistry()
	reg.add(scheduledZone())
	engine := engineAt(reg, at(7, 0))

	engine.Tick(context.Background())

	// Window ends: marker forgotten, nothing reverted.
	engine.now = func() time.Time { return at(9, 0) }
	engine.Tick(context.Background())
	if len(reg.targetsApplied) != 1 {
		t.Fatalf("leaving a window must not apply anything, got %v", reg.targetsApplied)
	}

	// A second window on the same day applies fresh.
	reg.mu.Lock()
	reg.zones["hall"].Schedules["evening"] = zone.Schedule{
		ID: "evening", DayOfWeek: time.Monday,
		Start: "17:00", End: "22:00",
		Enabled: true, Temperature: f(20.0),
	}
	reg.mu.Unlock()

	engine.now = func() time.Time { return at(17, 5) }
	engine.Tick(context.Background())
	if len(reg.targetsApplied) != 2 || reg.targetsApplied[1] != 20.0 {
		t.Errorf("targets applied = %v, want second application 20.0", reg.targetsApplied)
	}
}

func TestTick_AppliesPresetSchedule(t *testing.T) {
	eco := zone.PresetEco
	reg := newMockRegistry()
	z := scheduledZone()
	z.Schedules = map[string]zone.Schedule{
		"eco-night": {
			ID: "eco-night", DayOfWeek: time.Monday,
			Start: "22:00", End: "06:00",
			Enabled: true, Preset: &eco,
		},
	}
	reg.add(z)

	engine := engineAt(reg, at(23, 0))
	engine.Tick(context.Background())

	if len(reg.presetsApplied) != 1 || reg.presetsApplied[0] != zone.PresetEco {
		t.Errorf("presets applied = %v, want [eco]", reg.presetsApplied)
	}
}

func TestTick_SkipsOverriddenAndDisabledZones(t *testing.T) {
	reg := newMockRegistry()
	overridden := scheduledZone()
	overridden.ManualOverride = true
	reg.add(overridden)

	disabled := scheduledZone()
	disabled.ID = "study"
	disabled.Enabled = false
	reg.add(disabled)

	engine := engineAt(reg, at(7, 0))
	engine.Tick(context.Background())

	if len(reg.targetsApplied) != 0 {
		t.Errorf("targets applied = %v, want none", reg.targetsApplied)
	}
}

// ─── Smart Preheat ──────────────────────────────────────────────────────────

func smartZone(current float64) *zone.Zone {
	z := scheduledZone()
	z.CurrentTemp = &current
	z.NightBoost = zone.NightBoostConfig{
		Enabled: true, Smart: true, TargetTime: "06:30",
	}
	return z
}

func TestTick_OpensPreheatWindow(t *testing.T) {
	reg := newMockRegistry()
	reg.add(smartZone(18.0))

	// Morning schedule starts 06:30 at 21°C; prediction says 60
	// minutes, so with the 10 minute margin the window opens at 05:20.
	engine := engineAt(reg, at(5, 30))
	engine.SetPredictor(&stubPredictor{minutes: 60, ok: true})
	engine.Tick(context.Background())

	ph := reg.zones["hall"].Preheat
	if ph == nil {
		t.Fatal("preheat window should be open")
	}
	if ph.TargetTemp != 21.0 {
		t.Errorf("preheat target = %.1f, want the morning schedule's 21.0", ph.TargetTemp)
	}
	if !ph.Until.Equal(at(6, 30)) {
		t.Errorf("preheat until = %v, want 06:30", ph.Until)
	}
}

func TestTick_PreheatNotYetDue(t *testing.T) {
	reg := newMockRegistry()
	reg.add(smartZone(18.0))

	engine := engineAt(reg, at(4, 0)) // window opens 05:20
	engine.SetPredictor(&stubPredictor{minutes: 60, ok: true})
	engine.Tick(context.Background())

	if reg.zones["hall"].Preheat != nil {
		t.Error("preheat window opened too early")
	}
}

func TestTick_PreheatRequiresPrediction(t *testing.T) {
	reg := newMockRegistry()
	reg.add(smartZone(18.0))

	engine := engineAt(reg, at(5, 30))
	engine.SetPredictor(&stubPredictor{ok: false}) // under min samples
	engine.Tick(context.Background())

	if reg.zones["hall"].Preheat != nil {
		t.Error("no prediction means no preheat window")
	}
}

func TestTick_PreheatFallsBackToTargetTime(t *testing.T) {
	reg := newMockRegistry()
	z := smartZone(18.0)
	z.Schedules = map[string]zone.Schedule{} // no morning schedule
	reg.add(z)

	engine := engineAt(reg, at(5, 55)) // window opens 05:50
	engine.SetPredictor(&stubPredictor{minutes: 30, ok: true})
	engine.Tick(context.Background())

	ph := reg.zones["hall"].Preheat
	if ph == nil {
		t.Fatal("preheat should fall back to the configured target time")
	}
	if ph.TargetTemp != 18.0 {
		t.Errorf("preheat target = %.1f, want the base target", ph.TargetTemp)
	}
}

func TestTick_PreheatSkippedAfterTargetTime(t *testing.T) {
	reg := newMockRegistry()
	reg.add(smartZone(18.0))

	engine := engineAt(reg, at(7, 0)) // already past 06:30
	engine.SetPredictor(&stubPredictor{minutes: 60, ok: true})
	engine.Tick(context.Background())

	if reg.zones["hall"].Preheat != nil {
		t.Error("no preheat after the target time has passed")
	}
}

func TestMorningTarget_EarliestMorningSchedule(t *testing.T) {
	z := scheduledZone()
	z.Schedules["earlier"] = zone.Schedule{
		ID: "earlier", DayOfWeek: time.Monday,
		Start: "05:45", End: "06:15",
		Enabled: true, Temperature: f(19.5),
	}
	z.Schedules["afternoon"] = zone.Schedule{
		ID: "afternoon", DayOfWeek: time.Monday,
		Start: "14:00", End: "16:00",
		Enabled: true, Temperature: f(23.0),
	}

	e := NewEngine(newMockRegistry(), time.Minute)
	global := zone.DefaultGlobalConfig()
	when, temp, ok := e.morningTarget(z, &global, at(3, 0))
	if !ok {
		t.Fatal("morning target should resolve")
	}
	if !when.Equal(at(5, 45)) || temp != 19.5 {
		t.Errorf("morning target = %v %.1f, want 05:45 19.5", when, temp)
	}
}

func TestMorningTarget_PresetSchedule(t *testing.T) {
	z := scheduledZone()
	comfort := zone.PresetComfort
	z.Schedules = map[string]zone.Schedule{
		"wakeup": {
			ID: "wakeup", DayOfWeek: time.Monday,
			Start: "05:30", End: "08:00",
			Enabled: true, Preset: &comfort,
		},
	}

	e := NewEngine(newMockRegistry(), time.Minute)
	global := zone.DefaultGlobalConfig()
	when, temp, ok := e.morningTarget(z, &global, at(3, 0))
	if !ok {
		t.Fatal("preset morning schedule should resolve")
	}
	want, _ := z.PresetTemp(comfort, &global)
	if !when.Equal(at(5, 30)) || temp != want {
		t.Errorf("morning target = %v %.1f, want 05:30 %.1f", when, temp, want)
	}
}

// stubReader serves one outdoor sensor.
type stubReader struct {
	state hamqtt.EntityState
}

func (s *stubReader) ReadSensor(string) (hamqtt.EntityState, error) {
	return s.state, nil
}

func TestOutdoorTemp(t *testing.T) {
	z := smartZone(18.0)
	z.NightBoost.OutdoorSensorID = "sensor.outdoor"

	e := NewEngine(newMockRegistry(), time.Minute)
	if got := e.outdoorTemp(z); got != nil {
		t.Errorf("no reader should mean nil outdoor temp, got %v", *got)
	}

	e.SetSensorReader(&stubReader{state: hamqtt.EntityState{Value: 3.5, Available: true}})
	got := e.outdoorTemp(z)
	if got == nil || *got != 3.5 {
		t.Errorf("outdoor temp = %v, want 3.5", got)
	}
}
