package zone

import "time"

// ActiveSchedule returns the schedule currently in effect for the
// zone, or false if none is active.
//
// A schedule matches when its weekday and [start, end) window contain
// now. Windows whose end is at or before their start cross midnight:
// they match both on their own weekday from the start time onward, and
// on the following weekday before the end time.
//
// When several schedules are active at once the one that started most
// recently wins; schedules that started at the same instant are broken
// by the lexicographically smallest ID, so the outcome is stable
// regardless of map iteration order. Schedules with malformed time
// strings are skipped.
func (z *Zone) ActiveSchedule(now time.Time) (Schedule, bool) {
	nowMin := minutesOfDay(now)
	today := now.Weekday()
	yesterday := (today + 6) % 7

	var (
		best    Schedule
		bestAge int // minutes since the winning schedule started
		found   bool
	)

	consider := func(s Schedule, age int) {
		if !found || age < bestAge || (age == bestAge && s.ID < best.ID) {
			best = s
			bestAge = age
			found = true
		}
	}

	for _, s := range z.Schedules {
		if !s.Enabled {
			continue
		}

		start, err := ParseClock(s.Start)
		if err != nil {
			continue
		}
		end, err := ParseClock(s.End)
		if err != nil {
			continue
		}

		if start < end {
			// Same-day window.
			if s.DayOfWeek == today && nowMin >= start && nowMin < end {
				consider(s, nowMin-start)
			}
			continue
		}

		// Cross-midnight window: active from start on its own day,
		// and before end on the following day.
		if s.DayOfWeek == today && nowMin >= start {
			consider(s, nowMin-start)
		}
		if s.DayOfWeek == yesterday && nowMin < end {
			consider(s, nowMin+minutesPerDay-start)
		}
	}

	return best, found
}

// scheduleTarget resolves a schedule's target temperature, falling
// back through the zone's preset resolution when the schedule
// references a preset. The boolean reports whether a temperature could
// be resolved.
func (z *Zone) scheduleTarget(s Schedule, global *GlobalConfig) (float64, bool) {
	if s.Temperature != nil {
		return *s.Temperature, true
	}
	if s.Preset != nil {
		return z.PresetTemp(*s.Preset, global)
	}
	return 0, false
}

// windowTarget resolves the target while one or more window sensors
// report open. WindowActionTurnOff dominates: it drops the zone to the
// frost-safe floor. Otherwise the largest configured temperature drop
// applies, clamped to the floor.
func (z *Zone) windowTarget() (float64, bool) {
	var (
		drop    float64
		anyOpen bool
		anyOff  bool
	)

	for _, ws := range z.WindowSensors {
		if !ws.Open || ws.Action == WindowActionNone {
			continue
		}
		anyOpen = true
		if ws.Action == WindowActionTurnOff {
			anyOff = true
			continue
		}
		d := ws.TempDrop
		if d <= 0 {
			d = DefaultWindowTempDrop
		}
		if d > drop {
			drop = d
		}
	}

	if !anyOpen {
		return 0, false
	}
	if anyOff {
		return WindowOpenFloor, true
	}

	target := z.BaseTarget - drop
	if target < WindowOpenFloor {
		target = WindowOpenFloor
	}
	return target, true
}

// EffectiveTarget computes the temperature the zone should currently
// be heated to. It is a pure function of the zone's state (including
// its cached window sensor readings), the global config, and now.
//
// Priority cascade, highest first:
//  1. Active boost mode (callers expire stale boosts before evaluating)
//  2. Open window (turn-off floor or reduced target)
//  3. Preset mode other than none/boost
//  4. Active schedule (literal temperature or preset reference)
//  5. Base target temperature
//
// Night boost is additive on top of steps 3-5 when the zone is neither
// boosting nor inside an active schedule window, so a pre-heat never
// fights a deliberate scheduled setback.
func EffectiveTarget(z *Zone, global *GlobalConfig, now time.Time) float64 {
	if z.Boost.Active && now.Before(z.Boost.EndTime) {
		return z.Boost.Temperature
	}

	if target, ok := z.windowTarget(); ok {
		return target
	}

	var target float64

	active, inSchedule := z.ActiveSchedule(now)

	switch {
	case z.PresetMode != PresetNone && z.PresetMode != PresetBoost:
		if t, ok := z.PresetTemp(z.PresetMode, global); ok {
			target = t
		} else {
			target = z.BaseTarget
		}
	case inSchedule:
		if t, resolved := z.scheduleTarget(active, global); resolved {
			target = t
		} else {
			target = z.BaseTarget
		}
	default:
		target = z.BaseTarget
	}

	if !inSchedule && z.nightBoostActive(now) {
		target += z.nightBoostOffset()
	}

	return target
}

// nightBoostActive reports whether the fixed night boost window covers
// now. Smart night boost is realised as a pre-heat window by the
// schedule engine and does not use the fixed window.
func (z *Zone) nightBoostActive(now time.Time) bool {
	nb := z.NightBoost
	if !nb.Enabled || nb.Smart {
		return false
	}

	start, err := ParseClock(nb.Start)
	if err != nil {
		return false
	}
	end, err := ParseClock(nb.End)
	if err != nil {
		return false
	}

	return inClockWindow(minutesOfDay(now), start, end)
}

// nightBoostOffset returns the configured offset, defaulting when the
// zone has night boost enabled with a zero offset.
func (z *Zone) nightBoostOffset() float64 {
	if z.NightBoost.Offset != 0 {
		return z.NightBoost.Offset
	}
	return DefaultNightBoostOffset
}
