// Package control runs the heating decision loop.
//
// On every pass the engine expires stale boosts, refreshes each zone's
// sensor inputs (mean temperature, window openness, presence), resolves
// the zone's effective target, and applies hysteresis:
//
//	current < target - hysteresis  →  heat
//	current >= target              →  stop
//	in between                     →  keep doing what we were doing
//
// Actuators are driven with per-device error isolation: one failing
// valve never blocks the rest of the zone, and one failing zone never
// blocks the rest of the pass. Thermostats always receive the current
// setpoint, even while idle, so their displays track the engine.
// Valve-class devices are driven through a probed capability profile
// (position or setpoint control, see CapabilityResolver).
//
// A central heat source, when configured, is commanded from the same
// pass's results: it runs at the highest demanding zone's target plus
// a flow overhead, and shuts off when no zone demands heat.
//
// Passes are skipped rather than queued when the previous pass is
// still running.
package control
