// Package zone defines the heating zone model and its registry.
//
// A Zone is a controllable heating area: it owns its devices, its
// schedules, its preset and boost configuration, and the cached sensor
// state the control loop refreshes each pass. The effective target
// temperature cascade (boost, open windows, presets, schedules, base
// target, night boost) is implemented here as a pure function of zone
// state and the current time.
//
// The Registry wraps a Repository with an in-memory cache guarded by a
// read-write mutex. All reads return deep copies so callers can never
// mutate shared state. Configuration mutations are persisted to the
// repository before the cache is updated; transient runtime state
// (current temperature, window flags, heating state) lives only in the
// cache.
//
// # Usage
//
//	registry := zone.NewRegistry(repo)
//	if err := registry.Load(ctx); err != nil {
//	    return err
//	}
//
//	z, err := registry.Get("living-room")
//	target := zone.EffectiveTarget(z, registry.GlobalConfig(), time.Now())
package zone
