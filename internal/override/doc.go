// Package override detects manual thermostat adjustments.
//
// When someone turns a thermostat dial, the integration mirrors the
// new target temperature onto the state bus. The detector watches
// those changes for every thermostat attached to a zone: a change in
// the target temperature attribute alone (not mode, not the measured
// temperature) arms a short debounce timer, cancel-and-replace per
// actuator, so a dial being turned through several stops settles to
// one decision carrying the final value.
//
// When the timer fires, the zone adopts the dialled temperature as its
// base target, its manual-override flag is set and persisted, and an
// immediate control pass is requested. Setpoint changes the engine
// itself commanded are recognized and ignored, otherwise every control
// pass would look like a user override.
//
// Clearing an override is an explicit user action handled elsewhere;
// the detector only ever sets the flag.
package override
