package zone

import "errors"

// Domain-specific errors for zone operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound is returned when a zone doesn't exist in the registry.
	ErrNotFound = errors.New("zone: not found")

	// ErrAlreadyExists is returned when creating a zone with a duplicate ID.
	ErrAlreadyExists = errors.New("zone: already exists")

	// ErrScheduleNotFound is returned when a schedule ID doesn't exist on a zone.
	ErrScheduleNotFound = errors.New("zone: schedule not found")

	// ErrDeviceNotFound is returned when a device entity ID doesn't exist on a zone.
	ErrDeviceNotFound = errors.New("zone: device not found")

	// ErrInvalidZone is returned when zone validation fails.
	ErrInvalidZone = errors.New("zone: invalid zone")

	// ErrInvalidSchedule is returned when schedule validation fails.
	ErrInvalidSchedule = errors.New("zone: invalid schedule")

	// ErrInvalidClock is returned when an HH:MM time string cannot be parsed.
	ErrInvalidClock = errors.New("zone: invalid clock time")

	// ErrNotLoaded is returned when the registry is used before Load().
	ErrNotLoaded = errors.New("zone: registry not loaded")
)
