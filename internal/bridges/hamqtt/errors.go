package hamqtt

import "errors"

var (
	// ErrEntityUnknown indicates no state has been seen for the entity.
	ErrEntityUnknown = errors.New("hamqtt: entity unknown")

	// ErrNotConnected indicates the MQTT client is not connected.
	ErrNotConnected = errors.New("hamqtt: not connected")

	// ErrInvalidEntityID indicates an entity ID without a domain prefix.
	ErrInvalidEntityID = errors.New("hamqtt: invalid entity id")
)
