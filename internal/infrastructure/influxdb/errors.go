package influxdb

import "errors"

var (
	// ErrNotConnected indicates the client is not connected.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled is returned by Connect when telemetry is turned off in
	// the configuration. Callers treat it as "run without history".
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
