// Package logging wraps log/slog for Hearth Core.
//
// Every log line carries the service name and version; components add
// their own tag with With("component", ...). Output format and level come
// from the logging section of config.yaml: JSON for the deployed service,
// text when watching the control loop locally.
//
// Broker credentials and API tokens never go into log fields.
package logging
