// Package influxdb is the telemetry sink for Hearth Core.
//
// Every control pass writes zone temperature, target, and heating state
// here; the learning engine records its rate samples and the heat source
// coordinator its flow demand. The API dashboards read the history back
// with Flux queries.
//
// The client wraps influxdb-client-go v2. Writes go through the
// non-blocking batch API so the control loop never stalls on the network;
// failures arrive asynchronously via SetOnError. Telemetry is optional:
// when the config disables it, Connect returns ErrDisabled and the rest of
// the system runs without history.
package influxdb
