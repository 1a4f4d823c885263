// Package mqtt is Hearth Core's connection to the message bus.
//
// MQTT sits between the heating engine and whatever home automation
// system owns the physical devices. Entity state arrives on retained
// hearth/state/+ topics, actuator commands leave on hearth/command/+,
// and the engine publishes its own zone state and events under
// hearth/core/. The Topics type builds every topic the system uses.
//
// The client wraps eclipse/paho with auto-reconnect, subscription replay
// after a reconnect, and a retained presence document on
// hearth/system/status: online on connect, offline via LWT on a crash or
// explicitly on a clean shutdown.
//
// TLS and broker credentials come from the mqtt section of config.yaml;
// anonymous plaintext is for local development only.
package mqtt
