// Package config loads and validates the Hearth Core configuration.
//
// Configuration is read once at startup from a YAML file, with selected
// values overridable through HEARTH_* environment variables. Secrets such
// as the MQTT password and InfluxDB token belong in the environment, not
// in the file, and the file itself should be permissioned 0600.
package config
