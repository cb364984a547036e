// Package telemetry declares the wire shapes shared between the stand link,
// the MQTT bridge, the session state machine and the dashboard hub: force
// readings, stand commands and dashboard event envelopes.
package telemetry
