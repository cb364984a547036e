// Package ingest bridges broker-attached stands into the server: an MQTT
// subscriber that feeds the same single-consumer reading channel as the
// direct websocket link, and a publisher for outbound stand commands.
// Disabled entirely when no broker is configured.
package ingest
