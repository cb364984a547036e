// Package config loads and validates the thrustbench-server configuration
// from a YAML file.
//
// Sections:
//
//	server:   HTTP port and sqlite database path
//	mqtt:     optional MQTT ingest bridge (disabled when broker is empty)
//	analysis: thrust-curve pipeline tuning (hot-reloadable via Watch)
//
// Load(path) parses the file, fills defaults and validates.
// Watch(ctx, path, onChange) hot-reloads the file on write so analysis
// parameters can be tuned between tests without a restart.
package config
