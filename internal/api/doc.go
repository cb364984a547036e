// Package api implements the REST surface of thrustbench-server under
// /api/v1: session commands (start, stop, tare, calibrate), test history
// (list, get, delete, relabel, CSV export), non-destructive crop control and
// calibration persistence. Errors from the core map onto HTTP codes in
// statusFor; all responses are JSON except the CSV export.
package api
