// Package sim generates synthetic rocket motor thrust curves: progressive,
// neutral and regressive burn profiles with startup transient, tail-off and
// sensor noise, plus catastrophic-failure traces. Used by cmd/simulator for
// hardware-free development and by analysis tests as realistic fixtures.
package sim
