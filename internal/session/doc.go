// Package session implements the test lifecycle state machine: Idle,
// Recording and Calibrating, with a single current-session slot gating which
// incoming readings are buffered.
//
// The first reading accepted after start anchors time-zero on the
// data-stream clock, so transport latency between the start command and the
// first sample never skews the trace. Stop seals the buffer and finalizes it
// synchronously through the injected Finalizer; readings arriving outside a
// recording are passed through for live display but never buffered.
package session
