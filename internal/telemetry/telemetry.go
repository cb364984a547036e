package telemetry

// Reading is one calibrated force sample from the stand's load cell.
// Timestamp is the stand's monotonic clock in milliseconds; Force is in
// newtons with calibration already applied on the device. Raw is the
// unscaled sensor code, kept for export and debugging.
//
// Readings are immutable once produced.
type Reading struct {
	Timestamp int64   `json:"timestamp"`
	Force     float64 `json:"force"`
	Raw       int     `json:"raw,omitempty"`
}

// Command types sent to the stand over the control link.
const (
	CmdStartTest = "start_test"
	CmdStopTest  = "stop_test"
	CmdTare      = "tare"
	CmdCalibrate = "calibrate"
)

// Command is a control message forwarded to the stand firmware.
// KnownMassG is only set for CmdCalibrate.
type Command struct {
	Type       string  `json:"type"`
	KnownMassG float64 `json:"known_mass,omitempty"`
}

// Dashboard event names broadcast over the dashboard websocket.
const (
	EventReading      = "reading"
	EventStatus       = "status"
	EventStandStatus  = "stand_status"
	EventTestComplete = "test_complete"
	EventCalibration  = "calibration"
)

// Event is the JSON envelope sent to dashboard clients.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}
