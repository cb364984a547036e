package api

// StatusResponse is the payload for GET /api/v1/status.
type StatusResponse struct {
	Status         string `json:"status"`
	Recording      bool   `json:"recording"`
	StandConnected bool   `json:"stand_connected"`
	DataPoints     int    `json:"data_points"`
}

// StartRequest is the body of POST /api/v1/start.
type StartRequest struct {
	Label string `json:"label"`
}

// StartResponse acknowledges a started recording.
type StartResponse struct {
	TestID string `json:"test_id"`
	Status string `json:"status"`
}

// CalibrateRequest is the body of POST /api/v1/calibrate.
type CalibrateRequest struct {
	KnownMassG float64 `json:"known_mass"`
}

// LabelRequest is the body of POST /api/v1/tests/{id}/label.
type LabelRequest struct {
	Label string `json:"label"`
}

// CropRequest is the body of POST /api/v1/tests/{id}/crop. EndS may be null
// to crop to the end of the trace.
type CropRequest struct {
	StartS float64  `json:"start_s"`
	EndS   *float64 `json:"end_s"`
}

// CalibrationRequest is the body of POST /api/v1/calibration.
type CalibrationRequest struct {
	Offset int64   `json:"offset"`
	Scale  float64 `json:"scale"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
