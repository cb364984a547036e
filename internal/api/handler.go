package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/thrustbench/thrustbench/internal/analysis"
	"github.com/thrustbench/thrustbench/internal/record"
	"github.com/thrustbench/thrustbench/internal/session"
	"github.com/thrustbench/thrustbench/internal/store"
	"github.com/thrustbench/thrustbench/internal/ws"
)

// StandStatus reports whether the stand link is up. Implemented by ws.Hub.
type StandStatus interface {
	StandConnected() bool
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	machine *session.Machine
	records *record.Service
	store   *store.Store
	stand   StandStatus
	mux     *http.ServeMux
}

// New creates a Handler wired to the session machine, record service and
// store, and registers all routes.
func New(m *session.Machine, rs *record.Service, st *store.Store, stand StandStatus) http.Handler {
	h := &Handler{machine: m, records: rs, store: st, stand: stand, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/status", h.status)
	h.mux.HandleFunc("/api/v1/start", h.start)
	h.mux.HandleFunc("/api/v1/stop", h.stop)
	h.mux.HandleFunc("/api/v1/tare", h.tare)
	h.mux.HandleFunc("/api/v1/calibrate", h.calibrate)
	h.mux.HandleFunc("/api/v1/calibration", h.calibration)
	h.mux.HandleFunc("/api/v1/tests", h.listTests)
	h.mux.HandleFunc("/api/v1/tests/", h.testSubtree) // extracts {id}[/action]

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// status returns GET /api/v1/status — session state and stand link health.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	st, n := h.machine.Status()
	jsonResp(w, http.StatusOK, StatusResponse{
		Status:         string(st),
		Recording:      st == session.StatusRecording,
		StandConnected: h.stand.StandConnected(),
		DataPoints:     n,
	})
}

// start handles POST /api/v1/start — opens a recording session.
func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req StartRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck — empty body means no label
	}

	id, err := h.machine.Start(req.Label)
	if err != nil {
		jsonErr(w, statusFor(err), err.Error())
		return
	}
	jsonResp(w, http.StatusOK, StartResponse{TestID: id, Status: string(session.StatusRecording)})
}

// stop handles POST /api/v1/stop — seals the recording, runs analysis and
// returns the finished record.
func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rec, err := h.machine.Stop()
	if err != nil {
		jsonErr(w, statusFor(err), err.Error())
		return
	}
	jsonResp(w, http.StatusOK, rec)
}

// tare handles POST /api/v1/tare — forwards the zeroing command.
func (h *Handler) tare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := h.machine.Tare(); err != nil {
		jsonErr(w, statusFor(err), err.Error())
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"message": "tare command sent"})
}

// calibrate handles POST /api/v1/calibrate — forwards a calibration with a
// known reference mass.
func (h *Handler) calibrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req CalibrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.machine.Calibrate(req.KnownMassG); err != nil {
		jsonErr(w, statusFor(err), err.Error())
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("calibration with %.1fg requested", req.KnownMassG),
	})
}

// calibration handles GET/POST /api/v1/calibration — the persisted
// scale/offset pair computed on the stand.
func (h *Handler) calibration(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cal, err := h.store.GetCalibration()
		if err != nil {
			jsonErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		jsonResp(w, http.StatusOK, cal)

	case http.MethodPost:
		var req CalibrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonErr(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Scale == 0 {
			jsonErr(w, http.StatusBadRequest, "scale must be non-zero")
			return
		}
		if err := h.store.SaveCalibration(req.Offset, req.Scale); err != nil {
			jsonErr(w, http.StatusInternalServerError, err.Error())
			return
		}
		jsonResp(w, http.StatusOK, map[string]string{"message": "calibration saved"})

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// listTests returns GET /api/v1/tests — history summaries, newest first.
func (h *Handler) listTests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	tests, err := h.store.ListTests(limit)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, tests)
}

// testSubtree dispatches /api/v1/tests/{id}, /{id}/csv, /{id}/label,
// /{id}/crop and /{id}/crop/reset.
func (h *Handler) testSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/tests/")
	if rest == "" {
		h.listTests(w, r)
		return
	}

	id, action, _ := strings.Cut(rest, "/")
	switch action {
	case "":
		h.test(w, r, id)
	case "csv":
		h.testCSV(w, r, id)
	case "label":
		h.testLabel(w, r, id)
	case "crop":
		h.testCrop(w, r, id)
	case "crop/reset":
		h.testCropReset(w, r, id)
	default:
		jsonErr(w, http.StatusNotFound, "endpoint not found")
	}
}

// test handles GET/DELETE /api/v1/tests/{id}.
func (h *Handler) test(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		rec, err := h.store.GetTest(id)
		if err != nil {
			jsonErr(w, statusFor(err), err.Error())
			return
		}
		jsonResp(w, http.StatusOK, rec)

	case http.MethodDelete:
		if err := h.store.DeleteTest(id); err != nil {
			jsonErr(w, statusFor(err), err.Error())
			return
		}
		jsonResp(w, http.StatusOK, map[string]string{"message": "test deleted"})

	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// testCSV handles GET /api/v1/tests/{id}/csv — the full trace as CSV.
func (h *Handler) testCSV(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rec, err := h.store.GetTest(id)
	if err != nil {
		jsonErr(w, statusFor(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=test_%s.csv", rec.ID))

	fmt.Fprintln(w, "time_ms,force_n,raw_value")
	for _, rd := range rec.Readings {
		fmt.Fprintf(w, "%d,%g,%d\n", rd.Timestamp, rd.Force, rd.Raw)
	}
}

// testLabel handles POST /api/v1/tests/{id}/label.
func (h *Handler) testLabel(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req LabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.store.UpdateLabel(id, req.Label); err != nil {
		jsonErr(w, statusFor(err), err.Error())
		return
	}
	jsonResp(w, http.StatusOK, map[string]string{"message": "label updated"})
}

// testCrop handles POST /api/v1/tests/{id}/crop — restricts the analysis
// window and returns the re-analyzed record.
func (h *Handler) testCrop(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req CropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := h.records.Crop(id, req.StartS, req.EndS)
	if err != nil {
		jsonErr(w, statusFor(err), err.Error())
		return
	}
	jsonResp(w, http.StatusOK, rec)
}

// testCropReset handles POST /api/v1/tests/{id}/crop/reset — clears the
// bounds and re-analyzes the full trace.
func (h *Handler) testCropReset(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rec, err := h.records.ResetCrop(id)
	if err != nil {
		jsonErr(w, statusFor(err), err.Error())
		return
	}
	jsonResp(w, http.StatusOK, rec)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// statusFor maps the error taxonomy onto HTTP status codes: state conflicts
// 409, validation failures 400, analysis data errors 422, missing records
// 404, stand unreachable 503, anything else 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ws.ErrStandOffline):
		// No stand link is an operational condition, not a server fault.
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrAlreadyRecording),
		errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrNotRecording):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidCalibration),
		errors.Is(err, record.ErrInvalidCropRange):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoData),
		errors.Is(err, analysis.ErrInsufficientData),
		errors.Is(err, analysis.ErrNoBurnDetected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
