package record

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/thrustbench/thrustbench/internal/analysis"
	"github.com/thrustbench/thrustbench/internal/metrics"
	"github.com/thrustbench/thrustbench/internal/session"
	"github.com/thrustbench/thrustbench/internal/store"
	"github.com/thrustbench/thrustbench/internal/telemetry"
)

// analyze runs the pipeline and records the outcome metric.
func analyze(readings []telemetry.Reading, startS, endS *float64, p analysis.Params) (*analysis.Result, error) {
	res, err := analysis.Analyze(readings, startS, endS, p)
	switch {
	case err == nil:
		metrics.Analyses.WithLabelValues("ok").Inc()
	case errors.Is(err, analysis.ErrInsufficientData):
		metrics.Analyses.WithLabelValues("insufficient_data").Inc()
	case errors.Is(err, analysis.ErrNoBurnDetected):
		metrics.Analyses.WithLabelValues("no_burn").Inc()
	default:
		metrics.Analyses.WithLabelValues("error").Inc()
	}
	return res, err
}

// ErrInvalidCropRange rejects crop bounds outside [0, duration] or with
// start >= end.
var ErrInvalidCropRange = errors.New("invalid crop range")

// Service finalizes stopped sessions into durable records and re-runs the
// analysis pipeline when a record's crop window changes. Analysis on a given
// record is serialized: concurrent crop requests on the same ID queue behind
// each other.
type Service struct {
	store *store.Store

	mu     sync.Mutex
	params analysis.Params
	locks  map[string]*sync.Mutex
}

// NewService creates a Service analyzing with the given pipeline parameters.
func NewService(st *store.Store, params analysis.Params) *Service {
	return &Service{
		store:  st,
		params: params,
		locks:  make(map[string]*sync.Mutex),
	}
}

// SetParams swaps the pipeline parameters. Applies to subsequent analyses
// only; stored results keep the values they were computed with.
func (s *Service) SetParams(p analysis.Params) {
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
	slog.Info("record: analysis parameters updated")
}

// Params returns the current pipeline parameters.
func (s *Service) Params() analysis.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// Finalize seals a stopped session into a TestRecord: runs the pipeline over
// the full trace and persists the record. A failed analysis (no ignition,
// too little data) still persists the trace with a nil analysis so the data
// survives and can be re-analyzed with different crop bounds later.
func (s *Service) Finalize(sess *session.TestSession) (*store.TestRecord, error) {
	readings := sess.Readings()

	rec := &store.TestRecord{
		ID:         sess.ID,
		CreatedAt:  sess.StartedAt,
		Label:      sess.Label,
		DurationMS: readings[len(readings)-1].Timestamp - readings[0].Timestamp,
		Readings:   readings,
	}

	res, err := analyze(readings, nil, nil, s.Params())
	if err != nil {
		slog.Warn("record: analysis failed, persisting trace without result",
			"id", sess.ID, "err", err)
	} else {
		rec.Analysis = res
		rec.PeakThrust = res.PeakThrustN
		rec.AvgThrust = res.AvgThrustN
		rec.TotalImpulse = res.TotalImpulseNS
		rec.MotorClass = res.MotorClass
	}

	if err := s.store.CreateTest(rec); err != nil {
		return nil, err
	}
	metrics.TestsPersisted.Inc()
	slog.Info("record: test persisted",
		"id", rec.ID, "class", rec.MotorClass, "impulse_ns", rec.TotalImpulse)
	return rec, nil
}

// Crop restricts the analysis window of a stored record to
// [startS, endS) seconds (endS nil means to the end of the trace) and
// replaces the stored analysis result. The original trace is never touched;
// cropping is reversible via ResetCrop.
func (s *Service) Crop(id string, startS float64, endS *float64) (*store.TestRecord, error) {
	unlock := s.lock(id)
	defer unlock()

	rec, err := s.store.GetTest(id)
	if err != nil {
		return nil, err
	}

	duration := float64(rec.DurationMS) / 1000.0
	if startS < 0 || startS >= duration {
		return nil, fmt.Errorf("%w: start %.3fs outside [0, %.3fs)", ErrInvalidCropRange, startS, duration)
	}
	if endS != nil && (*endS <= startS || *endS > duration) {
		return nil, fmt.Errorf("%w: end %.3fs outside (%.3fs, %.3fs]", ErrInvalidCropRange, *endS, startS, duration)
	}

	return s.reanalyze(rec, &startS, endS)
}

// ResetCrop clears the crop bounds and re-analyzes the full trace. Analysis
// after a reset is identical to analysis on a never-cropped record.
func (s *Service) ResetCrop(id string) (*store.TestRecord, error) {
	unlock := s.lock(id)
	defer unlock()

	rec, err := s.store.GetTest(id)
	if err != nil {
		return nil, err
	}
	return s.reanalyze(rec, nil, nil)
}

// reanalyze runs the pipeline over the given window and, on success only,
// replaces the stored bounds and result. A failed analysis leaves the record
// exactly as it was.
func (s *Service) reanalyze(rec *store.TestRecord, startS, endS *float64) (*store.TestRecord, error) {
	res, err := analyze(rec.Readings, startS, endS, s.Params())
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateAnalysis(rec.ID, startS, endS, res); err != nil {
		return nil, err
	}

	rec.CropStart = startS
	rec.CropEnd = endS
	rec.Analysis = res
	rec.PeakThrust = res.PeakThrustN
	rec.AvgThrust = res.AvgThrustN
	rec.TotalImpulse = res.TotalImpulseNS
	rec.MotorClass = res.MotorClass
	return rec, nil
}

// lock serializes analysis per record ID and returns the unlock func.
func (s *Service) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
