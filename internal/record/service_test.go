package record

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/thrustbench/thrustbench/internal/analysis"
	"github.com/thrustbench/thrustbench/internal/session"
	"github.com/thrustbench/thrustbench/internal/store"
	"github.com/thrustbench/thrustbench/internal/telemetry"
)

type nopSink struct{}

func (nopSink) SendCommand(telemetry.Command) error { return nil }

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "bench.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	return NewService(st, analysis.DefaultParams()), st
}

// recordTrace drives a full session through the machine so the service sees
// sealed sessions exactly as it does in production.
func recordTrace(t *testing.T, svc *Service, forces []float64) *store.TestRecord {
	t.Helper()
	m := session.New(nopSink{}, svc, nil)
	if _, err := m.Start("bench"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i, f := range forces {
		m.Ingest(telemetry.Reading{
			Timestamp: int64(math.Round(float64(i) * 12.5)),
			Force:     f,
		})
	}
	rec, err := m.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	return rec
}

// burnTrace is 0.5s idle, 50N for 4s, 0.5s idle at 80Hz: an H-class burn.
func burnTrace() []float64 {
	f := make([]float64, 400)
	for i := 40; i < 360; i++ {
		f[i] = 50
	}
	return f
}

func TestService_Finalize(t *testing.T) {
	svc, st := newTestService(t)

	rec := recordTrace(t, svc, burnTrace())

	if rec.Analysis == nil {
		t.Fatal("finalized record has no analysis")
	}
	if rec.MotorClass != "H" {
		t.Errorf("MotorClass = %q, want H", rec.MotorClass)
	}
	if rec.TotalImpulse < 195 || rec.TotalImpulse > 205 {
		t.Errorf("TotalImpulse = %.2f, want ~200", rec.TotalImpulse)
	}
	if rec.DurationMS < 4900 || rec.DurationMS > 5100 {
		t.Errorf("DurationMS = %d, want ~5000", rec.DurationMS)
	}

	// Persisted, not just returned.
	got, err := st.GetTest(rec.ID)
	if err != nil {
		t.Fatalf("GetTest: %v", err)
	}
	if got.MotorClass != "H" || len(got.Readings) != 400 {
		t.Errorf("persisted record differs: class=%q readings=%d", got.MotorClass, len(got.Readings))
	}
}

func TestService_FinalizePersistsOnAnalysisFailure(t *testing.T) {
	svc, st := newTestService(t)

	// All-zero trace: no ignition. The trace must survive anyway.
	rec := recordTrace(t, svc, make([]float64, 100))

	if rec.Analysis != nil {
		t.Errorf("analysis = %+v, want nil for a no-ignition trace", rec.Analysis)
	}
	got, err := st.GetTest(rec.ID)
	if err != nil {
		t.Fatalf("GetTest: %v", err)
	}
	if len(got.Readings) != 100 {
		t.Errorf("persisted %d readings, want 100", len(got.Readings))
	}
	if got.Analysis != nil {
		t.Error("persisted analysis should be nil")
	}
}

func TestService_Crop(t *testing.T) {
	svc, _ := newTestService(t)
	rec := recordTrace(t, svc, burnTrace())

	end := 3.0
	cropped, err := svc.Crop(rec.ID, 1.0, &end)
	if err != nil {
		t.Fatalf("Crop: %v", err)
	}

	// 50N over a 2s window: one class down from the full burn.
	if cropped.MotorClass != "G" {
		t.Errorf("cropped MotorClass = %q, want G", cropped.MotorClass)
	}
	if cropped.CropStart == nil || *cropped.CropStart != 1.0 {
		t.Errorf("CropStart = %v, want 1.0", cropped.CropStart)
	}
	if len(cropped.Readings) != 400 {
		t.Errorf("cropping must not rewrite the trace: %d readings", len(cropped.Readings))
	}
}

func TestService_CropValidation(t *testing.T) {
	svc, _ := newTestService(t)
	rec := recordTrace(t, svc, burnTrace())
	duration := float64(rec.DurationMS) / 1000.0

	end := 2.0
	past := duration + 1
	tests := []struct {
		name  string
		start float64
		end   *float64
	}{
		{"negative start", -0.5, &end},
		{"start past end of trace", duration, nil},
		{"end before start", 3.0, &end},
		{"end past duration", 1.0, &past},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Crop(rec.ID, tc.start, tc.end); !errors.Is(err, ErrInvalidCropRange) {
				t.Fatalf("Crop err = %v, want ErrInvalidCropRange", err)
			}
		})
	}

	if _, err := svc.Crop("missing", 1.0, nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Crop on missing id err = %v, want ErrNotFound", err)
	}
}

func TestService_ResetCropRestoresFullAnalysis(t *testing.T) {
	svc, _ := newTestService(t)
	rec := recordTrace(t, svc, burnTrace())
	original := *rec.Analysis

	end := 3.0
	if _, err := svc.Crop(rec.ID, 1.0, &end); err != nil {
		t.Fatalf("Crop: %v", err)
	}

	restored, err := svc.ResetCrop(rec.ID)
	if err != nil {
		t.Fatalf("ResetCrop: %v", err)
	}
	if restored.CropStart != nil || restored.CropEnd != nil {
		t.Errorf("crop bounds = %v/%v, want nil after reset", restored.CropStart, restored.CropEnd)
	}
	// The pipeline is deterministic: reset equals never-cropped.
	if restored.Analysis.TotalImpulseNS != original.TotalImpulseNS ||
		restored.Analysis.MotorClass != original.MotorClass ||
		restored.Analysis.BurnTimeS != original.BurnTimeS {
		t.Errorf("reset analysis %+v differs from original %+v", restored.Analysis, original)
	}
}

func TestService_FailedReanalysisLeavesRecordIntact(t *testing.T) {
	svc, st := newTestService(t)
	rec := recordTrace(t, svc, burnTrace())

	// Crop to the idle head: no burn in the window.
	end := 0.4
	_, err := svc.Crop(rec.ID, 0.0, &end)
	if !errors.Is(err, analysis.ErrNoBurnDetected) {
		t.Fatalf("Crop err = %v, want ErrNoBurnDetected", err)
	}

	got, err := st.GetTest(rec.ID)
	if err != nil {
		t.Fatalf("GetTest: %v", err)
	}
	if got.CropStart != nil || got.CropEnd != nil {
		t.Errorf("failed crop stored bounds %v/%v, want untouched nil", got.CropStart, got.CropEnd)
	}
	if got.Analysis == nil || got.Analysis.MotorClass != rec.Analysis.MotorClass {
		t.Errorf("failed crop disturbed the stored analysis: %+v", got.Analysis)
	}
}

func TestService_SetParams(t *testing.T) {
	svc, _ := newTestService(t)

	p := svc.Params()
	p.BurnThreshold = 0.2
	svc.SetParams(p)

	if got := svc.Params().BurnThreshold; got != 0.2 {
		t.Errorf("BurnThreshold = %g, want 0.2", got)
	}
}
