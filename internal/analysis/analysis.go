package analysis

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/thrustbench/thrustbench/internal/telemetry"
)

var (
	// ErrInsufficientData means fewer than minSamples readings remain in the
	// analysis window.
	ErrInsufficientData = errors.New("insufficient data in analysis window")

	// ErrNoBurnDetected means no sample rose above the burn threshold — a
	// no-ignition or all-noise trace.
	ErrNoBurnDetected = errors.New("no burn detected")
)

const (
	// minSamples is the smallest window the pipeline will analyze.
	minSamples = 3

	// lowSampleCount draws an advisory warning below this many samples.
	lowSampleCount = 10

	// baselineLimitFraction caps the zero-offset estimate. Residual tare
	// drift is small by definition; an apparent baseline above this fraction
	// of the window's peak force means the burn was already underway, and
	// subtracting it would bias every downstream metric.
	baselineLimitFraction = 0.1

	// minPeakForce is the absolute ignition floor in newtons.
	minPeakForce = 0.5

	// noiseFloorSigma scales the baseline standard deviation into a relative
	// ignition floor.
	noiseFloorSigma = 5.0

	// profileTolerance is the relative half-to-half mean difference below
	// which a burn counts as neutral.
	profileTolerance = 0.05
)

// Params are the tunable inputs of the analysis pipeline.
type Params struct {
	// BurnThreshold is the fraction of peak thrust defining the burn window.
	BurnThreshold float64

	// SmoothingWindow and SmoothingOrder configure the Savitzky-Golay filter.
	SmoothingWindow int
	SmoothingOrder  int

	// BaselineDuration is the length, in seconds, of the window head
	// averaged for the zero-offset estimate.
	BaselineDuration float64

	// ExpectedSampleRate (Hz) drives sample-gap detection.
	ExpectedSampleRate float64

	// MinTestDuration (s) is the shortest window that does not draw a
	// short-window warning.
	MinTestDuration float64
}

// DefaultParams returns the stock pipeline tuning.
func DefaultParams() Params {
	return Params{
		BurnThreshold:      0.05,
		SmoothingWindow:    11,
		SmoothingOrder:     3,
		BaselineDuration:   0.5,
		ExpectedSampleRate: 80,
		MinTestDuration:    0.25,
	}
}

// Result is the full analysis report for one (possibly cropped) trace.
// It is replaced wholesale on every re-analysis, never patched.
type Result struct {
	PeakThrustN        float64  `json:"peak_thrust_n"`
	AvgThrustN         float64  `json:"avg_thrust_n"`
	TotalImpulseNS     float64  `json:"total_impulse_ns"`
	BurnTimeS          float64  `json:"burn_time_s"`
	MotorClass         string   `json:"motor_class"`
	TimeToPeakS        float64  `json:"time_to_peak_s"`
	TimeTo90PctS       float64  `json:"time_to_90pct_s"`
	RiseRateNS         float64  `json:"rise_rate_ns"`
	DecayRateNS        float64  `json:"decay_rate_ns"`
	ThrustStabilityStd float64  `json:"thrust_stability_std"`
	ImpulseEfficiency  float64  `json:"impulse_efficiency"`
	BurnProfile        string   `json:"burn_profile"`
	CATODetected       bool     `json:"cato_detected"`
	Warnings           []string `json:"warnings"`
}

// Analyze runs the full pipeline over readings, optionally restricted to the
// half-open time range [cropStart, cropEnd) in seconds relative to the first
// reading. It is pure and deterministic: same inputs, same Result.
//
// Windowing and burn detection can fail (ErrInsufficientData,
// ErrNoBurnDetected); everything after is arithmetic on validated data and
// degrades to sentinel values instead of failing.
func Analyze(readings []telemetry.Reading, cropStart, cropEnd *float64, p Params) (*Result, error) {
	t, force, err := window(readings, cropStart, cropEnd)
	if err != nil {
		return nil, err
	}

	var warnings []string
	if n := countDisorder(t); n > 0 {
		warnings = append(warnings, fmt.Sprintf("timestamps out of order at %d points", n))
	}

	baseline, baselineStd := estimateBaseline(t, force, p.BaselineDuration)
	for i := range force {
		force[i] -= baseline
	}

	smoothed := savitzkyGolay(force, p.SmoothingWindow, p.SmoothingOrder)

	burnStart, burnEnd, peak, err := detectBurn(smoothed, baselineStd, p.BurnThreshold)
	if err != nil {
		return nil, err
	}
	peakIdx := argmax(smoothed)

	res := &Result{
		PeakThrustN: peak,
		BurnTimeS:   t[burnEnd] - t[burnStart],
		TimeToPeakS: t[peakIdx],
	}

	res.AvgThrustN = stat.Mean(force[burnStart:burnEnd+1], nil)

	// Impulse integrates the entire window, not just the burn: residual
	// thrust outside the detected boundary still contributes.
	res.TotalImpulseNS = integrate.Trapezoidal(t, force)
	res.MotorClass = Classify(res.TotalImpulseNS)

	target := 0.9 * peak
	for i, v := range smoothed {
		if v >= target {
			res.TimeTo90PctS = t[i]
			break
		}
	}

	res.RiseRateNS = slope(t, smoothed, burnStart, peakIdx)
	res.DecayRateNS = slope(t, smoothed, peakIdx, burnEnd)
	res.ThrustStabilityStd = plateauStd(t, force, burnStart, burnEnd)
	res.ImpulseEfficiency = efficiency(res.TotalImpulseNS, peak, res.BurnTimeS)
	res.BurnProfile = burnProfile(t, smoothed, burnStart, burnEnd)
	res.CATODetected = detectCATO(t, force, smoothed, burnStart, burnEnd, peak)

	warnings = append(warnings, qualityWarnings(t, force, baselineStd, p)...)
	if res.CATODetected {
		warnings = append(warnings, "possible CATO (catastrophic failure) detected")
	}
	res.Warnings = warnings

	return res, nil
}

// window restricts readings to [cropStart, cropEnd) and returns times in
// seconds re-zeroed to the window's first sample, plus a mutable copy of the
// force values.
func window(readings []telemetry.Reading, cropStart, cropEnd *float64) ([]float64, []float64, error) {
	if len(readings) == 0 {
		return nil, nil, ErrInsufficientData
	}

	start := 0.0
	if cropStart != nil {
		start = *cropStart
	}
	end := math.Inf(1)
	if cropEnd != nil {
		end = *cropEnd
	}

	t0 := readings[0].Timestamp
	var t, force []float64
	for _, r := range readings {
		rel := float64(r.Timestamp-t0) / 1000.0
		if rel < start || rel >= end {
			continue
		}
		t = append(t, rel)
		force = append(force, r.Force)
	}
	if len(t) < minSamples {
		return nil, nil, ErrInsufficientData
	}

	w0 := t[0]
	for i := range t {
		t[i] -= w0
	}
	return t, force, nil
}

// estimateBaseline averages the window head to estimate the residual tare
// offset, and reports the head's standard deviation as the noise estimate.
// A window shorter than the baseline duration falls back to the first sample
// alone; an implausibly large estimate (burn already underway) is discarded.
func estimateBaseline(t, force []float64, duration float64) (baseline, std float64) {
	n := len(force)
	if t[n-1] < duration {
		return force[0], 0
	}

	head := 0
	for head < n && t[head] < duration {
		head++
	}
	if head < 2 {
		return force[0], 0
	}

	baseline = stat.Mean(force[:head], nil)
	std = stat.PopStdDev(force[:head], nil)

	if math.Abs(baseline) > baselineLimitFraction*maxAbs(force) {
		return 0, std
	}
	return baseline, std
}

// detectBurn locates the burn window on the smoothed series: the first and
// last samples above the burn threshold. The peak must clear both an absolute
// ignition floor and a multiple of the baseline noise, otherwise the trace is
// treated as no-ignition.
func detectBurn(smoothed []float64, baselineStd, thresholdFraction float64) (start, end int, peak float64, err error) {
	peak = smoothed[argmax(smoothed)]

	floor := math.Max(minPeakForce, noiseFloorSigma*baselineStd)
	if peak <= 0 || peak < floor {
		return 0, 0, 0, ErrNoBurnDetected
	}

	threshold := thresholdFraction * peak
	start = -1
	for i, v := range smoothed {
		if v > threshold {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, 0, 0, ErrNoBurnDetected
	}
	for i := len(smoothed) - 1; i >= start; i-- {
		if smoothed[i] > threshold {
			end = i
			break
		}
	}
	return start, end, peak, nil
}

// slope is the secant slope of y between samples i and j, 0 when degenerate.
func slope(t, y []float64, i, j int) float64 {
	if j <= i {
		return 0
	}
	dt := t[j] - t[i]
	if dt == 0 {
		return 0
	}
	return (y[j] - y[i]) / dt
}

// plateauStd is the standard deviation of raw force during the steady part
// of the burn: samples between 25% and 75% of burn duration.
func plateauStd(t, force []float64, burnStart, burnEnd int) float64 {
	burnT0 := t[burnStart]
	duration := t[burnEnd] - burnT0
	if duration <= 0 {
		return 0
	}
	lo := burnT0 + 0.25*duration
	hi := burnT0 + 0.75*duration

	var plateau []float64
	for i := burnStart; i <= burnEnd; i++ {
		if t[i] >= lo && t[i] <= hi {
			plateau = append(plateau, force[i])
		}
	}
	if len(plateau) < 2 {
		return 0
	}
	return stat.PopStdDev(plateau, nil)
}

// efficiency is the ratio of actual impulse to a rectangular pulse of the
// same peak and burn time, clipped to [0, 1].
func efficiency(impulse, peak, burnTime float64) float64 {
	if peak <= 0 || burnTime <= 0 {
		return 0
	}
	e := impulse / (peak * burnTime)
	return math.Min(1, math.Max(0, e))
}

// burnProfile compares mean thrust in the two halves of the burn (split by
// time): progressive when the second half is hotter, regressive when cooler,
// neutral within tolerance.
func burnProfile(t, smoothed []float64, burnStart, burnEnd int) string {
	mid := (t[burnStart] + t[burnEnd]) / 2

	var first, second []float64
	for i := burnStart; i <= burnEnd; i++ {
		if t[i] < mid {
			first = append(first, smoothed[i])
		} else {
			second = append(second, smoothed[i])
		}
	}
	if len(first) == 0 || len(second) == 0 {
		return "neutral"
	}

	m1 := stat.Mean(first, nil)
	m2 := stat.Mean(second, nil)
	tol := profileTolerance * math.Max(math.Abs((m1+m2)/2), 1e-9)

	switch {
	case m2-m1 > tol:
		return "progressive"
	case m1-m2 > tol:
		return "regressive"
	default:
		return "neutral"
	}
}

// qualityWarnings collects advisory data-quality findings: sample gaps,
// negative excursions beyond baseline noise, and too-short windows.
func qualityWarnings(t, force []float64, baselineStd float64, p Params) []string {
	var out []string

	if p.ExpectedSampleRate > 0 {
		limit := 2.0 / p.ExpectedSampleRate
		gaps := 0
		for i := 1; i < len(t); i++ {
			if t[i]-t[i-1] > limit {
				gaps++
			}
		}
		if gaps > 0 {
			out = append(out, fmt.Sprintf("%d sample gaps exceed 2x the expected interval", gaps))
		}
	}

	noise := math.Max(noiseFloorSigma*baselineStd, minPeakForce)
	for _, v := range force {
		if v < -noise {
			out = append(out, "negative force excursions beyond baseline noise")
			break
		}
	}

	if t[len(t)-1] < p.MinTestDuration {
		out = append(out, fmt.Sprintf("analysis window shorter than %.2fs", p.MinTestDuration))
	}
	if len(t) < lowSampleCount {
		out = append(out, "insufficient data points for reliable analysis")
	}

	return out
}

// countDisorder counts backward steps in the timestamp sequence.
func countDisorder(t []float64) int {
	n := 0
	for i := 1; i < len(t); i++ {
		if t[i] < t[i-1] {
			n++
		}
	}
	return n
}

func argmax(xs []float64) int {
	best := 0
	for i, v := range xs {
		if v > xs[best] {
			best = i
		}
	}
	return best
}

func maxAbs(xs []float64) float64 {
	m := 0.0
	for _, v := range xs {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}
