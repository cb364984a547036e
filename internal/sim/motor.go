package sim

import (
	"math"
	"math/rand"

	"github.com/thrustbench/thrustbench/internal/telemetry"
)

// Burn profile shapes.
const (
	ProfileProgressive = "progressive"
	ProfileNeutral     = "neutral"
	ProfileRegressive  = "regressive"
)

// Motor generates synthetic thrust curves for hardware-free testing.
// Curves have a quadratic startup transient over the first 10% of the burn,
// a profile-shaped main phase, a quadratic tail-off over the last 10%, and
// gaussian noise at 2% of peak.
type Motor struct {
	// PeakThrust in newtons.
	PeakThrust float64

	// BurnTime in seconds.
	BurnTime float64

	// Profile is one of ProfileProgressive, ProfileNeutral,
	// ProfileRegressive; anything else falls back to neutral.
	Profile string

	// NoiseFraction scales gaussian noise relative to peak (default 0.02
	// when negative; set 0 for noise-free curves in tests).
	NoiseFraction float64

	// Rand is the noise source. Nil means a fixed-seed source, keeping
	// generated curves reproducible.
	Rand *rand.Rand
}

func (m *Motor) rng() *rand.Rand {
	if m.Rand == nil {
		m.Rand = rand.New(rand.NewSource(1))
	}
	return m.Rand
}

func (m *Motor) noise() float64 {
	if m.NoiseFraction < 0 {
		return 0.02
	}
	return m.NoiseFraction
}

// Curve returns timestamped readings for one complete burn at the given
// sample rate, with 0.5s of idle noise before ignition and after burnout so
// the baseline estimator has a quiet head to work with.
func (m *Motor) Curve(sampleRate float64) []telemetry.Reading {
	const idle = 0.5
	dt := 1.0 / sampleRate
	total := idle + m.BurnTime + idle

	rng := m.rng()
	sigma := m.noise() * m.PeakThrust

	var out []telemetry.Reading
	for t := 0.0; t < total; t += dt {
		f := m.thrustAt(t - idle)
		f += rng.NormFloat64() * sigma
		if f < 0 {
			f = 0
		}
		out = append(out, reading(t, f))
	}
	return out
}

// CATOCurve returns a failure trace: a normal ramp-up that ends in an
// instantaneous loss of thrust at 30% of the expected burn, followed by a
// dead tail.
func (m *Motor) CATOCurve(sampleRate float64) []telemetry.Reading {
	const idle = 0.5
	dt := 1.0 / sampleRate
	failAt := 0.3 * m.BurnTime

	rng := m.rng()
	sigma := m.noise() * m.PeakThrust

	var out []telemetry.Reading
	for t := 0.0; t < idle+failAt; t += dt {
		var f float64
		if t >= idle {
			f = m.PeakThrust * (t - idle) / failAt
			f += rng.NormFloat64() * sigma
		} else {
			f = math.Abs(rng.NormFloat64() * sigma)
		}
		if f < 0 {
			f = 0
		}
		out = append(out, reading(t, f))
	}
	// Dead tail after the casing lets go.
	for t := idle + failAt; t < idle+failAt+1.0; t += dt {
		out = append(out, reading(t, 0))
	}
	return out
}

// thrustAt evaluates the noiseless thrust at time t since ignition.
// Negative t or t past the burn returns 0.
func (m *Motor) thrustAt(t float64) float64 {
	if t < 0 || t >= m.BurnTime {
		return 0
	}

	// Startup transient over the first 10% of the burn.
	startup := 1.0
	if startupTime := 0.1 * m.BurnTime; t < startupTime {
		r := t / startupTime
		startup = r * r
	}

	// Profile-shaped main phase.
	frac := t / m.BurnTime
	var shape float64
	switch m.Profile {
	case ProfileRegressive:
		shape = 1.0 - 0.4*frac
	case ProfileProgressive:
		shape = 0.6 + 0.4*frac
	default:
		shape = 1.0 - 0.1*math.Sin(math.Pi*frac)
	}

	// Tail-off over the last 10% of the burn.
	tailoff := 1.0
	if tailStart := 0.9 * m.BurnTime; t > tailStart {
		r := (t - tailStart) / (m.BurnTime - tailStart)
		tailoff = math.Max(0, 1-r*r)
	}

	return m.PeakThrust * startup * shape * tailoff
}

func reading(t, force float64) telemetry.Reading {
	return telemetry.Reading{
		Timestamp: int64(t * 1000),
		Force:     math.Round(force*100) / 100,
		Raw:       int(force*1000) + 8388608,
	}
}
