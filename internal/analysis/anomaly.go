package analysis

import "math"

const (
	// catoDropFraction is the single-interval raw force drop, as a fraction
	// of peak, that qualifies as a structural failure.
	catoDropFraction = 0.5

	// catoSlopeWindow is how far back (seconds) the pre-drop thrust trend is
	// measured.
	catoSlopeWindow = 0.5

	// catoRiseFraction: the pre-drop trend must exceed this fraction of peak
	// per second for the drop to count. A hard cut from a flat plateau is a
	// sharp burnout, not a CATO.
	catoRiseFraction = 0.05

	// residualFraction is the post-burn mean force, as a fraction of peak,
	// above which the trace failed to return to baseline.
	residualFraction = 0.1

	// residualMinSamples is the minimum post-burn tail length checked.
	residualMinSamples = 3
)

// detectCATO reports whether the trace shows a catastrophic failure:
// an abrupt raw force drop of at least half the peak within one sample
// interval while thrust was still building, or a post-burn residual force
// that never returns near baseline.
func detectCATO(t, force, smoothed []float64, burnStart, burnEnd int, peak float64) bool {
	if peak <= 0 {
		return false
	}

	for i := burnStart; i < burnEnd; i++ {
		drop := force[i] - force[i+1]
		if drop < catoDropFraction*peak {
			continue
		}
		if preDropSlope(t, force, i) > catoRiseFraction*peak {
			return true
		}
	}

	if len(t)-1-burnEnd >= residualMinSamples {
		var sum float64
		for i := burnEnd + 1; i < len(force); i++ {
			sum += force[i]
		}
		if sum/float64(len(force)-burnEnd-1) > residualFraction*peak {
			return true
		}
	}

	return false
}

// preDropSlope is the secant slope of the raw force over the catoSlopeWindow
// seconds preceding sample i.
func preDropSlope(t, force []float64, i int) float64 {
	j := i
	for j > 0 && t[i]-t[j-1] <= catoSlopeWindow {
		j--
	}
	dt := t[i] - t[j]
	if dt <= 0 {
		return math.Inf(1) // drop at the very first samples: no trend to clear it
	}
	return (force[i] - force[j]) / dt
}
