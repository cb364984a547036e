package analysis

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/stat"
)

func TestSavitzkyGolay_PreservesPolynomials(t *testing.T) {
	// A degree-3 fit reproduces any polynomial up to degree 3 exactly,
	// including at the shrunk edge windows.
	polys := []struct {
		name string
		f    func(x float64) float64
	}{
		{"constant", func(x float64) float64 { return 4.2 }},
		{"linear", func(x float64) float64 { return 2*x - 1 }},
		{"cubic", func(x float64) float64 { return 0.1*x*x*x - x*x + 3 }},
	}

	for _, p := range polys {
		t.Run(p.name, func(t *testing.T) {
			y := make([]float64, 50)
			for i := range y {
				y[i] = p.f(float64(i) * 0.1)
			}
			got := savitzkyGolay(y, 11, 3)
			for i := range y {
				if !almostEqual(got[i], y[i], 1e-9) {
					t.Fatalf("sample %d: got %.12f, want %.12f", i, got[i], y[i])
				}
			}
		})
	}
}

func TestSavitzkyGolay_ReducesNoise(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	y := make([]float64, 400)
	for i := range y {
		y[i] = rng.NormFloat64()
	}

	smoothed := savitzkyGolay(y, 11, 3)

	rawStd := stat.PopStdDev(y, nil)
	smoothStd := stat.PopStdDev(smoothed, nil)
	if smoothStd >= 0.8*rawStd {
		t.Errorf("smoothed std %.3f vs raw %.3f: expected noise attenuation", smoothStd, rawStd)
	}
}

func TestSavitzkyGolay_Length(t *testing.T) {
	for _, n := range []int{1, 2, 5, 11, 100} {
		y := make([]float64, n)
		if got := savitzkyGolay(y, 11, 3); len(got) != n {
			t.Errorf("len(savitzkyGolay(%d samples)) = %d", n, len(got))
		}
	}
}

func TestSavitzkyGolay_DegenerateWindow(t *testing.T) {
	// Too few samples for the polynomial order: the series passes through
	// untouched.
	y := []float64{1, 5, 2, 8}
	got := savitzkyGolay(y, 11, 3)
	for i := range y {
		if got[i] != y[i] {
			t.Fatalf("sample %d changed: got %g, want %g", i, got[i], y[i])
		}
	}
}

func TestSavitzkyGolay_EvenWindowForcedOdd(t *testing.T) {
	y := make([]float64, 40)
	for i := range y {
		y[i] = float64(i)
	}
	// Window 10 behaves as 9; a linear series survives either way.
	got := savitzkyGolay(y, 10, 3)
	for i := range y {
		if !almostEqual(got[i], y[i], 1e-9) {
			t.Fatalf("sample %d: got %.12f, want %.12f", i, got[i], y[i])
		}
	}
}

func TestSavitzkyGolay_StepOvershootBounded(t *testing.T) {
	// Smoothing a step rings near the edge but must stay within ~15% of the
	// step height and settle back on the plateau.
	y := make([]float64, 100)
	for i := 50; i < 100; i++ {
		y[i] = 10
	}
	got := savitzkyGolay(y, 11, 3)

	max := got[argmax(got)]
	if max > 11.5 {
		t.Errorf("step overshoot %.3f exceeds bound", max)
	}
	if math.Abs(got[80]-10) > 1e-6 {
		t.Errorf("plateau sample = %.6f, want 10", got[80])
	}
}
