package analysis

import "gonum.org/v1/gonum/mat"

// savitzkyGolay applies a Savitzky-Golay smoothing filter: each output sample
// is the value at the center of a least-squares polynomial fitted to the
// surrounding window. The window shrinks to fit near the edges, which is
// equivalent to refitting the polynomial on the truncated window.
//
// The window is forced odd and capped at the series length. A window too
// small for the polynomial order returns an unsmoothed copy, matching the
// degenerate behavior of the original analyzer.
func savitzkyGolay(y []float64, window, degree int) []float64 {
	n := len(y)
	out := make([]float64, n)

	if window > n {
		window = n
	}
	if window%2 == 0 {
		window--
	}
	if window < degree+2 || window < 3 {
		copy(out, y)
		return out
	}

	half := window / 2
	central := savgolWeights(-half, half, degree)

	for i := range y {
		lo, hi := i-half, i+half
		if lo < 0 {
			lo = 0
		}
		if hi > n-1 {
			hi = n - 1
		}

		weights := central
		if hi-lo != 2*half {
			weights = savgolWeights(lo-i, hi-i, degree)
		}

		var s float64
		for j := lo; j <= hi; j++ {
			s += weights[j-lo] * y[j]
		}
		out[i] = s
	}
	return out
}

// savgolWeights returns the convolution weights that evaluate, at offset 0,
// a degree-d least-squares polynomial fitted to samples at offsets lo..hi.
//
// With A the Vandermonde matrix of the offsets, the fitted value at 0 is
// a(0)ᵀ (AᵀA)⁻¹ Aᵀ y, so the weight vector is A (AᵀA)⁻¹ a(0).
func savgolWeights(lo, hi, degree int) []float64 {
	m := hi - lo + 1
	if degree > m-1 {
		degree = m - 1
	}
	cols := degree + 1

	a := mat.NewDense(m, cols, nil)
	for r := 0; r < m; r++ {
		x := float64(lo + r)
		p := 1.0
		for c := 0; c < cols; c++ {
			a.Set(r, c, p)
			p *= x
		}
	}

	var ata mat.Dense
	ata.Mul(a.T(), a)

	// a(0) = [1, 0, 0, ...]: evaluating the polynomial at the target offset.
	e0 := mat.NewVecDense(cols, nil)
	e0.SetVec(0, 1)

	var z mat.VecDense
	if err := z.SolveVec(&ata, e0); err != nil {
		// Singular normal equations (degenerate window): identity weights.
		w := make([]float64, m)
		w[-lo] = 1
		return w
	}

	w := mat.NewVecDense(m, nil)
	w.MulVec(a, &z)
	return w.RawVector().Data
}
