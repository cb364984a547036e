// Package analysis converts a raw force-vs-time trace into a structured
// performance report.
//
// Analyze is a pure function: windowing (optional crop), baseline removal,
// Savitzky-Golay smoothing, burn-window detection by peak-relative threshold,
// metric computation (impulse, rates, stability, efficiency, burn profile),
// motor classification and anomaly detection. Smoothed values drive the
// derived metrics; raw values feed the impulse integration so smoothing never
// biases the classification.
//
// Only windowing and burn detection fail (ErrInsufficientData,
// ErrNoBurnDetected). Everything downstream degrades to sentinel values on
// numerical edge cases. Advisory findings are reported as warnings on the
// Result, never as errors.
package analysis
