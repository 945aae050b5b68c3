// Package filter smooths approach curves and derives the slope trace used
// for contact detection.
package filter

import (
	vecmath "github.com/cwbudde/algo-vecmath"
)

// Smooth returns the centered moving average of series.
//
// The result has the same length as series. Boundary samples are averaged
// against the zero padding of a linear convolution, so they fall off toward
// the ends instead of being dropped. A window larger than series is clamped
// to len(series); a window of 1 or less returns a copy.
func Smooth(series []float64, window int) []float64 {
	n := len(series)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if window > n {
		window = n
	}
	if window <= 1 {
		copy(out, series)
		return out
	}

	kernel := make([]float64, window)
	for i := range kernel {
		kernel[i] = 1 / float64(window)
	}

	full := make([]float64, n+window-1)
	scaled := make([]float64, window)
	for i, x := range series {
		vecmath.ScaleBlock(scaled, kernel, x)
		vecmath.AddBlockInPlace(full[i:i+window], scaled)
	}

	start := (window - 1) / 2
	copy(out, full[start:start+n])
	return out
}

// Diff returns the first difference of series, one sample shorter.
func Diff(series []float64) []float64 {
	if len(series) < 2 {
		return []float64{}
	}
	d := make([]float64, len(series)-1)
	for i := range d {
		d[i] = series[i+1] - series[i]
	}
	return d
}

// Derivative smooths c with the inner window, differentiates, and smooths
// the difference with the outer window.
//
// The first and last outer/2 samples are zeroed since the outer smoothing
// leaves edge artifacts there that look like contact transients.
func Derivative(c []float64, inner, outer int) []float64 {
	d := Smooth(Diff(Smooth(c, inner)), outer)

	edge := outer / 2
	if edge > len(d) {
		edge = len(d)
	}
	for i := 0; i < edge; i++ {
		d[i] = 0
		d[len(d)-1-i] = 0
	}
	return d
}
