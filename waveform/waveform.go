// Package waveform builds the output waveforms driven during a scan.
package waveform

import "math"

// GenerateSineWave returns n samples of amplitude*sin(phase + 2*pi*i/n).
//
// It is used for the steady z perturbation, one period per approach curve.
func GenerateSineWave(n int, amplitude, phase float64) []float64 {
	if n <= 0 {
		return nil
	}
	wave := make([]float64, n)
	for i := range wave {
		wave[i] = amplitude * math.Sin(phase+2*math.Pi*float64(i)/float64(n))
	}
	return wave
}

// BuildFastAxisWaveform creates the fast-axis output from a position vector.
//
// The result is one outbound pass followed by the reversed return pass, with
// the first position repeated at the front. That leading sample is the
// positioning cycle where the slow axis moves and nothing is recorded. The
// doubled length keeps this valid for a single position too.
func BuildFastAxisWaveform(v []float64) []float64 {
	if len(v) == 0 {
		return nil
	}
	w := make([]float64, 0, 2*len(v)+1)
	w = append(w, v[0])
	w = append(w, v...)
	for i := len(v) - 1; i >= 0; i-- {
		w = append(w, v[i])
	}
	return w
}
