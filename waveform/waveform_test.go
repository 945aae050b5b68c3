package waveform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateSineWave(t *testing.T) {
	for _, n := range []int{1, 2, 7, 200} {
		w := GenerateSineWave(n, 2.5, math.Pi)
		assert.Len(t, w, n)
		for i, v := range w {
			assert.InDelta(t, 2.5*math.Sin(math.Pi+2*math.Pi*float64(i)/float64(n)), v, 1e-12)
		}
	}

	w := GenerateSineWave(4, 1, 0)
	assert.InDeltaSlice(t, []float64{0, 1, 0, -1}, w, 1e-12)

	assert.Empty(t, GenerateSineWave(0, 1, 0))
}

func TestBuildFastAxisWaveform(t *testing.T) {
	w := BuildFastAxisWaveform([]float64{0, 1, 2})
	assert.Equal(t, []float64{0, 0, 1, 2, 2, 1, 0}, w)

	w = BuildFastAxisWaveform([]float64{0.3})
	assert.Equal(t, []float64{0.3, 0.3, 0.3}, w)

	for n := 1; n < 10; n++ {
		v := make([]float64, n)
		for i := range v {
			v[i] = float64(i) * 0.1
		}
		w := BuildFastAxisWaveform(v)
		assert.Len(t, w, 2*n+1)
		assert.Equal(t, w[0], w[1])
	}

	assert.Nil(t, BuildFastAxisWaveform(nil))
}
