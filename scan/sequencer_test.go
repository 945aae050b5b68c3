package scan

import (
	"testing"

	"github.com/mastercactapus/mimscan/feedback"
	"github.com/mastercactapus/mimscan/waveform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSequencer(t *testing.T, fast, slow []float64, repeat bool) *Sequencer {
	s, err := NewSequencer(waveform.BuildFastAxisWaveform(fast), slow, repeat, 0.1)
	require.NoError(t, err)
	return s
}

func TestSequencer_SingleLine(t *testing.T) {
	s := newTestSequencer(t, []float64{0, 1, 2}, []float64{0.5}, false)
	assert.Equal(t, 7, s.Period())

	c := s.Step()
	assert.Equal(t, AdvancingSlowAxis, c.Phase)
	assert.False(t, c.Acquire())
	assert.Equal(t, 0.5, c.Y)
	assert.Equal(t, 0, c.Counter)

	wantX := []float64{0, 1, 2, 2, 1, 0}
	wantDir := []Direction{Outbound, Outbound, Outbound, Return, Return, Return}
	for i := range wantX {
		c = s.Step()
		assert.Equal(t, Sweeping, c.Phase)
		assert.True(t, c.Acquire())
		assert.Equal(t, i+1, c.Counter)
		assert.Equal(t, wantX[i], c.X, "cycle %d", i+1)
		assert.Equal(t, wantDir[i], c.Direction, "cycle %d", i+1)
		assert.Equal(t, 0.5, c.Y)
	}

	c = s.Step()
	assert.Equal(t, Completed, c.Phase)
	assert.Equal(t, 7, c.Counter)
	assert.Equal(t, 8, s.State().Counter)

	// terminal phases are sticky and stop counting
	c = s.Step()
	assert.Equal(t, Completed, c.Phase)
	assert.Equal(t, 8, s.State().Counter)
}

func TestSequencer_CompletesExactly(t *testing.T) {
	for f := 1; f <= 4; f++ {
		for lines := 1; lines <= 4; lines++ {
			fast := make([]float64, f)
			slow := make([]float64, lines)
			for i := range slow {
				slow[i] = float64(i)
			}
			s := newTestSequencer(t, fast, slow, false)
			period := s.Period()

			for n := 0; ; n++ {
				c := s.Step()
				if n/period >= lines && n%period == 0 {
					assert.Equal(t, Completed, c.Phase, "f=%d s=%d n=%d", f, lines, n)
					break
				}
				require.False(t, c.Phase.Terminal(), "f=%d s=%d n=%d completed early", f, lines, n)
				if n%period == 0 {
					assert.Equal(t, n/period, c.SlowIndex)
					assert.Equal(t, slow[n/period], c.Y)
				}
			}
		}
	}
}

func TestSequencer_Repeat(t *testing.T) {
	s := newTestSequencer(t, []float64{0, 1}, []float64{0, 1, 2}, true)
	period := s.Period()

	var ys []float64
	for n := 0; n < period*7; n++ {
		c := s.Step()
		require.False(t, c.Phase.Terminal())
		if n%period == 0 {
			ys = append(ys, c.Y)
		}
	}
	assert.Equal(t, []float64{0, 1, 2, 0, 1, 2, 0}, ys)
}

func TestSequencer_Abort(t *testing.T) {
	s := newTestSequencer(t, []float64{0, 1, 2}, []float64{0}, false)
	s.Step()
	s.Step()
	s.Abort()

	c := s.Step()
	assert.Equal(t, Aborted, c.Phase)
	assert.Equal(t, 2, s.State().Counter)
	assert.Equal(t, Aborted, s.Step().Phase)
}

func TestSequencer_SplitBoundary(t *testing.T) {
	// single position: one outbound and one return curve per line
	s := newTestSequencer(t, []float64{0.2}, []float64{0}, false)
	assert.Equal(t, AdvancingSlowAxis, s.Step().Phase)
	assert.Equal(t, Outbound, s.Step().Direction)
	assert.Equal(t, Return, s.Step().Direction)
	assert.Equal(t, Completed, s.Step().Phase)
}

func TestSequencer_State(t *testing.T) {
	s := newTestSequencer(t, []float64{0, 1}, nil, false)
	assert.Equal(t, 1, s.Lines())
	assert.Equal(t, 0.1, s.State().Z)

	s.SetZ(0.2)
	s.SetCommand(feedback.CommandUp)
	st := s.State()
	assert.Equal(t, 0.2, st.Z)
	assert.Equal(t, feedback.CommandUp, st.LastCommand)
	assert.Equal(t, Sweeping, st.Phase)

	_, err := NewSequencer(nil, nil, false, 0)
	assert.Equal(t, ErrNoFastAxis, err)
}
