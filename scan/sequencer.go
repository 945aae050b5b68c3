// Package scan sequences the fast/slow raster of approach curves.
package scan

import (
	"errors"
	"sync"

	"github.com/mastercactapus/mimscan/feedback"
)

// ErrNoFastAxis is returned for an empty fast-axis waveform.
var ErrNoFastAxis = errors.New("scan: empty fast-axis waveform")

// Cycle describes what a single callback has to do.
type Cycle struct {
	// Counter is the call counter this cycle was evaluated with.
	Counter int
	Phase   Phase

	// Position for this cycle. X is only meaningful while sweeping, Y is
	// the commanded slow-axis voltage.
	X, Y float64

	FastIndex int
	SlowIndex int
	Direction Direction
}

// Acquire reports whether the cycle records data.
func (c Cycle) Acquire() bool { return c.Phase == Sweeping }

// Sequencer owns the scan state. It is safe for concurrent use, though
// Step is expected to be called from a single callback.
type Sequencer struct {
	fast   []float64
	slow   []float64
	repeat bool

	mx    sync.Mutex
	state State
	y     float64
	abort bool
}

// NewSequencer creates a sequencer over the built fast-axis waveform (see
// waveform.BuildFastAxisWaveform) and the slow-axis positions.
//
// An empty slow axis is treated as a single line at 0 V.
func NewSequencer(fast, slow []float64, repeat bool, zStart float64) (*Sequencer, error) {
	if len(fast) == 0 {
		return nil, ErrNoFastAxis
	}
	if len(slow) == 0 {
		slow = []float64{0}
	}
	return &Sequencer{
		fast:   append([]float64(nil), fast...),
		slow:   append([]float64(nil), slow...),
		repeat: repeat,
		state:  State{Z: zStart, Phase: Sweeping},
	}, nil
}

// Step evaluates the transition for the current call counter.
//
// A counter at the start of the fast-axis waveform is a positioning cycle,
// or completes the scan once every slow-axis line is done. Any other counter
// is an acquisition cycle. The counter advances on every non-terminal call.
func (s *Sequencer) Step() Cycle {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.state.Phase.Terminal() {
		return s.cycle(s.state.Phase)
	}
	if s.abort {
		s.state.Phase = Aborted
		return s.cycle(Aborted)
	}

	n := s.state.Counter
	f := len(s.fast)
	r := n % f

	var c Cycle
	if r == 0 {
		slowIndex := n / f
		if slowIndex >= len(s.slow) && !s.repeat {
			s.state.Phase = Completed
			c = s.cycle(Completed)
		} else {
			s.state.SlowIndex = slowIndex % len(s.slow)
			s.state.FastIndex = 0
			s.y = s.slow[s.state.SlowIndex]
			s.state.Phase = AdvancingSlowAxis
			c = s.cycle(AdvancingSlowAxis)
		}
	} else {
		s.state.FastIndex = r
		s.state.Phase = Sweeping
		c = s.cycle(Sweeping)
		if (r - 1) < (f-1)/2 {
			c.Direction = Outbound
		} else {
			c.Direction = Return
		}
	}

	s.state.Counter++
	return c
}

func (s *Sequencer) cycle(p Phase) Cycle {
	return Cycle{
		Counter:   s.state.Counter,
		Phase:     p,
		X:         s.fast[s.state.FastIndex],
		Y:         s.y,
		FastIndex: s.state.FastIndex,
		SlowIndex: s.state.SlowIndex,
	}
}

// Abort requests the Aborted phase at the next Step.
func (s *Sequencer) Abort() {
	s.mx.Lock()
	s.abort = true
	s.mx.Unlock()
}

// SetZ records the commanded z voltage.
func (s *Sequencer) SetZ(z float64) {
	s.mx.Lock()
	s.state.Z = z
	s.mx.Unlock()
}

// SetCommand records the last operator command applied.
func (s *Sequencer) SetCommand(cmd feedback.Command) {
	s.mx.Lock()
	s.state.LastCommand = cmd
	s.mx.Unlock()
}

// State returns a snapshot of the scan state.
func (s *Sequencer) State() State {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.state
}

// Lines returns the number of slow-axis positions.
func (s *Sequencer) Lines() int { return len(s.slow) }

// Period returns the number of callbacks per fast-axis traversal.
func (s *Sequencer) Period() int { return len(s.fast) }
