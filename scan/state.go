package scan

import "github.com/mastercactapus/mimscan/feedback"

// Phase is the sequencer state.
type Phase int

const (
	// Sweeping acquires approach curves along a fast-axis traversal.
	Sweeping Phase = iota
	// AdvancingSlowAxis is the positioning cycle between traversals.
	AdvancingSlowAxis
	// Completed is terminal: every slow-axis position has been scanned.
	Completed
	// Aborted is terminal: the operator quit.
	Aborted
)

func (p Phase) String() string {
	switch p {
	case Sweeping:
		return "sweeping"
	case AdvancingSlowAxis:
		return "advancing"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

// Terminal reports whether no further cycles will run.
func (p Phase) Terminal() bool { return p == Completed || p == Aborted }

// MarshalText lets phases appear by name in status JSON.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Direction tags which half of a fast-axis sweep a curve belongs to.
type Direction int

const (
	Outbound Direction = iota
	Return
)

func (d Direction) String() string {
	if d == Return {
		return "return"
	}
	return "outbound"
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// State is a snapshot of the scan.
type State struct {
	Z         float64
	FastIndex int
	SlowIndex int

	// Counter is the number of callbacks handled so far.
	Counter int

	LastCommand feedback.Command
	Phase       Phase
}
