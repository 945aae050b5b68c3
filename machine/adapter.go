package machine

import "github.com/mastercactapus/mimscan/feedback"

// Channel names one of the analog outputs driven during a scan.
type Channel int

const (
	// Perturbation is the steady sine on the z piezo.
	Perturbation Channel = iota
	FastAxis
	SlowAxis
	// Z is the DC z-actuator voltage under feedback control.
	Z
)

// Channels lists the outputs in shutdown order.
var Channels = []Channel{Perturbation, FastAxis, SlowAxis, Z}

func (c Channel) String() string {
	switch c {
	case Perturbation:
		return "perturbation"
	case FastAxis:
		return "fast-axis"
	case SlowAxis:
		return "slow-axis"
	case Z:
		return "z"
	}
	return "unknown"
}

// An Output is a single analog output channel.
type Output interface {
	// SetWaveform loads a periodic waveform, clocked in sync with acquisition.
	SetWaveform([]float64) error
	// SetVoltage drives a DC value.
	SetVoltage(float64) error
	Stop() error
	Release() error
}

// A BatchSource delivers fixed-size sample batches to a callback.
//
// Batches hold all C samples followed by all R samples. The callback is
// invoked from the source's own goroutine, one batch at a time.
type BatchSource interface {
	OnBatch(func(batch []float64))
	Start() error
	Stop() error
	Release() error
}

// An Adapter represents the instrument: outputs plus acquisition.
type Adapter interface {
	Output(Channel) Output
	Acquisition() BatchSource
}

// A Record is a set of rows written to a DataSink.
type Record interface {
	Columns() []string
	Rows() [][]float64
}

// A DataSink stores records in blocks.
type DataSink interface {
	Append(Record) error
	NewBlock() error
	Close() error
}

// An InterruptSource reports operator keypresses without blocking.
//
// PollCommand returns feedback.CommandNone when nothing is pending.
type InterruptSource interface {
	PollCommand() (feedback.Command, error)
}
