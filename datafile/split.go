package datafile

import (
	"errors"

	"github.com/mastercactapus/mimscan/machine"
)

// Split routes records by sweep direction. Records that do not report a
// direction go to Outbound.
type Split struct {
	Outbound machine.DataSink
	Return   machine.DataSink
}

var _ machine.DataSink = Split{}

type directed interface {
	Outbound() bool
}

func (s Split) Append(r machine.Record) error {
	if d, ok := r.(directed); ok && !d.Outbound() {
		return s.Return.Append(r)
	}
	return s.Outbound.Append(r)
}

// NewBlock starts a new line in both logs.
func (s Split) NewBlock() error {
	return errors.Join(s.Outbound.NewBlock(), s.Return.NewBlock())
}

func (s Split) Close() error {
	return errors.Join(s.Outbound.Close(), s.Return.Close())
}
