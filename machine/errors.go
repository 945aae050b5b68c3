package machine

import (
	"errors"
	"fmt"
)

// ErrTransient marks a recovered failure from the interrupt poller or a
// status observer. The run continues.
var ErrTransient = errors.New("transient error")

// ErrSinkWrite is matched by every *SinkError.
var ErrSinkWrite = errors.New("sink write failed")

// SinkError reports a record dropped by a data sink.
type SinkError struct {
	Sink string
	Seq  int
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("%s sink: record %d: %v", e.Sink, e.Seq, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

func (e *SinkError) Is(target error) bool { return target == ErrSinkWrite }

func transient(err error) error {
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
