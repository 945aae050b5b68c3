// Package interrupt provides operator command sources for a running scan.
package interrupt

import (
	"errors"
	"sync"

	"github.com/mastercactapus/mimscan/feedback"
	"github.com/mastercactapus/mimscan/machine"
)

// slot holds the latest command until it is polled. A quit is kept over
// any later command.
type slot struct {
	mx  sync.Mutex
	cmd feedback.Command
}

func (s *slot) put(cmd feedback.Command) {
	s.mx.Lock()
	if s.cmd != feedback.CommandQuit {
		s.cmd = cmd
	}
	s.mx.Unlock()
}

func (s *slot) take() feedback.Command {
	s.mx.Lock()
	defer s.mx.Unlock()
	cmd := s.cmd
	s.cmd = feedback.CommandNone
	return cmd
}

// Remote accepts commands from outside the terminal, such as the HTTP API.
type Remote struct {
	slot slot
}

var _ machine.InterruptSource = &Remote{}

func NewRemote() *Remote { return &Remote{} }

// Send queues cmd for the next poll, replacing anything pending.
func (r *Remote) Send(cmd feedback.Command) { r.slot.put(cmd) }

func (r *Remote) PollCommand() (feedback.Command, error) {
	return r.slot.take(), nil
}

type first []machine.InterruptSource

// First polls each source in order and returns the first command found.
// Errors are only reported when no source had a command.
func First(sources ...machine.InterruptSource) machine.InterruptSource {
	var f first
	for _, s := range sources {
		if s != nil {
			f = append(f, s)
		}
	}
	return f
}

func (f first) PollCommand() (feedback.Command, error) {
	var errs []error
	for _, s := range f {
		cmd, err := s.PollCommand()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if cmd != feedback.CommandNone {
			return cmd, nil
		}
	}
	return feedback.CommandNone, errors.Join(errs...)
}
