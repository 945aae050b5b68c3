package machine

import (
	"sync"

	"github.com/mastercactapus/mimscan/feedback"
)

// Mailbox is the only state shared between the interrupt poller and the
// acquisition callback: one pending command and a one-shot abort flag.
type Mailbox struct {
	mx      sync.Mutex
	pending feedback.Command

	abortOnce sync.Once
	abort     chan struct{}
}

func NewMailbox() *Mailbox {
	return &Mailbox{abort: make(chan struct{})}
}

// Put replaces any pending command.
func (m *Mailbox) Put(cmd feedback.Command) {
	m.mx.Lock()
	m.pending = cmd
	m.mx.Unlock()
}

// Take returns and clears the pending command.
func (m *Mailbox) Take() (feedback.Command, bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	cmd := m.pending
	m.pending = feedback.CommandNone
	return cmd, cmd != feedback.CommandNone
}

// Abort requests the run to stop. Calling it again has no effect.
func (m *Mailbox) Abort() {
	m.abortOnce.Do(func() { close(m.abort) })
}

// Aborted reports whether Abort has been called.
func (m *Mailbox) Aborted() bool {
	select {
	case <-m.abort:
		return true
	default:
		return false
	}
}

// AbortCh is closed by Abort.
func (m *Mailbox) AbortCh() <-chan struct{} { return m.abort }
