package interrupt

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/mastercactapus/mimscan/feedback"
	"github.com/mastercactapus/mimscan/logging"
	"github.com/mastercactapus/mimscan/machine"
	"golang.org/x/term"
)

// ctrlC arrives as a byte once the terminal is in raw mode.
const ctrlC = 0x03

// Keyboard turns single keypresses into commands. Reading happens on its own
// goroutine so PollCommand never blocks.
type Keyboard struct {
	slot slot
	log  *slog.Logger

	errMx sync.Mutex
	err   error

	restore func() error
	done    chan struct{}
}

var _ machine.InterruptSource = &Keyboard{}

// NewKeyboard reads keypresses from r until it returns an error. A nil log
// uses the default logger.
func NewKeyboard(r io.Reader, log *slog.Logger) *Keyboard {
	if log == nil {
		log = logging.New("keyboard")
	}
	k := &Keyboard{
		log:  log,
		done: make(chan struct{}),
	}
	go k.loop(bufio.NewReader(r))
	return k
}

// OpenTerminal reads from f, switching it to raw mode when it is a terminal
// so keys arrive without waiting for enter. Close restores the terminal.
//
// newLog is called once the terminal mode is set, before anything is logged,
// so the caller can adjust log output for raw mode. It may be nil.
func OpenTerminal(f *os.File, newLog func(raw bool) *slog.Logger) (*Keyboard, error) {
	fd := int(f.Fd())
	var restore func() error
	if term.IsTerminal(fd) {
		old, err := term.MakeRaw(fd)
		if err != nil {
			return nil, err
		}
		restore = func() error { return term.Restore(fd, old) }
	}

	var log *slog.Logger
	if newLog != nil {
		log = newLog(restore != nil)
	}
	k := NewKeyboard(f, log)
	k.restore = restore
	return k, nil
}

func (k *Keyboard) loop(r io.ByteReader) {
	defer close(k.done)
	for {
		b, err := r.ReadByte()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			k.errMx.Lock()
			k.err = err
			k.errMx.Unlock()
			return
		}

		if b == ctrlC {
			k.slot.put(feedback.CommandQuit)
			continue
		}
		cmd, ok := feedback.ParseCommand(b)
		if !ok {
			k.log.Debug("ignoring key", "key", b)
			continue
		}
		k.slot.put(cmd)
	}
}

// PollCommand returns the latest key command. A read error is returned once.
func (k *Keyboard) PollCommand() (feedback.Command, error) {
	k.errMx.Lock()
	err := k.err
	k.err = nil
	k.errMx.Unlock()
	if err != nil {
		return feedback.CommandNone, err
	}
	return k.slot.take(), nil
}

// Raw reports whether the terminal was switched to raw mode. Output then
// needs explicit carriage returns.
func (k *Keyboard) Raw() bool { return k.restore != nil }

// Done is closed when the reader stops.
func (k *Keyboard) Done() <-chan struct{} { return k.done }

// Close restores the terminal, if it was changed. The reader goroutine
// exits with the underlying file.
func (k *Keyboard) Close() error {
	if k.restore == nil {
		return nil
	}
	return k.restore()
}
