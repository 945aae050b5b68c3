package interrupt

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mastercactapus/mimscan/feedback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, k *Keyboard) {
	t.Helper()
	select {
	case <-k.Done():
	case <-time.After(time.Second):
		t.Fatal("reader did not stop")
	}
}

func TestKeyboard(t *testing.T) {
	k := NewKeyboard(strings.NewReader("xuD"), nil)
	waitDone(t, k)

	cmd, err := k.PollCommand()
	require.NoError(t, err)
	assert.Equal(t, feedback.CommandDown, cmd)

	cmd, err = k.PollCommand()
	require.NoError(t, err)
	assert.Equal(t, feedback.CommandNone, cmd)
	assert.NoError(t, k.Close())
}

func TestKeyboard_QuitSticks(t *testing.T) {
	k := NewKeyboard(strings.NewReader("uq d"), nil)
	waitDone(t, k)

	cmd, err := k.PollCommand()
	require.NoError(t, err)
	assert.Equal(t, feedback.CommandQuit, cmd)

	k = NewKeyboard(strings.NewReader("\x03"), nil)
	waitDone(t, k)
	cmd, _ = k.PollCommand()
	assert.Equal(t, feedback.CommandQuit, cmd)
}

func TestKeyboard_Logger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	k := NewKeyboard(strings.NewReader("x"), log)
	waitDone(t, k)
	assert.Contains(t, buf.String(), "ignoring key")
}

func TestOpenTerminal_NotATerminal(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	var calls []bool
	k, err := OpenTerminal(r, func(raw bool) *slog.Logger {
		calls = append(calls, raw)
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, calls)
	assert.False(t, k.Raw())

	_, err = w.Write([]byte("u"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	waitDone(t, k)
	cmd, err := k.PollCommand()
	require.NoError(t, err)
	assert.Equal(t, feedback.CommandUp, cmd)
	assert.NoError(t, k.Close())
}

type failReader struct{}

func (failReader) Read([]byte) (int, error) { return 0, errors.New("device gone") }

func TestKeyboard_ReadError(t *testing.T) {
	k := NewKeyboard(failReader{}, nil)
	waitDone(t, k)

	_, err := k.PollCommand()
	assert.EqualError(t, err, "device gone")
	_, err = k.PollCommand()
	assert.NoError(t, err)
}

func TestFirst(t *testing.T) {
	a, b := NewRemote(), NewRemote()
	src := First(a, nil, b)

	cmd, err := src.PollCommand()
	assert.NoError(t, err)
	assert.Equal(t, feedback.CommandNone, cmd)

	b.Send(feedback.CommandUp)
	cmd, err = src.PollCommand()
	assert.NoError(t, err)
	assert.Equal(t, feedback.CommandUp, cmd)

	pr, pw := io.Pipe()
	pw.CloseWithError(errors.New("closed"))
	k := NewKeyboard(pr, nil)
	waitDone(t, k)
	src = First(k, a)
	a.Send(feedback.CommandDown)
	cmd, err = src.PollCommand()
	assert.NoError(t, err)
	assert.Equal(t, feedback.CommandDown, cmd)
}
