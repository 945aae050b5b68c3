package machine

import (
	"testing"

	"github.com/mastercactapus/mimscan/feedback"
	"github.com/stretchr/testify/assert"
)

func TestMailbox(t *testing.T) {
	m := NewMailbox()

	_, ok := m.Take()
	assert.False(t, ok)

	m.Put(feedback.CommandUp)
	m.Put(feedback.CommandDown)
	cmd, ok := m.Take()
	assert.True(t, ok)
	assert.Equal(t, feedback.CommandDown, cmd)

	_, ok = m.Take()
	assert.False(t, ok, "take clears the slot")

	assert.False(t, m.Aborted())
	m.Abort()
	m.Abort()
	assert.True(t, m.Aborted())
	select {
	case <-m.AbortCh():
	default:
		t.Fatal("abort channel not closed")
	}
}
