package feedback

import (
	"errors"
	"testing"

	"github.com/mastercactapus/mimscan/contact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testController = Controller{Gain: 0.8e-4, Step: 2e-3, Min: 0, Max: 0.35}

func TestController_Feedback(t *testing.T) {
	c := testController
	c.Feedback = true

	z, err := c.Correct(0.1, contact.Result{Valid: true, Offset: 5, Index: 140}, CommandNone)
	assert.NoError(t, err)
	assert.InDelta(t, 0.1+5*0.8e-4, z, 1e-12)

	z, err = c.Correct(0.1, contact.Result{Valid: false, Offset: 0, Index: 20}, CommandNone)
	assert.NoError(t, err)
	assert.Equal(t, 0.1, z)

	// manual commands are ignored in feedback mode
	z, err = c.Correct(0.1, contact.Result{}, CommandUp)
	assert.NoError(t, err)
	assert.Equal(t, 0.1, z)
}

func TestController_Manual(t *testing.T) {
	c := testController

	z, err := c.Correct(0.1, contact.Result{}, CommandUp)
	assert.NoError(t, err)
	assert.InDelta(t, 0.102, z, 1e-12)

	z, err = c.Correct(0.1, contact.Result{}, CommandDown)
	assert.NoError(t, err)
	assert.InDelta(t, 0.098, z, 1e-12)

	z, err = c.Correct(0.1, contact.Result{Valid: true, Offset: 50}, CommandNone)
	assert.NoError(t, err)
	assert.Equal(t, 0.1, z)
}

func TestController_ClampMax(t *testing.T) {
	c := testController

	z, err := c.Correct(0.349, contact.Result{}, CommandUp)
	require.Error(t, err)
	assert.Equal(t, 0.35, z, "must clamp to max, not min")
	assert.True(t, errors.Is(err, ErrSafetyLimit))

	var lim *LimitError
	require.True(t, errors.As(err, &lim))
	assert.Equal(t, BoundMax, lim.Bound)
	assert.InDelta(t, 0.351, lim.Requested, 1e-12)
}

func TestController_ClampMin(t *testing.T) {
	c := testController
	c.Feedback = true

	z, err := c.Correct(0.001, contact.Result{Valid: true, Offset: -100}, CommandNone)
	require.Error(t, err)
	assert.Equal(t, 0.0, z)

	var lim *LimitError
	require.True(t, errors.As(err, &lim))
	assert.Equal(t, BoundMin, lim.Bound)
}

func TestController_NeverOutsideLimits(t *testing.T) {
	c := testController
	c.Feedback = true
	for _, start := range []float64{-1, 0, 0.2, 0.35, 2} {
		for _, off := range []int{-5000, -1, 0, 1, 5000} {
			z, _ := c.Correct(start, contact.Result{Valid: true, Offset: off}, CommandNone)
			assert.True(t, z >= c.Min && z <= c.Max, "start=%g offset=%d z=%g", start, off, z)
		}
	}
}

func TestParseCommand(t *testing.T) {
	cmd, ok := ParseCommand('u')
	assert.True(t, ok)
	assert.Equal(t, CommandUp, cmd)

	cmd, ok = ParseCommand('Q')
	assert.True(t, ok)
	assert.Equal(t, CommandQuit, cmd)

	_, ok = ParseCommand('x')
	assert.False(t, ok)
	assert.Equal(t, "down", CommandDown.String())
}
