package daq

import (
	"testing"

	"github.com/mastercactapus/mimscan/machine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBatch(t *testing.T) {
	b, err := parseBatch("[B:1,-0.5,2e-3]\r\n")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -0.5, 2e-3}, b)

	_, err = parseBatch("[B:]")
	assert.Error(t, err)
	_, err = parseBatch("[B:1,x]")
	assert.Error(t, err)
	_, err = parseBatch("[PRB:1,2,3:1]")
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "W1 0,0.5,-1", formatWaveform(machine.FastAxis, []float64{0, 0.5, -1}))
	assert.Equal(t, "V3 0.002", formatVoltage(machine.Z, 2e-3))
	assert.Equal(t, "A200", formatStart(200))
	assert.Equal(t, "S0", formatStop(channelTarget(machine.Perturbation)))
	assert.Equal(t, "RA", formatRelease(acquisitionTarget))
}
