package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/mastercactapus/mimscan/config"
	"github.com/mastercactapus/mimscan/logging"
	"github.com/mastercactapus/mimscan/machine"
	"github.com/mastercactapus/mimscan/machine/sim"
	"github.com/mastercactapus/mimscan/scan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLinspace(t *testing.T) {
	v, err := parseLinspace("0, 1, 3")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1}, v)

	v, err = parseLinspace("0.2,0.2,1")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.2}, v)

	for _, s := range []string{"", "0,1", "0,1,0", "a,1,2", "0,b,2", "0,1,c"} {
		_, err = parseLinspace(s)
		assert.Error(t, err, s)
	}
}

func TestCRLFWriter(t *testing.T) {
	var buf bytes.Buffer
	n, err := crlfWriter{&buf}.Write([]byte("a\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "a\r\nb\r\n", buf.String())
}

func TestTerminalLogger(t *testing.T) {
	defer logging.Init(slog.LevelInfo, "text", os.Stderr)

	var buf bytes.Buffer
	terminalLogger(&buf)(true).Info("key")
	assert.Contains(t, buf.String(), "component=keyboard")
	assert.Contains(t, buf.String(), "\r\n")

	buf.Reset()
	logging.Init(slog.LevelInfo, "text", &buf)
	terminalLogger(&bytes.Buffer{})(false).Info("cooked")
	assert.Contains(t, buf.String(), "cooked")
	assert.NotContains(t, buf.String(), "\r")
}

type countSink struct {
	mx   sync.Mutex
	rows int
}

func (s *countSink) Append(r machine.Record) error {
	s.mx.Lock()
	s.rows += len(r.Rows())
	s.mx.Unlock()
	return nil
}
func (s *countSink) NewBlock() error { return nil }
func (s *countSink) Close() error    { return nil }

func TestOpenAdapter_SimFollowsConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Samples = 100
	cfg.LowerSample = 45
	cfg.UpperSample = 75
	cfg.ContactSample = 60
	cfg.Far = config.Range{First: 10, Last: 30}
	cfg.Near = config.Range{First: 80, Last: 95}
	cfg.FastAxis = []float64{0, 1, 2}
	cfg.PollInterval = 5 * time.Millisecond
	require.NoError(t, cfg.Validate())

	a, closeAdapter, err := openAdapter(cfg)
	require.NoError(t, err)
	defer closeAdapter()
	s, ok := a.(*sim.Adapter)
	require.True(t, ok)
	assert.Equal(t, 100, s.Model.Samples)
	assert.Equal(t, 60, s.Model.Contact)

	spatial := &countSink{}
	m, err := machine.New(a, cfg, machine.Options{Spatial: spatial})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := m.Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, scan.Completed, st.Phase)
	assert.Equal(t, 6, spatial.rows)
}
