package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mastercactapus/mimscan/config"
	"github.com/mastercactapus/mimscan/feedback"
	"github.com/mastercactapus/mimscan/interrupt"
	"github.com/mastercactapus/mimscan/machine"
	"github.com/mastercactapus/mimscan/machine/sim"
	"github.com/mastercactapus/mimscan/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T) (*api, *sim.Adapter, *interrupt.Remote, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.FastAxis = []float64{0, 1}

	a := sim.NewAdapter(sim.DefaultModel(), 0)
	m, err := machine.New(a, cfg, machine.Options{})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	met := metrics.New(reg)
	remote := interrupt.NewRemote()
	srv := newAPI(m, remote, reg, met, t.TempDir())
	ts := httptest.NewServer(srv)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, nil)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
		ts.Close()
	})

	select {
	case <-a.Source().Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("acquisition never started")
	}
	return srv, a, remote, ts
}

func TestAPI_Command(t *testing.T) {
	_, _, remote, ts := newTestAPI(t)

	resp, err := http.Post(ts.URL+"/api/command", "text/plain", strings.NewReader("u\n"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	cmd, _ := remote.PollCommand()
	assert.Equal(t, feedback.CommandUp, cmd)

	resp, err = http.Post(ts.URL+"/api/command", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/command")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAPI_State(t *testing.T) {
	_, a, _, ts := newTestAPI(t)
	a.Source().Fire()

	resp, err := http.Get(ts.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	var st struct {
		Counter int
		Phase   string
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, 1, st.Counter)
	assert.Equal(t, "advancing", st.Phase)
}

func TestAPI_Metrics(t *testing.T) {
	_, a, _, ts := newTestAPI(t)
	a.Source().Fire()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_WebSocket(t *testing.T) {
	_, a, remote, ts := newTestAPI(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// a command round trip proves the client is registered
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("d")))
	deadline := time.Now().Add(2 * time.Second)
	for {
		cmd, _ := remote.PollCommand()
		if cmd == feedback.CommandDown {
			break
		}
		require.True(t, time.Now().Before(deadline), "command never arrived")
		time.Sleep(time.Millisecond)
	}

	a.Source().Fire()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var st struct{ Counter int }
	require.NoError(t, json.Unmarshal(msg, &st))
	assert.Equal(t, 0, st.Counter)
	assert.Contains(t, string(msg), `"Phase":"advancing"`)
}
