package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/mastercactapus/mimscan/feedback"
	"github.com/mastercactapus/mimscan/interrupt"
	"github.com/mastercactapus/mimscan/logging"
	"github.com/mastercactapus/mimscan/machine"
	"github.com/mastercactapus/mimscan/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const statusChannel = "/events/status"

type api struct {
	http.Handler
	m       *machine.Machine
	remote  *interrupt.Remote
	metrics *metrics.Metrics
	log     *slog.Logger

	sse      *sse.Server
	upgrader websocket.Upgrader

	mx      sync.Mutex
	clients map[*wsClient]struct{}

	closeOnce sync.Once
	closeCh   chan struct{}
	done      chan struct{}
}

func newAPI(m *machine.Machine, remote *interrupt.Remote, reg prometheus.Gatherer, met *metrics.Metrics, dataDir string) *api {
	r := mux.NewRouter()
	log := logging.New("api")

	a := &api{
		Handler: r,
		m:       m,
		remote:  remote,
		metrics: met,
		log:     log,
		sse: sse.NewServer(&sse.Options{
			Logger: slog.NewLogLogger(log.Handler(), slog.LevelDebug),
		}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}

	r.HandleFunc("/api/command", a.command).Methods("POST")
	r.HandleFunc("/api/state", a.state).Methods("GET")
	r.HandleFunc("/ws", a.serveWS)
	r.PathPrefix("/events/").Handler(a.sse)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.PathPrefix("/data/").Handler(http.StripPrefix("/data", http.FileServer(http.Dir(dataDir)))).Methods("GET")

	go a.loop()
	return a
}

// Close stops forwarding status and disconnects every client.
func (a *api) Close() {
	a.closeOnce.Do(func() {
		close(a.closeCh)
		<-a.done
		a.sse.Shutdown()

		a.mx.Lock()
		for c := range a.clients {
			c.conn.Close()
		}
		a.mx.Unlock()
	})
}

func (a *api) loop() {
	defer close(a.done)
	for {
		select {
		case <-a.closeCh:
			return
		case st := <-a.m.Status():
			data, err := json.Marshal(st)
			if err != nil {
				a.log.Error("marshal status", "err", err)
				continue
			}
			a.notify(data)
		}
	}
}

// notify fans a status out to observers. A failing observer never stops
// the scan.
func (a *api) notify(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			a.metrics.TransientError()
			a.log.Warn("status observer failed", "err", fmt.Errorf("%w: %v", machine.ErrTransient, r))
		}
	}()

	a.sse.SendMessage(statusChannel, sse.SimpleMessage(string(data)))

	a.mx.Lock()
	for c := range a.clients {
		select {
		case c.send <- data:
		default:
			a.log.Debug("websocket client behind, dropping status", "remote", c.conn.RemoteAddr().String())
		}
	}
	a.mx.Unlock()
}

func (a *api) sendCommand(s string) error {
	s = strings.TrimSpace(s)
	if len(s) != 1 {
		return fmt.Errorf("command must be a single key, got %q", s)
	}
	cmd, ok := feedback.ParseCommand(s[0])
	if !ok {
		return fmt.Errorf("unknown command %q", s)
	}
	a.log.Info("remote command", "command", cmd.String())
	a.remote.Send(cmd)
	return nil
}

func (a *api) command(w http.ResponseWriter, req *http.Request) {
	data, err := io.ReadAll(io.LimitReader(req.Body, 64))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = a.sendCommand(string(data))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) state(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(a.m.State())
	if err != nil {
		a.log.Error("encode state", "err", err)
	}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func (a *api) serveWS(w http.ResponseWriter, req *http.Request) {
	conn, err := a.upgrader.Upgrade(w, req, nil)
	if err != nil {
		a.log.Warn("websocket upgrade", "err", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, 16)}

	a.mx.Lock()
	a.clients[c] = struct{}{}
	a.mx.Unlock()

	done := make(chan struct{})
	go a.writeLoop(c, done)
	a.readLoop(c)
	close(done)

	a.mx.Lock()
	delete(a.clients, c)
	a.mx.Unlock()
	conn.Close()
}

func (a *api) readLoop(c *wsClient) {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		err = a.sendCommand(string(msg))
		if err != nil {
			a.log.Debug("websocket command", "err", err)
		}
	}
}

func (a *api) writeLoop(c *wsClient, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			err := c.conn.WriteMessage(websocket.TextMessage, data)
			if err != nil {
				a.log.Debug("websocket write", "err", err)
				return
			}
		}
	}
}
