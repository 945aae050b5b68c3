package spjs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer echoes every sendjson payload back as port data, as a device
// in loopback would.
type fakeServer struct {
	mx       sync.Mutex
	commands []string
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	up := websocket.Upgrader{}
	ws, err := up.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	ws.WriteMessage(websocket.TextMessage, []byte(`{"SerialPorts":[{"Name":"/dev/ttyACM0","Baud":115200}]}`))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		cmd := string(data)
		s.mx.Lock()
		s.commands = append(s.commands, cmd)
		s.mx.Unlock()

		if !strings.HasPrefix(cmd, "sendjson ") {
			continue
		}
		var v sendJSON
		if json.Unmarshal([]byte(strings.TrimPrefix(cmd, "sendjson ")), &v) != nil {
			continue
		}
		for _, d := range v.Data {
			out, _ := json.Marshal(DataFrame{Port: v.Port, Data: d.Data})
			ws.WriteMessage(websocket.TextMessage, out)
		}
	}
}

func (s *fakeServer) received() []string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]string(nil), s.commands...)
}

func TestParseMessage(t *testing.T) {
	parse := func(s string) interface{} {
		var msg map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(s), &msg))
		v, err := parseMessage([]byte(s), msg)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, &DataFrame{Port: "COM3", Data: "ok\n"}, parse(`{"P":"COM3","D":"ok\n"}`))
	assert.Equal(t, &ErrorMessage{Error: "port busy"}, parse(`{"Error":"port busy"}`))
	assert.IsType(t, &CmdStatus{}, parse(`{"Cmd":"Queued","QCnt":1,"Type":["Buf"],"D":["A200"],"Id":"1"}`))

	var msg map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(`{"Hello":1}`), &msg))
	_, err := parseMessage([]byte(`{"Hello":1}`), msg)
	assert.Error(t, err)
}

func TestPort(t *testing.T) {
	srv := &fakeServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := Dial("ws" + strings.TrimPrefix(ts.URL, "http"))
	defer c.Close()

	p, err := c.Open("/dev/ttyACM0", 115200)
	require.NoError(t, err)

	n, err := p.Write([]byte("V3 0.1\n"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	buf := make([]byte, 64)
	got := make(chan string, 1)
	go func() {
		n, _ := p.Read(buf)
		got <- string(buf[:n])
	}()
	select {
	case s := <-got:
		assert.Equal(t, "V3 0.1\n", s)
	case <-time.After(2 * time.Second):
		t.Fatal("no data from port")
	}

	require.NoError(t, p.Close())
	var cmds []string
	deadline := time.Now().Add(2 * time.Second)
	for len(cmds) < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
		cmds = srv.received()
	}
	require.Len(t, cmds, 3)
	assert.Equal(t, "open /dev/ttyACM0 115200", cmds[0])
	assert.True(t, strings.HasPrefix(cmds[1], "sendjson "))
	assert.Equal(t, "close /dev/ttyACM0", cmds[2])
	assert.Equal(t, "/dev/ttyACM0", c.SerialPorts()[0].Name)
}

func TestClient_Closed(t *testing.T) {
	c := Dial("ws://127.0.0.1:1/ws")
	require.NoError(t, c.Close())
	assert.Equal(t, ErrClosed, c.WriteString("list"))
}
