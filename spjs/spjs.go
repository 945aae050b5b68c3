// Package spjs reaches a serial device through a serial-port-json-server
// websocket, so the DAQ bridge can sit on another machine.
package spjs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mastercactapus/mimscan/logging"
)

// ErrClosed is returned for writes after Close.
var ErrClosed = errors.New("spjs: client closed")

const reconnectDelay = 3 * time.Second

// Client is a reconnecting connection to one server.
type Client struct {
	url string
	log *slog.Logger

	outgoing chan message

	closeOnce sync.Once
	closeCh   chan struct{}

	mx          sync.Mutex
	ports       map[string]*Port
	serialPorts []SerialPort
	nextID      int
}

type message struct {
	done    chan struct{}
	payload []byte
}

// DataFrame carries bytes read from a port.
type DataFrame struct {
	Port string `json:"P"`
	Data string `json:"D"`
}

type CmdStatus struct {
	Cmd        string
	QueueCount int `json:"QCnt"`
	Type       []string
	Data       []string `json:"D"`
	ID         string   `json:"Id"`
}

type ErrorMessage struct {
	Error string
}

type SerialPortList struct {
	SerialPorts []SerialPort
}

type SerialPort struct {
	Name     string
	Friendly string
	IsOpen   bool
	Baud     int
}

// Dial starts connecting to url in the background.
func Dial(url string) *Client {
	c := &Client{
		url:      url,
		log:      logging.New("spjs"),
		outgoing: make(chan message, 1000),
		closeCh:  make(chan struct{}),
		ports:    make(map[string]*Port),
	}
	go c.loop()
	return c
}

// SerialPorts returns the last port list reported by the server.
func (c *Client) SerialPorts() []SerialPort {
	c.mx.Lock()
	defer c.mx.Unlock()
	return append([]SerialPort(nil), c.serialPorts...)
}

// Close disconnects and closes every open port.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.mx.Lock()
		for _, p := range c.ports {
			p.w.CloseWithError(ErrClosed)
		}
		c.mx.Unlock()
	})
	return nil
}

func parseMessage(data []byte, msg map[string]json.RawMessage) (val interface{}, err error) {
	check := func(fieldName string, v interface{}) bool {
		if msg[fieldName] == nil {
			return false
		}
		val = v
		err = json.Unmarshal(data, val)
		return true
	}
	if check("Error", &ErrorMessage{}) {
		return
	}
	if check("SerialPorts", &SerialPortList{}) {
		return
	}
	if check("Type", &CmdStatus{}) {
		return
	}
	if check("D", &DataFrame{}) {
		return
	}

	return nil, errors.New("unknown message: " + string(data))
}

func (c *Client) dispatch(val interface{}) {
	switch m := val.(type) {
	case *DataFrame:
		c.mx.Lock()
		p := c.ports[m.Port]
		c.mx.Unlock()
		if p == nil {
			c.log.Debug("data for unopened port", "port", m.Port)
			return
		}
		p.w.Write([]byte(m.Data))
	case *SerialPortList:
		c.mx.Lock()
		c.serialPorts = m.SerialPorts
		c.mx.Unlock()
	case *ErrorMessage:
		c.log.Error("server error", "err", m.Error)
	case *CmdStatus:
		c.log.Debug("command status", "cmd", m.Cmd, "queued", m.QueueCount)
	}
}

func (c *Client) readLoop(ws *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.log.Warn("read", "err", err)
			return
		}
		if !bytes.HasPrefix(data, []byte("{")) {
			// echo of our own command
			continue
		}
		var msg map[string]json.RawMessage
		err = json.Unmarshal(data, &msg)
		if err != nil {
			c.log.Error("read", "err", err)
			continue
		}
		val, err := parseMessage(data, msg)
		if err != nil {
			c.log.Debug("parse", "err", err)
			continue
		}
		c.dispatch(val)
	}
}

func (c *Client) loop() {
	var nextUp message

reconnect:
	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		c.log.Info("connecting", "url", c.url)
		ws, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			c.log.Error("connect", "err", err)
			select {
			case <-c.closeCh:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}
		c.log.Info("connected")
		ch := make(chan struct{})
		go c.readLoop(ws, ch)

		for {
			if nextUp.done != nil {
				err = ws.WriteMessage(websocket.TextMessage, nextUp.payload)
				if err != nil {
					c.log.Error("send", "err", err)
					ws.Close()
					continue reconnect
				}
				close(nextUp.done)
				nextUp.done = nil
			}

			select {
			case <-c.closeCh:
				ws.Close()
				return
			case <-ch:
				ws.Close()
				continue reconnect
			case nextUp = <-c.outgoing:
			}
		}
	}
}

func (c *Client) send(payload []byte) error {
	ch := make(chan struct{})
	select {
	case c.outgoing <- message{done: ch, payload: payload}:
	case <-c.closeCh:
		return ErrClosed
	}
	select {
	case <-ch:
		return nil
	case <-c.closeCh:
		return ErrClosed
	}
}

// WriteString sends a raw server command such as "list".
func (c *Client) WriteString(data string) error { return c.send([]byte(data)) }

type sendJSON struct {
	Port string `json:"P"`
	Data []sendData
}

type sendData struct {
	Data string `json:"D"`
	ID   string `json:"Id"`
}

func (c *Client) sendJSON(port, data string) error {
	c.mx.Lock()
	c.nextID++
	id := "mimscan" + strconv.Itoa(c.nextID)
	c.mx.Unlock()

	payload, err := json.Marshal(sendJSON{Port: port, Data: []sendData{{Data: data, ID: id}}})
	if err != nil {
		return err
	}
	return c.send(append([]byte("sendjson "), payload...))
}

// Port is an open serial port on the server.
type Port struct {
	c    *Client
	name string
	r    *io.PipeReader
	w    *io.PipeWriter
}

// Open asks the server to open a port. Data received on it is returned by
// Port.Read.
func (c *Client) Open(name string, baud int) (*Port, error) {
	r, w := io.Pipe()
	p := &Port{c: c, name: name, r: r, w: w}

	c.mx.Lock()
	c.ports[name] = p
	c.mx.Unlock()

	err := c.WriteString(fmt.Sprintf("open %s %d", name, baud))
	if err != nil {
		c.mx.Lock()
		delete(c.ports, name)
		c.mx.Unlock()
		return nil, err
	}
	return p, nil
}

func (p *Port) Read(b []byte) (int, error) { return p.r.Read(b) }

// Write queues b for the port and returns once it was sent to the server.
func (p *Port) Write(b []byte) (int, error) {
	err := p.c.sendJSON(p.name, string(b))
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Close closes the port on the server.
func (p *Port) Close() error {
	p.c.mx.Lock()
	delete(p.c.ports, p.name)
	p.c.mx.Unlock()
	p.w.Close()
	err := p.c.WriteString("close " + p.name)
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}
