package daq

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/mastercactapus/mimscan/logging"
)

// bufferSize is the receive buffer of the bridge firmware.
const bufferSize = 128

// batchQueue is how many batches may wait for the callback before new ones
// are dropped.
const batchQueue = 16

// ErrReset is returned from Exec if the bridge restarts before every line
// was acknowledged.
var ErrReset = errors.New("daq: bridge reset")

// DeviceError is an "error:" reply from the bridge.
type DeviceError struct {
	Msg string
}

func (e *DeviceError) Error() string { return "daq: " + e.Msg }

// Conn is a line connection to the DAQ bridge. Commands are flow-controlled
// against the bridge's receive buffer and each line is acknowledged with
// "ok" or "error:<msg>". Batch frames arrive unsolicited.
type Conn struct {
	rw  io.ReadWriter
	log *slog.Logger

	ackCh     chan error
	resetCh   chan struct{}
	batchCh   chan []float64
	closeCh   chan struct{}
	closeOnce sync.Once
	readDone  chan struct{}
	readErr   error

	mx  sync.Mutex // guards rw writes
	wMx sync.Mutex // one Exec at a time

	deviceBuf int
	lineSize  []int

	wroteLines int64
	readLines  int64
}

// NewConn starts reading from rw.
func NewConn(rw io.ReadWriter) *Conn {
	c := &Conn{
		rw:       rw,
		log:      logging.New("daq"),
		ackCh:    make(chan error, bufferSize),
		resetCh:  make(chan struct{}, 1),
		batchCh:  make(chan []float64, batchQueue),
		closeCh:  make(chan struct{}),
		readDone: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Close aborts any in-progress Exec and closes the underlying ReadWriter,
// if it implements io.Closer.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		if closer, ok := c.rw.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return err
}

// Batches delivers parsed batch frames in arrival order.
func (c *Conn) Batches() <-chan []float64 { return c.batchCh }

func (c *Conn) recordBufferSpace(n int) int64 {
	c.deviceBuf += n
	c.wroteLines++
	c.lineSize = append(c.lineSize, n)
	return c.wroteLines
}

// waitForBufferSpace blocks until n bytes fit. A line longer than the whole
// buffer is sent once the bridge has drained.
func (c *Conn) waitForBufferSpace(n int) error {
	for c.deviceBuf > 0 && c.deviceBuf+n > bufferSize {
		err := c.next()
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) reset() error {
	c.deviceBuf = 0
	c.lineSize = nil
	c.readLines = c.wroteLines
	return ErrReset
}

func (c *Conn) next() error {
	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	case <-c.resetCh:
		return c.reset()
	default:
	}

	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	case <-c.readDone:
		if c.readErr != nil {
			return fmt.Errorf("%w: %v", io.ErrUnexpectedEOF, c.readErr)
		}
		return io.ErrUnexpectedEOF
	case <-c.resetCh:
		return c.reset()
	case e := <-c.ackCh:
		c.readLines++
		if len(c.lineSize) > 0 {
			c.deviceBuf -= c.lineSize[0]
			c.lineSize = c.lineSize[1:]
		}
		return e
	}
}

func (c *Conn) waitForLine(id int64) (err error) {
	for c.readLines < id {
		e := c.next()
		if errors.Is(e, ErrReset) || errors.Is(e, io.ErrClosedPipe) || errors.Is(e, io.ErrUnexpectedEOF) {
			return e
		}
		if err == nil {
			err = e
		}
	}
	return err
}

func (c *Conn) writeLine(line []byte) (id int64, err error) {
	err = c.waitForBufferSpace(len(line))
	if err != nil {
		return 0, err
	}
	c.mx.Lock()
	_, err = c.rw.Write(line)
	c.mx.Unlock()
	if err != nil {
		return 0, err
	}
	return c.recordBufferSpace(len(line)), nil
}

// Exec sends lines and returns once every one has been acknowledged. The
// first device error is returned.
func (c *Conn) Exec(lines ...string) error {
	c.wMx.Lock()
	defer c.wMx.Unlock()
	select {
	case <-c.closeCh:
		return io.ErrClosedPipe
	default:
	}

	lastID := c.wroteLines
	for _, l := range lines {
		id, err := c.writeLine([]byte(l + "\n"))
		if err != nil {
			return err
		}
		lastID = id
	}
	return c.waitForLine(lastID)
}

func (c *Conn) readLoop() {
	defer close(c.readDone)

	s := bufio.NewScanner(c.rw)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		c.handleLine(strings.TrimSpace(s.Text()))
	}
	c.readErr = s.Err()
}

func (c *Conn) handleLine(line string) {
	switch {
	case line == "":
	case line == "ok":
		c.ackCh <- nil
	case strings.HasPrefix(line, "error:"):
		c.ackCh <- &DeviceError{Msg: strings.TrimSpace(strings.TrimPrefix(line, "error:"))}
	case strings.HasPrefix(line, "[B:"):
		batch, err := parseBatch(line)
		if err != nil {
			c.log.Error("parse batch", "err", err)
			return
		}
		select {
		case c.batchCh <- batch:
		default:
			c.log.Warn("acquisition overrun, dropping batch", "values", len(batch))
		}
	case strings.HasPrefix(line, bannerPrefix):
		c.log.Info("bridge reset", "banner", line)
		select {
		case c.resetCh <- struct{}{}:
		default:
		}
	default:
		c.log.Debug("unhandled message", "line", line)
	}
}
