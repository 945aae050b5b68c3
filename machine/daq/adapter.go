// Package daq drives a serial DAQ bridge: analog outputs plus a clocked
// two-channel acquisition.
package daq

import (
	"io"
	"sync"

	"github.com/mastercactapus/mimscan/machine"
	"github.com/tarm/serial"
)

// SerialAdapter is a machine.Adapter talking to the bridge over a line
// protocol.
type SerialAdapter struct {
	*Conn

	outputs map[machine.Channel]*output
	source  *source
}

var _ machine.Adapter = &SerialAdapter{}

// Open connects to the bridge on a serial port.
func Open(port string, baud, samples int) (*SerialAdapter, error) {
	p, err := serial.OpenPort(&serial.Config{Name: port, Baud: baud})
	if err != nil {
		return nil, err
	}
	return NewSerialAdapter(p, samples), nil
}

// NewSerialAdapter uses rw for the bridge connection. Batches hold samples
// values per input channel.
func NewSerialAdapter(rw io.ReadWriter, samples int) *SerialAdapter {
	conn := NewConn(rw)
	adapter := &SerialAdapter{
		Conn:    conn,
		outputs: make(map[machine.Channel]*output, len(machine.Channels)),
		source:  &source{conn: conn, samples: samples},
	}
	for _, ch := range machine.Channels {
		adapter.outputs[ch] = &output{conn: conn, ch: ch}
	}
	return adapter
}

func (adapter *SerialAdapter) Output(ch machine.Channel) machine.Output {
	return adapter.outputs[ch]
}

func (adapter *SerialAdapter) Acquisition() machine.BatchSource { return adapter.source }

type output struct {
	conn *Conn
	ch   machine.Channel
}

func (o *output) SetWaveform(w []float64) error { return o.conn.Exec(formatWaveform(o.ch, w)) }
func (o *output) SetVoltage(v float64) error    { return o.conn.Exec(formatVoltage(o.ch, v)) }
func (o *output) Stop() error                   { return o.conn.Exec(formatStop(channelTarget(o.ch))) }
func (o *output) Release() error                { return o.conn.Exec(formatRelease(channelTarget(o.ch))) }

type source struct {
	conn    *Conn
	samples int

	mx   sync.Mutex
	fn   func([]float64)
	stop chan struct{}
	wg   sync.WaitGroup
}

func (s *source) OnBatch(fn func([]float64)) {
	s.mx.Lock()
	s.fn = fn
	s.mx.Unlock()
}

// Start arms the acquisition. Batches are handed to the callback on their
// own goroutine so the callback may command outputs.
func (s *source) Start() error {
	err := s.conn.Exec(formatStart(s.samples))
	if err != nil {
		return err
	}

	s.mx.Lock()
	s.stop = make(chan struct{})
	stop := s.stop
	s.mx.Unlock()

	s.wg.Add(1)
	go s.loop(stop)
	return nil
}

func (s *source) loop(stop chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-stop:
			return
		case batch := <-s.conn.Batches():
			s.mx.Lock()
			fn := s.fn
			s.mx.Unlock()
			if fn != nil {
				fn(batch)
			}
		}
	}
}

func (s *source) Stop() error {
	err := s.conn.Exec(formatStop(acquisitionTarget))

	s.mx.Lock()
	stop := s.stop
	s.stop = nil
	s.mx.Unlock()
	if stop != nil {
		close(stop)
	}
	s.wg.Wait()
	return err
}

func (s *source) Release() error { return s.conn.Exec(formatRelease(acquisitionTarget)) }
