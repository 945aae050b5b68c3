// Package sim is an in-memory instrument for running scans without
// hardware.
package sim

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/mastercactapus/mimscan/config"
	"github.com/mastercactapus/mimscan/machine"
)

// ErrReleased is returned by a channel used after Release.
var ErrReleased = errors.New("sim: channel released")

// Model shapes the simulated approach curves.
type Model struct {
	Samples int

	// Surface returns the z voltage where contact happens at Contact. Nil
	// means a flat surface at 0 V.
	Surface func(x, y float64) float64

	// Contact is the contact sample when z equals the surface height.
	Contact int
	// SamplesPerVolt moves the contact sample earlier as z rises.
	SamplesPerVolt float64

	// CStep and RStep are the signal drops after contact.
	CStep, RStep float64
	Noise        float64
	Seed         int64
}

// DefaultModel matches config.Default.
func DefaultModel() Model {
	return ModelFor(config.Default())
}

// ModelFor returns a flat-surface model producing curves of cfg.Samples
// samples that touch down at cfg.ContactSample when z is 0.
func ModelFor(cfg config.Scan) Model {
	return Model{
		Samples:        cfg.Samples,
		Contact:        cfg.ContactSample,
		SamplesPerVolt: 5000,
		CStep:          0.5,
		RStep:          0.1,
	}
}

// ContactIndex returns the sample where the simulated tip touches down.
func (m Model) ContactIndex(x, y, z float64) int {
	var h float64
	if m.Surface != nil {
		h = m.Surface(x, y)
	}
	return m.Contact - int(math.Round((z-h)*m.SamplesPerVolt))
}

// Batch returns C samples followed by R samples for a tip at (x, y, z).
func (m Model) Batch(x, y, z float64, rng *rand.Rand) []float64 {
	k := m.ContactIndex(x, y, z)
	b := make([]float64, 2*m.Samples)
	for i := 0; i < m.Samples; i++ {
		if i >= k {
			b[i] = -m.CStep
			b[m.Samples+i] = -m.RStep
		}
		if m.Noise > 0 && rng != nil {
			b[i] += m.Noise * rng.NormFloat64()
			b[m.Samples+i] += m.Noise * rng.NormFloat64()
		}
	}
	return b
}

// Adapter is a simulated instrument. It records every call in Events.
type Adapter struct {
	Model Model

	mx      sync.Mutex
	events  []string
	outputs map[machine.Channel]*Output
	source  *Source
}

var _ machine.Adapter = &Adapter{}

// NewAdapter creates an instrument. With a zero interval, batches are only
// produced by Source.Fire.
func NewAdapter(model Model, interval time.Duration) *Adapter {
	a := &Adapter{
		Model:   model,
		outputs: make(map[machine.Channel]*Output, len(machine.Channels)),
	}
	for _, ch := range machine.Channels {
		a.outputs[ch] = &Output{ch: ch, a: a}
	}
	a.source = &Source{
		a:        a,
		interval: interval,
		rng:      rand.New(rand.NewSource(model.Seed)),
		ready:    make(chan struct{}),
	}
	return a
}

func (a *Adapter) Output(ch machine.Channel) machine.Output { return a.outputs[ch] }

func (a *Adapter) Acquisition() machine.BatchSource { return a.source }

// Channel returns the concrete simulated output.
func (a *Adapter) Channel(ch machine.Channel) *Output { return a.outputs[ch] }

// Source returns the concrete simulated acquisition.
func (a *Adapter) Source() *Source { return a.source }

// Record appends to the event log. Test sinks use it to interleave with
// instrument events.
func (a *Adapter) Record(event string) {
	a.mx.Lock()
	a.events = append(a.events, event)
	a.mx.Unlock()
}

// Events returns a copy of the event log.
func (a *Adapter) Events() []string {
	a.mx.Lock()
	defer a.mx.Unlock()
	return append([]string(nil), a.events...)
}

// Output is a simulated analog output.
type Output struct {
	ch machine.Channel
	a  *Adapter

	mx       sync.Mutex
	waveform []float64
	voltages []float64
	released bool

	// FailVoltage, when set, is returned by SetVoltage.
	FailVoltage error
}

func (o *Output) SetWaveform(w []float64) error {
	o.mx.Lock()
	defer o.mx.Unlock()
	if o.released {
		return ErrReleased
	}
	o.waveform = append([]float64(nil), w...)
	return nil
}

func (o *Output) SetVoltage(v float64) error {
	o.mx.Lock()
	defer o.mx.Unlock()
	if o.released {
		return ErrReleased
	}
	if o.FailVoltage != nil {
		return o.FailVoltage
	}
	o.voltages = append(o.voltages, v)
	return nil
}

func (o *Output) Stop() error {
	o.a.Record("stop " + o.ch.String())
	return nil
}

func (o *Output) Release() error {
	o.mx.Lock()
	o.released = true
	o.mx.Unlock()
	o.a.Record("release " + o.ch.String())
	return nil
}

// Waveform returns the loaded waveform.
func (o *Output) Waveform() []float64 {
	o.mx.Lock()
	defer o.mx.Unlock()
	return append([]float64(nil), o.waveform...)
}

// Voltages returns every DC value set, oldest first.
func (o *Output) Voltages() []float64 {
	o.mx.Lock()
	defer o.mx.Unlock()
	return append([]float64(nil), o.voltages...)
}

// Voltage returns the last DC value set, or 0.
func (o *Output) Voltage() float64 {
	o.mx.Lock()
	defer o.mx.Unlock()
	if len(o.voltages) == 0 {
		return 0
	}
	return o.voltages[len(o.voltages)-1]
}

// Source is the simulated acquisition.
type Source struct {
	a        *Adapter
	interval time.Duration
	rng      *rand.Rand

	mx      sync.Mutex
	fn      func([]float64)
	fired   int
	started bool
	ready   chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
}

func (s *Source) OnBatch(fn func([]float64)) {
	s.mx.Lock()
	s.fn = fn
	s.mx.Unlock()
}

func (s *Source) Start() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.started {
		return errors.New("sim: acquisition already started")
	}
	s.started = true
	s.stop = make(chan struct{})
	close(s.ready)
	if s.interval <= 0 {
		return nil
	}

	s.wg.Add(1)
	go s.loop(s.stop)
	return nil
}

func (s *Source) loop(stop chan struct{}) {
	defer s.wg.Done()
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.Fire()
		}
	}
}

// Ready is closed once acquisition has started.
func (s *Source) Ready() <-chan struct{} { return s.ready }

// Fire synthesizes a batch from the current output state and delivers it.
func (s *Source) Fire() {
	s.mx.Lock()
	n := s.fired
	s.fired++
	rng := s.rng
	s.mx.Unlock()

	a := s.a
	var x float64
	if w := a.Channel(machine.FastAxis).Waveform(); len(w) > 0 {
		x = w[n%len(w)]
	}
	y := a.Channel(machine.SlowAxis).Voltage()
	z := a.Channel(machine.Z).Voltage()

	s.mx.Lock()
	batch := a.Model.Batch(x, y, z, rng)
	s.mx.Unlock()
	s.Deliver(batch)
}

// Deliver passes a batch straight to the registered callback.
func (s *Source) Deliver(batch []float64) {
	s.mx.Lock()
	fn := s.fn
	s.mx.Unlock()
	if fn != nil {
		fn(batch)
	}
}

func (s *Source) Stop() error {
	s.mx.Lock()
	stop := s.stop
	s.stop = nil
	s.mx.Unlock()
	if stop != nil {
		close(stop)
	}
	s.wg.Wait()
	s.a.Record("stop acquisition")
	return nil
}

func (s *Source) Release() error {
	s.a.Record("release acquisition")
	return nil
}
