package machine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mastercactapus/mimscan/config"
	"github.com/mastercactapus/mimscan/contact"
	"github.com/mastercactapus/mimscan/coord"
	"github.com/mastercactapus/mimscan/feedback"
	"github.com/mastercactapus/mimscan/logging"
	"github.com/mastercactapus/mimscan/metrics"
	"github.com/mastercactapus/mimscan/scan"
	"github.com/mastercactapus/mimscan/waveform"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPollInterval = 500 * time.Millisecond

	// a quit settles at the next callback, or after this many curve
	// periods without one
	abortGraceCurves = 4
	minAbortGrace    = 100 * time.Millisecond
)

// Machine runs an approach-curve scan on an Adapter.
type Machine struct {
	Adapter

	cfg  config.Scan
	fast []float64
	ctl  feedback.Controller
	win  contact.Window

	seq  *scan.Sequencer
	mail *Mailbox

	full, spatial DataSink

	log     *slog.Logger
	metrics *metrics.Metrics
	status  chan Status

	// cycleMx is held for a whole callback so shutdown never races a
	// cycle that is still commanding outputs.
	cycleMx sync.Mutex
	closed  bool

	doneOnce sync.Once
	done     chan struct{}
}

// Options are the collaborators of a Machine besides the instrument.
type Options struct {
	// Full receives every raw approach curve.
	Full DataSink
	// Spatial receives one SpatialPoint per curve.
	Spatial DataSink

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Status is published after every callback.
type Status struct {
	Counter   int
	Phase     scan.Phase
	Pos       coord.Point
	Direction scan.Direction

	Detection *contact.Result  `json:",omitempty"`
	Command   feedback.Command `json:",omitempty"`
	Clamped   bool             `json:",omitempty"`
	Errors    []string         `json:",omitempty"`
}

func (st *Status) fail(err error) {
	st.Errors = append(st.Errors, err.Error())
}

// New validates cfg and prepares a Machine. Nothing is written to the
// instrument until Run.
func New(a Adapter, cfg config.Scan, opt Options) (*Machine, error) {
	cfg = cfg.Normalized()
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	m := &Machine{
		Adapter: a,
		cfg:     cfg,
		fast:    waveform.BuildFastAxisWaveform(cfg.FastAxis),
		ctl:     cfg.Controller(),
		win:     cfg.Window(),
		mail:    NewMailbox(),
		full:    opt.Full,
		spatial: opt.Spatial,
		log:     opt.Logger,
		metrics: opt.Metrics,
		status:  make(chan Status, 64),
		done:    make(chan struct{}),
	}
	if m.log == nil {
		m.log = logging.New("machine")
	}
	if m.full == nil {
		m.full = discard{}
	}
	if m.spatial == nil {
		m.spatial = discard{}
	}

	zStart, err := m.ctl.Clamp(cfg.ZStart)
	if err != nil {
		m.log.Warn("start voltage outside z limits", "err", err)
	}

	m.seq, err = scan.NewSequencer(m.fast, cfg.SlowAxis, cfg.Repeat, zStart)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Mailbox returns the command mailbox shared with the interrupt poller.
func (m *Machine) Mailbox() *Mailbox { return m.mail }

// State returns a snapshot of the scan state.
func (m *Machine) State() scan.State { return m.seq.State() }

// Status streams per-cycle status. Events are dropped when nobody reads.
func (m *Machine) Status() <-chan Status { return m.status }

// Done is closed once the scan reaches a terminal phase.
func (m *Machine) Done() <-chan struct{} { return m.done }

func (m *Machine) finish() {
	m.doneOnce.Do(func() { close(m.done) })
}

// Run starts acquisition and blocks until the scan completes, the operator
// quits, or ctx is canceled. Outputs are always stopped and released before
// the data sinks are closed.
func (m *Machine) Run(ctx context.Context, in InterruptSource) (scan.State, error) {
	err := m.setup()
	if err != nil {
		m.finish()
		return m.seq.State(), errors.Join(err, m.shutdown())
	}
	m.log.Info("scan started",
		"feedback", m.cfg.Feedback,
		"repeat", m.cfg.Repeat,
		"fast", len(m.cfg.FastAxis),
		"slow", len(m.cfg.SlowAxis),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.poll(gctx, in)
		return nil
	})
	g.Go(func() error {
		m.wait(gctx)
		return nil
	})
	_ = g.Wait()

	err = m.shutdown()
	st := m.seq.State()
	m.log.Info("approaches completed", "count", st.Counter, "phase", st.Phase.String())
	return st, err
}

// wait blocks until the scan ends. A canceled ctx ends it at once; a quit
// is left to the next callback unless acquisition has stalled.
func (m *Machine) wait(ctx context.Context) {
	select {
	case <-m.done:
		return
	case <-ctx.Done():
		m.log.Info("run canceled")
		m.settle()
		return
	case <-m.mail.AbortCh():
	}

	grace := m.abortGrace()
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-m.done:
	case <-ctx.Done():
		m.log.Info("run canceled")
		m.settle()
	case <-t.C:
		m.log.Warn("no curve acquired after quit, stopping", "waited", grace)
		m.settle()
	}
}

func (m *Machine) abortGrace() time.Duration {
	d := abortGraceCurves * m.cfg.CurvePeriod()
	if d < minAbortGrace {
		d = minAbortGrace
	}
	return d
}

// settle aborts the scan outside the acquisition callback.
func (m *Machine) settle() {
	m.cycleMx.Lock()
	defer m.cycleMx.Unlock()
	select {
	case <-m.done:
		return
	default:
	}

	m.seq.Abort()
	c := m.seq.Step()
	m.metrics.Cycle(c.Phase.String())
	m.finish()
	m.publish(Status{
		Counter:   c.Counter,
		Phase:     c.Phase,
		Pos:       coord.Point{X: c.X, Y: c.Y, Z: m.seq.State().Z},
		Direction: c.Direction,
	})
}

func (m *Machine) setup() error {
	zac := waveform.GenerateSineWave(m.cfg.Samples, m.cfg.Amplitude, m.cfg.Phase)
	err := m.Output(Perturbation).SetWaveform(zac)
	if err != nil {
		return fmt.Errorf("set %s waveform: %w", Perturbation, err)
	}
	err = m.Output(FastAxis).SetWaveform(m.fast)
	if err != nil {
		return fmt.Errorf("set %s waveform: %w", FastAxis, err)
	}
	err = m.Output(Z).SetVoltage(m.seq.State().Z)
	if err != nil {
		return fmt.Errorf("set %s voltage: %w", Z, err)
	}

	src := m.Acquisition()
	src.OnBatch(m.HandleBatch)
	err = src.Start()
	if err != nil {
		return fmt.Errorf("start acquisition: %w", err)
	}
	return nil
}

// shutdown stops acquisition and every output, releases them, and only then
// closes the data sinks. It keeps going past failures and reports them all.
func (m *Machine) shutdown() error {
	m.cycleMx.Lock()
	m.closed = true
	m.cycleMx.Unlock()

	var errs []error
	check := func(what string, err error) {
		if err != nil {
			m.log.Error("shutdown", "step", what, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}

	src := m.Acquisition()
	check("stop acquisition", src.Stop())
	for _, ch := range Channels {
		check("stop "+ch.String(), m.Output(ch).Stop())
	}
	check("release acquisition", src.Release())
	for _, ch := range Channels {
		check("release "+ch.String(), m.Output(ch).Release())
	}

	check("close full sink", m.full.Close())
	check("close spatial sink", m.spatial.Close())

	return errors.Join(errs...)
}

func (m *Machine) publish(st Status) {
	select {
	case m.status <- st:
	default:
	}
}

func (m *Machine) reportTransient(err error) {
	m.metrics.TransientError()
	m.log.Warn("transient error, continuing", "err", transient(err))
}

type discard struct{}

func (discard) Append(Record) error { return nil }
func (discard) NewBlock() error     { return nil }
func (discard) Close() error        { return nil }
