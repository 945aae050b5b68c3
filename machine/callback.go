package machine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mastercactapus/mimscan/contact"
	"github.com/mastercactapus/mimscan/coord"
	"github.com/mastercactapus/mimscan/feedback"
	"github.com/mastercactapus/mimscan/filter"
	"github.com/mastercactapus/mimscan/scan"
)

// HandleBatch is the acquisition callback, run once per approach curve.
//
// It never blocks on the interrupt poller: the only shared state is the
// Mailbox. Failures inside a cycle are reported and the scan continues;
// only completion or an abort ends it.
func (m *Machine) HandleBatch(batch []float64) {
	m.cycleMx.Lock()
	defer m.cycleMx.Unlock()
	if m.closed {
		return
	}
	select {
	case <-m.done:
		return
	default:
	}

	if m.mail.Aborted() {
		m.seq.Abort()
	}
	c := m.seq.Step()
	m.metrics.Cycle(c.Phase.String())

	st := Status{
		Counter:   c.Counter,
		Phase:     c.Phase,
		Pos:       coord.Point{X: c.X, Y: c.Y, Z: m.seq.State().Z},
		Direction: c.Direction,
	}

	switch c.Phase {
	case scan.Completed:
		m.log.Info("completed scan", "lines", m.seq.Lines())
		m.finish()
	case scan.Aborted:
		m.log.Info("scan aborted")
		m.finish()
	case scan.AdvancingSlowAxis:
		m.position(c, &st)
	case scan.Sweeping:
		m.acquire(c, batch, &st)
	}

	m.publish(st)
}

// position moves the slow axis and opens a new line in the spatial logs.
func (m *Machine) position(c scan.Cycle, st *Status) {
	err := m.Output(SlowAxis).SetVoltage(c.Y)
	if err != nil {
		m.log.Error("set slow axis", "volts", c.Y, "err", err)
		st.fail(err)
	} else {
		m.log.Info("y set", "volts", c.Y, "line", c.SlowIndex)
	}

	err = safeSink(func() error { return m.spatial.NewBlock() })
	if err != nil {
		err = m.sinkFailed("spatial", c.Counter, err)
		st.fail(err)
	}
}

// acquire runs filter, detection, and z correction for one curve, then
// records it.
func (m *Machine) acquire(c scan.Cycle, batch []float64, st *Status) {
	curve, err := splitBatch(c.Counter, batch, m.cfg.Samples)
	if err != nil {
		m.log.Error("bad batch, skipping curve", "err", err)
		st.fail(err)
		return
	}

	z := m.seq.State().Z
	cmd, _ := m.mail.Take()

	var det contact.Result
	if m.cfg.Feedback {
		d := filter.Derivative(curve.C, m.cfg.InnerWindow, m.cfg.OuterWindow)
		det = contact.Detect(d, m.win)
		m.metrics.Detection(det.Valid)
		st.Detection = &det
		if cmd != feedback.CommandNone {
			m.log.Debug("ignoring command in feedback mode", "command", cmd.String())
			cmd = feedback.CommandNone
		}
	}

	z, err = m.ctl.Correct(z, det, cmd)
	if err != nil {
		m.reportLimit(err)
		st.Clamped = true
		st.fail(err)
	}
	m.seq.SetZ(z)
	if cmd != feedback.CommandNone {
		m.seq.SetCommand(cmd)
		st.Command = cmd
	}
	m.metrics.SetZ(z)

	err = m.Output(Z).SetVoltage(z)
	if err != nil {
		m.log.Error("set z", "volts", z, "err", err)
		st.fail(err)
	}

	curve.Pos = coord.Point{X: c.X, Y: c.Y, Z: z}
	st.Pos = curve.Pos
	point := NewSpatialPoint(curve, m.cfg.Far, m.cfg.Near, c.Direction)

	err = m.record(curve, point)
	if err != nil {
		st.fail(err)
	}
}

func (m *Machine) reportLimit(err error) {
	var lim *feedback.LimitError
	if errors.As(err, &lim) {
		m.metrics.Clamp(lim.Bound.String())
		m.log.Error("reached z limit", "bound", lim.Bound.String(), "requested", lim.Requested, "limit", lim.Limit)
		return
	}
	m.log.Error("z correction", "err", err)
}

// record writes the curve and its summary. Each sink is attempted even if
// the other fails.
func (m *Machine) record(curve ApproachCurve, point SpatialPoint) error {
	var errs []error

	err := safeSink(func() error {
		err := m.full.Append(curve)
		if err != nil {
			return err
		}
		return m.full.NewBlock()
	})
	if err != nil {
		errs = append(errs, m.sinkFailed("full", curve.Seq, err))
	}

	err = safeSink(func() error { return m.spatial.Append(point) })
	if err != nil {
		errs = append(errs, m.sinkFailed("spatial", point.Seq, err))
	}

	return errors.Join(errs...)
}

func (m *Machine) sinkFailed(sink string, seq int, err error) error {
	m.metrics.SinkFailure(sink)
	serr := &SinkError{Sink: sink, Seq: seq, Err: err}
	m.log.Warn("failed to record", "sink", sink, "seq", seq, "err", err)
	return serr
}

// safeSink turns a panicking sink into an error.
func safeSink(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// poll checks the interrupt source until the scan ends.
func (m *Machine) poll(ctx context.Context, in InterruptSource) {
	if in == nil {
		select {
		case <-ctx.Done():
		case <-m.done:
		}
		return
	}

	t := time.NewTicker(m.cfg.PollInterval)
	defer t.Stop()
	for {
		m.pollOnce(in)
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-t.C:
		}
	}
}

func (m *Machine) pollOnce(in InterruptSource) {
	defer func() {
		if r := recover(); r != nil {
			m.reportTransient(fmt.Errorf("poll: %v", r))
		}
	}()

	cmd, err := in.PollCommand()
	if err != nil {
		m.reportTransient(err)
		return
	}
	switch cmd {
	case feedback.CommandNone:
	case feedback.CommandQuit:
		m.log.Info("quit requested")
		m.mail.Abort()
	default:
		m.mail.Put(cmd)
	}
}
