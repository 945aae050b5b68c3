// Package metrics exposes counters for the acquisition loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mimscan"

// Metrics holds the collectors updated by the acquisition loop. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Cycles       *prometheus.CounterVec
	Detections   *prometheus.CounterVec
	Clamps       *prometheus.CounterVec
	SinkFailures *prometheus.CounterVec
	Transient    prometheus.Counter
	Z            prometheus.Gauge
}

// New creates the collectors and registers them with reg, if not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Acquisition callbacks handled, by scan phase.",
		}, []string{"phase"}),
		Detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Contact detections in feedback mode, by validity.",
		}, []string{"valid"}),
		Clamps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "z_clamps_total",
			Help:      "Z corrections clamped to a safety limit.",
		}, []string{"bound"}),
		SinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Records dropped because a data sink rejected them.",
		}, []string{"sink"}),
		Transient: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transient_errors_total",
			Help:      "Recovered errors from the interrupt poller or status observers.",
		}),
		Z: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "z_volts",
			Help:      "Last commanded z-actuator voltage.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Cycles, m.Detections, m.Clamps, m.SinkFailures, m.Transient, m.Z)
	}
	return m
}

func (m *Metrics) Cycle(phase string) {
	if m != nil {
		m.Cycles.WithLabelValues(phase).Inc()
	}
}

func (m *Metrics) Detection(valid bool) {
	if m == nil {
		return
	}
	if valid {
		m.Detections.WithLabelValues("true").Inc()
	} else {
		m.Detections.WithLabelValues("false").Inc()
	}
}

func (m *Metrics) Clamp(bound string) {
	if m != nil {
		m.Clamps.WithLabelValues(bound).Inc()
	}
}

func (m *Metrics) SinkFailure(sink string) {
	if m != nil {
		m.SinkFailures.WithLabelValues(sink).Inc()
	}
}

func (m *Metrics) TransientError() {
	if m != nil {
		m.Transient.Inc()
	}
}

func (m *Metrics) SetZ(z float64) {
	if m != nil {
		m.Z.Set(z)
	}
}
