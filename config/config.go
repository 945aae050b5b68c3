// Package config holds the parameters of an approach-curve scan.
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/mastercactapus/mimscan/contact"
	"github.com/mastercactapus/mimscan/feedback"
	"gopkg.in/yaml.v3"
)

// Range is a half-open sample range [First, Last).
type Range struct {
	First int `yaml:"first"`
	Last  int `yaml:"last"`
}

// Len returns the number of samples in the range.
func (r Range) Len() int { return r.Last - r.First }

// Scan configures a single run. It is not modified once the run starts.
type Scan struct {
	Samples    int     `yaml:"samples"`
	SampleRate float64 `yaml:"sample_rate"`
	Amplitude  float64 `yaml:"amplitude"`
	Phase      float64 `yaml:"phase"`

	// FastAxis and SlowAxis are actuator voltages. Empty means a single
	// position at 0 V.
	FastAxis []float64 `yaml:"fast_axis"`
	SlowAxis []float64 `yaml:"slow_axis"`

	Feedback bool `yaml:"feedback"`
	Repeat   bool `yaml:"repeat"`

	InnerWindow int `yaml:"inner_window"`
	OuterWindow int `yaml:"outer_window"`

	LowerSample        int     `yaml:"lower_sample"`
	UpperSample        int     `yaml:"upper_sample"`
	ContactSample      int     `yaml:"contact_sample"`
	MagnitudeThreshold float64 `yaml:"magnitude_threshold"`
	Gain               float64 `yaml:"gain"`

	ZStart float64 `yaml:"z_start"`
	ZStep  float64 `yaml:"z_step"`
	ZMin   float64 `yaml:"z_min"`
	ZMax   float64 `yaml:"z_max"`

	Far  Range `yaml:"far"`
	Near Range `yaml:"near"`

	PollInterval time.Duration `yaml:"poll_interval"`
}

// Default returns the standard approach imaging parameters.
func Default() Scan {
	return Scan{
		Samples:    200,
		SampleRate: 2.0e4,
		Amplitude:  2.5,
		Phase:      math.Pi,

		InnerWindow: 12,
		OuterWindow: 12,

		LowerSample:        95,
		UpperSample:        145,
		ContactSample:      135,
		MagnitudeThreshold: -1.0e-3,
		Gain:               0.8e-4,

		ZStep: 2.0e-3,
		ZMin:  0.0,
		// keep this conservative, above it the tip crashes
		ZMax: 0.35,

		Far:  Range{First: 60, Last: 80},
		Near: Range{First: 160, Last: 180},

		PollInterval: 500 * time.Millisecond,
	}
}

// Load reads a YAML parameter file over the defaults.
func Load(path string) (Scan, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read params: %w", err)
	}
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse params: %w", err)
	}
	return cfg, nil
}

// Normalized returns a copy with empty scan vectors replaced by [0].
func (s Scan) Normalized() Scan {
	if len(s.FastAxis) == 0 {
		s.FastAxis = []float64{0}
	}
	if len(s.SlowAxis) == 0 {
		s.SlowAxis = []float64{0}
	}
	return s
}

// Window returns the contact detection window.
func (s Scan) Window() contact.Window {
	return contact.Window{
		Lower:     s.LowerSample,
		Upper:     s.UpperSample,
		Contact:   s.ContactSample,
		Threshold: s.MagnitudeThreshold,
	}
}

// Controller returns the z feedback controller for this scan.
func (s Scan) Controller() feedback.Controller {
	return feedback.Controller{
		Feedback: s.Feedback,
		Gain:     s.Gain,
		Step:     s.ZStep,
		Min:      s.ZMin,
		Max:      s.ZMax,
	}
}

// CurvePeriod is the time taken by one approach curve.
func (s Scan) CurvePeriod() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) * float64(s.Samples) / s.SampleRate)
}

// Linspace returns n evenly spaced values from start to stop inclusive.
func Linspace(start, stop float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{start}
	}
	v := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range v {
		v[i] = start + step*float64(i)
	}
	v[n-1] = stop
	return v
}
