package config

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalid is matched by every *Error.
var ErrInvalid = errors.New("invalid scan configuration")

// Error is a configuration problem found before any hardware is touched.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string { return "config: " + e.Field + ": " + e.Reason }

func (e *Error) Is(target error) bool { return target == ErrInvalid }

func invalid(field, format string, args ...interface{}) error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the scan parameters.
func (s Scan) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"sample_rate", s.SampleRate},
		{"amplitude", s.Amplitude},
		{"phase", s.Phase},
		{"magnitude_threshold", s.MagnitudeThreshold},
		{"gain", s.Gain},
		{"z_start", s.ZStart},
		{"z_step", s.ZStep},
		{"z_min", s.ZMin},
		{"z_max", s.ZMax},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return invalid(f.name, "must be finite, got %g", f.v)
		}
	}
	for _, ax := range []struct {
		name string
		v    []float64
	}{{"fast_axis", s.FastAxis}, {"slow_axis", s.SlowAxis}} {
		for i, v := range ax.v {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return invalid(ax.name, "point %d must be finite, got %g", i, v)
			}
		}
	}
	if len(s.SlowAxis) > 1 && len(s.FastAxis) <= 1 {
		return invalid("slow_axis", "cannot have slow but not fast scan vector")
	}
	if s.Samples < 2 {
		return invalid("samples", "need at least 2 samples per curve, got %d", s.Samples)
	}
	if s.SampleRate <= 0 {
		return invalid("sample_rate", "must be > 0, got %g", s.SampleRate)
	}
	if s.InnerWindow < 1 || s.InnerWindow > s.Samples {
		return invalid("inner_window", "must be in [1, %d], got %d", s.Samples, s.InnerWindow)
	}
	if s.OuterWindow < 1 || s.OuterWindow > s.Samples-1 {
		return invalid("outer_window", "must be in [1, %d], got %d", s.Samples-1, s.OuterWindow)
	}

	// detection runs on the derivative, one sample shorter than the curve
	dlen := s.Samples - 1
	if s.LowerSample >= s.UpperSample {
		return invalid("lower_sample", "must be below upper_sample (%d >= %d)", s.LowerSample, s.UpperSample)
	}
	if s.LowerSample < 0 {
		return invalid("lower_sample", "must not be negative, got %d", s.LowerSample)
	}
	if s.UpperSample > dlen {
		return invalid("upper_sample", "must be at most %d, got %d", dlen, s.UpperSample)
	}
	if s.ContactSample < 0 || s.ContactSample >= dlen {
		return invalid("contact_sample", "must be in [0, %d), got %d", dlen, s.ContactSample)
	}
	if s.ZMin >= s.ZMax {
		return invalid("z_min", "must be below z_max (%g >= %g)", s.ZMin, s.ZMax)
	}
	if s.ZStep < 0 {
		return invalid("z_step", "must not be negative, got %g", s.ZStep)
	}
	for _, r := range []struct {
		name string
		Range
	}{{"far", s.Far}, {"near", s.Near}} {
		if r.First < 0 || r.Last > s.Samples || r.Len() < 1 {
			return invalid(r.name, "range [%d, %d) not inside [0, %d)", r.First, r.Last, s.Samples)
		}
	}
	return nil
}
