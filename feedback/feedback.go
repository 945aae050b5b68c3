// Package feedback turns contact detections and operator commands into
// z-actuator corrections inside hard safety limits.
package feedback

import (
	"errors"
	"fmt"

	"github.com/mastercactapus/mimscan/contact"
)

// ErrSafetyLimit is matched by every *LimitError.
var ErrSafetyLimit = errors.New("z safety limit exceeded")

// Bound identifies which safety limit was hit.
type Bound int

const (
	BoundMin Bound = iota
	BoundMax
)

func (b Bound) String() string {
	if b == BoundMax {
		return "max"
	}
	return "min"
}

// LimitError reports a correction that was clamped to a safety limit.
type LimitError struct {
	Bound     Bound
	Requested float64
	Limit     float64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("z %g outside %s limit %g, clamped", e.Requested, e.Bound, e.Limit)
}

func (e *LimitError) Is(target error) bool { return target == ErrSafetyLimit }

// Controller computes the next z voltage once per approach curve.
type Controller struct {
	// Feedback selects automatic contact tracking. When false, operator
	// commands step z manually.
	Feedback bool

	// Gain is volts per sample of contact offset.
	Gain float64

	// Step is the manual step size in volts.
	Step float64

	// Min and Max are hard limits for the z actuator.
	Min, Max float64
}

// Correct returns the new z voltage.
//
// In feedback mode a valid detection moves z by Offset*Gain and an invalid
// one holds z. In manual mode CommandUp and CommandDown move z by one Step;
// anything else holds. The result is always clamped, and a non-nil
// *LimitError is returned alongside the clamped value when that happens.
func (c Controller) Correct(z float64, det contact.Result, cmd Command) (float64, error) {
	if c.Feedback {
		if det.Valid {
			z += float64(det.Offset) * c.Gain
		}
	} else {
		switch cmd {
		case CommandUp:
			z += c.Step
		case CommandDown:
			z -= c.Step
		}
	}

	return c.Clamp(z)
}

// Clamp limits z to [Min, Max].
func (c Controller) Clamp(z float64) (float64, error) {
	if z > c.Max {
		return c.Max, &LimitError{Bound: BoundMax, Requested: z, Limit: c.Max}
	}
	if z < c.Min {
		return c.Min, &LimitError{Bound: BoundMin, Requested: z, Limit: c.Min}
	}
	return z, nil
}
