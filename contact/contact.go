// Package contact locates the tip-sample contact point in an approach curve.
package contact

// Window bounds where a detection is accepted.
type Window struct {
	// Lower and Upper are exclusive sample bounds for the contact index.
	Lower, Upper int

	// Contact is the sample where feedback holds the point of contact.
	Contact int

	// Threshold is the largest derivative minimum accepted as contact.
	// It is negative; the minimum must be strictly below it.
	Threshold float64
}

// Result is the outcome of a single detection.
type Result struct {
	// Index is the sample with the steepest negative slope, or -1 for an
	// empty trace.
	Index int
	Min   float64

	// Offset is Index - Window.Contact, set only when Valid.
	Offset int
	Valid  bool
}

// Detect finds the steepest negative slope in derivative and reports it
// as contact if it lies inside the window and is deep enough.
//
// Ties resolve to the first index.
func Detect(derivative []float64, w Window) Result {
	if len(derivative) == 0 {
		return Result{Index: -1}
	}

	res := Result{Index: 0, Min: derivative[0]}
	for i, v := range derivative[1:] {
		if v < res.Min {
			res.Min = v
			res.Index = i + 1
		}
	}

	if res.Index <= w.Lower || res.Index >= w.Upper {
		return res
	}
	if !(res.Min < w.Threshold) {
		return res
	}

	res.Valid = true
	res.Offset = res.Index - w.Contact
	return res
}
