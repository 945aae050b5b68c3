package machine

import (
	"fmt"

	"github.com/mastercactapus/mimscan/config"
	"github.com/mastercactapus/mimscan/coord"
	"github.com/mastercactapus/mimscan/scan"
)

// ApproachCurve is one acquired batch: the raw C and R channels together
// with the actuator position they were taken at.
type ApproachCurve struct {
	Seq int
	// Pos is in volts.
	Pos  coord.Point
	C, R []float64
}

var curveColumns = []string{"sample", "x [mV]", "y [mV]", "z [mV]", "MIM-C [V]", "MIM-R [V]"}

func (ApproachCurve) Columns() []string { return curveColumns }

// Rows returns one row per sample.
func (c ApproachCurve) Rows() [][]float64 {
	mv := c.Pos.Millivolts()
	rows := make([][]float64, len(c.C))
	for i := range rows {
		rows[i] = []float64{float64(i), mv.X, mv.Y, mv.Z, c.C[i], c.R[i]}
	}
	return rows
}

// splitBatch copies a batch into its C and R halves.
func splitBatch(seq int, batch []float64, samples int) (ApproachCurve, error) {
	if len(batch) != 2*samples {
		return ApproachCurve{}, fmt.Errorf("batch %d: got %d values, want %d", seq, len(batch), 2*samples)
	}
	c := make([]float64, samples)
	r := make([]float64, samples)
	copy(c, batch[:samples])
	copy(r, batch[samples:])
	return ApproachCurve{Seq: seq, C: c, R: r}, nil
}

// SpatialPoint is the per-curve summary plotted as an image.
type SpatialPoint struct {
	Seq int
	// Pos is in millivolts.
	Pos coord.Point

	// MIMC and MIMR are the far-window mean minus the near-window mean.
	MIMC, MIMR float64

	Direction scan.Direction
}

var pointColumns = []string{"x [mV]", "y [mV]", "z [mV]", "MIM-C [V]", "MIM-R [V]"}

func (SpatialPoint) Columns() []string { return pointColumns }

func (p SpatialPoint) Rows() [][]float64 {
	return [][]float64{{p.Pos.X, p.Pos.Y, p.Pos.Z, p.MIMC, p.MIMR}}
}

// Outbound reports whether the point belongs to the outbound log.
func (p SpatialPoint) Outbound() bool { return p.Direction == scan.Outbound }

// NewSpatialPoint summarizes a curve. far and near must lie inside the curve.
func NewSpatialPoint(c ApproachCurve, far, near config.Range, dir scan.Direction) SpatialPoint {
	return SpatialPoint{
		Seq:       c.Seq,
		Pos:       c.Pos.Millivolts(),
		MIMC:      mean(c.C[far.First:far.Last]) - mean(c.C[near.First:near.Last]),
		MIMR:      mean(c.R[far.First:far.Last]) - mean(c.R[near.First:near.Last]),
		Direction: dir,
	}
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
