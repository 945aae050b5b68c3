package coord

// Point is an actuator position. Values are in volts unless noted.
type Point struct{ X, Y, Z float64 }

// MillivoltsPerVolt converts actuator volts to the mV units used in data files.
const MillivoltsPerVolt = 1e3

func (p Point) Equal(b Point) bool {
	return p.X == b.X && p.Y == b.Y && p.Z == b.Z
}

func (p Point) Mul(val float64) Point {
	p.X *= val
	p.Y *= val
	p.Z *= val
	return p
}

// Add will add the target values to p.
func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	p.Z += target.Z
	return p
}

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	return p
}

// Millivolts returns p scaled from volts to millivolts.
func (p Point) Millivolts() Point { return p.Mul(MillivoltsPerVolt) }
