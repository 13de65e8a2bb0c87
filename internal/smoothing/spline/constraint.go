package spline

import (
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/splineqp/internal/smoothing"
)

// Constraints accumulates inequality (a·c >= bound) and equality
// (a·c = bound) rows over the spline coefficients. It implements
// qp.ConstraintSet.
type Constraints struct {
	knots []float64
	order int
	n     int

	ineq  [][]float64
	ineqB []float64
	eq    [][]float64
	eqB   []float64
}

// NewConstraints creates an empty constraint accumulator for a spline
// over the given knots and order.
func NewConstraints(knots []float64, order int) (*Constraints, error) {
	s, err := New(knots, order)
	if err != nil {
		return nil, err
	}
	return &Constraints{
		knots: s.Knots(),
		order: order,
		n:     s.NumParams(),
	}, nil
}

// AddLowerBound requires f(xᵢ) >= lbᵢ at each sample position.
func (c *Constraints) AddLowerBound(xs, lbs []float64) error {
	return c.addBound("Constraints.AddLowerBound", xs, lbs, 1)
}

// AddUpperBound requires f(xᵢ) <= ubᵢ at each sample position, encoded
// by negating the row.
func (c *Constraints) AddUpperBound(xs, ubs []float64) error {
	return c.addBound("Constraints.AddUpperBound", xs, ubs, -1)
}

func (c *Constraints) addBound(op string, xs, bounds []float64, sign float64) error {
	if len(xs) != len(bounds) {
		return smoothing.NewErrorf("%d sample positions but %d bounds", len(xs), len(bounds)).
			WithComponent("spline").WithOperation(op)
	}
	for i := range xs {
		row := make([]float64, c.n)
		seg := segmentOf(c.knots, xs[i])
		basisRow(row, seg, c.order, 0, xs[i]-c.knots[seg])
		if sign < 0 {
			for j := range row {
				row[j] = -row[j]
			}
		}
		c.ineq = append(c.ineq, row)
		c.ineqB = append(c.ineqB, sign*bounds[i])
	}
	return nil
}

// AddPointConstraint requires f(x) = v exactly.
func (c *Constraints) AddPointConstraint(x, v float64) {
	c.addEqualityRow(x, v, 0)
}

// AddPointDerivativeConstraint requires f′(x) = v exactly.
func (c *Constraints) AddPointDerivativeConstraint(x, v float64) {
	c.addEqualityRow(x, v, 1)
}

func (c *Constraints) addEqualityRow(x, v float64, d int) {
	row := make([]float64, c.n)
	seg := segmentOf(c.knots, x)
	basisRow(row, seg, c.order, d, x-c.knots[seg])
	c.eq = append(c.eq, row)
	c.eqB = append(c.eqB, v)
}

// AddSmoothness requires continuity of f and its derivatives up to the
// given order at every interior knot. Derivative orders above the
// polynomial order are ignored.
func (c *Constraints) AddSmoothness(upToDerivative int) {
	if upToDerivative > c.order {
		upToDerivative = c.order
	}
	for seg := 0; seg+1 < len(c.knots)-1; seg++ {
		segLen := c.knots[seg+1] - c.knots[seg]
		for d := 0; d <= upToDerivative; d++ {
			row := make([]float64, c.n)
			basisRow(row, seg, c.order, d, segLen)
			right := make([]float64, c.n)
			basisRow(right, seg+1, c.order, d, 0)
			for j := range row {
				row[j] -= right[j]
			}
			c.eq = append(c.eq, row)
			c.eqB = append(c.eqB, 0)
		}
	}
}

// NumInequality and NumEquality report accumulated row counts.
func (c *Constraints) NumInequality() int { return len(c.ineq) }

// NumEquality reports the accumulated equality row count.
func (c *Constraints) NumEquality() int { return len(c.eq) }

// InequalityMatrix returns the stacked inequality rows.
func (c *Constraints) InequalityMatrix() mat.Matrix {
	return rowsToMatrix(c.ineq, c.n)
}

// InequalityBoundary returns the inequality bounds.
func (c *Constraints) InequalityBoundary() mat.Vector {
	return boundsToVector(c.ineqB)
}

// EqualityMatrix returns the stacked equality rows.
func (c *Constraints) EqualityMatrix() mat.Matrix {
	return rowsToMatrix(c.eq, c.n)
}

// EqualityBoundary returns the equality bounds.
func (c *Constraints) EqualityBoundary() mat.Vector {
	return boundsToVector(c.eqB)
}

func rowsToMatrix(rows [][]float64, n int) mat.Matrix {
	if len(rows) == 0 {
		return zeroMatrix{cols: n}
	}
	m := mat.NewDense(len(rows), n, nil)
	for i, r := range rows {
		m.SetRow(i, r)
	}
	return m
}

func boundsToVector(b []float64) mat.Vector {
	if len(b) == 0 {
		return zeroVector{}
	}
	return mat.NewVecDense(len(b), append([]float64(nil), b...))
}

// zeroMatrix is a matrix with zero rows; gonum cannot represent one with
// mat.Dense.
type zeroMatrix struct{ cols int }

func (z zeroMatrix) Dims() (r, c int)    { return 0, z.cols }
func (z zeroMatrix) At(i, j int) float64 { panic("spline: empty constraint family") }
func (z zeroMatrix) T() mat.Matrix       { return mat.Transpose{Matrix: z} }

type zeroVector struct{}

func (zeroVector) Dims() (r, c int)    { return 0, 1 }
func (zeroVector) At(i, j int) float64 { panic("spline: empty constraint family") }
func (z zeroVector) T() mat.Matrix     { return mat.Transpose{Matrix: z} }
func (zeroVector) Len() int            { return 0 }
func (zeroVector) AtVec(i int) float64 { panic("spline: empty constraint family") }
