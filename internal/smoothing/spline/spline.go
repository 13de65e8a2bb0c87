// Package spline holds the one-dimensional piecewise-polynomial spline
// and the generators that turn smoothing objectives and geometric
// requirements into QP cost and constraint data.
package spline

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/splineqp/internal/smoothing"
)

// Spline is a piecewise polynomial over a strictly increasing knot
// sequence. Each of the len(knots)-1 segments carries order+1
// coefficients in the local variable t = x - knot[i].
type Spline struct {
	knots []float64
	order int
	segs  *mat.Dense // one row of coefficients per segment, nil until solved
}

// New creates a spline over the given knots with the given polynomial
// order (degree). At least two knots are required and they must be
// strictly increasing.
func New(knots []float64, order int) (*Spline, error) {
	const op = "New"

	if len(knots) < 2 {
		return nil, smoothing.NewErrorf("need at least 2 knots, got %d", len(knots)).
			WithComponent("spline").WithOperation(op)
	}
	if order < 1 {
		return nil, smoothing.NewErrorf("order must be at least 1, got %d", order).
			WithComponent("spline").WithOperation(op)
	}
	for i := 1; i < len(knots); i++ {
		if knots[i] <= knots[i-1] {
			return nil, smoothing.NewError("knots must be strictly increasing").
				WithComponent("spline").WithOperation(op)
		}
	}

	return &Spline{
		knots: append([]float64(nil), knots...),
		order: order,
	}, nil
}

// Order returns the polynomial order (degree) of each segment.
func (s *Spline) Order() int {
	return s.order
}

// NumSegments returns the number of polynomial pieces.
func (s *Spline) NumSegments() int {
	return len(s.knots) - 1
}

// NumParams returns the total coefficient count across segments.
func (s *Spline) NumParams() int {
	return s.NumSegments() * (s.order + 1)
}

// Knots returns a copy of the knot sequence.
func (s *Spline) Knots() []float64 {
	return append([]float64(nil), s.knots...)
}

// SetSegments commits a solved coefficient vector into the segments.
// The order must match the spline's declared order and the vector must
// hold exactly NumParams entries; on any mismatch the spline is left
// untouched.
func (s *Spline) SetSegments(coeffs *mat.VecDense, order int) error {
	const op = "SetSegments"

	if order != s.order {
		return smoothing.NewErrorf("coefficient order %d, spline order %d", order, s.order).
			WithComponent("spline").WithOperation(op)
	}
	if coeffs == nil || coeffs.Len() != s.NumParams() {
		got := 0
		if coeffs != nil {
			got = coeffs.Len()
		}
		return smoothing.NewErrorf("got %d coefficients, want %d", got, s.NumParams()).
			WithComponent("spline").WithOperation(op)
	}

	perSeg := s.order + 1
	segs := mat.NewDense(s.NumSegments(), perSeg, nil)
	for i := 0; i < s.NumSegments(); i++ {
		for j := 0; j < perSeg; j++ {
			segs.Set(i, j, coeffs.AtVec(i*perSeg+j))
		}
	}
	s.segs = segs
	return nil
}

// Solved reports whether coefficients have been committed.
func (s *Spline) Solved() bool {
	return s.segs != nil
}

// Coefficients returns the committed coefficients of one segment, or nil
// if the spline is unsolved.
func (s *Spline) Coefficients(seg int) []float64 {
	if s.segs == nil || seg < 0 || seg >= s.NumSegments() {
		return nil
	}
	return mat.Row(nil, seg, s.segs)
}

// Evaluate returns the spline value at x. Outside the knot range the
// boundary segment is extrapolated. The spline must be solved.
func (s *Spline) Evaluate(x float64) float64 {
	return s.derivative(x, 0)
}

// Derivative returns the d-th derivative at x.
func (s *Spline) Derivative(x float64, d int) float64 {
	return s.derivative(x, d)
}

func (s *Spline) derivative(x float64, d int) float64 {
	if s.segs == nil {
		return 0
	}
	seg := s.segmentIndex(x)
	t := x - s.knots[seg]

	var sum float64
	for j := s.order; j >= d; j-- {
		c := s.segs.At(seg, j) * derivFactor(j, d)
		sum = sum*t + c
	}
	return sum
}

// segmentIndex locates the segment whose half-open interval
// [knot[i], knot[i+1]) contains x, clamping to the boundary segments.
func (s *Spline) segmentIndex(x float64) int {
	i := sort.Search(len(s.knots), func(j int) bool { return s.knots[j] > x }) - 1
	if i < 0 {
		i = 0
	}
	if i >= s.NumSegments() {
		i = s.NumSegments() - 1
	}
	return i
}

// derivFactor returns j!/(j-d)!, the power-basis derivative coefficient.
func derivFactor(j, d int) float64 {
	f := 1.0
	for k := 0; k < d; k++ {
		f *= float64(j - k)
	}
	return f
}

// basisRow fills row with the d-th derivative of the power basis at the
// local coordinate t of segment seg. row has length numParams.
func basisRow(row []float64, seg, order, d int, t float64) {
	perSeg := order + 1
	pow := 1.0
	for j := d; j <= order; j++ {
		row[seg*perSeg+j] = derivFactor(j, d) * pow
		pow *= t
	}
}
