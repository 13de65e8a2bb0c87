package qp

import (
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/splineqp/internal/smoothing"
)

const (
	// Epsilon is the half-width of the band used to express an equality
	// row as l <= a·x <= u. Exact equality makes the solver numerically
	// infeasible under floating-point rounding.
	Epsilon = 1e-9

	// Unbounded stands in for +inf on inequality rows.
	Unbounded = 1e9
)

// Merge stacks the inequality constraint rows above the equality rows and
// produces the unified bound vectors: inequality rows get
// [bound, Unbounded], equality rows get [bound-Epsilon, bound+Epsilon].
//
// Both matrices must share a column count, and each boundary vector must
// match its matrix's row count.
func Merge(ineq mat.Matrix, ineqBound mat.Vector, eq mat.Matrix, eqBound mat.Vector) (*mat.Dense, []float64, []float64, error) {
	const op = "Merge"

	ineqRows, ineqCols := ineq.Dims()
	eqRows, eqCols := eq.Dims()

	if ineqRows > 0 && eqRows > 0 && ineqCols != eqCols {
		err := smoothing.NewErrorf("inequality has %d columns, equality has %d", ineqCols, eqCols)
		return nil, nil, nil, err.WithComponent("qp").WithOperation(op)
	}
	if ineqBound.Len() != ineqRows {
		err := smoothing.NewErrorf("inequality has %d rows but boundary length %d", ineqRows, ineqBound.Len())
		return nil, nil, nil, err.WithComponent("qp").WithOperation(op)
	}
	if eqBound.Len() != eqRows {
		err := smoothing.NewErrorf("equality has %d rows but boundary length %d", eqRows, eqBound.Len())
		return nil, nil, nil, err.WithComponent("qp").WithOperation(op)
	}

	rows := ineqRows + eqRows
	cols := ineqCols
	if cols == 0 {
		cols = eqCols
	}
	if rows == 0 || cols == 0 {
		return nil, nil, nil, smoothing.NewError("no constraint rows").
			WithComponent("qp").WithOperation(op)
	}

	a := mat.NewDense(rows, cols, nil)
	l := make([]float64, rows)
	u := make([]float64, rows)

	for i := 0; i < ineqRows; i++ {
		for j := 0; j < cols; j++ {
			a.Set(i, j, ineq.At(i, j))
		}
		l[i] = ineqBound.AtVec(i)
		u[i] = Unbounded
	}
	for i := 0; i < eqRows; i++ {
		for j := 0; j < cols; j++ {
			a.Set(ineqRows+i, j, eq.At(i, j))
		}
		b := eqBound.AtVec(i)
		l[ineqRows+i] = b - Epsilon
		u[ineqRows+i] = b + Epsilon
	}

	return a, l, u, nil
}
