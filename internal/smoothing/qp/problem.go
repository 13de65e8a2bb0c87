// Package qp assembles the sparse quadratic-programming problem
//
//	minimize    ½ xᵀPx + qᵀx
//	subject to  l <= Ax <= u
//
// from the dense cost and constraint data produced by the spline
// generators.
package qp

import (
	"errors"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/splineqp/internal/smoothing"
	"github.com/copyleftdev/splineqp/internal/smoothing/sparse"
)

// ErrEmptyProblem reports that there is nothing to optimize this cycle:
// the kernel or the merged constraint system has zero rows. It is a
// recoverable state, not a bug; callers skip the cycle.
var ErrEmptyProblem = errors.New("qp: nothing to optimize")

// Kernel produces the quadratic cost term ½xᵀPx + qᵀx.
type Kernel interface {
	// KernelMatrix returns the symmetric positive-semidefinite cost
	// matrix P (n x n).
	KernelMatrix() mat.Matrix
	// Offset returns the linear cost vector q (length n).
	Offset() mat.Vector
}

// ConstraintSet produces the inequality (a·x >= bound) and equality
// (a·x = bound) constraint families.
type ConstraintSet interface {
	InequalityMatrix() mat.Matrix
	InequalityBoundary() mat.Vector
	EqualityMatrix() mat.Matrix
	EqualityBoundary() mat.Vector
}

// Problem is the immutable sparse problem handed to the solver engine.
// It owns the backing arrays of P and A for as long as any workspace set
// up from it is alive.
type Problem struct {
	// N is the number of parameters, M the number of constraint rows.
	N, M int

	P *sparse.CSC
	Q []float64
	A *sparse.CSC
	L []float64
	U []float64
}

// Build assembles a Problem from the kernel and constraint collaborators.
// It returns ErrEmptyProblem (possibly wrapped) when the kernel or the
// merged constraint system is empty, and never mutates its inputs.
func Build(kernel Kernel, cons ConstraintSet) (*Problem, error) {
	const op = "Build"

	p := kernel.KernelMatrix()
	n, pCols := p.Dims()
	if n == 0 {
		return nil, ErrEmptyProblem
	}
	if n != pCols {
		err := smoothing.NewErrorf("cost matrix is %dx%d, want square", n, pCols)
		return nil, err.WithComponent("qp").WithOperation(op)
	}

	q := kernel.Offset()
	if q.Len() != n {
		err := smoothing.NewErrorf("offset length %d, want %d", q.Len(), n)
		return nil, err.WithComponent("qp").WithOperation(op)
	}

	ineqRows, _ := cons.InequalityMatrix().Dims()
	eqRows, _ := cons.EqualityMatrix().Dims()
	if ineqRows+eqRows == 0 {
		return nil, ErrEmptyProblem
	}

	a, l, u, err := Merge(cons.InequalityMatrix(), cons.InequalityBoundary(),
		cons.EqualityMatrix(), cons.EqualityBoundary())
	if err != nil {
		return nil, err
	}

	m, aCols := a.Dims()
	if aCols != n {
		err := smoothing.NewErrorf("constraints have %d columns but %d parameters", aCols, n)
		return nil, err.WithComponent("qp").WithOperation(op)
	}

	qCopy := make([]float64, n)
	for i := 0; i < n; i++ {
		qCopy[i] = q.AtVec(i)
	}

	prob := &Problem{
		N: n,
		M: m,
		P: sparse.FromDense(p),
		Q: qCopy,
		A: sparse.FromDense(a),
		L: l,
		U: u,
	}
	if err := prob.Validate(); err != nil {
		return nil, err
	}
	return prob, nil
}

// Validate checks the cross-shape invariants asserted before the problem
// is handed to the engine.
func (p *Problem) Validate() error {
	const op = "Problem.Validate"

	fail := func(msg string) error {
		return smoothing.NewError(msg).WithComponent("qp").WithOperation(op)
	}

	if p.N <= 0 || p.M <= 0 {
		return fail("empty problem")
	}
	if err := p.P.Validate(); err != nil {
		return smoothing.WrapError(err, "cost matrix").WithComponent("qp").WithOperation(op)
	}
	if err := p.A.Validate(); err != nil {
		return smoothing.WrapError(err, "constraint matrix").WithComponent("qp").WithOperation(op)
	}
	if p.P.Rows != p.N || p.P.Cols != p.N {
		return fail("cost matrix shape does not match parameter count")
	}
	if p.A.Cols != p.N {
		return fail("constraint columns do not match parameter count")
	}
	if p.A.Rows != p.M {
		return fail("constraint rows do not match constraint count")
	}
	if len(p.Q) != p.N {
		return fail("offset length does not match parameter count")
	}
	if len(p.L) != p.M || len(p.U) != p.M {
		return fail("bound lengths do not match constraint count")
	}
	for i := range p.L {
		if p.L[i] > p.U[i] {
			return fail("lower bound exceeds upper bound")
		}
	}
	return nil
}
