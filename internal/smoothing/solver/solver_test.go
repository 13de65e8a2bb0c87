package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/splineqp/internal/smoothing/qp"
	"github.com/copyleftdev/splineqp/internal/smoothing/spline"
)

type emptyMatrix struct{}

func (emptyMatrix) Dims() (r, c int)    { return 0, 0 }
func (emptyMatrix) At(i, j int) float64 { panic("empty") }
func (m emptyMatrix) T() mat.Matrix     { return m }

type emptyVector struct{ emptyMatrix }

func (emptyVector) Dims() (r, c int)    { return 0, 1 }
func (emptyVector) Len() int            { return 0 }
func (emptyVector) AtVec(i int) float64 { panic("empty") }

type stubKernel struct {
	p mat.Matrix
	q mat.Vector
}

func (k stubKernel) KernelMatrix() mat.Matrix { return k.p }
func (k stubKernel) Offset() mat.Vector       { return k.q }

// stubConstraints carries mutable bounds so a test can perturb the
// problem between cycles.
type stubConstraints struct {
	ineq  *mat.Dense
	ineqB *mat.VecDense
	eq    *mat.Dense
	eqB   *mat.VecDense
}

func (c *stubConstraints) InequalityMatrix() mat.Matrix   { return c.ineq }
func (c *stubConstraints) InequalityBoundary() mat.Vector { return c.ineqB }
func (c *stubConstraints) EqualityMatrix() mat.Matrix     { return c.eq }
func (c *stubConstraints) EqualityBoundary() mat.Vector   { return c.eqB }

func twoParamSpline(t *testing.T) *spline.Spline {
	t.Helper()
	s, err := spline.New([]float64{0, 1}, 1)
	require.NoError(t, err)
	return s
}

func twoParamKernel() stubKernel {
	return stubKernel{
		p: mat.NewDense(2, 2, []float64{2, 0, 0, 2}),
		q: mat.NewVecDense(2, []float64{0, 0}),
	}
}

func twoParamConstraints() *stubConstraints {
	return &stubConstraints{
		ineq:  mat.NewDense(1, 2, []float64{1, 0}),
		ineqB: mat.NewVecDense(1, []float64{0.5}),
		eq:    mat.NewDense(1, 2, []float64{0, 1}),
		eqB:   mat.NewVecDense(1, []float64{1}),
	}
}

// Scenario A: minimize x₁²+x₂² subject to x₁ >= 0.5 and x₂ = 1; the
// committed spline is f(t) = 0.5 + t.
func TestSolveCommitsSolution(t *testing.T) {
	spl := twoParamSpline(t)
	s := NewSpline1dSolver(twoParamKernel(), twoParamConstraints(), spl, DefaultConfig(), nil)
	defer s.Close()

	require.NoError(t, s.Solve())

	res := s.LastResult()
	require.NotNil(t, res)
	assert.Equal(t, qp.StatusSolved, res.Status)
	assert.InDelta(t, 0.5, res.X[0], 1e-3)
	assert.InDelta(t, 1.0, res.X[1], 1e-3)

	require.True(t, spl.Solved())
	assert.InDelta(t, 0.5, spl.Evaluate(0), 1e-3)
	assert.InDelta(t, 1.5, spl.Evaluate(1), 2e-3)
}

// Scenario B: an empty kernel fails the cycle before the engine is ever
// touched and leaves the spline alone.
func TestSolveEmptyKernel(t *testing.T) {
	spl := twoParamSpline(t)
	eng := &spyEngine{}
	k := stubKernel{p: emptyMatrix{}, q: emptyVector{}}
	s := newSpline1dSolverWithEngine(k, twoParamConstraints(), spl, DefaultConfig(), eng)
	defer s.Close()

	err := s.Solve()
	assert.ErrorIs(t, err, ErrNothingToSolve)
	assert.Equal(t, 0, eng.setups, "engine must not be invoked for an empty problem")
	assert.False(t, spl.Solved())
	assert.Nil(t, s.LastResult())
}

func TestSolveEmptyConstraints(t *testing.T) {
	spl := twoParamSpline(t)
	eng := &spyEngine{}
	s := newSpline1dSolverWithEngine(twoParamKernel(), emptyConstraintSet{}, spl, DefaultConfig(), eng)
	defer s.Close()

	err := s.Solve()
	assert.ErrorIs(t, err, ErrNothingToSolve)
	assert.Equal(t, 0, eng.setups)
}

type emptyConstraintSet struct{}

func (emptyConstraintSet) InequalityMatrix() mat.Matrix   { return emptyMatrix{} }
func (emptyConstraintSet) InequalityBoundary() mat.Vector { return emptyVector{} }
func (emptyConstraintSet) EqualityMatrix() mat.Matrix     { return emptyMatrix{} }
func (emptyConstraintSet) EqualityBoundary() mat.Vector   { return emptyVector{} }

// Scenario C: a second cycle on a slightly perturbed problem converges
// in fewer iterations thanks to the warm start.
func TestRepeatedSolveWarmStarts(t *testing.T) {
	spl := twoParamSpline(t)
	cons := twoParamConstraints()
	s := NewSpline1dSolver(twoParamKernel(), cons, spl, DefaultConfig(), nil)
	defer s.Close()

	require.NoError(t, s.Solve())
	cold := s.Session().LastIterations()
	require.Greater(t, cold, 0)

	// Perturb the bounds slightly.
	cons.ineqB.SetVec(0, 0.51)
	cons.eqB.SetVec(0, 1.01)

	require.NoError(t, s.Solve())
	warm := s.Session().LastIterations()
	assert.Less(t, warm, cold)
}

func TestSolveInfeasibleLeavesSplineUntouched(t *testing.T) {
	spl := twoParamSpline(t)
	// Commit known coefficients first.
	require.NoError(t, spl.SetSegments(mat.NewVecDense(2, []float64{7, 8}), 1))

	// x >= 1 and x = -1 cannot both hold.
	cons := &stubConstraints{
		ineq:  mat.NewDense(1, 2, []float64{1, 0}),
		ineqB: mat.NewVecDense(1, []float64{1}),
		eq:    mat.NewDense(1, 2, []float64{1, 0}),
		eqB:   mat.NewVecDense(1, []float64{-1}),
	}
	s := NewSpline1dSolver(twoParamKernel(), cons, spl, DefaultConfig(), nil)
	defer s.Close()

	err := s.Solve()
	assert.Error(t, err)
	assert.Equal(t, []float64{7, 8}, spl.Coefficients(0), "failed solve must not alter the spline")
}

func TestSolveRecordsSessionMetadata(t *testing.T) {
	spl := twoParamSpline(t)
	s := NewSpline1dSolver(twoParamKernel(), twoParamConstraints(), spl, DefaultConfig(), nil)
	defer s.Close()

	require.NoError(t, s.Solve())
	assert.Equal(t, 2, s.Session().LastNumParam())
	assert.Equal(t, 2, s.Session().LastNumConstraint())
	assert.Equal(t, qp.StatusSolved, s.Session().LastStatus())
}

// End-to-end smoothing: fit a smooth curve through samples of y = x with
// joint continuity enforced at the interior knot.
func TestSmoothingEndToEnd(t *testing.T) {
	knots := []float64{0, 1, 2}
	const order = 3

	spl, err := spline.New(knots, order)
	require.NoError(t, err)

	kernel, err := spline.NewKernel(knots, order)
	require.NoError(t, err)
	kernel.AddRegularization(1e-5)
	kernel.AddSecondOrderSmoothing(0.1)
	xs := []float64{0, 0.5, 1, 1.5, 2}
	ys := []float64{0, 0.5, 1, 1.5, 2}
	require.NoError(t, kernel.AddReferencePoints(xs, ys, 10))

	cons, err := spline.NewConstraints(knots, order)
	require.NoError(t, err)
	cons.AddPointConstraint(0, 0)
	cons.AddSmoothness(2)
	require.NoError(t, cons.AddLowerBound([]float64{0, 1, 2}, []float64{-10, -10, -10}))

	s := NewSpline1dSolver(kernel, cons, spl, DefaultConfig(), nil)
	defer s.Close()

	require.NoError(t, s.Solve())
	require.True(t, spl.Solved())

	// The smooth minimizer of the fitting term is the line itself.
	assert.InDelta(t, 0.0, spl.Evaluate(0), 5e-2)
	assert.InDelta(t, 0.75, spl.Evaluate(0.75), 5e-2)
	assert.InDelta(t, 1.5, spl.Evaluate(1.5), 5e-2)

	// Joint continuity at the interior knot.
	left := spl.Evaluate(1 - 1e-9)
	right := spl.Evaluate(1 + 1e-9)
	assert.InDelta(t, left, right, 1e-2)
	assert.InDelta(t, spl.Derivative(1-1e-9, 1), spl.Derivative(1+1e-9, 1), 5e-2)
}
