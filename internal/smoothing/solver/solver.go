// Package solver manages the lifecycle of spline smoothing solves: it
// assembles the QP problem, drives the engine session, and commits the
// optimized coefficients back into the spline.
package solver

import (
	"errors"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/splineqp/internal/smoothing"
	"github.com/copyleftdev/splineqp/internal/smoothing/qp"
	"github.com/copyleftdev/splineqp/internal/smoothing/spline"
)

// ErrNothingToSolve reports an empty kernel or constraint system; the
// caller skips the planning cycle. It wraps qp.ErrEmptyProblem.
var ErrNothingToSolve = qp.ErrEmptyProblem

// Spline1dSolver runs one synchronous build-assemble-solve-commit cycle
// per call. On any failure the spline keeps its previous coefficients.
type Spline1dSolver struct {
	kernel  qp.Kernel
	cons    qp.ConstraintSet
	spline  *spline.Spline
	session *Session
	logger  *zap.Logger

	lastResult *qp.Result
}

// NewSpline1dSolver creates a solver over the given collaborators with
// its own session. A nil logger disables logging.
func NewSpline1dSolver(kernel qp.Kernel, cons qp.ConstraintSet, spl *spline.Spline, cfg Config, logger *zap.Logger) *Spline1dSolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Spline1dSolver{
		kernel:  kernel,
		cons:    cons,
		spline:  spl,
		session: NewSession(cfg, nil, logger),
		logger:  logger.Named("spline1d_solver"),
	}
}

// newSpline1dSolverWithEngine is the test seam for injecting an engine.
func newSpline1dSolverWithEngine(kernel qp.Kernel, cons qp.ConstraintSet, spl *spline.Spline, cfg Config, eng Engine) *Spline1dSolver {
	return &Spline1dSolver{
		kernel:  kernel,
		cons:    cons,
		spline:  spl,
		session: NewSession(cfg, eng, nil),
		logger:  zap.NewNop(),
	}
}

// Solve runs one planning cycle. An empty problem returns
// ErrNothingToSolve (wrapped); an infeasible or unbounded problem is a
// hard failure. A max-iteration result is committed best-effort; callers
// needing strict optimality must inspect LastResult.
func (s *Spline1dSolver) Solve() error {
	const op = "Solve"

	s.lastResult = nil

	prob, err := qp.Build(s.kernel, s.cons)
	if err != nil {
		if errors.Is(err, qp.ErrEmptyProblem) {
			return err
		}
		return smoothing.WrapError(err, "problem assembly failed").
			WithComponent("solver").WithOperation(op)
	}

	if err := s.session.Setup(prob); err != nil {
		return err
	}
	defer s.session.Teardown()

	res, err := s.session.Solve()
	if err != nil {
		return err
	}
	s.lastResult = res

	if !res.Status.Usable() {
		return smoothing.NewErrorf("solver reported %s", res.Status).
			WithComponent("solver").WithOperation(op)
	}
	if res.Status == qp.StatusMaxIterReached {
		s.logger.Warn("iteration budget exhausted, committing best-effort solution",
			zap.Int("iterations", res.Iterations),
			zap.Float64("prim_res", res.PrimRes),
		)
	}

	return s.commit(res.X, prob.N)
}

// commit copies the first n solution entries into a column vector and
// hands it to the spline with its declared order.
func (s *Spline1dSolver) commit(x []float64, n int) error {
	const op = "commit"

	if len(x) < n {
		return smoothing.NewErrorf("solution has %d entries, want %d", len(x), n).
			WithComponent("solver").WithOperation(op)
	}

	coeffs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		coeffs.SetVec(i, x[i])
	}
	if err := s.spline.SetSegments(coeffs, s.spline.Order()); err != nil {
		return smoothing.WrapError(err, "coefficient commit rejected").
			WithComponent("solver").WithOperation(op)
	}
	return nil
}

// LastResult returns the engine result of the most recent successful
// solve, or nil if the last cycle failed before solving.
func (s *Spline1dSolver) LastResult() *qp.Result {
	return s.lastResult
}

// Session exposes the underlying session for telemetry.
func (s *Spline1dSolver) Session() *Session {
	return s.session
}

// Spline returns the spline collaborator.
func (s *Spline1dSolver) Spline() *spline.Spline {
	return s.spline
}

// Close releases the session.
func (s *Spline1dSolver) Close() error {
	return s.session.Close()
}
