// Package admm implements the operator-splitting QP engine behind the
// session manager. It solves
//
//	minimize    ½ xᵀPx + qᵀx
//	subject to  l <= Ax <= u
//
// by alternating a KKT solve with a projection onto the bound box,
// the same splitting used by OSQP-style solvers.
package admm

import (
	"errors"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/splineqp/internal/smoothing"
	"github.com/copyleftdev/splineqp/internal/smoothing/qp"
)

// ErrFreed reports use of a workspace after Free.
var ErrFreed = errors.New("admm: workspace has been freed")

// Engine creates workspaces. It owns a matrix pool shared by the
// workspaces it sets up, so repeated solves in a control loop reuse the
// KKT allocation.
type Engine struct {
	pool   *matrixPool
	logger *zap.Logger
}

// NewEngine returns an engine that logs through the given zap logger.
// A nil logger disables logging.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		pool:   newMatrixPool(),
		logger: logger.Named("admm"),
	}
}

// Workspace holds the per-solve state: the factorized KKT system, the
// iterates and the scratch vectors. It references the problem's CSC
// backing arrays, so the problem must stay alive until Free.
type Workspace struct {
	eng  *Engine
	prob *qp.Problem
	set  Settings

	// rho is per-row: equality bands get a boosted step size.
	rho []float64

	chol *mat.Cholesky

	x, y, z []float64
	xPrev   []float64
	yPrev   []float64

	// scratch
	xTilde, rhs *mat.VecDense
	ax, px, aty []float64

	iters int
	freed bool
}

// Setup validates the problem, forms the KKT matrix P + σI + AᵀRA and
// factorizes it. The returned workspace starts from the zero iterate;
// use WarmStart to seed it.
func (e *Engine) Setup(prob *qp.Problem, set Settings) (*Workspace, error) {
	const op = "Setup"

	if prob == nil {
		return nil, smoothing.NewError("nil problem").WithComponent("admm").WithOperation(op)
	}
	if err := prob.Validate(); err != nil {
		return nil, smoothing.WrapError(err, "invalid problem").WithComponent("admm").WithOperation(op)
	}
	set = set.sanitized()

	n, m := prob.N, prob.M

	rho := make([]float64, m)
	for i := 0; i < m; i++ {
		rho[i] = set.Rho
		if prob.U[i]-prob.L[i] <= 2*qp.Epsilon {
			rho[i] = set.Rho * EqualityRhoScale
		}
	}

	chol, err := e.factorizeKKT(prob, set.Sigma, rho)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("workspace ready",
		zap.Int("params", n),
		zap.Int("constraints", m),
		zap.Int("p_nnz", prob.P.Nnz()),
		zap.Int("a_nnz", prob.A.Nnz()),
	)

	return &Workspace{
		eng:    e,
		prob:   prob,
		set:    set,
		rho:    rho,
		chol:   chol,
		x:      make([]float64, n),
		y:      make([]float64, m),
		z:      make([]float64, m),
		xPrev:  make([]float64, n),
		yPrev:  make([]float64, m),
		xTilde: e.pool.getVecDense(n),
		rhs:    e.pool.getVecDense(n),
		ax:     make([]float64, m),
		px:     make([]float64, n),
		aty:    make([]float64, n),
	}, nil
}

// factorizeKKT builds P + σI + AᵀRA and Cholesky-factorizes it, retrying
// with growing diagonal jitter when the factorization fails.
func (e *Engine) factorizeKKT(prob *qp.Problem, sigma float64, rho []float64) (*mat.Cholesky, error) {
	const op = "factorizeKKT"

	n := prob.N
	kkt := e.pool.getSymDense(n)
	defer e.pool.putSymDense(kkt)

	p := prob.P
	for j := 0; j < n; j++ {
		for k := p.Indptr[j]; k < p.Indptr[j+1]; k++ {
			i := p.Indices[k]
			if i <= j {
				kkt.SetSym(i, j, p.Data[k])
			}
		}
	}

	// AᵀRA, column pair by column pair; A's row indices are sorted, so a
	// two-pointer merge finds the shared rows.
	a := prob.A
	for j1 := 0; j1 < n; j1++ {
		for j2 := j1; j2 < n; j2++ {
			k1, k2 := a.Indptr[j1], a.Indptr[j2]
			end1, end2 := a.Indptr[j1+1], a.Indptr[j2+1]
			var sum float64
			for k1 < end1 && k2 < end2 {
				r1, r2 := a.Indices[k1], a.Indices[k2]
				switch {
				case r1 < r2:
					k1++
				case r1 > r2:
					k2++
				default:
					sum += rho[r1] * a.Data[k1] * a.Data[k2]
					k1++
					k2++
				}
			}
			if sum != 0 {
				kkt.SetSym(j1, j2, kkt.At(j1, j2)+sum)
			}
		}
	}

	jitter := sigma
	for attempt := 0; attempt < 8; attempt++ {
		trial := mat.NewSymDense(n, nil)
		trial.CopySym(kkt)
		for i := 0; i < n; i++ {
			trial.SetSym(i, i, trial.At(i, i)+jitter)
		}

		var chol mat.Cholesky
		if chol.Factorize(trial) {
			if attempt > 0 {
				e.logger.Debug("KKT factorized with extra jitter",
					zap.Int("attempt", attempt),
					zap.Float64("jitter", jitter),
				)
			}
			return &chol, nil
		}
		jitter *= 100
	}

	return nil, smoothing.NewError("KKT matrix could not be factorized").
		WithComponent("admm").WithOperation(op)
}

// WarmStart seeds the primal and dual iterates. Lengths must match the
// problem shape.
func (w *Workspace) WarmStart(x, y []float64) error {
	const op = "WarmStart"

	if w.freed {
		return ErrFreed
	}
	if len(x) != w.prob.N || len(y) != w.prob.M {
		return smoothing.NewErrorf("warm start shape (%d,%d), want (%d,%d)",
			len(x), len(y), w.prob.N, w.prob.M).WithComponent("admm").WithOperation(op)
	}
	copy(w.x, x)
	copy(w.y, y)
	w.prob.A.MulVec(w.z, w.x)
	for i := range w.z {
		w.z[i] = clamp(w.z[i], w.prob.L[i], w.prob.U[i])
	}
	return nil
}

// Solve runs the ADMM iteration to convergence or to the iteration cap.
// It only errors on lifecycle misuse; infeasibility and the iteration
// cap are reported through the result status.
func (w *Workspace) Solve() (*qp.Result, error) {
	if w.freed {
		return nil, ErrFreed
	}

	prob, set := w.prob, w.set
	n, m := prob.N, prob.M

	for iter := 1; iter <= set.MaxIter; iter++ {
		copy(w.xPrev, w.x)
		copy(w.yPrev, w.y)

		// rhs = σx - q + Aᵀ(Rz - y)
		for i := 0; i < m; i++ {
			w.ax[i] = w.rho[i]*w.z[i] - w.y[i]
		}
		prob.A.MulTransVec(w.aty, w.ax)
		for i := 0; i < n; i++ {
			w.rhs.SetVec(i, set.Sigma*w.x[i]-prob.Q[i]+w.aty[i])
		}

		if err := w.chol.SolveVecTo(w.xTilde, w.rhs); err != nil {
			return nil, smoothing.WrapError(err, "KKT solve failed").
				WithComponent("admm").WithOperation("Solve")
		}

		// Relaxed primal update.
		for i := 0; i < n; i++ {
			w.x[i] = set.Alpha*w.xTilde.AtVec(i) + (1-set.Alpha)*w.xPrev[i]
			w.px[i] = w.xTilde.AtVec(i)
		}

		// z and y updates with projection onto [l, u], relaxing against
		// the previous z iterate.
		prob.A.MulVec(w.ax, w.px)
		for i := 0; i < m; i++ {
			relaxed := set.Alpha*w.ax[i] + (1-set.Alpha)*w.z[i]
			zNew := clamp(relaxed+w.y[i]/w.rho[i], prob.L[i], prob.U[i])
			w.y[i] += w.rho[i] * (relaxed - zNew)
			w.z[i] = zNew
		}

		w.iters = iter

		if iter%set.CheckInterval != 0 && iter != set.MaxIter {
			continue
		}

		primRes, dualRes, primTol, dualTol := w.residuals()
		if set.Verbose {
			w.eng.logger.Debug("check",
				zap.Int("iter", iter),
				zap.Float64("prim_res", primRes),
				zap.Float64("dual_res", dualRes),
			)
		}

		if primRes <= primTol && dualRes <= dualTol {
			if w.polish() {
				primRes, dualRes, _, _ = w.residuals()
			}
			return w.result(qp.StatusSolved, primRes, dualRes), nil
		}
		if status, ok := w.certifyInfeasible(); ok {
			res := w.result(status, primRes, dualRes)
			res.X = nil
			res.Objective = 0
			return res, nil
		}
	}

	primRes, dualRes, _, _ := w.residuals()
	return w.result(qp.StatusMaxIterReached, primRes, dualRes), nil
}

// polishDelta regularizes the polish KKT system; duplicate or dependent
// active rows would otherwise make it singular. It doubles as the dual
// threshold for active-set detection: strictly inactive rows carry an
// exactly zero dual.
const polishDelta = 1e-6

// polish re-solves the KKT system restricted to the active constraint
// rows, the way high-accuracy solvers recover a precise solution from a
// loosely converged iterate. Without it, a 1e-3 residual tolerance can
// leave the solution itself about 2e-3 off at unit scale. The polished
// iterate is adopted only when it is feasible and improves on the
// current residuals.
func (w *Workspace) polish() bool {
	prob := w.prob
	n, m := prob.N, prob.M

	// Active rows: equality bands always, inequality rows by dual sign.
	var rows []int
	var target []float64
	for i := 0; i < m; i++ {
		switch {
		case prob.U[i]-prob.L[i] <= 2*qp.Epsilon:
			rows = append(rows, i)
			target = append(target, (prob.L[i]+prob.U[i])/2)
		case w.y[i] < -polishDelta:
			rows = append(rows, i)
			target = append(target, prob.L[i])
		case w.y[i] > polishDelta:
			rows = append(rows, i)
			target = append(target, prob.U[i])
		}
	}
	if len(rows) == 0 {
		return false
	}
	k := len(rows)

	pos := make(map[int]int, k)
	for r, i := range rows {
		pos[i] = r
	}

	// [ P    Aactᵀ ] [x]   [  -q  ]
	// [ Aact  -δI  ] [y] = [target]
	kkt := mat.NewDense(n+k, n+k, nil)
	for j := 0; j < n; j++ {
		for p := prob.P.Indptr[j]; p < prob.P.Indptr[j+1]; p++ {
			kkt.Set(prob.P.Indices[p], j, prob.P.Data[p])
		}
	}
	for j := 0; j < n; j++ {
		for p := prob.A.Indptr[j]; p < prob.A.Indptr[j+1]; p++ {
			if r, ok := pos[prob.A.Indices[p]]; ok {
				kkt.Set(n+r, j, prob.A.Data[p])
				kkt.Set(j, n+r, prob.A.Data[p])
			}
		}
	}
	for r := 0; r < k; r++ {
		kkt.Set(n+r, n+r, -polishDelta)
	}

	rhs := mat.NewVecDense(n+k, nil)
	for j := 0; j < n; j++ {
		rhs.SetVec(j, -prob.Q[j])
	}
	for r := 0; r < k; r++ {
		rhs.SetVec(n+r, target[r])
	}

	var sol mat.VecDense
	if err := sol.SolveVec(kkt, rhs); err != nil {
		return false
	}

	// One step of iterative refinement against the unregularized system:
	// the -δ block is a factorization aid, not part of the optimality
	// conditions.
	var ks mat.VecDense
	ks.MulVec(kkt, &sol)
	resid := mat.NewVecDense(n+k, nil)
	for i := 0; i < n+k; i++ {
		resid.SetVec(i, rhs.AtVec(i)-ks.AtVec(i))
	}
	for r := 0; r < k; r++ {
		resid.SetVec(n+r, resid.AtVec(n+r)-polishDelta*sol.AtVec(n+r))
	}
	var corr mat.VecDense
	if err := corr.SolveVec(kkt, resid); err == nil {
		sol.AddVec(&sol, &corr)
	}

	x := make([]float64, n)
	for j := 0; j < n; j++ {
		x[j] = sol.AtVec(j)
	}
	y := make([]float64, m)
	for r, i := range rows {
		y[i] = sol.AtVec(n + r)
	}

	ax := make([]float64, m)
	z := make([]float64, m)
	prob.A.MulVec(ax, x)
	var primRes float64
	for i := 0; i < m; i++ {
		z[i] = clamp(ax[i], prob.L[i], prob.U[i])
		primRes = math.Max(primRes, math.Abs(ax[i]-z[i]))
	}

	px := make([]float64, n)
	aty := make([]float64, n)
	prob.P.MulVec(px, x)
	prob.A.MulTransVec(aty, y)
	var dualRes float64
	for j := 0; j < n; j++ {
		dualRes = math.Max(dualRes, math.Abs(px[j]+prob.Q[j]+aty[j]))
	}

	curPrim, curDual, _, _ := w.residuals()
	if primRes > w.set.EpsAbs || math.Max(primRes, dualRes) > math.Max(curPrim, curDual) {
		return false
	}

	copy(w.x, x)
	copy(w.y, y)
	copy(w.z, z)
	return true
}

// residuals computes the primal/dual residual norms and their scaled
// tolerances.
func (w *Workspace) residuals() (primRes, dualRes, primTol, dualTol float64) {
	prob, set := w.prob, w.set

	prob.A.MulVec(w.ax, w.x)
	prob.P.MulVec(w.px, w.x)
	prob.A.MulTransVec(w.aty, w.y)

	var axNorm, zNorm float64
	for i := range w.ax {
		primRes = math.Max(primRes, math.Abs(w.ax[i]-w.z[i]))
		axNorm = math.Max(axNorm, math.Abs(w.ax[i]))
		zNorm = math.Max(zNorm, math.Abs(w.z[i]))
	}

	var pxNorm, atyNorm, qNorm float64
	for i := range w.px {
		dualRes = math.Max(dualRes, math.Abs(w.px[i]+prob.Q[i]+w.aty[i]))
		pxNorm = math.Max(pxNorm, math.Abs(w.px[i]))
		atyNorm = math.Max(atyNorm, math.Abs(w.aty[i]))
		qNorm = math.Max(qNorm, math.Abs(prob.Q[i]))
	}

	primTol = set.EpsAbs + set.EpsRel*math.Max(axNorm, zNorm)
	dualTol = set.EpsAbs + set.EpsRel*math.Max(pxNorm, math.Max(atyNorm, qNorm))
	return primRes, dualRes, primTol, dualTol
}

// certifyInfeasible tests the iterate deltas for primal and dual
// infeasibility certificates.
func (w *Workspace) certifyInfeasible() (qp.Status, bool) {
	prob := w.prob
	n, m := prob.N, prob.M
	const eps = 1e-4

	// Primal: δy with Aᵀδy ≈ 0 and uᵀ(δy)₊ + lᵀ(δy)₋ < 0.
	dy := make([]float64, m)
	var dyNorm float64
	for i := 0; i < m; i++ {
		dy[i] = w.y[i] - w.yPrev[i]
		dyNorm = math.Max(dyNorm, math.Abs(dy[i]))
	}
	if dyNorm > 1e-10 {
		atdy := make([]float64, n)
		prob.A.MulTransVec(atdy, dy)
		var atdyNorm, support float64
		for j := 0; j < n; j++ {
			atdyNorm = math.Max(atdyNorm, math.Abs(atdy[j]))
		}
		for i := 0; i < m; i++ {
			if dy[i] > 0 {
				support += prob.U[i] * dy[i]
			} else {
				support += prob.L[i] * dy[i]
			}
		}
		if atdyNorm <= eps*dyNorm && support < -eps*dyNorm {
			return qp.StatusInfeasible, true
		}
	}

	// Dual: δx with Pδx ≈ 0, qᵀδx < 0 and Aδx in the recession cone.
	dx := make([]float64, n)
	var dxNorm float64
	for j := 0; j < n; j++ {
		dx[j] = w.x[j] - w.xPrev[j]
		dxNorm = math.Max(dxNorm, math.Abs(dx[j]))
	}
	if dxNorm > 1e-10 {
		pdx := make([]float64, n)
		adx := make([]float64, m)
		prob.P.MulVec(pdx, dx)
		prob.A.MulVec(adx, dx)

		var pdxNorm, qdx float64
		for j := 0; j < n; j++ {
			pdxNorm = math.Max(pdxNorm, math.Abs(pdx[j]))
			qdx += prob.Q[j] * dx[j]
		}
		cone := true
		for i := 0; i < m; i++ {
			if prob.U[i] < qp.Unbounded && adx[i] > eps*dxNorm {
				cone = false
				break
			}
			if prob.L[i] > -qp.Unbounded && adx[i] < -eps*dxNorm {
				cone = false
				break
			}
		}
		if pdxNorm <= eps*dxNorm && qdx < -eps*dxNorm && cone {
			return qp.StatusUnbounded, true
		}
	}

	return 0, false
}

func (w *Workspace) result(status qp.Status, primRes, dualRes float64) *qp.Result {
	x := make([]float64, w.prob.N)
	copy(x, w.x)

	w.prob.P.MulVec(w.px, x)
	var obj float64
	for i := range x {
		obj += 0.5*x[i]*w.px[i] + w.prob.Q[i]*x[i]
	}

	return &qp.Result{
		Status:     status,
		X:          x,
		Iterations: w.iters,
		PrimRes:    primRes,
		DualRes:    dualRes,
		Objective:  obj,
	}
}

// Iterations returns the iteration count of the last solve.
func (w *Workspace) Iterations() int {
	return w.iters
}

// Duals returns the dual iterate; the session keeps it for warm starts.
func (w *Workspace) Duals() []float64 {
	y := make([]float64, len(w.y))
	copy(y, w.y)
	return y
}

// Free releases the workspace and returns its pooled storage. It is
// idempotent; a freed workspace rejects further use.
func (w *Workspace) Free() {
	if w.freed {
		return
	}
	w.freed = true
	w.eng.pool.putVecDense(w.xTilde)
	w.eng.pool.putVecDense(w.rhs)
	w.xTilde = nil
	w.rhs = nil
	w.chol = nil
	w.prob = nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
