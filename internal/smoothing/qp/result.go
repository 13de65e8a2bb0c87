package qp

// Status is the terminal state reported by the solver engine.
type Status int

const (
	// StatusSolved means the iterate satisfied the convergence
	// tolerances.
	StatusSolved Status = iota
	// StatusMaxIterReached means the iteration budget ran out; the
	// returned solution is best-effort and unverified.
	StatusMaxIterReached
	// StatusInfeasible means a primal infeasibility certificate was
	// found; there is no usable solution.
	StatusInfeasible
	// StatusUnbounded means a dual infeasibility certificate was found.
	StatusUnbounded
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSolved:
		return "solved"
	case StatusMaxIterReached:
		return "max_iter_reached"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	default:
		return "unknown"
	}
}

// Usable reports whether X may be committed. A max-iteration result is
// usable but unverified; callers needing strict optimality must check
// the status itself.
func (s Status) Usable() bool {
	return s == StatusSolved || s == StatusMaxIterReached
}

// Result holds the outcome of one solve.
type Result struct {
	Status Status

	// X is the primal solution (length N). Nil when the status is not
	// usable.
	X []float64

	// Iterations is the number of ADMM iterations performed.
	Iterations int

	// PrimRes and DualRes are the final residual norms.
	PrimRes float64
	DualRes float64

	// Objective is ½xᵀPx + qᵀx at X, zero when X is nil.
	Objective float64
}
