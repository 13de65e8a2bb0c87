package admm

// Settings fixes the engine configuration for the lifetime of a
// workspace. Values mirror the planner's production configuration.
type Settings struct {
	// Rho is the step size of the constraint splitting. Rows that
	// encode an equality band get Rho*EqualityRhoScale.
	Rho float64

	// Sigma regularizes the KKT system; it keeps the factorization
	// positive definite when P is only semidefinite.
	Sigma float64

	// Alpha is the over-relaxation parameter.
	Alpha float64

	// EpsAbs and EpsRel are the absolute and relative convergence
	// tolerances on the primal and dual residuals.
	EpsAbs float64
	EpsRel float64

	// MaxIter caps the iteration count; the solve can never block
	// indefinitely.
	MaxIter int

	// CheckInterval is how often (in iterations) termination and
	// infeasibility are tested.
	CheckInterval int

	// WarmStart keeps prior iterates usable as the initial guess.
	WarmStart bool

	// Verbose enables per-check debug logging.
	Verbose bool
}

// EqualityRhoScale boosts the step size on near-equality rows
// (u - l below twice the merge epsilon), which otherwise converge slowly.
const EqualityRhoScale = 1e3

// DefaultSettings returns the configuration used by the planning loop:
// loose 1e-3 tolerances, a 5000 iteration cap, warm starting on and
// solver output off.
func DefaultSettings() Settings {
	return Settings{
		Rho:           0.1,
		Sigma:         1e-6,
		Alpha:         1.0,
		EpsAbs:        1e-3,
		EpsRel:        1e-3,
		MaxIter:       5000,
		CheckInterval: 10,
		WarmStart:     true,
		Verbose:       false,
	}
}

// sanitized fills in unset fields so a zero value is still usable.
func (s Settings) sanitized() Settings {
	if s.Rho <= 0 {
		s.Rho = 0.1
	}
	if s.Sigma <= 0 {
		s.Sigma = 1e-6
	}
	if s.Alpha <= 0 || s.Alpha >= 2 {
		s.Alpha = 1.0
	}
	if s.EpsAbs <= 0 {
		s.EpsAbs = 1e-3
	}
	if s.EpsRel < 0 {
		s.EpsRel = 0
	}
	if s.MaxIter <= 0 {
		s.MaxIter = 5000
	}
	if s.CheckInterval <= 0 {
		s.CheckInterval = 10
	}
	return s
}
