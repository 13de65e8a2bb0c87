package solver

// Config is the immutable solver configuration, fixed when a session is
// constructed. The zero value is not useful; start from DefaultConfig.
type Config struct {
	// EpsAbs and EpsRel are the convergence tolerances handed to the
	// engine.
	EpsAbs float64
	EpsRel float64

	// MaxIter caps the engine's iteration budget.
	MaxIter int

	// WarmStart seeds each Setup with the previous solution when the
	// problem shape is unchanged. Purely a performance optimization.
	WarmStart bool

	// Verbose enables engine debug output.
	Verbose bool
}

// DefaultConfig mirrors the planner's production settings: loose 1e-3
// tolerances, a 5000 iteration cap, warm starting on and verbosity off.
func DefaultConfig() Config {
	return Config{
		EpsAbs:    1e-3,
		EpsRel:    1e-3,
		MaxIter:   5000,
		WarmStart: true,
		Verbose:   false,
	}
}
