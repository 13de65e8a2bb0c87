package solver

import (
	"go.uber.org/zap"

	"github.com/copyleftdev/splineqp/internal/smoothing"
	"github.com/copyleftdev/splineqp/internal/smoothing/qp"
)

// Session owns the engine configuration and the per-solve workspace
// across planning cycles. The workspace and the problem backing it are
// exclusively owned by the session: Setup releases any previous
// workspace before binding a new one, and Teardown is safe to call on
// every exit path.
//
// A session is not safe for concurrent use; the caller runs one
// Setup → Solve → Teardown sequence at a time.
type Session struct {
	cfg    Config
	eng    Engine
	logger *zap.Logger

	// Working state. prob is held alongside ws because the workspace
	// references the problem's CSC backing arrays.
	ws   Workspace
	prob *qp.Problem

	// Warm-start carry-over, kept across teardowns.
	lastX []float64
	lastY []float64

	// Telemetry from the previous cycle.
	lastStatus        qp.Status
	lastIterations    int
	lastNumParam      int
	lastNumConstraint int
}

// NewSession creates a session with the given fixed configuration. A
// nil engine selects the production ADMM engine; a nil logger disables
// logging.
func NewSession(cfg Config, eng Engine, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if eng == nil {
		eng = NewADMMEngine(logger)
	}
	return &Session{
		cfg:    cfg,
		eng:    eng,
		logger: logger.Named("session"),
	}
}

// Setup binds a problem to a fresh workspace, tearing down any previous
// one first. When warm starting is enabled and the previous solution
// matches the new problem's shape, the workspace is seeded with it.
func (s *Session) Setup(prob *qp.Problem) error {
	const op = "Setup"

	s.Teardown()

	ws, err := s.eng.Setup(prob, s.cfg)
	if err != nil {
		return smoothing.WrapError(err, "engine setup failed").
			WithComponent("solver").WithOperation(op)
	}
	s.ws = ws
	s.prob = prob
	s.lastNumParam = prob.N
	s.lastNumConstraint = prob.M

	if s.cfg.WarmStart && len(s.lastX) == prob.N && len(s.lastY) == prob.M {
		if err := ws.WarmStart(s.lastX, s.lastY); err != nil {
			// The problem changed shape semantics under us; a cold
			// start is always correct.
			s.logger.Debug("warm start rejected, starting cold", zap.Error(err))
		}
	}
	return nil
}

// Solve runs the engine synchronously. It requires a prior Setup and is
// bounded by the configured iteration cap.
func (s *Session) Solve() (*qp.Result, error) {
	const op = "Solve"

	if s.ws == nil {
		return nil, smoothing.NewError("no workspace bound; Setup must precede Solve").
			WithComponent("solver").WithOperation(op)
	}

	res, err := s.ws.Solve()
	if err != nil {
		return nil, smoothing.WrapError(err, "engine solve failed").
			WithComponent("solver").WithOperation(op)
	}

	s.lastStatus = res.Status
	s.lastIterations = res.Iterations
	if res.Status.Usable() {
		s.lastX = append(s.lastX[:0], res.X...)
		s.lastY = append(s.lastY[:0], s.ws.Duals()...)
	}

	s.logger.Debug("solve finished",
		zap.String("status", res.Status.String()),
		zap.Int("iterations", res.Iterations),
		zap.Float64("prim_res", res.PrimRes),
		zap.Float64("dual_res", res.DualRes),
	)
	return res, nil
}

// Teardown releases the workspace and the problem reference. It is
// idempotent and must run once per Setup before the next Setup; Close
// and the solver's defer discipline guarantee that.
func (s *Session) Teardown() {
	if s.ws == nil {
		return
	}
	s.ws.Free()
	s.ws = nil
	s.prob = nil
}

// Reset re-initializes the session's data containers without touching a
// workspace. It only applies to an already-torn-down session; calling it
// with a live workspace is a lifecycle error.
func (s *Session) Reset() error {
	const op = "Reset"

	if s.ws != nil {
		return smoothing.NewError("cannot reset a session with a live workspace").
			WithComponent("solver").WithOperation(op)
	}
	s.lastX = nil
	s.lastY = nil
	s.lastStatus = 0
	s.lastIterations = 0
	s.lastNumParam = 0
	s.lastNumConstraint = 0
	return nil
}

// Close tears the session down; it satisfies the owner's destruction
// path.
func (s *Session) Close() error {
	s.Teardown()
	return nil
}

// LastStatus returns the status of the previous solve.
func (s *Session) LastStatus() qp.Status { return s.lastStatus }

// LastIterations returns the iteration count of the previous solve.
func (s *Session) LastIterations() int { return s.lastIterations }

// LastNumParam returns the parameter count of the previous problem.
func (s *Session) LastNumParam() int { return s.lastNumParam }

// LastNumConstraint returns the constraint count of the previous
// problem.
func (s *Session) LastNumConstraint() int { return s.lastNumConstraint }
