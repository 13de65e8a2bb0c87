package solver

import (
	"go.uber.org/zap"

	"github.com/copyleftdev/splineqp/internal/smoothing/admm"
	"github.com/copyleftdev/splineqp/internal/smoothing/qp"
)

// Engine is the external QP capability the session drives. The
// production engine is the admm package; tests substitute spies.
type Engine interface {
	Setup(prob *qp.Problem, cfg Config) (Workspace, error)
}

// Workspace is one bound problem instance. It is exclusively owned by
// the session that set it up and must be freed before the next Setup.
type Workspace interface {
	Solve() (*qp.Result, error)
	WarmStart(x, y []float64) error
	Duals() []float64
	Free()
}

// admmEngine adapts the admm package to the Engine interface.
type admmEngine struct {
	eng *admm.Engine
}

// NewADMMEngine wraps the operator-splitting engine. A nil logger
// disables engine logging.
func NewADMMEngine(logger *zap.Logger) Engine {
	return &admmEngine{eng: admm.NewEngine(logger)}
}

func (a *admmEngine) Setup(prob *qp.Problem, cfg Config) (Workspace, error) {
	set := admm.DefaultSettings()
	set.EpsAbs = cfg.EpsAbs
	set.EpsRel = cfg.EpsRel
	set.MaxIter = cfg.MaxIter
	set.WarmStart = cfg.WarmStart
	set.Verbose = cfg.Verbose

	return a.eng.Setup(prob, set)
}
