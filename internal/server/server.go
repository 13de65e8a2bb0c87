// Package server exposes the spline smoothing service over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/copyleftdev/splineqp/internal/config"
	"github.com/copyleftdev/splineqp/internal/logging"
	"github.com/copyleftdev/splineqp/internal/metrics"
	"github.com/copyleftdev/splineqp/internal/smoothing/qp"
	"github.com/copyleftdev/splineqp/internal/smoothing/solver"
	"github.com/copyleftdev/splineqp/internal/smoothing/spline"
)

// Server handles synchronous smoothing requests. Each request builds its
// own solver, so requests are independent and safe to run concurrently.
type Server struct {
	cfg     *config.Config
	logger  *logging.Logger
	zlog    *zap.Logger
	metrics *metrics.SolveMetrics
}

// NewServer creates a server instance. A nil metrics set disables
// instrumentation.
func NewServer(cfg *config.Config, logger *logging.Logger, m *metrics.SolveMetrics) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger,
		zlog:    logging.NewZapLogger(logger),
		metrics: m,
	}
}

// RegisterRoutes mounts the API routes on the router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/smooth", s.handleSmooth)
	})
}

// Close releases server resources.
func (s *Server) Close() error {
	return nil
}

// smoothRequest describes one smoothing problem. Weights of zero leave
// the corresponding objective term out.
type smoothRequest struct {
	Knots []float64 `json:"knots"`
	Order int       `json:"order"`

	Regularization  float64 `json:"regularization"`
	SmoothingWeight float64 `json:"smoothing_weight"`

	Reference *struct {
		X      []float64 `json:"x"`
		Y      []float64 `json:"y"`
		Weight float64   `json:"weight"`
	} `json:"reference,omitempty"`

	Anchors []struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"anchors,omitempty"`

	DerivativeAnchors []struct {
		X float64 `json:"x"`
		V float64 `json:"v"`
	} `json:"derivative_anchors,omitempty"`

	LowerBounds *boundSet `json:"lower_bounds,omitempty"`
	UpperBounds *boundSet `json:"upper_bounds,omitempty"`

	// Continuity is the highest derivative forced continuous at the
	// interior knots. Negative skips joint constraints entirely.
	Continuity int `json:"continuity"`

	// Samples are positions to evaluate the fitted spline at.
	Samples []float64 `json:"samples,omitempty"`
}

type boundSet struct {
	X     []float64 `json:"x"`
	Bound []float64 `json:"bound"`
}

type smoothResponse struct {
	Status       string      `json:"status"`
	Iterations   int         `json:"iterations"`
	Objective    float64     `json:"objective"`
	Knots        []float64   `json:"knots"`
	Order        int         `json:"order"`
	Coefficients [][]float64 `json:"coefficients"`
	Values       []float64   `json:"values,omitempty"`
}

// handleSmooth runs one synchronous build-assemble-solve cycle and
// answers with the fitted coefficients.
func (s *Server) handleSmooth(w http.ResponseWriter, r *http.Request) {
	var req smoothRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	spl, err := spline.New(req.Knots, req.Order)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	kernel, cons, err := s.buildProblem(&req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := solver.Config{
		EpsAbs:    s.cfg.Solver.EpsAbs,
		EpsRel:    s.cfg.Solver.EpsRel,
		MaxIter:   s.cfg.Solver.MaxIter,
		WarmStart: s.cfg.Solver.WarmStart,
		Verbose:   s.cfg.Solver.Verbose,
	}
	sol := solver.NewSpline1dSolver(kernel, cons, spl, cfg, s.zlog)
	defer sol.Close()

	start := time.Now()
	solveErr := sol.Solve()
	elapsed := time.Since(start)

	status := sol.Session().LastStatus()
	iterations := sol.Session().LastIterations()
	if s.metrics != nil {
		s.metrics.Observe(metricStatus(solveErr, status), elapsed.Seconds(), iterations)
	}

	if solveErr != nil {
		if errors.Is(solveErr, solver.ErrNothingToSolve) {
			s.respondError(w, http.StatusUnprocessableEntity, "nothing to optimize")
			return
		}
		s.logger.Error("smoothing solve failed", map[string]interface{}{
			"error":      solveErr.Error(),
			"status":     status.String(),
			"iterations": iterations,
		})
		s.respondError(w, http.StatusUnprocessableEntity, solveErr.Error())
		return
	}

	resp := smoothResponse{
		Status:     status.String(),
		Iterations: iterations,
		Knots:      spl.Knots(),
		Order:      spl.Order(),
	}
	if res := sol.LastResult(); res != nil {
		resp.Objective = res.Objective
	}
	for seg := 0; seg < spl.NumSegments(); seg++ {
		resp.Coefficients = append(resp.Coefficients, spl.Coefficients(seg))
	}
	for _, x := range req.Samples {
		resp.Values = append(resp.Values, spl.Evaluate(x))
	}

	s.logger.Info("smoothing solve finished", map[string]interface{}{
		"status":     resp.Status,
		"iterations": iterations,
		"latency_ms": float64(elapsed.Microseconds()) / 1000.0,
		"num_param":  sol.Session().LastNumParam(),
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// buildProblem translates the request into kernel and constraint
// accumulators.
func (s *Server) buildProblem(req *smoothRequest) (*spline.Kernel, *spline.Constraints, error) {
	kernel, err := spline.NewKernel(req.Knots, req.Order)
	if err != nil {
		return nil, nil, err
	}
	if req.Regularization > 0 {
		kernel.AddRegularization(req.Regularization)
	}
	if req.SmoothingWeight > 0 {
		kernel.AddSecondOrderSmoothing(req.SmoothingWeight)
	}
	if req.Reference != nil && req.Reference.Weight > 0 {
		if err := kernel.AddReferencePoints(req.Reference.X, req.Reference.Y, req.Reference.Weight); err != nil {
			return nil, nil, err
		}
	}

	cons, err := spline.NewConstraints(req.Knots, req.Order)
	if err != nil {
		return nil, nil, err
	}
	for _, a := range req.Anchors {
		cons.AddPointConstraint(a.X, a.Y)
	}
	for _, a := range req.DerivativeAnchors {
		cons.AddPointDerivativeConstraint(a.X, a.V)
	}
	if req.LowerBounds != nil {
		if err := cons.AddLowerBound(req.LowerBounds.X, req.LowerBounds.Bound); err != nil {
			return nil, nil, err
		}
	}
	if req.UpperBounds != nil {
		if err := cons.AddUpperBound(req.UpperBounds.X, req.UpperBounds.Bound); err != nil {
			return nil, nil, err
		}
	}
	if req.Continuity >= 0 {
		cons.AddSmoothness(req.Continuity)
	}
	return kernel, cons, nil
}

func metricStatus(err error, status qp.Status) string {
	if err != nil && errors.Is(err, solver.ErrNothingToSolve) {
		return "empty"
	}
	return status.String()
}

func (s *Server) respondError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
