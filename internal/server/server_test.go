package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/splineqp/internal/config"
	"github.com/copyleftdev/splineqp/internal/logging"
	"github.com/copyleftdev/splineqp/internal/metrics"
)

func testConfig() *config.Config {
	cfg := &config.Config{Environment: "test"}
	cfg.Solver.EpsAbs = 1e-3
	cfg.Solver.EpsRel = 1e-3
	cfg.Solver.MaxIter = 5000
	cfg.Solver.WarmStart = true
	return cfg
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := logging.New(logging.ErrorLevel, io.Discard)
	srv := NewServer(testConfig(), logger, metrics.NewSolveMetrics(nil))

	r := chi.NewRouter()
	srv.RegisterRoutes(r)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func postSmooth(t *testing.T, ts *httptest.Server, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/v1/smooth", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestSmoothEndpoint(t *testing.T) {
	ts := testServer(t)

	resp, out := postSmooth(t, ts, `{
		"knots": [0, 1, 2],
		"order": 3,
		"regularization": 1e-5,
		"smoothing_weight": 0.1,
		"reference": {"x": [0, 0.5, 1, 1.5, 2], "y": [0, 0.5, 1, 1.5, 2], "weight": 10},
		"anchors": [{"x": 0, "y": 0}],
		"continuity": 2,
		"samples": [0.75, 1.5]
	}`)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "solved", out["status"])
	assert.Greater(t, out["iterations"], float64(0))

	coeffs, ok := out["coefficients"].([]interface{})
	require.True(t, ok)
	assert.Len(t, coeffs, 2)
	assert.Len(t, coeffs[0], 4)

	values, ok := out["values"].([]interface{})
	require.True(t, ok)
	require.Len(t, values, 2)
	assert.InDelta(t, 0.75, values[0].(float64), 5e-2)
	assert.InDelta(t, 1.5, values[1].(float64), 5e-2)
}

func TestSmoothEndpointBadJSON(t *testing.T) {
	ts := testServer(t)

	resp, out := postSmooth(t, ts, `{"knots": [0, 1`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out["error"], "invalid request body")
}

func TestSmoothEndpointInvalidSpline(t *testing.T) {
	ts := testServer(t)

	// Knots must be strictly increasing.
	resp, _ := postSmooth(t, ts, `{"knots": [1, 1], "order": 3}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSmoothEndpointEmptyProblem(t *testing.T) {
	ts := testServer(t)

	// No objective terms and no constraints.
	resp, out := postSmooth(t, ts, `{"knots": [0, 1], "order": 2, "continuity": -1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "nothing to optimize", out["error"])
}

func TestSmoothEndpointInfeasible(t *testing.T) {
	ts := testServer(t)

	// f(0.5) must be both >= 1 and <= -1.
	resp, out := postSmooth(t, ts, `{
		"knots": [0, 1],
		"order": 2,
		"regularization": 1e-5,
		"lower_bounds": {"x": [0.5], "bound": [1]},
		"upper_bounds": {"x": [0.5], "bound": [-1]},
		"continuity": -1
	}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, out["error"], "infeasible")
}
