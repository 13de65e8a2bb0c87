package spline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		knots   []float64
		order   int
		wantErr bool
	}{
		{name: "valid", knots: []float64{0, 1, 2}, order: 3, wantErr: false},
		{name: "single knot", knots: []float64{0}, order: 3, wantErr: true},
		{name: "decreasing knots", knots: []float64{0, 2, 1}, order: 3, wantErr: true},
		{name: "duplicate knots", knots: []float64{0, 1, 1}, order: 3, wantErr: true},
		{name: "zero order", knots: []float64{0, 1}, order: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.knots, tt.order)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplineDims(t *testing.T) {
	s, err := New([]float64{0, 1, 2, 4}, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, s.NumSegments())
	assert.Equal(t, 3, s.Order())
	assert.Equal(t, 12, s.NumParams())
}

func TestSetSegmentsValidation(t *testing.T) {
	s, err := New([]float64{0, 1}, 2)
	require.NoError(t, err)

	// Wrong order.
	err = s.SetSegments(mat.NewVecDense(3, []float64{1, 2, 3}), 3)
	assert.Error(t, err)
	assert.False(t, s.Solved())

	// Wrong length.
	err = s.SetSegments(mat.NewVecDense(2, []float64{1, 2}), 2)
	assert.Error(t, err)
	assert.False(t, s.Solved())

	// Nil coefficients.
	err = s.SetSegments(nil, 2)
	assert.Error(t, err)
	assert.False(t, s.Solved())

	// Valid commit.
	err = s.SetSegments(mat.NewVecDense(3, []float64{1, 2, 3}), 2)
	require.NoError(t, err)
	assert.True(t, s.Solved())
	assert.Equal(t, []float64{1, 2, 3}, s.Coefficients(0))
}

func TestEvaluateKnownPolynomial(t *testing.T) {
	// Single segment f(t) = 1 + 2t + 3t².
	s, err := New([]float64{0, 2}, 2)
	require.NoError(t, err)
	require.NoError(t, s.SetSegments(mat.NewVecDense(3, []float64{1, 2, 3}), 2))

	assert.InDelta(t, 1.0, s.Evaluate(0), 1e-12)
	assert.InDelta(t, 6.0, s.Evaluate(1), 1e-12)
	assert.InDelta(t, 17.0, s.Evaluate(2), 1e-12)

	// f'(t) = 2 + 6t, f''(t) = 6.
	assert.InDelta(t, 2.0, s.Derivative(0, 1), 1e-12)
	assert.InDelta(t, 8.0, s.Derivative(1, 1), 1e-12)
	assert.InDelta(t, 6.0, s.Derivative(1.5, 2), 1e-12)
}

func TestEvaluateSegmentSelection(t *testing.T) {
	// Two constant-ish segments with different values.
	s, err := New([]float64{0, 1, 2}, 1)
	require.NoError(t, err)
	// Segment 0: f = 5, segment 1: f = 7 + t.
	require.NoError(t, s.SetSegments(mat.NewVecDense(4, []float64{5, 0, 7, 1}), 1))

	assert.InDelta(t, 5.0, s.Evaluate(0.5), 1e-12)
	assert.InDelta(t, 7.5, s.Evaluate(1.5), 1e-12)
	// Knot x=1 belongs to the right segment's local origin.
	assert.InDelta(t, 7.0, s.Evaluate(1.0), 1e-12)
}

func TestKernelRegularization(t *testing.T) {
	k, err := NewKernel([]float64{0, 1}, 2)
	require.NoError(t, err)

	k.AddRegularization(0.5)
	p := k.KernelMatrix()
	for i := 0; i < k.NumParams(); i++ {
		assert.InDelta(t, 1.0, p.At(i, i), 1e-12)
	}
}

func TestKernelSecondOrderSmoothing(t *testing.T) {
	// One segment of length 1, order 2: only c2 contributes,
	// w * ∫(2 c2)² dt = 4 w c2², so P[2][2] = 8w.
	k, err := NewKernel([]float64{0, 1}, 2)
	require.NoError(t, err)

	k.AddSecondOrderSmoothing(1.0)
	p := k.KernelMatrix()
	assert.InDelta(t, 8.0, p.At(2, 2), 1e-12)
	assert.InDelta(t, 0.0, p.At(0, 0), 1e-12)
	assert.InDelta(t, 0.0, p.At(1, 1), 1e-12)
}

func TestKernelReferencePoints(t *testing.T) {
	// One linear segment, one sample at t=0 with value 3:
	// w (c0 - 3)² → P[0][0] = 2w, q[0] = -6w.
	k, err := NewKernel([]float64{0, 1}, 1)
	require.NoError(t, err)

	require.NoError(t, k.AddReferencePoints([]float64{0}, []float64{3}, 1.0))
	assert.InDelta(t, 2.0, k.KernelMatrix().At(0, 0), 1e-12)
	assert.InDelta(t, -6.0, k.Offset().AtVec(0), 1e-12)

	// Length mismatch is rejected.
	assert.Error(t, k.AddReferencePoints([]float64{0, 1}, []float64{3}, 1.0))
}

func TestConstraintsBounds(t *testing.T) {
	c, err := NewConstraints([]float64{0, 1}, 1)
	require.NoError(t, err)

	require.NoError(t, c.AddLowerBound([]float64{0.5}, []float64{2}))
	require.NoError(t, c.AddUpperBound([]float64{0.5}, []float64{4}))
	assert.Equal(t, 2, c.NumInequality())

	m := c.InequalityMatrix()
	b := c.InequalityBoundary()

	// Lower bound row: basis [1, 0.5], bound 2.
	assert.InDelta(t, 1.0, m.At(0, 0), 1e-12)
	assert.InDelta(t, 0.5, m.At(0, 1), 1e-12)
	assert.InDelta(t, 2.0, b.AtVec(0), 1e-12)

	// Upper bound row is negated: [-1, -0.5] >= -4.
	assert.InDelta(t, -1.0, m.At(1, 0), 1e-12)
	assert.InDelta(t, -0.5, m.At(1, 1), 1e-12)
	assert.InDelta(t, -4.0, b.AtVec(1), 1e-12)
}

func TestConstraintsPointAndSmoothness(t *testing.T) {
	c, err := NewConstraints([]float64{0, 1, 2}, 2)
	require.NoError(t, err)

	c.AddPointConstraint(0, 1)
	c.AddPointDerivativeConstraint(0, 0)
	c.AddSmoothness(1)

	// 2 point rows + (C0, C1) at the single interior knot.
	assert.Equal(t, 4, c.NumEquality())

	m := c.EqualityMatrix()
	rows, cols := m.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 6, cols)

	// C0 row at knot 1: [1, 1, 1, -1, 0, 0].
	assert.InDelta(t, 1.0, m.At(2, 0), 1e-12)
	assert.InDelta(t, 1.0, m.At(2, 1), 1e-12)
	assert.InDelta(t, 1.0, m.At(2, 2), 1e-12)
	assert.InDelta(t, -1.0, m.At(2, 3), 1e-12)
	assert.InDelta(t, 0.0, m.At(2, 4), 1e-12)

	// C1 row at knot 1: [0, 1, 2, 0, -1, 0].
	assert.InDelta(t, 0.0, m.At(3, 0), 1e-12)
	assert.InDelta(t, 1.0, m.At(3, 1), 1e-12)
	assert.InDelta(t, 2.0, m.At(3, 2), 1e-12)
	assert.InDelta(t, -1.0, m.At(3, 4), 1e-12)
}

func TestConstraintsEmptyFamilies(t *testing.T) {
	c, err := NewConstraints([]float64{0, 1}, 1)
	require.NoError(t, err)

	rows, cols := c.InequalityMatrix().Dims()
	assert.Equal(t, 0, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, 0, c.InequalityBoundary().Len())

	rows, _ = c.EqualityMatrix().Dims()
	assert.Equal(t, 0, rows)
}
