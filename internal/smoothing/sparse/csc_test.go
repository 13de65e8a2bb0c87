package sparse

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestFromDenseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		rows int
		cols int
		data []float64
	}{
		{
			name: "dense block",
			rows: 3,
			cols: 3,
			data: []float64{
				1, 2, 3,
				4, 5, 6,
				7, 8, 9,
			},
		},
		{
			name: "diagonal",
			rows: 3,
			cols: 3,
			data: []float64{
				2, 0, 0,
				0, 2, 0,
				0, 0, 2,
			},
		},
		{
			name: "rectangular with zero column",
			rows: 2,
			cols: 4,
			data: []float64{
				1, 0, 0, -3,
				0, 0, 0, 4,
			},
		},
		{
			name: "all zeros",
			rows: 2,
			cols: 2,
			data: []float64{0, 0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mat.NewDense(tt.rows, tt.cols, tt.data)
			c := FromDense(d)

			require.NoError(t, c.Validate())
			assert.Len(t, c.Indptr, tt.cols+1)
			assert.Equal(t, c.Nnz(), c.Indptr[tt.cols])

			back := c.ToDense()
			for i := 0; i < tt.rows; i++ {
				for j := 0; j < tt.cols; j++ {
					assert.Equal(t, d.At(i, j), back.At(i, j), "entry (%d,%d)", i, j)
				}
			}
		})
	}
}

func TestFromDenseColumnOrder(t *testing.T) {
	// [1 0 2; 0 3 0; 4 0 5] in CSC:
	// values 1,4,3,2,5 / rows 0,2,1,0,2 / indptr 0,2,3,5
	d := mat.NewDense(3, 3, []float64{
		1, 0, 2,
		0, 3, 0,
		4, 0, 5,
	})
	c := FromDense(d)

	assert.Equal(t, []float64{1, 4, 3, 2, 5}, c.Data)
	assert.Equal(t, []int{0, 2, 1, 0, 2}, c.Indices)
	assert.Equal(t, []int{0, 2, 3, 5}, c.Indptr)
}

func TestFromDenseDropsNearZero(t *testing.T) {
	d := mat.NewDense(2, 2, []float64{
		1, DropTol / 2,
		-DropTol / 2, 2,
	})
	c := FromDense(d)

	assert.Equal(t, 2, c.Nnz())
	back := c.ToDense()
	assert.Equal(t, 0.0, back.At(0, 1))
	assert.Equal(t, 0.0, back.At(1, 0))
}

// emptyMatrix is a mat.Matrix with zero rows and columns; gonum cannot
// construct a zero-sized Dense directly.
type emptyMatrix struct{}

func (emptyMatrix) Dims() (r, c int)    { return 0, 0 }
func (emptyMatrix) At(i, j int) float64 { panic("empty") }
func (m emptyMatrix) T() mat.Matrix     { return m }

func TestFromDenseEmpty(t *testing.T) {
	c := FromDense(emptyMatrix{})
	require.NoError(t, c.Validate())
	assert.Equal(t, 0, c.Nnz())
	assert.Equal(t, []int{0}, c.Indptr)
}

func TestMulVec(t *testing.T) {
	d := mat.NewDense(2, 3, []float64{
		1, 0, 2,
		0, 3, -1,
	})
	c := FromDense(d)

	x := []float64{1, 2, 3}
	dst := make([]float64, 2)
	c.MulVec(dst, x)
	assert.InDelta(t, 7.0, dst[0], 1e-14)
	assert.InDelta(t, 3.0, dst[1], 1e-14)

	xt := []float64{1, -1}
	dstT := make([]float64, 3)
	c.MulTransVec(dstT, xt)
	assert.InDelta(t, 1.0, dstT[0], 1e-14)
	assert.InDelta(t, -3.0, dstT[1], 1e-14)
	assert.InDelta(t, 3.0, dstT[2], 1e-14)
}

func TestMulVecDimensionPanics(t *testing.T) {
	c := FromDense(mat.NewDense(2, 2, []float64{1, 0, 0, 1}))

	assert.Panics(t, func() { c.MulVec(make([]float64, 2), make([]float64, 3)) })
	assert.Panics(t, func() { c.MulTransVec(make([]float64, 3), make([]float64, 2)) })
}

func TestValidateRejectsCorruptIndptr(t *testing.T) {
	c := FromDense(mat.NewDense(2, 2, []float64{1, 2, 3, 4}))
	c.Indptr[1] = 3 // decreasing w.r.t. indptr[2]=4? make it inconsistent
	c.Indptr[2] = 2
	assert.Error(t, c.Validate())
}

func TestRoundTripRandomPattern(t *testing.T) {
	// Deterministic sparse-ish pattern without pulling in a rng.
	rows, cols := 7, 5
	d := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if (i+2*j)%3 == 0 {
				d.Set(i, j, math.Sin(float64(i*cols+j+1)))
			}
		}
	}

	c := FromDense(d)
	require.NoError(t, c.Validate())
	back := c.ToDense()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			assert.Equal(t, d.At(i, j), back.At(i, j))
		}
	}
}
