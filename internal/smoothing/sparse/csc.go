// Package sparse implements the compressed-sparse-column matrix form used to
// hand problem data to the QP engine.
package sparse

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DropTol is the magnitude below which a dense entry is treated as a
// structural zero during conversion. It sits far below the solver
// tolerances (1e-3), so no meaningful data is filtered.
const DropTol = 1e-12

// CSC is a sparse matrix in compressed-sparse-column form.
//
// Invariants: len(Indptr) == Cols+1, Indptr is non-decreasing,
// Indptr[Cols] == len(Data) == len(Indices). Row indices are strictly
// increasing within each column.
type CSC struct {
	Rows, Cols int

	// Data holds the nonzero values, column by column.
	Data []float64
	// Indices holds the row index of each value in Data.
	Indices []int
	// Indptr[j]..Indptr[j+1] is the range of Data belonging to column j.
	Indptr []int
}

// FromDense converts a dense matrix into CSC form, scanning columns left to
// right and emitting entries in row order within each column. Entries with
// magnitude at or below DropTol are omitted.
func FromDense(m mat.Matrix) *CSC {
	rows, cols := m.Dims()

	c := &CSC{
		Rows:   rows,
		Cols:   cols,
		Indptr: make([]int, cols+1),
	}

	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			v := m.At(i, j)
			if math.Abs(v) <= DropTol {
				continue
			}
			c.Data = append(c.Data, v)
			c.Indices = append(c.Indices, i)
		}
		c.Indptr[j+1] = len(c.Data)
	}

	return c
}

// Nnz returns the number of stored entries.
func (c *CSC) Nnz() int {
	return len(c.Data)
}

// Dims returns the matrix dimensions.
func (c *CSC) Dims() (r, cols int) {
	return c.Rows, c.Cols
}

// Validate checks the structural invariants of the CSC form.
func (c *CSC) Validate() error {
	if c.Rows < 0 || c.Cols < 0 {
		return fmt.Errorf("sparse: negative dimensions %dx%d", c.Rows, c.Cols)
	}
	if len(c.Indptr) != c.Cols+1 {
		return fmt.Errorf("sparse: indptr length %d, want %d", len(c.Indptr), c.Cols+1)
	}
	if len(c.Data) != len(c.Indices) {
		return fmt.Errorf("sparse: %d values but %d row indices", len(c.Data), len(c.Indices))
	}
	if c.Indptr[0] != 0 {
		return fmt.Errorf("sparse: indptr[0] = %d, want 0", c.Indptr[0])
	}
	if c.Indptr[c.Cols] != len(c.Data) {
		return fmt.Errorf("sparse: indptr[%d] = %d, want nnz %d", c.Cols, c.Indptr[c.Cols], len(c.Data))
	}
	for j := 0; j < c.Cols; j++ {
		if c.Indptr[j] > c.Indptr[j+1] {
			return fmt.Errorf("sparse: indptr decreases at column %d", j)
		}
		prev := -1
		for k := c.Indptr[j]; k < c.Indptr[j+1]; k++ {
			i := c.Indices[k]
			if i < 0 || i >= c.Rows {
				return fmt.Errorf("sparse: row index %d out of range in column %d", i, j)
			}
			if i <= prev {
				return fmt.Errorf("sparse: row indices not increasing in column %d", j)
			}
			prev = i
		}
	}
	return nil
}

// ToDense reconstructs the dense form. Entries dropped during conversion
// come back as zero.
func (c *CSC) ToDense() *mat.Dense {
	d := mat.NewDense(c.Rows, c.Cols, nil)
	for j := 0; j < c.Cols; j++ {
		for k := c.Indptr[j]; k < c.Indptr[j+1]; k++ {
			d.Set(c.Indices[k], j, c.Data[k])
		}
	}
	return d
}

// MulVec computes dst = C*x.
func (c *CSC) MulVec(dst, x []float64) {
	if len(x) != c.Cols {
		panic("sparse: dimension mismatch")
	}
	if len(dst) != c.Rows {
		panic("sparse: dimension mismatch")
	}
	for i := range dst {
		dst[i] = 0
	}
	for j := 0; j < c.Cols; j++ {
		xj := x[j]
		for k := c.Indptr[j]; k < c.Indptr[j+1]; k++ {
			dst[c.Indices[k]] += c.Data[k] * xj
		}
	}
}

// MulTransVec computes dst = Cᵀ*x.
func (c *CSC) MulTransVec(dst, x []float64) {
	if len(x) != c.Rows {
		panic("sparse: dimension mismatch")
	}
	if len(dst) != c.Cols {
		panic("sparse: dimension mismatch")
	}
	for j := 0; j < c.Cols; j++ {
		var sum float64
		for k := c.Indptr[j]; k < c.Indptr[j+1]; k++ {
			sum += c.Data[k] * x[c.Indices[k]]
		}
		dst[j] = sum
	}
}
