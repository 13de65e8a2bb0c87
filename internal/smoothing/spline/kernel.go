package spline

import (
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/splineqp/internal/smoothing"
)

// Kernel accumulates quadratic smoothing and fitting objectives into the
// dense cost term ½cᵀPc + qᵀc over the spline coefficients. It
// implements qp.Kernel.
type Kernel struct {
	knots []float64
	order int
	n     int

	p *mat.Dense
	q *mat.VecDense
}

// NewKernel creates an empty cost accumulator for a spline over the
// given knots and order.
func NewKernel(knots []float64, order int) (*Kernel, error) {
	s, err := New(knots, order)
	if err != nil {
		return nil, err
	}

	n := s.NumParams()
	return &Kernel{
		knots: s.Knots(),
		order: order,
		n:     n,
		p:     mat.NewDense(n, n, nil),
		q:     mat.NewVecDense(n, nil),
	}, nil
}

// NumParams returns the width of the cost term.
func (k *Kernel) NumParams() int {
	return k.n
}

// KernelMatrix returns the accumulated P.
func (k *Kernel) KernelMatrix() mat.Matrix {
	return k.p
}

// Offset returns the accumulated q.
func (k *Kernel) Offset() mat.Vector {
	return k.q
}

// AddRegularization adds w·‖c‖² to the objective, nudging unconstrained
// coefficients toward zero and keeping P positive definite.
func (k *Kernel) AddRegularization(w float64) {
	for i := 0; i < k.n; i++ {
		k.p.Set(i, i, k.p.At(i, i)+2*w)
	}
}

// AddSecondOrderSmoothing adds w·∫(f″)² over every segment. For the
// power basis the Gram integral over a segment of length d is
//
//	∫₀ᵈ tⁱ⁻² tʲ⁻² i(i-1) j(j-1) dt = i(i-1) j(j-1) d^(i+j-3) / (i+j-3)
//
// for i, j >= 2.
func (k *Kernel) AddSecondOrderSmoothing(w float64) {
	perSeg := k.order + 1
	for seg := 0; seg < len(k.knots)-1; seg++ {
		d := k.knots[seg+1] - k.knots[seg]
		base := seg * perSeg
		for i := 2; i <= k.order; i++ {
			for j := 2; j <= k.order; j++ {
				g := derivFactor(i, 2) * derivFactor(j, 2) *
					intPow(d, i+j-3) / float64(i+j-3)
				r, c := base+i, base+j
				k.p.Set(r, c, k.p.At(r, c)+2*w*g)
			}
		}
	}
}

// AddReferencePoints adds w·Σ(f(xᵢ)-yᵢ)², the fitting term pulling the
// spline toward the reference samples.
func (k *Kernel) AddReferencePoints(xs, ys []float64, w float64) error {
	const op = "Kernel.AddReferencePoints"

	if len(xs) != len(ys) {
		return smoothing.NewErrorf("%d sample positions but %d values", len(xs), len(ys)).
			WithComponent("spline").WithOperation(op)
	}

	row := make([]float64, k.n)
	for s := range xs {
		for i := range row {
			row[i] = 0
		}
		seg := segmentOf(k.knots, xs[s])
		basisRow(row, seg, k.order, 0, xs[s]-k.knots[seg])

		for i := 0; i < k.n; i++ {
			if row[i] == 0 {
				continue
			}
			for j := 0; j < k.n; j++ {
				if row[j] == 0 {
					continue
				}
				k.p.Set(i, j, k.p.At(i, j)+2*w*row[i]*row[j])
			}
			k.q.SetVec(i, k.q.AtVec(i)-2*w*ys[s]*row[i])
		}
	}
	return nil
}

// segmentOf locates the segment containing x over a knot slice.
func segmentOf(knots []float64, x float64) int {
	seg := 0
	for seg < len(knots)-2 && x >= knots[seg+1] {
		seg++
	}
	return seg
}

// intPow computes base^e for small non-negative integer exponents.
func intPow(base float64, e int) float64 {
	p := 1.0
	for i := 0; i < e; i++ {
		p *= base
	}
	return p
}
