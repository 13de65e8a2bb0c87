package admm

import "gonum.org/v1/gonum/mat"

// matrixPool recycles the KKT matrices and work vectors that a session
// reallocates every planning cycle.
type matrixPool struct {
	sym map[int][]*mat.SymDense
	vec map[int][]*mat.VecDense
}

func newMatrixPool() *matrixPool {
	return &matrixPool{
		sym: make(map[int][]*mat.SymDense),
		vec: make(map[int][]*mat.VecDense),
	}
}

func (p *matrixPool) getSymDense(n int) *mat.SymDense {
	if s := p.sym[n]; len(s) > 0 {
		m := s[len(s)-1]
		p.sym[n] = s[:len(s)-1]
		m.Zero()
		return m
	}
	return mat.NewSymDense(n, nil)
}

func (p *matrixPool) putSymDense(m *mat.SymDense) {
	if m == nil {
		return
	}
	n := m.SymmetricDim()
	p.sym[n] = append(p.sym[n], m)
}

func (p *matrixPool) getVecDense(n int) *mat.VecDense {
	if s := p.vec[n]; len(s) > 0 {
		v := s[len(s)-1]
		p.vec[n] = s[:len(s)-1]
		v.Zero()
		return v
	}
	return mat.NewVecDense(n, nil)
}

func (p *matrixPool) putVecDense(v *mat.VecDense) {
	if v == nil {
		return
	}
	p.vec[v.Len()] = append(p.vec[v.Len()], v)
}
