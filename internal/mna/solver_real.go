package mna

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// RealFactorization wraps a gonum dense LU factorization for the float64
// (time-domain/EMT) solve path, per the domain-stack decision to use
// gonum.org/v1/gonum/mat for real-domain dense linear algebra rather than
// the hand-rolled GenericLU (which remains the complex128 path, since
// gonum/mat has no complex matrix type).
type RealFactorization struct {
	lu mat.LU
	n  int
}

// FactorizeReal factors a real system matrix for repeated reuse across
// simulation steps at a fixed switch state.
func FactorizeReal(m *Matrix[float64]) (*RealFactorization, error) {
	if m.Rows != m.Cols {
		return nil, &NumericError{Msg: fmt.Sprintf("mna: matrix is %dx%d, LU requires square", m.Rows, m.Cols)}
	}
	dense := mat.NewDense(m.Rows, m.Cols, nil)
	for i := 0; i < m.Rows; i++ {
		for j := 0; j < m.Cols; j++ {
			dense.Set(i, j, m.At(i, j))
		}
	}
	var lu mat.LU
	lu.Factorize(dense)
	return &RealFactorization{lu: lu, n: m.Rows}, nil
}

// Solve returns x such that A*x = b.
func (f *RealFactorization) Solve(b Vector[float64]) (Vector[float64], error) {
	if len(b) != f.n {
		return nil, &NumericError{Msg: fmt.Sprintf("mna: right-hand side has length %d, want %d", len(b), f.n)}
	}
	rhs := mat.NewVecDense(f.n, b)
	var x mat.VecDense
	if err := f.lu.SolveVecTo(&x, false, rhs); err != nil {
		return nil, &NumericError{Msg: fmt.Sprintf("mna: real solve failed: %v", err)}
	}
	out := make(Vector[float64], f.n)
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out, nil
}
