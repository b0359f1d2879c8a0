package mna

import (
	"fmt"
	"math"
)

// NumericError reports a failure in the linear-algebra core, such as a
// singular matrix encountered during factorization.
type NumericError struct {
	Msg string
}

func (e *NumericError) Error() string { return e.Msg }

// GenericLU is a partial-pivot LU factorization over any Number type. It is
// used directly for the complex128 solve path, where no dense solver exists
// in the example pack; the real float64 path instead delegates to
// gonum.org/v1/gonum/mat (see solver_real.go). The permutation is tracked as
// an explicit index vector rather than a permutation matrix, the same
// bookkeeping RuiCat-circuit's baseLU uses.
type GenericLU[T Number] struct {
	n    int
	l, u *Matrix[T]
	p    []int // p[i] = original row now in position i
}

// Decompose factors matrix into L*U under the permutation recorded in p. It
// returns a NumericError if a zero pivot is encountered after partial
// pivoting (a structurally singular system).
func Decompose[T Number](matrix *Matrix[T]) (*GenericLU[T], error) {
	if matrix.Rows != matrix.Cols {
		return nil, &NumericError{Msg: fmt.Sprintf("mna: matrix is %dx%d, LU requires square", matrix.Rows, matrix.Cols)}
	}
	n := matrix.Rows
	lu := &GenericLU[T]{
		n: n,
		l: NewMatrix[T](n, n),
		u: matrix.Clone(),
		p: make([]int, n),
	}
	for i := 0; i < n; i++ {
		lu.p[i] = i
		lu.l.Set(i, i, T(1))
	}

	for k := 0; k < n; k++ {
		maxRow, maxVal := k, magnitude(lu.u.At(k, k))
		for i := k + 1; i < n; i++ {
			if v := magnitude(lu.u.At(i, k)); v > maxVal {
				maxRow, maxVal = i, v
			}
		}
		if maxVal == 0 {
			return nil, &NumericError{Msg: fmt.Sprintf("mna: singular matrix, zero pivot at column %d", k)}
		}
		if maxRow != k {
			lu.swapRows(k, maxRow)
		}

		pivot := lu.u.At(k, k)
		for i := k + 1; i < n; i++ {
			factor := lu.u.At(i, k) / pivot
			lu.l.Set(i, k, factor)
			for j := k; j < n; j++ {
				lu.u.Add(i, j, -factor*lu.u.At(k, j))
			}
		}
	}
	return lu, nil
}

func (lu *GenericLU[T]) swapRows(a, b int) {
	for j := 0; j < lu.n; j++ {
		ua, ub := lu.u.At(a, j), lu.u.At(b, j)
		lu.u.Set(a, j, ub)
		lu.u.Set(b, j, ua)
		if j < a || j < b {
			la, lbv := lu.l.At(a, j), lu.l.At(b, j)
			lu.l.Set(a, j, lbv)
			lu.l.Set(b, j, la)
		}
	}
	lu.p[a], lu.p[b] = lu.p[b], lu.p[a]
}

// Solve returns x such that A*x = b, reusing the cached factorization. This
// is the per-step hot path: one factorization per switch state, one Solve
// per simulation step.
func (lu *GenericLU[T]) Solve(b Vector[T]) (Vector[T], error) {
	if len(b) != lu.n {
		return nil, &NumericError{Msg: fmt.Sprintf("mna: right-hand side has length %d, want %d", len(b), lu.n)}
	}
	pb := make(Vector[T], lu.n)
	for i, orig := range lu.p {
		pb[i] = b[orig]
	}

	y := make(Vector[T], lu.n)
	for i := 0; i < lu.n; i++ {
		sum := pb[i]
		for j := 0; j < i; j++ {
			sum -= lu.l.At(i, j) * y[j]
		}
		y[i] = sum
	}

	x := make(Vector[T], lu.n)
	for i := lu.n - 1; i >= 0; i-- {
		sum := y[i]
		for j := i + 1; j < lu.n; j++ {
			sum -= lu.u.At(i, j) * x[j]
		}
		x[i] = sum / lu.u.At(i, i)
	}
	return x, nil
}

func magnitude[T Number](v T) float64 {
	switch x := any(v).(type) {
	case float64:
		if x < 0 {
			return -x
		}
		return x
	case complex128:
		return realAbs(x)
	default:
		return 0
	}
}

func realAbs(c complex128) float64 {
	re, im := real(c), imag(c)
	return math.Sqrt(re*re + im*im)
}
