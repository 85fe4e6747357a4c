// Package bijector implements invertible transforms with tracked Jacobian
// log-determinants, the building blocks of normalizing flows.
//
// A Bijector is a configuration value. Init binds it to a random key and a
// feature count and returns the parameter tree together with a pair of pure
// transform functions:
//
//	b := bijector.Chain(bijector.Reverse(), bijector.Scale(2), bijector.Roll(-1))
//	params, forward, inverse, err := b.Init(random.NewKey(0), 7)
//	y, logDet, err := forward(params, x)     // x is an N x 7 *mat.Dense
//	back, negLogDet, err := inverse(params, y)
//
// Transform functions never modify params or their input batch and hold no
// state between calls, so they can be called concurrently.
package bijector

import (
	"fmt"

	"github.com/born-ml/flow/internal/random"
	"gonum.org/v1/gonum/mat"
)

// Func transforms a batch of row vectors.
//
// It returns the transformed batch, which has the same shape as x, and the
// per-row natural log of the absolute Jacobian determinant. On error no
// partial result is returned.
type Func func(params *Params, x *mat.Dense) (*mat.Dense, []float64, error)

// Bijector is the initialization protocol shared by all transforms.
type Bijector interface {
	fmt.Stringer

	// Init fixes the input dimensionality and draws any random parameters
	// from key. The same key and inputDim always produce identical params.
	Init(key random.Key, inputDim int) (params *Params, forward, inverse Func, err error)
}

// Dimensioned is implemented by bijectors whose construction arguments fix
// the number of columns they accept.
type Dimensioned interface {
	RequiredDim() (dim int, ok bool)
}

// checkInputDim validates the dimensionality passed to Init.
func checkInputDim(op string, inputDim int) error {
	if inputDim < 1 {
		return shapeErr(op, "input dimension must be positive", 1, inputDim)
	}
	return nil
}

// checkBatch validates a batch against the dimensionality fixed at Init and
// returns its row count.
func checkBatch(op string, x *mat.Dense, inputDim int) (int, error) {
	if x == nil || x.IsEmpty() {
		return 0, shapeErr(op, "batch columns", inputDim, 0)
	}
	r, c := x.Dims()
	if c != inputDim {
		return 0, shapeErr(op, "batch columns", inputDim, c)
	}
	return r, nil
}

// constLogDet returns a log-det vector with every row equal to v.
func constLogDet(rows int, v float64) []float64 {
	ld := make([]float64, rows)
	if v != 0 {
		for i := range ld {
			ld[i] = v
		}
	}
	return ld
}
