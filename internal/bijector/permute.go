package bijector

import (
	"fmt"

	"github.com/born-ml/flow/internal/random"
	"github.com/born-ml/flow/internal/tensor"
	"gonum.org/v1/gonum/mat"
)

// permuteColumns returns a batch whose column i is column perm[i] of x,
// with a zero log-det.
func permuteColumns(x *mat.Dense, perm []int) (*mat.Dense, []float64, error) {
	out, err := tensor.GatherColumns(x, perm)
	if err != nil {
		return nil, nil, err
	}
	r, _ := x.Dims()
	return out, constLogDet(r, 0), nil
}

func invertPermutation(perm []int) []int {
	inv := make([]int, len(perm))
	for i, p := range perm {
		inv[p] = i
	}
	return inv
}

// fixedPermutation builds the transform pair for a permutation that is a
// pure function of the input dimensionality.
func fixedPermutation(name string, perm []int) (forward, inverse Func) {
	inv := invertPermutation(perm)
	apply := func(op string, p []int) Func {
		return func(_ *Params, x *mat.Dense) (*mat.Dense, []float64, error) {
			if _, err := checkBatch(op, x, len(p)); err != nil {
				return nil, nil, err
			}
			return permuteColumns(x, p)
		}
	}
	return apply(name+".forward", perm), apply(name+".inverse", inv)
}

// ReverseBijector reverses the column order.
type ReverseBijector struct{}

// Reverse returns a bijector that permutes columns back-to-front.
// It is its own inverse and has zero log-det.
func Reverse() *ReverseBijector {
	return &ReverseBijector{}
}

// String implements fmt.Stringer.
func (b *ReverseBijector) String() string { return "Reverse()" }

// Init implements Bijector.
func (b *ReverseBijector) Init(_ random.Key, inputDim int) (*Params, Func, Func, error) {
	if err := checkInputDim(b.String(), inputDim); err != nil {
		return nil, nil, nil, err
	}
	perm := make([]int, inputDim)
	for i := range perm {
		perm[i] = inputDim - 1 - i
	}
	forward, inverse := fixedPermutation(b.String(), perm)
	return NewParams(), forward, inverse, nil
}

// RollBijector cyclically rotates columns.
type RollBijector struct {
	shift int
}

// Roll returns a bijector that rolls columns by shift positions, so that
// output column (j+shift) mod D holds input column j. Negative shifts rotate
// the other way.
func Roll(shift int) *RollBijector {
	return &RollBijector{shift: shift}
}

// Shift returns the roll amount.
func (b *RollBijector) Shift() int { return b.shift }

// String implements fmt.Stringer.
func (b *RollBijector) String() string { return fmt.Sprintf("Roll(%d)", b.shift) }

// Init implements Bijector.
func (b *RollBijector) Init(_ random.Key, inputDim int) (*Params, Func, Func, error) {
	if err := checkInputDim(b.String(), inputDim); err != nil {
		return nil, nil, nil, err
	}
	perm := make([]int, inputDim)
	for i := range perm {
		perm[i] = mod(i-b.shift, inputDim)
	}
	forward, inverse := fixedPermutation(b.String(), perm)
	return NewParams(), forward, inverse, nil
}

func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

// ShuffleBijector applies a random permutation fixed at Init.
type ShuffleBijector struct{}

// Shuffle returns a bijector that permutes columns by a permutation drawn
// once from the Init key. The permutation is stored in the params as the
// array "perm".
func Shuffle() *ShuffleBijector {
	return &ShuffleBijector{}
}

// String implements fmt.Stringer.
func (b *ShuffleBijector) String() string { return "Shuffle()" }

// Init implements Bijector.
func (b *ShuffleBijector) Init(key random.Key, inputDim int) (*Params, Func, Func, error) {
	if err := checkInputDim(b.String(), inputDim); err != nil {
		return nil, nil, nil, err
	}

	perm := key.Rand().Perm(inputDim)
	arr, err := tensor.NewArray(tensor.Shape{inputDim})
	if err != nil {
		return nil, nil, nil, err
	}
	for i, p := range perm {
		arr.Data[i] = float64(p)
	}
	params := &Params{Arrays: map[string]*tensor.Array{"perm": arr}}

	apply := func(op string, invert bool) Func {
		return func(params *Params, x *mat.Dense) (*mat.Dense, []float64, error) {
			if _, err := checkBatch(op, x, inputDim); err != nil {
				return nil, nil, err
			}
			perm, err := decodePermutation(op, params, inputDim)
			if err != nil {
				return nil, nil, err
			}
			if invert {
				perm = invertPermutation(perm)
			}
			return permuteColumns(x, perm)
		}
	}
	return params, apply("Shuffle().forward", false), apply("Shuffle().inverse", true), nil
}

func decodePermutation(op string, params *Params, n int) ([]int, error) {
	arr, ok := params.Array("perm")
	if !ok {
		return nil, domainErr(op, "params have no %q array", "perm")
	}
	if arr.NumElements() != n {
		return nil, shapeErr(op, "permutation length", n, arr.NumElements())
	}

	perm := make([]int, n)
	seen := make([]bool, n)
	for i, v := range arr.Data {
		p := int(v)
		if float64(p) != v || p < 0 || p >= n || seen[p] {
			return nil, domainErr(op, "perm is not a permutation of %d columns", n)
		}
		seen[p] = true
		perm[i] = p
	}
	return perm, nil
}
