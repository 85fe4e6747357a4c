package bijector

import (
	"fmt"
	"strings"

	"github.com/born-ml/flow/internal/random"
	"gonum.org/v1/gonum/mat"
)

// ChainBijector composes bijectors.
type ChainBijector struct {
	bijectors []Bijector
}

// Chain returns a bijector that applies bs in order on forward and in
// reverse order on inverse, summing the component log-dets.
//
// Init derives one sub-key per component with key.Split, and the params are
// the component params in the same order. An empty chain, a nil component
// or adjacent components requiring different widths is a ConfigError.
func Chain(bs ...Bijector) *ChainBijector {
	return &ChainBijector{bijectors: append([]Bijector(nil), bs...)}
}

// Len returns the number of components.
func (c *ChainBijector) Len() int { return len(c.bijectors) }

// Component returns the i-th component.
//
// Panics if index is out of bounds.
func (c *ChainBijector) Component(i int) Bijector {
	if i < 0 || i >= len(c.bijectors) {
		panic("Chain.Component: index out of bounds")
	}
	return c.bijectors[i]
}

// String implements fmt.Stringer.
func (c *ChainBijector) String() string {
	names := make([]string, len(c.bijectors))
	for i, b := range c.bijectors {
		if b == nil {
			names[i] = "<nil>"
			continue
		}
		names[i] = b.String()
	}
	return "Chain(" + strings.Join(names, ", ") + ")"
}

// RequiredDim implements Dimensioned. A chain requires the width of its
// first component that requires one.
func (c *ChainBijector) RequiredDim() (int, bool) {
	for _, b := range c.bijectors {
		if d, ok := b.(Dimensioned); ok {
			if dim, fixed := d.RequiredDim(); fixed {
				return dim, true
			}
		}
	}
	return 0, false
}

// Validate checks the structure of the chain.
func (c *ChainBijector) Validate() error {
	const op = "Chain"
	if len(c.bijectors) == 0 {
		return &ConfigError{Op: op, Index: -1, Details: "chain has no components"}
	}

	prevIdx, prevDim := -1, 0
	for i, b := range c.bijectors {
		if b == nil {
			return &ConfigError{Op: op, Index: i, Details: "component is nil"}
		}
		if sub, ok := b.(*ChainBijector); ok {
			if err := sub.Validate(); err != nil {
				return &ConfigError{Op: op, Index: i, Details: err.Error()}
			}
		}
		d, ok := b.(Dimensioned)
		if !ok {
			continue
		}
		dim, fixed := d.RequiredDim()
		if !fixed {
			continue
		}
		if prevIdx >= 0 && dim != prevDim {
			return &ConfigError{
				Op:    op,
				Index: i,
				Details: fmt.Sprintf("%s requires %d columns but component %d (%s) requires %d",
					b, dim, prevIdx, c.bijectors[prevIdx], prevDim),
			}
		}
		prevIdx, prevDim = i, dim
	}
	return nil
}

// Init implements Bijector.
func (c *ChainBijector) Init(key random.Key, inputDim int) (*Params, Func, Func, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, nil, err
	}
	if err := checkInputDim(c.String(), inputDim); err != nil {
		return nil, nil, nil, err
	}
	if dim, fixed := c.RequiredDim(); fixed && dim != inputDim {
		return nil, nil, nil, &ConfigError{
			Op:      "Chain",
			Index:   -1,
			Details: fmt.Sprintf("components require %d columns, chain initialized with %d", dim, inputDim),
		}
	}

	n := len(c.bijectors)
	keys := key.Split(n)
	params := &Params{Children: make([]*Params, n)}
	forwards := make([]Func, n)
	inverses := make([]Func, n)
	for i, b := range c.bijectors {
		p, f, inv, err := b.Init(keys[i], inputDim)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("chain component %d (%s): %w", i, b, err)
		}
		params.Children[i], forwards[i], inverses[i] = p, f, inv
	}

	run := func(op string, order []int, fns []Func) Func {
		return func(params *Params, x *mat.Dense) (*mat.Dense, []float64, error) {
			r, err := checkBatch(op, x, inputDim)
			if err != nil {
				return nil, nil, err
			}
			if params == nil || len(params.Children) != n {
				got := 0
				if params != nil {
					got = len(params.Children)
				}
				return nil, nil, shapeErr(op, "component params", n, got)
			}

			out := x
			logDet := make([]float64, r)
			for _, i := range order {
				y, ld, err := fns[i](params.Children[i], out)
				if err != nil {
					return nil, nil, fmt.Errorf("chain component %d: %w", i, err)
				}
				for row, v := range ld {
					logDet[row] += v
				}
				out = y
			}
			return out, logDet, nil
		}
	}

	forwardOrder := make([]int, n)
	inverseOrder := make([]int, n)
	for i := range forwardOrder {
		forwardOrder[i] = i
		inverseOrder[i] = n - 1 - i
	}
	name := c.String()
	return params, run(name+".forward", forwardOrder, forwards), run(name+".inverse", inverseOrder, inverses), nil
}
