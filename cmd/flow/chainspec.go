package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/born-ml/flow/bijector"
)

// parseChain builds a bijector from a comma-separated list of components.
//
// Each component is a name optionally followed by colon-separated arguments:
//
//	reverse
//	roll:SHIFT
//	shuffle
//	scale:FACTOR
//	color:REF_IDX:MEAN:STD
//	bounds:MIN:MAX:B        (same range for every column)
//	nsc[:BINS[:B]]
//	rsc:LAYERS[:SHIFT]      (rolling spline coupling)
//
// dim is only used to expand per-column arguments.
func parseChain(spec string, dim int) (*bijector.ChainBijector, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty chain spec")
	}

	var parts []bijector.Bijector
	for i, item := range strings.Split(spec, ",") {
		b, err := parseComponent(strings.TrimSpace(item), dim)
		if err != nil {
			return nil, fmt.Errorf("component %d (%q): %w", i, item, err)
		}
		parts = append(parts, b)
	}
	return bijector.Chain(parts...), nil
}

func parseComponent(item string, dim int) (bijector.Bijector, error) {
	fields := strings.Split(item, ":")
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "reverse":
		if err := wantArgs(args, 0, 0); err != nil {
			return nil, err
		}
		return bijector.Reverse(), nil

	case "shuffle":
		if err := wantArgs(args, 0, 0); err != nil {
			return nil, err
		}
		return bijector.Shuffle(), nil

	case "roll":
		if err := wantArgs(args, 1, 1); err != nil {
			return nil, err
		}
		shift, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("shift: %w", err)
		}
		return bijector.Roll(shift), nil

	case "scale":
		if err := wantArgs(args, 1, 1); err != nil {
			return nil, err
		}
		f, err := parseFloats(args)
		if err != nil {
			return nil, err
		}
		return bijector.Scale(f[0]), nil

	case "color":
		if err := wantArgs(args, 3, 3); err != nil {
			return nil, err
		}
		ref, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("reference index: %w", err)
		}
		f, err := parseFloats(args[1:])
		if err != nil {
			return nil, err
		}
		return bijector.ColorTransform(ref, f[0], f[1]), nil

	case "bounds":
		if err := wantArgs(args, 3, 3); err != nil {
			return nil, err
		}
		if dim < 1 {
			return nil, fmt.Errorf("bounds needs a positive dimension, got %d", dim)
		}
		f, err := parseFloats(args)
		if err != nil {
			return nil, err
		}
		mins := make([]float64, dim)
		maxs := make([]float64, dim)
		for j := range mins {
			mins[j], maxs[j] = f[0], f[1]
		}
		return bijector.ShiftBounds(mins, maxs, f[2]), nil

	case "nsc":
		opts, err := splineOptions(args)
		if err != nil {
			return nil, err
		}
		return bijector.NeuralSplineCoupling(opts...), nil

	case "rsc":
		if err := wantArgs(args, 1, 2); err != nil {
			return nil, err
		}
		layers, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("layers: %w", err)
		}
		shift := -1
		if len(args) == 2 {
			if shift, err = strconv.Atoi(args[1]); err != nil {
				return nil, fmt.Errorf("shift: %w", err)
			}
		}
		return bijector.RollingSplineCoupling(layers, shift), nil

	default:
		return nil, fmt.Errorf("unknown bijector %q", name)
	}
}

func splineOptions(args []string) ([]bijector.CouplingOption, error) {
	if err := wantArgs(args, 0, 2); err != nil {
		return nil, err
	}
	var opts []bijector.CouplingOption
	if len(args) > 0 {
		k, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("bins: %w", err)
		}
		opts = append(opts, bijector.WithBins(k))
	}
	if len(args) > 1 {
		b, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return nil, fmt.Errorf("bound: %w", err)
		}
		opts = append(opts, bijector.WithBound(b))
	}
	return opts, nil
}

func wantArgs(args []string, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		if lo == hi {
			return fmt.Errorf("want %d arguments, got %d", lo, len(args))
		}
		return fmt.Errorf("want %d to %d arguments, got %d", lo, hi, len(args))
	}
	return nil
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
