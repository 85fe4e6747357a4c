// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package bijector provides the public API for invertible transforms with
// tracked Jacobian log-determinants.
//
// Every bijector follows the same initialization protocol: Init binds a
// configuration to a random key and a feature count and returns the
// parameter tree plus pure forward and inverse functions.
//
// Example:
//
//	flow := bijector.Chain(
//	    bijector.ShiftBounds(mins, maxs, 5),
//	    bijector.RollingSplineCoupling(4, -1),
//	)
//	params, forward, inverse, err := flow.Init(random.NewKey(0), len(mins))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	y, logDet, err := forward(params, x)
package bijector

import (
	"github.com/born-ml/flow/internal/bijector"
	"github.com/born-ml/flow/internal/parallel"
)

// Core protocol

// Bijector is the initialization protocol shared by all transforms.
type Bijector = bijector.Bijector

// Dimensioned is implemented by bijectors whose arguments fix their width.
type Dimensioned = bijector.Dimensioned

// Func transforms a batch and returns per-row log-determinants.
type Func = bijector.Func

// Params is the caller-owned parameter tree produced by Init.
type Params = bijector.Params

// NewParams returns an empty parameter tree.
func NewParams() *Params {
	return bijector.NewParams()
}

// Permutations

// ReverseBijector reverses the column order.
type ReverseBijector = bijector.ReverseBijector

// Reverse creates a bijector that reverses the column order.
func Reverse() *ReverseBijector {
	return bijector.Reverse()
}

// RollBijector cyclically shifts columns.
type RollBijector = bijector.RollBijector

// Roll creates a bijector that moves column j to column (j+shift) mod D.
//
// Example:
//
//	bijector.Roll(2) // [a b c d e] -> [d e a b c]
func Roll(shift int) *RollBijector {
	return bijector.Roll(shift)
}

// ShuffleBijector applies a random permutation drawn at Init.
type ShuffleBijector = bijector.ShuffleBijector

// Shuffle creates a bijector with a key-dependent column permutation.
func Shuffle() *ShuffleBijector {
	return bijector.Shuffle()
}

// Affine transforms

// ScaleBijector multiplies every column by a constant.
type ScaleBijector = bijector.ScaleBijector

// Scale creates a bijector that multiplies every value by factor.
func Scale(factor float64) *ScaleBijector {
	return bijector.Scale(factor)
}

// StandardScalerBijector standardizes each column.
type StandardScalerBijector = bijector.StandardScalerBijector

// StandardScaler creates a bijector computing (x - mean) / std per column.
func StandardScaler(means, stds []float64) *StandardScalerBijector {
	return bijector.StandardScaler(means, stds)
}

// ShiftBoundsBijector maps each column range onto [-bound, bound].
type ShiftBoundsBijector = bijector.ShiftBoundsBijector

// ShiftBounds creates a bijector that maps [mins[j], maxs[j]] onto
// [-bound, bound], typically the spline bound of a following coupling layer.
func ShiftBounds(mins, maxs []float64, bound float64) *ShiftBoundsBijector {
	return bijector.ShiftBounds(mins, maxs, bound)
}

// ColorTransformBijector turns magnitudes into a reference magnitude and colors.
type ColorTransformBijector = bijector.ColorTransformBijector

// ColorTransform creates a bijector for (redshift, magnitudes...) rows.
//
// Column 0 passes through. The magnitude at column refIdx is standardized
// with refMean and refStd and the remaining columns become adjacent colors.
func ColorTransform(refIdx int, refMean, refStd float64) *ColorTransformBijector {
	return bijector.ColorTransform(refIdx, refMean, refStd)
}

// Spline coupling

// NeuralSplineCouplingBijector is a rational-quadratic spline coupling layer.
type NeuralSplineCouplingBijector = bijector.NeuralSplineCouplingBijector

// CouplingOption configures a NeuralSplineCoupling.
type CouplingOption = bijector.CouplingOption

// Coupling defaults.
const (
	DefaultHiddenLayers = bijector.DefaultHiddenLayers
	DefaultHiddenDim    = bijector.DefaultHiddenDim
)

// NeuralSplineCoupling creates a coupling layer whose last columns are
// transformed by splines conditioned on the first ones.
func NeuralSplineCoupling(opts ...CouplingOption) *NeuralSplineCouplingBijector {
	return bijector.NeuralSplineCoupling(opts...)
}

// WithBins sets the number of spline bins.
func WithBins(k int) CouplingOption { return bijector.WithBins(k) }

// WithBound sets the half-width B of the spline interval [-B, B].
func WithBound(b float64) CouplingOption { return bijector.WithBound(b) }

// WithHiddenLayers sets the number of hidden layers of the conditioner.
func WithHiddenLayers(n int) CouplingOption { return bijector.WithHiddenLayers(n) }

// WithHiddenDim sets the width of each hidden layer of the conditioner.
func WithHiddenDim(n int) CouplingOption { return bijector.WithHiddenDim(n) }

// WithTransformedDim sets how many trailing columns are transformed.
func WithTransformedDim(n int) CouplingOption { return bijector.WithTransformedDim(n) }

// RollingSplineCoupling creates a chain of nLayers coupling layers, each
// followed by Roll(shift).
func RollingSplineCoupling(nLayers, shift int, opts ...CouplingOption) *ChainBijector {
	return bijector.RollingSplineCoupling(nLayers, shift, opts...)
}

// Composition

// ChainBijector applies a sequence of bijectors.
type ChainBijector = bijector.ChainBijector

// Chain composes bijectors. Forward runs them in order, inverse in reverse.
func Chain(bs ...Bijector) *ChainBijector {
	return bijector.Chain(bs...)
}

// ParallelConfig controls how Compile splits a batch.
type ParallelConfig = parallel.Config

// DefaultParallelConfig returns the default configuration for Compile.
func DefaultParallelConfig() ParallelConfig {
	return parallel.DefaultConfig()
}

// Compile binds fn to inputDim and evaluates large batches in parallel row
// chunks. The result is bit-identical to calling fn directly.
//
// Example:
//
//	fastForward := bijector.Compile(forward, 7, bijector.DefaultParallelConfig())
func Compile(fn Func, inputDim int, cfg ParallelConfig) Func {
	return bijector.Compile(fn, inputDim, cfg)
}
