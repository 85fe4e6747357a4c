// Package spline implements monotonic rational-quadratic splines.
//
// A spline maps [-B, B] onto itself through K bins whose widths, heights and
// knot derivatives are produced from unconstrained raw values. Outside the
// interval the map is the identity, and the boundary derivatives are fixed
// at 1 so the two pieces join smoothly. Inversion solves one quadratic per
// bin in closed form.
package spline

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Default spline settings.
const (
	DefaultBins          = 16
	DefaultBound         = 5.0
	DefaultMinBinWidth   = 1e-3
	DefaultMinBinHeight  = 1e-3
	DefaultMinDerivative = 1e-3
)

// ErrInvalidConfig is returned for spline settings that cannot produce a
// strictly increasing map.
var ErrInvalidConfig = errors.New("invalid spline configuration")

// Config fixes the shape of a spline family.
type Config struct {
	Bins          int     // Number of bins K.
	Bound         float64 // Half-width B of the transformed interval.
	MinBinWidth   float64 // Lower bound on each bin width, as a fraction of 2B.
	MinBinHeight  float64 // Lower bound on each bin height, as a fraction of 2B.
	MinDerivative float64 // Lower bound on interior knot derivatives.
}

// DefaultConfig returns the default spline settings.
func DefaultConfig() Config {
	return Config{
		Bins:          DefaultBins,
		Bound:         DefaultBound,
		MinBinWidth:   DefaultMinBinWidth,
		MinBinHeight:  DefaultMinBinHeight,
		MinDerivative: DefaultMinDerivative,
	}
}

// Validate reports settings outside their domain.
func (c Config) Validate() error {
	switch {
	case c.Bins < 1:
		return fmt.Errorf("%w: bins must be >= 1, got %d", ErrInvalidConfig, c.Bins)
	case !(c.Bound > 0) || math.IsInf(c.Bound, 0):
		return fmt.Errorf("%w: bound must be positive and finite, got %v", ErrInvalidConfig, c.Bound)
	case !(c.MinBinWidth > 0) || c.MinBinWidth*float64(c.Bins) >= 1:
		return fmt.Errorf("%w: min bin width %v too large for %d bins", ErrInvalidConfig, c.MinBinWidth, c.Bins)
	case !(c.MinBinHeight > 0) || c.MinBinHeight*float64(c.Bins) >= 1:
		return fmt.Errorf("%w: min bin height %v too large for %d bins", ErrInvalidConfig, c.MinBinHeight, c.Bins)
	case !(c.MinDerivative > 0):
		return fmt.Errorf("%w: min derivative must be positive, got %v", ErrInvalidConfig, c.MinDerivative)
	}
	return nil
}

// NumParams returns the number of raw values that define one spline:
// K widths, K heights and K-1 interior derivatives.
func (c Config) NumParams() int {
	return 3*c.Bins - 1
}

// Knots is a fully resolved spline. X and Y hold the K+1 knot positions,
// D the K+1 knot derivatives.
type Knots struct {
	X []float64
	Y []float64
	D []float64
}

// Knots resolves raw parameter values into a spline.
//
// raw must have length NumParams. The result is strictly increasing for any
// finite raw input.
func (c Config) Knots(raw []float64) (Knots, error) {
	if len(raw) != c.NumParams() {
		return Knots{}, fmt.Errorf("expected %d raw spline values, got %d", c.NumParams(), len(raw))
	}
	for _, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Knots{}, fmt.Errorf("non-finite raw spline value %v", v)
		}
	}

	k := c.Bins
	return Knots{
		X: c.knotPositions(raw[:k], c.MinBinWidth),
		Y: c.knotPositions(raw[k:2*k], c.MinBinHeight),
		D: c.knotDerivatives(raw[2*k:]),
	}, nil
}

func (c Config) knotPositions(raw []float64, minSize float64) []float64 {
	k := len(raw)
	lse := floats.LogSumExp(raw)
	scale := 1 - minSize*float64(k)

	pos := make([]float64, k+1)
	pos[0] = -c.Bound
	for i, v := range raw {
		size := (minSize + scale*math.Exp(v-lse)) * 2 * c.Bound
		pos[i+1] = pos[i] + size
	}
	pos[k] = c.Bound
	return pos
}

func (c Config) knotDerivatives(raw []float64) []float64 {
	d := make([]float64, len(raw)+2)
	d[0], d[len(d)-1] = 1, 1
	for i, v := range raw {
		d[i+1] = c.MinDerivative + softplus(v)
	}
	return d
}

// softplus computes log(1 + e^x) without overflow.
func softplus(x float64) float64 {
	return math.Log1p(math.Exp(-math.Abs(x))) + math.Max(x, 0)
}

// Bins returns the number of bins.
func (k Knots) Bins() int {
	return len(k.X) - 1
}

// bin returns the index of the bin containing v among knots.
func bin(knots []float64, v float64) int {
	i := sort.SearchFloat64s(knots, v) - 1
	return min(max(i, 0), len(knots)-2)
}

func (k Knots) inside(v float64, knots []float64) bool {
	return v > knots[0] && v < knots[len(knots)-1]
}

// Forward evaluates the spline at x and returns the log derivative.
func (k Knots) Forward(x float64) (y, logDeriv float64) {
	if !k.inside(x, k.X) {
		return x, 0
	}
	i := bin(k.X, x)
	w := k.X[i+1] - k.X[i]
	h := k.Y[i+1] - k.Y[i]
	s := h / w
	xi := (x - k.X[i]) / w

	t := xi * (1 - xi)
	den := s + (k.D[i+1]+k.D[i]-2*s)*t
	y = k.Y[i] + h*(s*xi*xi+k.D[i]*t)/den
	return y, k.logDerivative(i, s, xi, den)
}

// Inverse evaluates the inverse spline at y and returns its log derivative,
// which is the negated forward log derivative at the returned x.
func (k Knots) Inverse(y float64) (x, logDeriv float64) {
	if !k.inside(y, k.Y) {
		return y, 0
	}
	i := bin(k.Y, y)
	w := k.X[i+1] - k.X[i]
	h := k.Y[i+1] - k.Y[i]
	s := h / w
	dy := y - k.Y[i]
	sum := k.D[i+1] + k.D[i] - 2*s

	a := h*(s-k.D[i]) + dy*sum
	b := h*k.D[i] - dy*sum
	c := -s * dy
	disc := math.Max(b*b-4*a*c, 0)
	xi := (2 * c) / (-b - math.Sqrt(disc))
	xi = min(max(xi, 0), 1)

	x = k.X[i] + xi*w
	t := xi * (1 - xi)
	den := s + sum*t
	return x, -k.logDerivative(i, s, xi, den)
}

func (k Knots) logDerivative(i int, s, xi, den float64) float64 {
	num := s * s * (k.D[i+1]*xi*xi + 2*s*xi*(1-xi) + k.D[i]*(1-xi)*(1-xi))
	return math.Log(num) - 2*math.Log(den)
}
