package bijector

import (
	"fmt"
	"math"

	"github.com/born-ml/flow/internal/random"
	"gonum.org/v1/gonum/mat"
)

// elementwiseAffine builds the transform pair for y = x*scale[j] + shift[j]
// applied per column j. The log-det is the same for every row.
func elementwiseAffine(name string, scale, shift []float64) (forward, inverse Func) {
	logDet := 0.0
	for _, s := range scale {
		logDet += math.Log(math.Abs(s))
	}
	dim := len(scale)

	forward = func(_ *Params, x *mat.Dense) (*mat.Dense, []float64, error) {
		r, err := checkBatch(name+".forward", x, dim)
		if err != nil {
			return nil, nil, err
		}
		out := mat.NewDense(r, dim, nil)
		for i := 0; i < r; i++ {
			src, dst := x.RawRowView(i), out.RawRowView(i)
			for j := range dst {
				dst[j] = src[j]*scale[j] + shift[j]
			}
		}
		return out, constLogDet(r, logDet), nil
	}

	inverse = func(_ *Params, y *mat.Dense) (*mat.Dense, []float64, error) {
		r, err := checkBatch(name+".inverse", y, dim)
		if err != nil {
			return nil, nil, err
		}
		out := mat.NewDense(r, dim, nil)
		for i := 0; i < r; i++ {
			src, dst := y.RawRowView(i), out.RawRowView(i)
			for j := range dst {
				dst[j] = (src[j] - shift[j]) / scale[j]
			}
		}
		return out, constLogDet(r, -logDet), nil
	}
	return forward, inverse
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ScaleBijector multiplies every element by a fixed factor.
type ScaleBijector struct {
	factor float64
}

// Scale returns a bijector computing y = factor*x, with log-det
// D*ln|factor| for every row. A zero or non-finite factor is rejected with
// a DomainError by Validate and Init.
func Scale(factor float64) *ScaleBijector {
	return &ScaleBijector{factor: factor}
}

// Factor returns the scale factor.
func (b *ScaleBijector) Factor() float64 { return b.factor }

// String implements fmt.Stringer.
func (b *ScaleBijector) String() string { return fmt.Sprintf("Scale(%g)", b.factor) }

// Validate reports a factor outside its domain.
func (b *ScaleBijector) Validate() error {
	if b.factor == 0 || !finite(b.factor) {
		return domainErr(b.String(), "scale factor must be non-zero and finite")
	}
	return nil
}

// Init implements Bijector.
func (b *ScaleBijector) Init(_ random.Key, inputDim int) (*Params, Func, Func, error) {
	if err := b.Validate(); err != nil {
		return nil, nil, nil, err
	}
	if err := checkInputDim(b.String(), inputDim); err != nil {
		return nil, nil, nil, err
	}
	scale := make([]float64, inputDim)
	for j := range scale {
		scale[j] = b.factor
	}
	forward, inverse := elementwiseAffine(b.String(), scale, make([]float64, inputDim))
	return NewParams(), forward, inverse, nil
}

// StandardScalerBijector standardizes each column with fixed statistics.
type StandardScalerBijector struct {
	means []float64
	stds  []float64
}

// StandardScaler returns a bijector computing (x[j] - means[j]) / stds[j].
// The log-det is -sum(ln stds) for every row. The slices are copied.
func StandardScaler(means, stds []float64) *StandardScalerBijector {
	return &StandardScalerBijector{
		means: append([]float64(nil), means...),
		stds:  append([]float64(nil), stds...),
	}
}

// String implements fmt.Stringer.
func (b *StandardScalerBijector) String() string {
	return fmt.Sprintf("StandardScaler(%d)", len(b.means))
}

// RequiredDim implements Dimensioned.
func (b *StandardScalerBijector) RequiredDim() (int, bool) { return len(b.means), true }

// Validate reports statistics outside their domain.
func (b *StandardScalerBijector) Validate() error {
	if len(b.means) == 0 || len(b.means) != len(b.stds) {
		return domainErr(b.String(), "need one mean and one std per column, got %d means and %d stds",
			len(b.means), len(b.stds))
	}
	for j := range b.means {
		if !finite(b.means[j]) {
			return domainErr(b.String(), "mean %d is not finite", j)
		}
		if !(b.stds[j] > 0) || !finite(b.stds[j]) {
			return domainErr(b.String(), "std %d must be positive and finite, got %v", j, b.stds[j])
		}
	}
	return nil
}

// Init implements Bijector.
func (b *StandardScalerBijector) Init(_ random.Key, inputDim int) (*Params, Func, Func, error) {
	if err := b.Validate(); err != nil {
		return nil, nil, nil, err
	}
	if inputDim != len(b.means) {
		return nil, nil, nil, shapeErr(b.String(), "input dimension", len(b.means), inputDim)
	}
	scale := make([]float64, inputDim)
	shift := make([]float64, inputDim)
	for j := range scale {
		scale[j] = 1 / b.stds[j]
		shift[j] = -b.means[j] / b.stds[j]
	}
	forward, inverse := elementwiseAffine(b.String(), scale, shift)
	return NewParams(), forward, inverse, nil
}

// ShiftBoundsBijector maps per-column ranges onto [-B, B].
type ShiftBoundsBijector struct {
	mins  []float64
	maxs  []float64
	bound float64
}

// ShiftBounds returns a bijector that affinely maps [mins[j], maxs[j]] onto
// [-bound, bound] for every column j, typically placed in front of a spline
// coupling with the same bound. The slices are copied.
func ShiftBounds(mins, maxs []float64, bound float64) *ShiftBoundsBijector {
	return &ShiftBoundsBijector{
		mins:  append([]float64(nil), mins...),
		maxs:  append([]float64(nil), maxs...),
		bound: bound,
	}
}

// String implements fmt.Stringer.
func (b *ShiftBoundsBijector) String() string {
	return fmt.Sprintf("ShiftBounds(%d, %g)", len(b.mins), b.bound)
}

// RequiredDim implements Dimensioned.
func (b *ShiftBoundsBijector) RequiredDim() (int, bool) { return len(b.mins), true }

// Validate reports ranges outside their domain.
func (b *ShiftBoundsBijector) Validate() error {
	if len(b.mins) == 0 || len(b.mins) != len(b.maxs) {
		return domainErr(b.String(), "need one min and one max per column, got %d mins and %d maxs",
			len(b.mins), len(b.maxs))
	}
	if !(b.bound > 0) || !finite(b.bound) {
		return domainErr(b.String(), "bound must be positive and finite, got %v", b.bound)
	}
	for j := range b.mins {
		if !finite(b.mins[j]) || !finite(b.maxs[j]) || !(b.maxs[j] > b.mins[j]) {
			return domainErr(b.String(), "column %d range [%v, %v] is empty or not finite", j, b.mins[j], b.maxs[j])
		}
	}
	return nil
}

// Init implements Bijector.
func (b *ShiftBoundsBijector) Init(_ random.Key, inputDim int) (*Params, Func, Func, error) {
	if err := b.Validate(); err != nil {
		return nil, nil, nil, err
	}
	if inputDim != len(b.mins) {
		return nil, nil, nil, shapeErr(b.String(), "input dimension", len(b.mins), inputDim)
	}
	scale := make([]float64, inputDim)
	shift := make([]float64, inputDim)
	for j := range scale {
		scale[j] = 2 * b.bound / (b.maxs[j] - b.mins[j])
		shift[j] = -b.bound - b.mins[j]*scale[j]
	}
	forward, inverse := elementwiseAffine(b.String(), scale, shift)
	return NewParams(), forward, inverse, nil
}
