package bijector

import (
	"fmt"
	"math"

	"github.com/born-ml/flow/internal/random"
	"gonum.org/v1/gonum/mat"
)

// ColorTransformBijector converts photometric magnitudes to colors.
type ColorTransformBijector struct {
	refIdx  int
	refMean float64
	refStd  float64
}

// ColorTransform returns a bijector for rows laid out as
// [z, m_1, m_2, ..., m_n]: column 0 passes through unchanged and the
// remaining columns are magnitudes.
//
// The output row is [z, (m_ref - refMean)/refStd, m_1-m_2, ..., m_{n-1}-m_n],
// where m_ref is the magnitude in column refIdx. Magnitudes map to
// (reference, colors) through a unimodular matrix, so the log-det is
// -ln(refStd) for every row. The inverse rebuilds the magnitudes by
// cumulative sums of the colors outward from the reference.
func ColorTransform(refIdx int, refMean, refStd float64) *ColorTransformBijector {
	return &ColorTransformBijector{refIdx: refIdx, refMean: refMean, refStd: refStd}
}

// String implements fmt.Stringer.
func (b *ColorTransformBijector) String() string {
	return fmt.Sprintf("ColorTransform(%d, %g, %g)", b.refIdx, b.refMean, b.refStd)
}

// Validate reports reference statistics outside their domain.
func (b *ColorTransformBijector) Validate() error {
	if !finite(b.refMean) {
		return domainErr(b.String(), "reference mean must be finite")
	}
	if !(b.refStd > 0) || !finite(b.refStd) {
		return domainErr(b.String(), "reference std must be positive and finite, got %v", b.refStd)
	}
	if b.refIdx < 1 {
		return domainErr(b.String(), "reference column must be >= 1, got %d", b.refIdx)
	}
	return nil
}

// Init implements Bijector.
func (b *ColorTransformBijector) Init(_ random.Key, inputDim int) (*Params, Func, Func, error) {
	if err := b.Validate(); err != nil {
		return nil, nil, nil, err
	}
	if err := checkInputDim(b.String(), inputDim); err != nil {
		return nil, nil, nil, err
	}
	if inputDim < 2 {
		return nil, nil, nil, domainErr(b.String(), "need a pass-through column and at least one magnitude, got %d columns", inputDim)
	}
	if b.refIdx >= inputDim {
		return nil, nil, nil, domainErr(b.String(), "reference column %d outside [1, %d)", b.refIdx, inputDim)
	}

	ref, mean, std := b.refIdx, b.refMean, b.refStd
	logDet := -math.Log(std)

	forward := func(_ *Params, x *mat.Dense) (*mat.Dense, []float64, error) {
		r, err := checkBatch(b.String()+".forward", x, inputDim)
		if err != nil {
			return nil, nil, err
		}
		out := mat.NewDense(r, inputDim, nil)
		for i := 0; i < r; i++ {
			m, dst := x.RawRowView(i), out.RawRowView(i)
			dst[0] = m[0]
			dst[1] = (m[ref] - mean) / std
			for j := 1; j < inputDim-1; j++ {
				dst[j+1] = m[j] - m[j+1]
			}
		}
		return out, constLogDet(r, logDet), nil
	}

	inverse := func(_ *Params, y *mat.Dense) (*mat.Dense, []float64, error) {
		r, err := checkBatch(b.String()+".inverse", y, inputDim)
		if err != nil {
			return nil, nil, err
		}
		out := mat.NewDense(r, inputDim, nil)
		for i := 0; i < r; i++ {
			c, m := y.RawRowView(i), out.RawRowView(i)
			m[0] = c[0]
			m[ref] = c[1]*std + mean
			// Color m_j - m_{j+1} is stored in column j+1.
			for j := ref - 1; j >= 1; j-- {
				m[j] = m[j+1] + c[j+1]
			}
			for j := ref + 1; j < inputDim; j++ {
				m[j] = m[j-1] - c[j]
			}
		}
		return out, constLogDet(r, -logDet), nil
	}

	return NewParams(), forward, inverse, nil
}
