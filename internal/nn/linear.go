package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/born-ml/flow/internal/tensor"
	"gonum.org/v1/gonum/mat"
)

// Layer holds the weights of one fully connected layer.
//
// Performs the transformation: y = x @ W + b
// where:
//   - x has shape [batch_size, in_features]
//   - W has shape [in_features, out_features]
//   - b has shape [out_features]
type Layer struct {
	Weight *tensor.Array
	Bias   *tensor.Array
}

// NewLayer creates a layer with Xavier weights and zero bias.
func NewLayer(rng *rand.Rand, inFeatures, outFeatures int) (Layer, error) {
	if inFeatures < 1 || outFeatures < 1 {
		return Layer{}, fmt.Errorf("invalid layer size %dx%d", inFeatures, outFeatures)
	}
	w, err := Xavier(rng, inFeatures, outFeatures)
	if err != nil {
		return Layer{}, err
	}
	b, err := Zeros(tensor.Shape{outFeatures})
	if err != nil {
		return Layer{}, err
	}
	return Layer{Weight: w, Bias: b}, nil
}

// InFeatures returns the number of input features.
func (l Layer) InFeatures() int {
	return l.Weight.Shape[0]
}

// OutFeatures returns the number of output features.
func (l Layer) OutFeatures() int {
	return l.Weight.Shape[1]
}

// Validate checks that weight and bias shapes agree with each other and
// with their data.
func (l Layer) Validate() error {
	if l.Weight == nil || l.Bias == nil {
		return fmt.Errorf("layer is missing weight or bias")
	}
	if len(l.Weight.Shape) != 2 {
		return fmt.Errorf("weight must be 2-D, got shape %v", l.Weight.Shape)
	}
	for _, a := range []*tensor.Array{l.Weight, l.Bias} {
		if err := a.Shape.Validate(); err != nil {
			return err
		}
		if len(a.Data) != a.Shape.NumElements() {
			return fmt.Errorf("array with shape %v holds %d values", a.Shape, len(a.Data))
		}
	}
	if !l.Bias.Shape.Equal(tensor.Shape{l.Weight.Shape[1]}) {
		return fmt.Errorf("bias shape %v does not match weight shape %v", l.Bias.Shape, l.Weight.Shape)
	}
	return nil
}

// Apply computes x @ W + b into a new matrix.
func (l Layer) Apply(x *mat.Dense) (*mat.Dense, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	r, c := x.Dims()
	if c != l.InFeatures() {
		return nil, fmt.Errorf("expected input with %d features, got %d", l.InFeatures(), c)
	}

	w, err := l.Weight.Matrix()
	if err != nil {
		return nil, err
	}

	out := mat.NewDense(r, l.OutFeatures(), nil)
	out.Mul(x, w)
	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		for j, b := range l.Bias.Data {
			row[j] += b
		}
	}
	return out, nil
}
