package nn

import (
	"math"
	"math/rand/v2"

	"github.com/born-ml/flow/internal/tensor"
)

// Xavier (Glorot) initialization for weights.
//
// Initializes weights with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
//
// The weight array has shape [fanIn, fanOut]. Draws consume rng in
// row-major order, so the same generator state yields identical weights.
func Xavier(rng *rand.Rand, fanIn, fanOut int) (*tensor.Array, error) {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

	w, err := tensor.NewArray(tensor.Shape{fanIn, fanOut})
	if err != nil {
		return nil, err
	}
	for i := range w.Data {
		w.Data[i] = (rng.Float64()*2.0 - 1.0) * bound
	}
	return w, nil
}

// Zeros creates a zero-filled array, used for bias initialization.
func Zeros(shape tensor.Shape) (*tensor.Array, error) {
	return tensor.NewArray(shape)
}
