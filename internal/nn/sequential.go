package nn

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/born-ml/flow/internal/tensor"
	"gonum.org/v1/gonum/mat"
)

// NewMLP creates the layers of a multilayer perceptron.
//
// sizes lists the width of every activation, input first and output last,
// so NewMLP(rng, 3, 64, 64, 10) builds three layers.
func NewMLP(rng *rand.Rand, sizes ...int) ([]Layer, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("MLP needs at least input and output sizes, got %v", sizes)
	}
	layers := make([]Layer, 0, len(sizes)-1)
	for i := 0; i+1 < len(sizes); i++ {
		l, err := NewLayer(rng, sizes[i], sizes[i+1])
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		layers = append(layers, l)
	}
	return layers, nil
}

// Forward applies all layers in sequence with ReLU between them.
//
// The output of the last layer is returned without activation.
func Forward(layers []Layer, input *mat.Dense) (*mat.Dense, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("forward through empty network")
	}
	out := input
	for i, l := range layers {
		next, err := l.Apply(out)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if i < len(layers)-1 {
			ReLU(next)
		}
		out = next
	}
	return out, nil
}

// StateDict returns the layer arrays keyed "<prefix><i>.weight" and "<prefix><i>.bias".
func StateDict(prefix string, layers []Layer) map[string]*tensor.Array {
	stateDict := make(map[string]*tensor.Array, 2*len(layers))
	for i, l := range layers {
		stateDict[fmt.Sprintf("%s%d.weight", prefix, i)] = l.Weight
		stateDict[fmt.Sprintf("%s%d.bias", prefix, i)] = l.Bias
	}
	return stateDict
}

// LoadStateDict rebuilds layers from arrays written by StateDict.
//
// The returned layers share storage with stateDict.
func LoadStateDict(prefix string, stateDict map[string]*tensor.Array) ([]Layer, error) {
	// Every layer owns two entries, so no valid index reaches len/2.
	limit := len(stateDict) / 2
	n := 0
	for key := range stateDict {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		idx, _, ok := strings.Cut(rest, ".")
		if !ok {
			continue
		}
		i, err := strconv.Atoi(idx)
		if err != nil || i < 0 {
			return nil, fmt.Errorf("invalid layer key %q", key)
		}
		if i >= limit {
			return nil, fmt.Errorf("layer key %q: index %d out of range for %d arrays", key, i, len(stateDict))
		}
		n = max(n, i+1)
	}
	if n == 0 {
		return nil, fmt.Errorf("no layers with prefix %q", prefix)
	}

	layers := make([]Layer, n)
	for i := range layers {
		w, ok := stateDict[fmt.Sprintf("%s%d.weight", prefix, i)]
		if !ok {
			return nil, fmt.Errorf("missing weight for layer %d", i)
		}
		b, ok := stateDict[fmt.Sprintf("%s%d.bias", prefix, i)]
		if !ok {
			return nil, fmt.Errorf("missing bias for layer %d", i)
		}
		layers[i] = Layer{Weight: w, Bias: b}
		if err := layers[i].Validate(); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if i > 0 && layers[i-1].OutFeatures() != layers[i].InFeatures() {
			return nil, fmt.Errorf("layer %d expects %d inputs, previous layer emits %d",
				i, layers[i].InFeatures(), layers[i-1].OutFeatures())
		}
	}
	return layers, nil
}
