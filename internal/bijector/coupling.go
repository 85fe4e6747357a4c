package bijector

import (
	"fmt"

	"github.com/born-ml/flow/internal/nn"
	"github.com/born-ml/flow/internal/random"
	"github.com/born-ml/flow/internal/spline"
	"github.com/born-ml/flow/internal/tensor"
	"gonum.org/v1/gonum/mat"
)

// Coupling network defaults.
const (
	DefaultHiddenLayers = 2
	DefaultHiddenDim    = 128
)

// layerPrefix names the conditioner layers inside coupling params.
const layerPrefix = "dense_"

// CouplingOption configures a NeuralSplineCoupling.
type CouplingOption func(*couplingConfig)

type couplingConfig struct {
	spline         spline.Config
	hiddenLayers   int
	hiddenDim      int
	transformedDim int // 0 means D - D/2
}

// WithBins sets the number of spline bins K.
func WithBins(k int) CouplingOption {
	return func(c *couplingConfig) { c.spline.Bins = k }
}

// WithBound sets the spline interval [-B, B]. Values outside it pass
// through unchanged.
func WithBound(b float64) CouplingOption {
	return func(c *couplingConfig) { c.spline.Bound = b }
}

// WithHiddenLayers sets the number of hidden layers in the conditioner.
func WithHiddenLayers(n int) CouplingOption {
	return func(c *couplingConfig) { c.hiddenLayers = n }
}

// WithHiddenDim sets the width of every hidden layer in the conditioner.
func WithHiddenDim(n int) CouplingOption {
	return func(c *couplingConfig) { c.hiddenDim = n }
}

// WithTransformedDim sets how many trailing columns the spline transforms.
// The leading columns condition the network.
func WithTransformedDim(n int) CouplingOption {
	return func(c *couplingConfig) { c.transformedDim = n }
}

// NeuralSplineCouplingBijector is a rational-quadratic spline coupling layer.
type NeuralSplineCouplingBijector struct {
	cfg couplingConfig
}

// NeuralSplineCoupling returns a coupling bijector. The first D-t columns
// pass through unchanged and feed a ReLU network whose output parameterizes
// one monotonic rational-quadratic spline per remaining column. The network
// weights are the only trainable parameters in this package.
//
// By default t = D - D/2, with 16 bins on [-5, 5] and two hidden layers of
// width 128.
func NeuralSplineCoupling(opts ...CouplingOption) *NeuralSplineCouplingBijector {
	cfg := couplingConfig{
		spline:       spline.DefaultConfig(),
		hiddenLayers: DefaultHiddenLayers,
		hiddenDim:    DefaultHiddenDim,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &NeuralSplineCouplingBijector{cfg: cfg}
}

// String implements fmt.Stringer.
func (b *NeuralSplineCouplingBijector) String() string {
	return fmt.Sprintf("NeuralSplineCoupling(K=%d, B=%g)", b.cfg.spline.Bins, b.cfg.spline.Bound)
}

// Validate reports settings that cannot produce a strictly monotonic spline
// or a valid network.
func (b *NeuralSplineCouplingBijector) Validate() error {
	if err := b.cfg.spline.Validate(); err != nil {
		return &DomainError{Op: b.String(), Details: "spline settings", Err: err}
	}
	if b.cfg.hiddenLayers < 0 {
		return domainErr(b.String(), "hidden layers must be >= 0, got %d", b.cfg.hiddenLayers)
	}
	if b.cfg.hiddenDim < 1 {
		return domainErr(b.String(), "hidden dim must be >= 1, got %d", b.cfg.hiddenDim)
	}
	if b.cfg.transformedDim < 0 {
		return domainErr(b.String(), "transformed dim must be >= 0, got %d", b.cfg.transformedDim)
	}
	return nil
}

// split returns the conditioner and transformed column counts for inputDim.
func (b *NeuralSplineCouplingBijector) split(inputDim int) (cond, trans int, err error) {
	trans = b.cfg.transformedDim
	if trans == 0 {
		trans = inputDim - inputDim/2
	}
	if trans > inputDim {
		return 0, 0, domainErr(b.String(), "transformed dim %d exceeds input dim %d", trans, inputDim)
	}
	return inputDim - trans, trans, nil
}

// Init implements Bijector.
func (b *NeuralSplineCouplingBijector) Init(key random.Key, inputDim int) (*Params, Func, Func, error) {
	if err := b.Validate(); err != nil {
		return nil, nil, nil, err
	}
	if err := checkInputDim(b.String(), inputDim); err != nil {
		return nil, nil, nil, err
	}
	condDim, transDim, err := b.split(inputDim)
	if err != nil {
		return nil, nil, nil, err
	}

	sc := b.cfg.spline
	perColumn := sc.NumParams()

	// With no conditioning columns the network sees a constant zero input,
	// so the splines depend on the biases alone.
	sizes := []int{max(condDim, 1)}
	for i := 0; i < b.cfg.hiddenLayers; i++ {
		sizes = append(sizes, b.cfg.hiddenDim)
	}
	sizes = append(sizes, perColumn*transDim)

	layers, err := nn.NewMLP(key.Rand(), sizes...)
	if err != nil {
		return nil, nil, nil, domainErr(b.String(), "conditioner: %v", err)
	}
	params := &Params{Arrays: nn.StateDict(layerPrefix, layers)}

	condCols := tensor.Range(0, condDim)
	transCols := tensor.Range(condDim, transDim)

	apply := func(op string, invert bool) Func {
		return func(params *Params, x *mat.Dense) (*mat.Dense, []float64, error) {
			r, err := checkBatch(op, x, inputDim)
			if err != nil {
				return nil, nil, err
			}
			layers, err := loadConditioner(op, params, sizes)
			if err != nil {
				return nil, nil, err
			}

			var cond *mat.Dense
			if condDim > 0 {
				if cond, err = tensor.GatherColumns(x, condCols); err != nil {
					return nil, nil, err
				}
			} else {
				cond = mat.NewDense(r, 1, nil)
			}
			raw, err := nn.Forward(layers, cond)
			if err != nil {
				return nil, nil, &DomainError{Op: op, Details: "conditioner", Err: err}
			}

			out := mat.DenseCopyOf(x)
			logDet := make([]float64, r)
			for i := 0; i < r; i++ {
				rawRow := raw.RawRowView(i)
				row := out.RawRowView(i)
				for k, col := range transCols {
					knots, err := sc.Knots(rawRow[k*perColumn : (k+1)*perColumn])
					if err != nil {
						return nil, nil, &DomainError{Op: op, Details: fmt.Sprintf("spline for column %d", col), Err: err}
					}
					var ld float64
					if invert {
						row[col], ld = knots.Inverse(row[col])
					} else {
						row[col], ld = knots.Forward(row[col])
					}
					logDet[i] += ld
				}
			}
			return out, logDet, nil
		}
	}

	return params, apply(b.String()+".forward", false), apply(b.String()+".inverse", true), nil
}

// loadConditioner rebuilds the conditioner layers from params and checks
// them against the sizes fixed at Init.
func loadConditioner(op string, params *Params, sizes []int) ([]nn.Layer, error) {
	if params == nil {
		return nil, domainErr(op, "nil params")
	}
	layers, err := nn.LoadStateDict(layerPrefix, params.Arrays)
	if err != nil {
		return nil, &DomainError{Op: op, Details: "conditioner params", Err: err}
	}
	if len(layers) != len(sizes)-1 {
		return nil, shapeErr(op, "conditioner layers", len(sizes)-1, len(layers))
	}
	for i, l := range layers {
		if l.InFeatures() != sizes[i] {
			return nil, shapeErr(op, fmt.Sprintf("conditioner layer %d inputs", i), sizes[i], l.InFeatures())
		}
		if l.OutFeatures() != sizes[i+1] {
			return nil, shapeErr(op, fmt.Sprintf("conditioner layer %d outputs", i), sizes[i+1], l.OutFeatures())
		}
	}
	return layers, nil
}

// RollingSplineCoupling returns a Chain of nLayers pairs
// (NeuralSplineCoupling, Roll(shift)), so that every column is eventually
// transformed conditioned on the others.
func RollingSplineCoupling(nLayers, shift int, opts ...CouplingOption) *ChainBijector {
	bs := make([]Bijector, 0, 2*max(nLayers, 0))
	for i := 0; i < nLayers; i++ {
		bs = append(bs, NeuralSplineCoupling(opts...), Roll(shift))
	}
	return Chain(bs...)
}
