package bijector

import (
	"github.com/born-ml/flow/internal/parallel"
	"gonum.org/v1/gonum/mat"
)

// Compile binds fn to inputDim and returns an equivalent Func that splits
// large batches into row ranges evaluated concurrently.
//
// Every bijector treats rows independently, so the compiled Func returns
// the same batch and log-det as fn. It does not depend on the params value
// and can be reused with any params of matching structure; compile again
// when inputDim or the bijector structure changes.
func Compile(fn Func, inputDim int, cfg parallel.Config) Func {
	const op = "compiled"
	return func(params *Params, x *mat.Dense) (*mat.Dense, []float64, error) {
		r, err := checkBatch(op, x, inputDim)
		if err != nil {
			return nil, nil, err
		}
		chunks := parallel.Chunks(r, cfg)
		if len(chunks) == 1 {
			return fn(params, x)
		}

		out := mat.NewDense(r, inputDim, nil)
		logDet := make([]float64, r)
		err = parallel.ForRange(r, func(start, end int) error {
			sub := x.Slice(start, end, 0, inputDim).(*mat.Dense)
			y, ld, err := fn(params, sub)
			if err != nil {
				return err
			}
			out.Slice(start, end, 0, inputDim).(*mat.Dense).Copy(y)
			copy(logDet[start:end], ld)
			return nil
		}, cfg)
		if err != nil {
			return nil, nil, err
		}
		return out, logDet, nil
	}
}
