package bijector

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/born-ml/flow/internal/parallel"
	"github.com/born-ml/flow/internal/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// catalog returns a small photometric batch: a redshift column followed by
// six magnitudes.
func catalog() *mat.Dense {
	return mat.NewDense(3, 7, []float64{
		0.2, 24, 23, 27, 26, 24, 24,
		1.4, 26, 26, 17, 14, 36, 23,
		3.4, -1, 12, 74, 44, -6, 97,
	})
}

// normalBatch returns rows drawn from N(0, 2^2) so that spline couplings
// act inside their bound.
func normalBatch(rows, cols int, seed uint64) *mat.Dense {
	rng := rand.New(rand.NewPCG(seed, 2))
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = 2 * rng.NormFloat64()
	}
	return mat.NewDense(rows, cols, data)
}

// allClose mirrors numpy.allclose with rtol=1e-5 and atol=1e-8.
func allClose(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-8+1e-5*math.Abs(b[i]) {
			return false
		}
	}
	return true
}

func rawData(m *mat.Dense) []float64 {
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, m.RawRowView(i)...)
	}
	return out
}

func negate(v []float64) []float64 {
	out := append([]float64(nil), v...)
	floats.Scale(-1, out)
	return out
}

type testCase struct {
	name string
	b    Bijector
}

func testCases() []testCase {
	means := []float64{1, 20, 20, 30, 25, 20, 30}
	stds := []float64{1, 10, 8, 25, 15, 15, 30}
	mins := []float64{0, -2, 10, 15, 13, -7, 22}
	maxs := []float64{4, 27, 27, 75, 45, 37, 98}

	return []testCase{
		{"ColorTransform", ColorTransform(3, 20, 5)},
		{"Reverse", Reverse()},
		{"Roll", Roll(2)},
		{"Scale", Scale(2)},
		{"Shuffle", Shuffle()},
		{"Chain", Chain(Reverse(), Scale(1.0/6), Roll(-1))},
		{"NeuralSplineCoupling", NeuralSplineCoupling()},
		{"StandardScaler", StandardScaler(means, stds)},
		{"ShiftBounds", ShiftBounds(mins, maxs, 4)},
		{"RollingSplineCoupling", RollingSplineCoupling(2, 1, WithHiddenDim(16), WithBins(8))},
		{"Pipeline", Chain(
			ShiftBounds(mins, maxs, 4),
			Shuffle(),
			NeuralSplineCoupling(WithBound(4), WithHiddenDim(32)),
			Reverse(),
			NeuralSplineCoupling(WithBound(4), WithHiddenDim(32), WithTransformedDim(2)),
		)},
	}
}

func batches() map[string]*mat.Dense {
	return map[string]*mat.Dense{
		"catalog": catalog(),
		"normal":  normalBatch(16, 7, 1),
	}
}

func TestBijectors_ReturnsCorrectShape(t *testing.T) {
	for _, tc := range testCases() {
		t.Run(tc.name, func(t *testing.T) {
			params, forward, inverse, err := tc.b.Init(random.NewKey(0), 7)
			require.NoError(t, err)

			x := catalog()
			fwd, fwdLogDet, err := forward(params, x)
			require.NoError(t, err)
			r, c := fwd.Dims()
			assert.Equal(t, 3, r)
			assert.Equal(t, 7, c)
			assert.Len(t, fwdLogDet, 3)

			inv, invLogDet, err := inverse(params, x)
			require.NoError(t, err)
			r, c = inv.Dims()
			assert.Equal(t, 3, r)
			assert.Equal(t, 7, c)
			assert.Len(t, invLogDet, 3)
		})
	}
}

func TestBijectors_IsBijective(t *testing.T) {
	for _, tc := range testCases() {
		for bname, x := range batches() {
			t.Run(tc.name+"/"+bname, func(t *testing.T) {
				params, forward, inverse, err := tc.b.Init(random.NewKey(0), 7)
				require.NoError(t, err)

				fwd, fwdLogDet, err := forward(params, x)
				require.NoError(t, err)
				back, invLogDet, err := inverse(params, fwd)
				require.NoError(t, err)

				assert.True(t, allClose(rawData(back), rawData(x)), "round trip: got %v want %v", rawData(back), rawData(x))
				assert.True(t, allClose(fwdLogDet, negate(invLogDet)), "log-det: %v vs %v", fwdLogDet, invLogDet)
			})
		}
	}
}

func TestBijectors_IsCompilable(t *testing.T) {
	cfg := parallel.Config{Enabled: true, NumWorkers: 2, MinChunkSize: 1}

	for _, tc := range testCases() {
		t.Run(tc.name, func(t *testing.T) {
			params, forward, inverse, err := tc.b.Init(random.NewKey(0), 7)
			require.NoError(t, err)

			for _, x := range batches() {
				for _, fn := range []Func{forward, inverse} {
					want, wantLogDet, err := fn(params, x)
					require.NoError(t, err)

					got, gotLogDet, err := Compile(fn, 7, cfg)(params, x)
					require.NoError(t, err)

					assert.True(t, allClose(rawData(got), rawData(want)))
					assert.True(t, allClose(gotLogDet, wantLogDet))
				}
			}
		})
	}
}

func TestBijectors_InitIsDeterministic(t *testing.T) {
	for _, tc := range testCases() {
		t.Run(tc.name, func(t *testing.T) {
			p1, f1, _, err := tc.b.Init(random.NewKey(5), 7)
			require.NoError(t, err)
			p2, f2, _, err := tc.b.Init(random.NewKey(5), 7)
			require.NoError(t, err)
			assert.True(t, p1.Equal(p2))

			x := normalBatch(4, 7, 3)
			y1, ld1, err := f1(p1, x)
			require.NoError(t, err)
			y2, ld2, err := f2(p2, x)
			require.NoError(t, err)
			assert.Equal(t, rawData(y1), rawData(y2))
			assert.Equal(t, ld1, ld2)
		})
	}
}

func TestBijectors_DoNotMutateInputs(t *testing.T) {
	for _, tc := range testCases() {
		t.Run(tc.name, func(t *testing.T) {
			params, forward, inverse, err := tc.b.Init(random.NewKey(0), 7)
			require.NoError(t, err)
			paramsBefore := params.Clone()

			x := normalBatch(5, 7, 4)
			xBefore := mat.DenseCopyOf(x)

			_, _, err = forward(params, x)
			require.NoError(t, err)
			_, _, err = inverse(params, x)
			require.NoError(t, err)

			assert.True(t, mat.Equal(x, xBefore))
			assert.True(t, params.Equal(paramsBefore))
		})
	}
}

func TestBijectors_RejectWrongWidth(t *testing.T) {
	for _, tc := range testCases() {
		t.Run(tc.name, func(t *testing.T) {
			params, forward, inverse, err := tc.b.Init(random.NewKey(0), 7)
			require.NoError(t, err)

			for _, fn := range []Func{forward, inverse} {
				_, _, err := fn(params, mat.NewDense(2, 6, nil))
				assert.ErrorIs(t, err, ErrShape)

				var se *ShapeError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, 7, se.Want)
				assert.Equal(t, 6, se.Got)

				_, _, err = fn(params, nil)
				assert.ErrorIs(t, err, ErrShape)

				_, _, err = fn(params, &mat.Dense{})
				assert.ErrorIs(t, err, ErrShape)
			}
		})
	}
}

func TestBijectors_RejectNonPositiveDim(t *testing.T) {
	for _, b := range []Bijector{Reverse(), Roll(1), Shuffle(), Scale(2), NeuralSplineCoupling(), Chain(Reverse())} {
		t.Run(b.String(), func(t *testing.T) {
			_, _, _, err := b.Init(random.NewKey(0), 0)
			assert.ErrorIs(t, err, ErrShape)
		})
	}
}

func TestBijectors_ConcurrentCalls(t *testing.T) {
	b := Chain(Shuffle(), NeuralSplineCoupling(WithHiddenDim(16)), Roll(3))
	params, forward, _, err := b.Init(random.NewKey(1), 7)
	require.NoError(t, err)

	x := normalBatch(32, 7, 9)
	want, wantLogDet, err := forward(params, x)
	require.NoError(t, err)

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			got, gotLogDet, err := forward(params, x)
			if err == nil && (!mat.Equal(got, want) || !floats.Equal(gotLogDet, wantLogDet)) {
				err = errors.New("concurrent call diverged")
			}
			errs <- err
		}()
	}
	for i := 0; i < 8; i++ {
		assert.NoError(t, <-errs)
	}
}

func TestPermutations_ZeroLogDet(t *testing.T) {
	for _, b := range []Bijector{Reverse(), Roll(2), Roll(-9), Shuffle()} {
		t.Run(b.String(), func(t *testing.T) {
			params, forward, inverse, err := b.Init(random.NewKey(0), 7)
			require.NoError(t, err)

			_, ld, err := forward(params, catalog())
			require.NoError(t, err)
			assert.Equal(t, []float64{0, 0, 0}, ld)

			_, ld, err = inverse(params, catalog())
			require.NoError(t, err)
			assert.Equal(t, []float64{0, 0, 0}, ld)
		})
	}
}

func TestScale_Concrete(t *testing.T) {
	params, forward, inverse, err := Scale(2).Init(random.NewKey(0), 7)
	require.NoError(t, err)

	x := catalog()
	y, ld, err := forward(params, x)
	require.NoError(t, err)

	want := mat.NewDense(3, 7, nil)
	want.Scale(2, x)
	assert.True(t, mat.Equal(want, y))
	for _, v := range ld {
		assert.InDelta(t, 7*math.Ln2, v, 1e-12)
	}

	back, ild, err := inverse(params, y)
	require.NoError(t, err)
	assert.True(t, mat.Equal(x, back), "Scale(2) inverse must be exact")
	for _, v := range ild {
		assert.InDelta(t, -7*math.Ln2, v, 1e-12)
	}
}

func TestScale_InvalidFactor(t *testing.T) {
	for _, f := range []float64{0, math.NaN(), math.Inf(1)} {
		t.Run(fmt.Sprint(f), func(t *testing.T) {
			b := Scale(f)
			assert.ErrorIs(t, b.Validate(), ErrDomain)

			_, _, _, err := b.Init(random.NewKey(0), 3)
			assert.ErrorIs(t, err, ErrDomain)

			var de *DomainError
			assert.ErrorAs(t, err, &de)
		})
	}

	params, forward, _, err := Scale(-0.5).Init(random.NewKey(0), 4)
	require.NoError(t, err, "negative factors are valid")
	_, ld, err := forward(params, mat.NewDense(1, 4, []float64{1, 2, 3, 4}))
	require.NoError(t, err)
	assert.InDelta(t, 4*math.Log(0.5), ld[0], 1e-12)
}

func TestRoll_Concrete(t *testing.T) {
	p2, roll2, _, err := Roll(2).Init(random.NewKey(0), 7)
	require.NoError(t, err)
	pm2, rollBack, _, err := Roll(-2).Init(random.NewKey(0), 7)
	require.NoError(t, err)

	x := catalog()
	y, ld, err := roll2(p2, x)
	require.NoError(t, err)
	assert.Equal(t, []float64{24, 24, 0.2, 24, 23, 27, 26}, y.RawRowView(0))
	assert.Equal(t, []float64{0, 0, 0}, ld)

	back, ld, err := rollBack(pm2, y)
	require.NoError(t, err)
	assert.True(t, mat.Equal(x, back))
	assert.Equal(t, []float64{0, 0, 0}, ld)
}

func TestRoll_ShiftWrapsAround(t *testing.T) {
	_, a, _, err := Roll(9).Init(random.NewKey(0), 7)
	require.NoError(t, err)
	_, b, _, err := Roll(2).Init(random.NewKey(0), 7)
	require.NoError(t, err)

	ya, _, err := a(nil, catalog())
	require.NoError(t, err)
	yb, _, err := b(nil, catalog())
	require.NoError(t, err)
	assert.True(t, mat.Equal(ya, yb))
}

func TestReverse_Concrete(t *testing.T) {
	params, forward, inverse, err := Reverse().Init(random.NewKey(0), 7)
	require.NoError(t, err)

	y, _, err := forward(params, catalog())
	require.NoError(t, err)
	assert.Equal(t, []float64{97, -6, 44, 74, 12, -1, 3.4}, y.RawRowView(2))

	// Reverse is its own inverse.
	y2, _, err := inverse(params, catalog())
	require.NoError(t, err)
	assert.True(t, mat.Equal(y, y2))
}
