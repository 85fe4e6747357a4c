package bijector

import (
	"math"
	"testing"

	"github.com/born-ml/flow/internal/random"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestStandardScaler(t *testing.T) {
	b := StandardScaler([]float64{1, -2}, []float64{2, 0.5})
	dim, ok := b.RequiredDim()
	require.True(t, ok)
	assert.Equal(t, 2, dim)

	params, forward, inverse, err := b.Init(random.NewKey(0), 2)
	require.NoError(t, err)

	x := mat.NewDense(2, 2, []float64{3, -2, 1, -1})
	y, ld, err := forward(params, x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 0}, y.RawRowView(0), 1e-12)
	assert.InDeltaSlice(t, []float64{0, 2}, y.RawRowView(1), 1e-12)
	assert.InDelta(t, -math.Log(2)-math.Log(0.5), ld[0], 1e-12)

	back, _, err := inverse(params, y)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(x, back, 1e-12))
}

func TestStandardScaler_Errors(t *testing.T) {
	_, _, _, err := StandardScaler([]float64{1}, []float64{0}).Init(random.NewKey(0), 1)
	assert.ErrorIs(t, err, ErrDomain)

	_, _, _, err = StandardScaler([]float64{1, 2}, []float64{1}).Init(random.NewKey(0), 2)
	assert.ErrorIs(t, err, ErrDomain)

	_, _, _, err = StandardScaler([]float64{1, 2}, []float64{1, 1}).Init(random.NewKey(0), 3)
	assert.ErrorIs(t, err, ErrShape)
}

func TestStandardScaler_CopiesArguments(t *testing.T) {
	means := []float64{0}
	stds := []float64{2}
	b := StandardScaler(means, stds)
	stds[0] = 0
	assert.NoError(t, b.Validate())
}

func TestShiftBounds(t *testing.T) {
	b := ShiftBounds([]float64{0, 10}, []float64{4, 30}, 5)
	params, forward, inverse, err := b.Init(random.NewKey(0), 2)
	require.NoError(t, err)

	x := mat.NewDense(3, 2, []float64{
		0, 10,
		2, 20,
		4, 30,
	})
	y, ld, err := forward(params, x)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-5, -5}, y.RawRowView(0), 1e-12)
	assert.InDeltaSlice(t, []float64{0, 0}, y.RawRowView(1), 1e-12)
	assert.InDeltaSlice(t, []float64{5, 5}, y.RawRowView(2), 1e-12)
	assert.InDelta(t, math.Log(10.0/4)+math.Log(10.0/20), ld[1], 1e-12)

	back, _, err := inverse(params, y)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(x, back, 1e-12))
}

func TestShiftBounds_Errors(t *testing.T) {
	tests := []struct {
		name string
		b    *ShiftBoundsBijector
	}{
		{"empty range", ShiftBounds([]float64{1}, []float64{1}, 5)},
		{"inverted range", ShiftBounds([]float64{2}, []float64{1}, 5)},
		{"zero bound", ShiftBounds([]float64{0}, []float64{1}, 0)},
		{"length mismatch", ShiftBounds([]float64{0, 1}, []float64{1}, 5)},
		{"infinite max", ShiftBounds([]float64{0}, []float64{math.Inf(1)}, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.b.Validate(), ErrDomain)
		})
	}
}
