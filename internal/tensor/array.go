package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Array is a dense row-major float64 array with an explicit shape.
//
// Arrays are the leaves of a parameter tree. They are plain values so that
// they can be marshaled to JSON or written to a SafeTensors file as-is.
type Array struct {
	Shape Shape     `json:"shape"`
	Data  []float64 `json:"data"`
}

// NewArray allocates a zero-filled array of the given shape.
func NewArray(shape Shape) (*Array, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	return &Array{
		Shape: shape.Clone(),
		Data:  make([]float64, shape.NumElements()),
	}, nil
}

// FromSlice wraps data in an array of the given shape without copying.
func FromSlice(data []float64, shape Shape) (*Array, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	return &Array{Shape: shape.Clone(), Data: data}, nil
}

// NumElements returns the number of elements in the array.
func (a *Array) NumElements() int {
	return len(a.Data)
}

// Clone returns a deep copy of the array.
func (a *Array) Clone() *Array {
	data := make([]float64, len(a.Data))
	copy(data, a.Data)
	return &Array{Shape: a.Shape.Clone(), Data: data}
}

// Equal reports whether two arrays have identical shape and bit-identical data.
func (a *Array) Equal(other *Array) bool {
	if a == nil || other == nil {
		return a == other
	}
	if !a.Shape.Equal(other.Shape) || len(a.Data) != len(other.Data) {
		return false
	}
	for i := range a.Data {
		if math.Float64bits(a.Data[i]) != math.Float64bits(other.Data[i]) {
			return false
		}
	}
	return true
}

// Matrix returns a 2-D view of the array backed by the same storage.
//
// Callers must not modify the returned matrix: parameter arrays are shared
// between concurrent transform calls.
func (a *Array) Matrix() (*mat.Dense, error) {
	if len(a.Shape) != 2 {
		return nil, fmt.Errorf("expected 2-D array, got shape %v", a.Shape)
	}
	return mat.NewDense(a.Shape[0], a.Shape[1], a.Data), nil
}

// Bytes encodes the array data as little-endian float64 values.
func (a *Array) Bytes() []byte {
	buf := make([]byte, 8*len(a.Data))
	for i, v := range a.Data {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

// ArrayFromBytes decodes little-endian float64 values into an array.
func ArrayFromBytes(buf []byte, shape Shape) (*Array, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("byte length %d is not a multiple of 8", len(buf))
	}
	data := make([]float64, len(buf)/8)
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return FromSlice(data, shape)
}
