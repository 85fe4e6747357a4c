// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the array types stored in bijector parameter trees.
//
// Example:
//
//	w, err := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
//	m, err := w.Matrix() // *mat.Dense view sharing storage
package tensor

import "github.com/born-ml/flow/internal/tensor"

// Shape represents the dimensions of an array.
type Shape = tensor.Shape

// Array is a dense row-major float64 array.
type Array = tensor.Array

// NewArray allocates a zero-filled array.
func NewArray(shape Shape) (*Array, error) {
	return tensor.NewArray(shape)
}

// FromSlice wraps data in an array of the given shape without copying.
func FromSlice(data []float64, shape Shape) (*Array, error) {
	return tensor.FromSlice(data, shape)
}
