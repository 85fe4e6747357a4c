// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package loader saves and loads bijector parameter trees.
//
// Parameters are stored as float64 SafeTensors files. Each file carries the
// tree skeleton, a random params_id and a SHA-256 checksum of its data in
// the header metadata.
//
// Example usage:
//
//	import (
//	    "github.com/born-ml/flow/bijector"
//	    "github.com/born-ml/flow/loader"
//	)
//
//	id, err := loader.SaveParams("flow.safetensors", params, map[string]string{"chain": flow.String()})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	params, meta, err := loader.LoadParams("flow.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(meta["params_id"])
package loader

import (
	"github.com/born-ml/flow/internal/bijector"
	"github.com/born-ml/flow/internal/serialization"
)

// Metadata keys set on every saved parameter file.
const (
	MetaFormat   = serialization.MetaFormat
	MetaVersion  = serialization.MetaVersion
	MetaSkeleton = serialization.MetaSkeleton
	MetaParamsID = serialization.MetaParamsID
	MetaChecksum = serialization.MetaChecksum
)

// Errors reported while loading.
var (
	ErrChecksumMismatch = serialization.ErrChecksumMismatch
	ErrMissingSkeleton  = serialization.ErrMissingSkeleton
)

// SaveParams writes params to path and returns the params_id stamped into
// the file.
func SaveParams(path string, params *bijector.Params, metadata map[string]string) (string, error) {
	return serialization.WriteParams(path, params, metadata)
}

// LoadParams reads a parameter tree written by SaveParams.
func LoadParams(path string) (*bijector.Params, map[string]string, error) {
	return serialization.ReadParams(path)
}

// Reader gives access to the individual arrays of a parameter file.
type Reader = serialization.SafeTensorsReader

// TensorInfo describes one stored array.
type TensorInfo = serialization.TensorInfo

// Open opens a parameter file for inspection. The caller must Close it.
func Open(path string) (*Reader, error) {
	return serialization.NewSafeTensorsReader(path)
}
