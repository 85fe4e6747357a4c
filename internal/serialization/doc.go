// Package serialization persists bijector parameter trees in SafeTensors
// format.
//
//	Format Structure:
//	  [8 bytes: header size (uint64 LE)]
//	  [header: JSON object of tensor name -> {dtype, shape, data_offsets}]
//	  [tensor data: little-endian float64, names in sorted order]
//
// Parameter trees are flattened with Params.StateDict, so a chain's third
// component's spline weights are stored as "2.dense_0.weight". The header
// metadata records the tree skeleton needed to rebuild empty components,
// a random params_id and a SHA-256 checksum of the data section. Paths
// ending in ".zst" are written zstd-compressed.
//
// Example usage:
//
//	id, err := serialization.WriteParams("flow.safetensors", params, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	params, meta, err := serialization.ReadParams("flow.safetensors")
package serialization
