package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for security and resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB - maximum header size
	MaxTensorCount   = 100_000           // Maximum number of tensors in a file
	MaxTensorNameLen = 4096              // Maximum tensor name length
	MaxDataSize      = 1 << 30           // 1GB - maximum data section of a decompressed file

	// MaxFileSize bounds the decompressed size of a compressed file.
	MaxFileSize = 8 + MaxHeaderSize + MaxDataSize
)

// ValidateTensorOffsets checks for overlapping tensor offsets and out-of-bounds access.
func ValidateTensorOffsets(tensors []TensorMeta, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(tensors), MaxTensorCount),
			Err:     ErrTooManyTensors,
		}
	}

	// Sort tensors by offset for efficient overlap detection.
	sorted := make([]TensorMeta, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	for i, t := range sorted {
		if t.Offset < 0 || t.Size < 0 {
			return &ValidationError{
				Type:    "negative_offset",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset=%d, size=%d (negative values not allowed)", t.Offset, t.Size),
				Err:     ErrNegativeOffset,
			}
		}

		if t.Offset+t.Size > dataSize {
			return &ValidationError{
				Type:    "out_of_bounds",
				Tensor:  t.Name,
				Details: fmt.Sprintf("offset %d + size %d > data_size %d", t.Offset, t.Size, dataSize),
				Err:     ErrOutOfBounds,
			}
		}

		if i < len(sorted)-1 {
			next := sorted[i+1]
			if t.Offset+t.Size > next.Offset {
				return &ValidationError{
					Type:    "offset_overlap",
					Tensor:  t.Name,
					Tensor2: next.Name,
					Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap",
						t.Offset, t.Offset+t.Size, next.Offset, next.Offset+next.Size),
					Err: ErrOffsetOverlap,
				}
			}
		}
	}

	return nil
}

// ValidateTensorName rejects names that are too long or could be mistaken
// for paths.
func ValidateTensorName(name string) error {
	if name == "" {
		return &ValidationError{Type: "invalid_name", Details: "empty name", Err: ErrInvalidTensorName}
	}
	if len(name) > MaxTensorNameLen {
		return &ValidationError{
			Type:    "name_too_long",
			Tensor:  name[:32] + "...",
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
			Err:     ErrTensorNameTooLong,
		}
	}
	if strings.Contains(name, "..") {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "contains '..' (path traversal attempt)",
			Err:     ErrInvalidTensorName,
		}
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "contains path separator or null byte",
			Err:     ErrInvalidTensorName,
		}
	}
	if name == MetadataKey {
		return &ValidationError{
			Type:    "invalid_name",
			Tensor:  name,
			Details: "reserved for metadata",
			Err:     ErrInvalidTensorName,
		}
	}
	return nil
}

// ValidateHeader checks every tensor entry of a parsed header.
func ValidateHeader(tensors map[string]TensorInfo, dataSize int64) error {
	if len(tensors) > MaxTensorCount {
		return &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(tensors), MaxTensorCount),
			Err:     ErrTooManyTensors,
		}
	}

	metas := make([]TensorMeta, 0, len(tensors))
	for name, info := range tensors {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		if info.DType != DTypeF64 {
			return &ValidationError{
				Type:    "unsupported_dtype",
				Tensor:  name,
				Details: fmt.Sprintf("dtype %q, only %s is supported", info.DType, DTypeF64),
				Err:     ErrUnsupportedDType,
			}
		}
		elems := int64(1)
		for _, d := range info.Shape {
			if d <= 0 {
				return &ValidationError{
					Type:    "invalid_shape",
					Tensor:  name,
					Details: fmt.Sprintf("shape %v has non-positive dimension", info.Shape),
					Err:     ErrOutOfBounds,
				}
			}
			elems *= int64(d)
		}
		size := info.DataOffsets[1] - info.DataOffsets[0]
		if size != 8*elems {
			return &ValidationError{
				Type:    "size_mismatch",
				Tensor:  name,
				Details: fmt.Sprintf("shape %v needs %d bytes, offsets span %d", info.Shape, 8*elems, size),
				Err:     ErrOutOfBounds,
			}
		}
		metas = append(metas, TensorMeta{Name: name, Offset: info.DataOffsets[0], Size: size})
	}
	return ValidateTensorOffsets(metas, dataSize)
}
