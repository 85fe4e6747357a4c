package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/born-ml/flow/internal/tensor"
)

// SafeTensorsWriter writes float64 arrays in SafeTensors format.
type SafeTensorsWriter struct {
	file     *os.File
	compress bool
	closed   bool
}

// NewSafeTensorsWriter creates a new SafeTensors file writer.
//
// Paths ending in CompressedSuffix are written zstd-compressed.
func NewSafeTensorsWriter(path string) (*SafeTensorsWriter, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for parameter saving
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return &SafeTensorsWriter{file: file, compress: IsCompressedPath(path)}, nil
}

// WriteSafeTensors writes arrays to a SafeTensors file.
//
// Arrays are written in alphabetical order by name.
func WriteSafeTensors(path string, arrays map[string]*tensor.Array, metadata map[string]string) error {
	writer, err := NewSafeTensorsWriter(path)
	if err != nil {
		return err
	}
	if err := writer.WriteStateDict(arrays, metadata); err != nil {
		_ = writer.Close() // Best effort close on error
		return err
	}
	return writer.Close()
}

// EncodeStateDict lays out a state dictionary as a SafeTensors header and
// data section.
func EncodeStateDict(stateDict map[string]*tensor.Array, metadata map[string]string) (header, data []byte, err error) {
	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		if err := ValidateTensorName(name); err != nil {
			return nil, nil, err
		}
		names = append(names, name)
	}
	if len(names) > MaxTensorCount {
		return nil, nil, &ValidationError{
			Type:    "too_many_tensors",
			Details: fmt.Sprintf("got %d, max %d", len(names), MaxTensorCount),
			Err:     ErrTooManyTensors,
		}
	}
	sort.Strings(names)

	entries := make(map[string]any, len(names)+1)
	if len(metadata) > 0 {
		entries[MetadataKey] = metadata
	}

	var buf bytes.Buffer
	var offset int64
	for _, name := range names {
		arr := stateDict[name]
		if arr == nil {
			return nil, nil, fmt.Errorf("array %q is nil", name)
		}
		if err := arr.Shape.Validate(); err != nil {
			return nil, nil, fmt.Errorf("array %q: %w", name, err)
		}
		if arr.NumElements() != arr.Shape.NumElements() {
			return nil, nil, fmt.Errorf("array %q: %d elements for shape %v", name, arr.NumElements(), arr.Shape)
		}
		raw := arr.Bytes()
		size := int64(len(raw))
		entries[name] = TensorInfo{
			DType:       DTypeF64,
			Shape:       []int(arr.Shape.Clone()),
			DataOffsets: [2]int64{offset, offset + size},
		}
		buf.Write(raw)
		offset += size
	}

	header, err = json.Marshal(entries)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(header) > MaxHeaderSize {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, len(header))
	}
	return header, buf.Bytes(), nil
}

// WriteStateDict writes a state dictionary to the underlying file.
func (w *SafeTensorsWriter) WriteStateDict(stateDict map[string]*tensor.Array, metadata map[string]string) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}

	header, data, err := EncodeStateDict(stateDict, metadata)
	if err != nil {
		return err
	}

	buf := make([]byte, 8, 8+len(header)+len(data))
	binary.LittleEndian.PutUint64(buf, uint64(len(header)))
	buf = append(buf, header...)
	buf = append(buf, data...)
	if w.compress {
		if buf, err = compressZstd(buf); err != nil {
			return err
		}
	}

	if _, err := w.file.Write(buf); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Close closes the writer and the underlying file.
func (w *SafeTensorsWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}
