package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/born-ml/flow/internal/tensor"
)

// Header is the JSON header of a SafeTensors file.
type Header struct {
	Metadata map[string]string
	Tensors  map[string]TensorInfo
}

// UnmarshalJSON splits the header object into metadata and tensor entries.
func (h *Header) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	if metadataRaw, ok := rawMap[MetadataKey]; ok {
		if err := json.Unmarshal(metadataRaw, &h.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	h.Tensors = make(map[string]TensorInfo, len(rawMap))
	for key, value := range rawMap {
		if key == MetadataKey {
			continue
		}
		var info TensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("failed to unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}
	return nil
}

// SafeTensorsReader reads float64 arrays from a SafeTensors file.
type SafeTensorsReader struct {
	src        io.ReaderAt
	closer     io.Closer
	header     Header
	dataOffset int64
	dataSize   int64
}

// NewSafeTensorsReader opens path and validates its header.
//
// Every tensor entry is checked for dtype, name, and offsets before any
// data is read. zstd-compressed files are detected by their magic number
// and decompressed into memory.
func NewSafeTensorsReader(path string) (*SafeTensorsReader, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for parameter loading
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close() // Best effort close on error
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	magic := make([]byte, len(zstdMagic))
	n, _ := file.ReadAt(magic, 0)
	if !isZstd(magic[:n]) {
		r, err := NewReader(file, stat.Size())
		if err != nil {
			_ = file.Close() // Best effort close on error
			return nil, err
		}
		r.closer = file
		return r, nil
	}

	compressed, err := io.ReadAll(file)
	_ = file.Close() // Contents are held in memory from here on
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	raw, err := decompressZstd(compressed)
	if err != nil {
		return nil, err
	}
	return NewReader(bytes.NewReader(raw), int64(len(raw)))
}

// NewReader parses a SafeTensors image of the given size held by src.
func NewReader(src io.ReaderAt, size int64) (*SafeTensorsReader, error) {
	var sizeBuf [8]byte
	if _, err := src.ReadAt(sizeBuf[:], 0); err != nil {
		return nil, fmt.Errorf("failed to read header size: %w", err)
	}
	headerSize := binary.LittleEndian.Uint64(sizeBuf[:])
	if headerSize > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}
	//nolint:gosec // G115: headerSize bounded by MaxHeaderSize above.
	dataOffset := int64(8 + headerSize)
	if dataOffset > size {
		return nil, fmt.Errorf("header size %d exceeds file size %d", headerSize, size)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := src.ReadAt(headerBytes, 8); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	dataSize := size - dataOffset
	if err := ValidateHeader(header.Tensors, dataSize); err != nil {
		return nil, err
	}

	return &SafeTensorsReader{
		src:        src,
		header:     header,
		dataOffset: dataOffset,
		dataSize:   dataSize,
	}, nil
}

// Close closes the SafeTensors file.
func (r *SafeTensorsReader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Metadata returns the metadata map from the header.
func (r *SafeTensorsReader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns all tensor names in sorted order.
func (r *SafeTensorsReader) TensorNames() []string {
	names := make([]string, 0, len(r.header.Tensors))
	for name := range r.header.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TensorInfo returns information about a specific tensor.
func (r *SafeTensorsReader) TensorInfo(name string) (TensorInfo, error) {
	info, ok := r.header.Tensors[name]
	if !ok {
		return TensorInfo{}, fmt.Errorf("tensor %s not found", name)
	}
	return info, nil
}

// DataSize returns the length of the data section in bytes.
func (r *SafeTensorsReader) DataSize() int64 {
	return r.dataSize
}

// ReadData reads the whole data section.
func (r *SafeTensorsReader) ReadData() ([]byte, error) {
	if r.dataSize == 0 {
		return []byte{}, nil
	}
	data := make([]byte, r.dataSize)
	if _, err := r.src.ReadAt(data, r.dataOffset); err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	return data, nil
}

// ReadTensor loads a single tensor as an array.
func (r *SafeTensorsReader) ReadTensor(name string) (*tensor.Array, error) {
	info, err := r.TensorInfo(name)
	if err != nil {
		return nil, err
	}

	size := info.DataOffsets[1] - info.DataOffsets[0]
	buf := make([]byte, size)
	if _, err := r.src.ReadAt(buf, r.dataOffset+info.DataOffsets[0]); err != nil {
		return nil, fmt.Errorf("failed to read tensor %s: %w", name, err)
	}

	arr, err := tensor.ArrayFromBytes(buf, tensor.Shape(info.Shape))
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	return arr, nil
}

// ReadStateDict loads every tensor in the file.
func (r *SafeTensorsReader) ReadStateDict() (map[string]*tensor.Array, error) {
	stateDict := make(map[string]*tensor.Array, len(r.header.Tensors))
	for _, name := range r.TensorNames() {
		arr, err := r.ReadTensor(name)
		if err != nil {
			return nil, err
		}
		stateDict[name] = arr
	}
	return stateDict, nil
}
