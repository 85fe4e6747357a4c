package serialization

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// CompressedSuffix marks parameter files that are written zstd-compressed.
const CompressedSuffix = ".zst"

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Encoder and decoder are safe for concurrent EncodeAll/DecodeAll calls.
var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil)
	})
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return newZstdDecoder(MaxFileSize)
	})
)

// newZstdDecoder returns a decoder that fails once output exceeds maxSize bytes.
func newZstdDecoder(maxSize uint64) (*zstd.Decoder, error) {
	return zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(maxSize),
	)
}

// IsCompressedPath reports whether files at path are written compressed.
func IsCompressedPath(path string) bool {
	return strings.HasSuffix(path, CompressedSuffix)
}

func isZstd(prefix []byte) bool {
	return bytes.HasPrefix(prefix, zstdMagic)
}

func compressZstd(data []byte) ([]byte, error) {
	enc, err := zstdEncoder()
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// decompressZstd decodes data, refusing output larger than MaxFileSize.
func decompressZstd(data []byte) ([]byte, error) {
	dec, err := zstdDecoder()
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}
