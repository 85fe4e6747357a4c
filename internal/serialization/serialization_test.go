package serialization

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/flow/internal/bijector"
	"github.com/born-ml/flow/internal/random"
	"github.com/born-ml/flow/internal/tensor"
)

func testChain() *bijector.ChainBijector {
	return bijector.Chain(
		bijector.Reverse(),
		bijector.Shuffle(),
		bijector.Scale(2),
		bijector.NeuralSplineCoupling(bijector.WithHiddenDim(8), bijector.WithBins(4)),
		bijector.Chain(bijector.Roll(1), bijector.Shuffle()),
	)
}

func TestWriteReadParams_RoundTrip(t *testing.T) {
	chain := testChain()
	params, forward, _, err := chain.Init(random.NewKey(11), 5)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "flow.safetensors")
	id, err := WriteParams(path, params, map[string]string{"chain": chain.String()})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	loaded, meta, err := ReadParams(path)
	require.NoError(t, err)
	assert.True(t, params.Equal(loaded), "loaded params must match bit for bit")
	assert.Equal(t, params.Skeleton(), loaded.Skeleton())
	assert.Equal(t, FormatName, meta[MetaFormat])
	assert.Equal(t, FormatVersion, meta[MetaVersion])
	assert.Equal(t, id, meta[MetaParamsID])
	assert.Equal(t, chain.String(), meta["chain"])
	assert.Len(t, meta[MetaChecksum], 64)

	// Loaded params drive the same transform.
	x := mat.NewDense(2, 5, []float64{
		0.1, -0.4, 1.2, 2.5, -3,
		1, 2, 3, 4, 0.5,
	})
	y1, ld1, err := forward(params, x)
	require.NoError(t, err)
	y2, ld2, err := forward(loaded, x)
	require.NoError(t, err)
	assert.True(t, mat.Equal(y1, y2))
	assert.Equal(t, ld1, ld2)
}

func TestWriteParams_FreshIDs(t *testing.T) {
	params, _, _, err := bijector.Shuffle().Init(random.NewKey(0), 3)
	require.NoError(t, err)

	dir := t.TempDir()
	id1, err := WriteParams(filepath.Join(dir, "a.safetensors"), params, nil)
	require.NoError(t, err)
	id2, err := WriteParams(filepath.Join(dir, "b.safetensors"), params, nil)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestWriteParams_ReservedKeysOverrideUserMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.safetensors")
	_, err := WriteParams(path, bijector.NewParams(), map[string]string{MetaFormat: "other"})
	require.NoError(t, err)

	loaded, meta, err := ReadParams(path)
	require.NoError(t, err)
	assert.Equal(t, FormatName, meta[MetaFormat])
	assert.Equal(t, 0, loaded.NumElements())
}

func TestReadParams_DetectsCorruption(t *testing.T) {
	params, _, _, err := bijector.Shuffle().Init(random.NewKey(2), 4)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "p.safetensors")
	_, err = WriteParams(path, params, nil)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	_, _, err = ReadParams(path)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestReadParams_MissingSkeleton(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.safetensors")
	a, err := tensor.FromSlice([]float64{1, 2}, tensor.Shape{2})
	require.NoError(t, err)
	require.NoError(t, WriteSafeTensors(path, map[string]*tensor.Array{"w": a}, nil))

	_, _, err = ReadParams(path)
	assert.ErrorIs(t, err, ErrMissingSkeleton)
}

func TestSafeTensors_RoundTrip(t *testing.T) {
	w, err := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	require.NoError(t, err)
	b, err := tensor.FromSlice([]float64{-0.5}, tensor.Shape{1})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "t.safetensors")
	require.NoError(t, WriteSafeTensors(path, map[string]*tensor.Array{"w": w, "b": b}, map[string]string{"k": "v"}))

	r, err := NewSafeTensorsReader(path)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	assert.Equal(t, []string{"b", "w"}, r.TensorNames())
	assert.Equal(t, "v", r.Metadata()["k"])
	assert.Equal(t, int64(56), r.DataSize())

	info, err := r.TensorInfo("w")
	require.NoError(t, err)
	assert.Equal(t, DTypeF64, info.DType)
	assert.Equal(t, []int{2, 3}, info.Shape)
	// Names are laid out alphabetically, so "w" follows "b".
	assert.Equal(t, [2]int64{8, 56}, info.DataOffsets)

	got, err := r.ReadTensor("w")
	require.NoError(t, err)
	assert.True(t, w.Equal(got))

	_, err = r.ReadTensor("missing")
	assert.Error(t, err)
}

func TestWriteSafeTensors_RejectsBadNames(t *testing.T) {
	a, err := tensor.FromSlice([]float64{1}, tensor.Shape{1})
	require.NoError(t, err)
	dir := t.TempDir()

	for _, name := range []string{"", "../escape", "a/b", MetadataKey} {
		err := WriteSafeTensors(filepath.Join(dir, "x.safetensors"), map[string]*tensor.Array{name: a}, nil)
		assert.ErrorIs(t, err, ErrInvalidTensorName, "name %q", name)
	}
}

// writeRaw writes a SafeTensors file with a hand-built header.
func writeRaw(t *testing.T, header map[string]any, data []byte) string {
	t.Helper()
	hdr, err := json.Marshal(header)
	require.NoError(t, err)

	buf := make([]byte, 8, 8+len(hdr)+len(data))
	binary.LittleEndian.PutUint64(buf, uint64(len(hdr)))
	buf = append(buf, hdr...)
	buf = append(buf, data...)

	path := filepath.Join(t.TempDir(), "raw.safetensors")
	require.NoError(t, os.WriteFile(path, buf, 0o600))
	return path
}

func TestNewSafeTensorsReader_ValidatesHeader(t *testing.T) {
	data := make([]byte, 16)

	tests := []struct {
		name   string
		header map[string]any
		want   error
	}{
		{
			name: "overlap",
			header: map[string]any{
				"a": TensorInfo{DType: DTypeF64, Shape: []int{1}, DataOffsets: [2]int64{0, 8}},
				"b": TensorInfo{DType: DTypeF64, Shape: []int{1}, DataOffsets: [2]int64{4, 12}},
			},
			want: ErrOffsetOverlap,
		},
		{
			name: "out of bounds",
			header: map[string]any{
				"a": TensorInfo{DType: DTypeF64, Shape: []int{3}, DataOffsets: [2]int64{0, 24}},
			},
			want: ErrOutOfBounds,
		},
		{
			name: "negative offset",
			header: map[string]any{
				"a": TensorInfo{DType: DTypeF64, Shape: []int{1}, DataOffsets: [2]int64{-8, 0}},
			},
			want: ErrNegativeOffset,
		},
		{
			name: "dtype",
			header: map[string]any{
				"a": TensorInfo{DType: "F32", Shape: []int{2}, DataOffsets: [2]int64{0, 8}},
			},
			want: ErrUnsupportedDType,
		},
		{
			name: "traversal",
			header: map[string]any{
				"../a": TensorInfo{DType: DTypeF64, Shape: []int{1}, DataOffsets: [2]int64{0, 8}},
			},
			want: ErrInvalidTensorName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeRaw(t, tt.header, data)
			_, err := NewSafeTensorsReader(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var ve *ValidationError
			assert.True(t, errors.As(err, &ve))
		})
	}
}

func TestNewSafeTensorsReader_HeaderTooLarge(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, MaxHeaderSize+1)
	path := filepath.Join(t.TempDir(), "big.safetensors")
	require.NoError(t, os.WriteFile(path, buf, 0o600))

	_, err := NewSafeTensorsReader(path)
	assert.ErrorIs(t, err, ErrHeaderTooLarge)
}

func TestValidateTensorOffsets(t *testing.T) {
	ok := []TensorMeta{
		{Name: "b", Offset: 8, Size: 8},
		{Name: "a", Offset: 0, Size: 8},
	}
	assert.NoError(t, ValidateTensorOffsets(ok, 16))

	err := ValidateTensorOffsets(ok, 12)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "b", ve.Tensor)
	assert.Contains(t, ve.Error(), "out_of_bounds")
}

func TestValidateChecksum(t *testing.T) {
	sum := ComputeChecksum([]byte("flow"))
	assert.Error(t, ValidateChecksum(sum, "00"))
}

func TestWriteReadParams_Compressed(t *testing.T) {
	chain := testChain()
	params, _, _, err := chain.Init(random.NewKey(4), 6)
	require.NoError(t, err)

	dir := t.TempDir()
	plain := filepath.Join(dir, "flow.safetensors")
	packed := filepath.Join(dir, "flow.safetensors"+CompressedSuffix)
	_, err = WriteParams(plain, params, nil)
	require.NoError(t, err)
	_, err = WriteParams(packed, params, nil)
	require.NoError(t, err)

	raw, err := os.ReadFile(packed)
	require.NoError(t, err)
	assert.True(t, isZstd(raw), "compressed file must start with the zstd magic number")

	loaded, meta, err := ReadParams(packed)
	require.NoError(t, err)
	assert.True(t, params.Equal(loaded))
	assert.Equal(t, params.Skeleton(), meta[MetaSkeleton])

	r, err := NewSafeTensorsReader(packed)
	require.NoError(t, err)
	assert.Equal(t, params.Names(), r.TensorNames())
	assert.NoError(t, r.Close())
}

func TestNewSafeTensorsReader_CorruptCompressedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zst")
	require.NoError(t, os.WriteFile(path, append([]byte{0x28, 0xb5, 0x2f, 0xfd}, 1, 2, 3), 0o600))

	_, err := NewSafeTensorsReader(path)
	assert.Error(t, err)
}

func TestZstd_OutputIsCapped(t *testing.T) {
	packed, err := compressZstd(make([]byte, 64<<10))
	require.NoError(t, err)
	require.Less(t, len(packed), 1<<10)

	dec, err := newZstdDecoder(16 << 10)
	require.NoError(t, err)
	defer dec.Close()

	_, err = dec.DecodeAll(packed, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded), err.Error())

	out, err := decompressZstd(packed)
	require.NoError(t, err)
	assert.Len(t, out, 64<<10)
}

func TestReadParams_RejectsHostileSkeleton(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep.safetensors")
	meta := map[string]string{MetaSkeleton: strings.Repeat("(", 1_000_000)}
	require.NoError(t, WriteSafeTensors(path, map[string]*tensor.Array{}, meta))

	_, _, err := ReadParams(path)
	assert.ErrorContains(t, err, "nested deeper")
}
