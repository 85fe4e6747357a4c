package serialization

// Format constants.
const (
	DTypeF64      = "F64" // Only dtype written and accepted
	MetadataKey   = "__metadata__"
	FormatName    = "born-flow"
	FormatVersion = "1"
)

// Metadata keys written by WriteParams.
const (
	MetaFormat   = "format"
	MetaVersion  = "format_version"
	MetaSkeleton = "params_tree"
	MetaParamsID = "params_id"
	MetaChecksum = "sha256"
)

// TensorInfo describes a tensor in the SafeTensors header.
type TensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"` // [start, end)
}

// TensorMeta is a named TensorInfo, used for validation.
type TensorMeta struct {
	Name   string
	Offset int64
	Size   int64
}
