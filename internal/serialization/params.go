package serialization

import (
	"encoding/hex"
	"fmt"
	"maps"

	"github.com/google/uuid"

	"github.com/born-ml/flow/internal/bijector"
)

// WriteParams saves a parameter tree to path.
//
// User metadata is copied into the header; the format, version, skeleton,
// params_id and sha256 keys are always set by WriteParams and override
// user values with the same key. It returns the params_id written.
func WriteParams(path string, params *bijector.Params, metadata map[string]string) (string, error) {
	if params == nil {
		return "", fmt.Errorf("WriteParams: nil params")
	}

	stateDict := params.StateDict()
	_, data, err := EncodeStateDict(stateDict, nil)
	if err != nil {
		return "", fmt.Errorf("WriteParams: %w", err)
	}
	sum := ComputeChecksum(data)

	meta := make(map[string]string, len(metadata)+5)
	maps.Copy(meta, metadata)
	id := uuid.NewString()
	meta[MetaFormat] = FormatName
	meta[MetaVersion] = FormatVersion
	meta[MetaSkeleton] = params.Skeleton()
	meta[MetaParamsID] = id
	meta[MetaChecksum] = hex.EncodeToString(sum[:])

	if err := WriteSafeTensors(path, stateDict, meta); err != nil {
		return "", fmt.Errorf("WriteParams: %w", err)
	}
	return id, nil
}

// ReadParams loads a parameter tree saved by WriteParams.
//
// The data section is checked against the stored checksum when one is
// present. The returned metadata includes the keys written by WriteParams.
func ReadParams(path string) (*bijector.Params, map[string]string, error) {
	r, err := NewSafeTensorsReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("ReadParams: %w", err)
	}
	defer func() {
		_ = r.Close()
	}()

	meta := r.Metadata()
	if meta == nil {
		meta = map[string]string{}
	}
	skeleton, ok := meta[MetaSkeleton]
	if !ok {
		return nil, nil, fmt.Errorf("ReadParams: %w", ErrMissingSkeleton)
	}
	if format, ok := meta[MetaFormat]; ok && format != FormatName {
		return nil, nil, fmt.Errorf("ReadParams: unexpected format %q", format)
	}

	if stored, ok := meta[MetaChecksum]; ok {
		data, err := r.ReadData()
		if err != nil {
			return nil, nil, fmt.Errorf("ReadParams: %w", err)
		}
		if err := ValidateChecksum(ComputeChecksum(data), stored); err != nil {
			return nil, nil, fmt.Errorf("ReadParams: %w", err)
		}
	}

	stateDict, err := r.ReadStateDict()
	if err != nil {
		return nil, nil, fmt.Errorf("ReadParams: %w", err)
	}
	params, err := bijector.ParamsFromStateDict(stateDict, skeleton)
	if err != nil {
		return nil, nil, fmt.Errorf("ReadParams: %w", err)
	}
	return params, meta, nil
}
