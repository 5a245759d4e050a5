package registry

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ruteri/tee-vigil/interfaces"
)

func encodeTimestamp(ts uint64) ([]byte, error) {
	return cbor.Marshal(ts)
}

func decodeTimestamp(data []byte) (uint64, error) {
	var ts uint64
	if err := cbor.Unmarshal(data, &ts); err != nil {
		return 0, fmt.Errorf("corrupt revelation timestamp: %w", err)
	}
	return ts, nil
}

func encodeRevelationSet(set interfaces.RevelationSet) ([]byte, error) {
	return cbor.Marshal(set)
}

func decodeRevelationSet(data []byte) (interfaces.RevelationSet, error) {
	var set interfaces.RevelationSet
	if err := cbor.Unmarshal(data, &set); err != nil {
		return interfaces.RevelationSet{}, fmt.Errorf("corrupt revelation set: %w", err)
	}
	return set, nil
}
