package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ruteri/tee-vigil/interfaces"
)

// encodeRecord serializes a record as a CBOR map from single-character
// field tags to field bytes.
func encodeRecord(rec interfaces.Record) ([]byte, error) {
	wire := make(map[string][]byte, len(rec))
	for f, v := range rec {
		if !f.Valid() {
			return nil, fmt.Errorf("invalid field %q", byte(f))
		}
		wire[string(rune(f))] = v
	}
	return cbor.Marshal(wire)
}

func decodeRecord(data []byte) (interfaces.Record, error) {
	var wire map[string][]byte
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}

	rec := make(interfaces.Record, len(wire))
	for tag, v := range wire {
		if len(tag) != 1 || !interfaces.Field(tag[0]).Valid() {
			return nil, fmt.Errorf("invalid field tag %q in record", tag)
		}
		if v == nil {
			v = []byte{}
		}
		rec[interfaces.Field(tag[0])] = v
	}
	return rec, nil
}

// recordPath returns a filesystem and URL safe relative location for a secret.
// Names are hashed so the location has a fixed length whatever the name.
func recordPath(id interfaces.SecretID) (owner, name string) {
	digest := sha256.Sum256([]byte(id.Name))
	return hex.EncodeToString(id.Owner[:]), hex.EncodeToString(digest[:])
}
