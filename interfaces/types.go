package interfaces

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
)

// Identity is the 20-byte address of an authenticated caller or secret owner.
type Identity [20]byte

// NewIdentityFromBytes creates an identity from a 20-byte slice.
func NewIdentityFromBytes(addr []byte) (Identity, error) {
	if len(addr) != 20 {
		return Identity{}, errors.New("invalid identity length: must be 20 bytes")
	}

	var res Identity
	copy(res[:], addr)
	return res, nil
}

// NewIdentityFromHex parses a 40-character hex address, with or without 0x prefix.
func NewIdentityFromHex(addr string) (Identity, error) {
	clean := strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X")
	if len(clean) != 40 {
		return Identity{}, errors.New("invalid identity length: hex string must be 40 characters")
	}

	if !common.IsHexAddress(clean) {
		_, err := hex.DecodeString(clean)
		return Identity{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return Identity(common.HexToAddress(clean)), nil
}

// IdentityFromAddress converts a go-ethereum address.
func IdentityFromAddress(addr common.Address) Identity {
	return Identity(addr)
}

// Address returns the go-ethereum representation.
func (id Identity) Address() common.Address {
	return common.Address(id)
}

// String returns the checksummed 0x-prefixed hex form.
func (id Identity) String() string {
	return common.Address(id).Hex()
}

// Bytes returns the raw 20-byte address.
func (id Identity) Bytes() []byte {
	return id[:]
}

// IsZero reports whether the identity is the zero address.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// MarshalText encodes the identity as 0x-prefixed hex.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText decodes a hex address.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := NewIdentityFromHex(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// MarshalCBOR encodes the identity as a 20-byte byte string.
func (id Identity) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(id[:])
}

// UnmarshalCBOR decodes a 20-byte byte string.
func (id *Identity) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewIdentityFromBytes(raw)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// SecretID identifies a secret within its owner's namespace.
type SecretID struct {
	Owner Identity
	Name  string
}

func (id SecretID) String() string {
	return fmt.Sprintf("%s/%s", id.Owner, id.Name)
}

// Field discriminates the three records stored for every secret.
type Field byte

const (
	// TimestampField holds the revelation timestamp. Its presence is the
	// existence signal for the whole secret.
	TimestampField Field = 't'
	// RevelationSetField holds the revelation set.
	RevelationSetField Field = 's'
	// ValueField holds the secret bytes.
	ValueField Field = 'v'
)

// AllFields lists the fields of a secret in storage order.
var AllFields = []Field{TimestampField, RevelationSetField, ValueField}

func (f Field) String() string {
	switch f {
	case TimestampField:
		return "timestamp"
	case RevelationSetField:
		return "revelation_set"
	case ValueField:
		return "value"
	default:
		return "unknown"
	}
}

// Valid reports whether f is one of the known fields.
func (f Field) Valid() bool {
	return f == TimestampField || f == RevelationSetField || f == ValueField
}

// StorageKey is the composite key of a single stored field.
type StorageKey struct {
	Secret SecretID
	Field  Field
}

// KeyFor builds the storage key for a field of a secret.
func KeyFor(owner Identity, name string, field Field) StorageKey {
	return StorageKey{Secret: SecretID{Owner: owner, Name: name}, Field: field}
}

// Bytes returns a stable byte encoding of the key, used as associated data
// when sealing field values.
func (k StorageKey) Bytes() []byte {
	buf := make([]byte, 0, 20+1+len(k.Secret.Name))
	buf = append(buf, k.Secret.Owner[:]...)
	buf = append(buf, byte(k.Field))
	buf = append(buf, k.Secret.Name...)
	return buf
}
