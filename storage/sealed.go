package storage

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/ruteri/tee-vigil/interfaces"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealingInfo = "vigil record sealing v1"

// ErrUnsealFailed is returned when a stored field fails authentication.
var ErrUnsealFailed = errors.New("failed to unseal record field")

// SealedBackend encrypts every field with XChaCha20-Poly1305 before handing
// the record to the wrapped backend. The owner, name and field of a value
// are bound as associated data, so values cannot be swapped between keys.
type SealedBackend struct {
	inner interfaces.RecordBackend
	aead  cipher.AEAD
}

// NewSealedBackend derives the sealing key from seed with HKDF-SHA256.
func NewSealedBackend(inner interfaces.RecordBackend, seed []byte) (*SealedBackend, error) {
	if len(seed) < 32 {
		return nil, fmt.Errorf("sealing seed must be at least 32 bytes, got %d", len(seed))
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, seed, nil, []byte(sealingInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	return &SealedBackend{inner: inner, aead: aead}, nil
}

func (b *SealedBackend) LoadRecord(ctx context.Context, id interfaces.SecretID) (interfaces.Record, error) {
	sealed, err := b.inner.LoadRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	rec := make(interfaces.Record, len(sealed))
	for f, v := range sealed {
		nonceSize := b.aead.NonceSize()
		if len(v) < nonceSize {
			return nil, fmt.Errorf("%w: %s of %s is truncated", ErrUnsealFailed, f, id)
		}
		plain, err := b.aead.Open(nil, v[:nonceSize], v[nonceSize:], interfaces.KeyFor(id.Owner, id.Name, f).Bytes())
		if err != nil {
			return nil, fmt.Errorf("%w: %s of %s", ErrUnsealFailed, f, id)
		}
		if plain == nil {
			plain = []byte{}
		}
		rec[f] = plain
	}
	return rec, nil
}

func (b *SealedBackend) SaveRecord(ctx context.Context, id interfaces.SecretID, rec interfaces.Record) error {
	sealed := make(interfaces.Record, len(rec))
	for f, v := range rec {
		nonce := make([]byte, b.aead.NonceSize(), b.aead.NonceSize()+len(v)+b.aead.Overhead())
		if _, err := rand.Read(nonce); err != nil {
			return fmt.Errorf("nonce: %w", err)
		}
		sealed[f] = b.aead.Seal(nonce, nonce, v, interfaces.KeyFor(id.Owner, id.Name, f).Bytes())
	}
	return b.inner.SaveRecord(ctx, id, sealed)
}

func (b *SealedBackend) DeleteRecord(ctx context.Context, id interfaces.SecretID) error {
	return b.inner.DeleteRecord(ctx, id)
}

func (b *SealedBackend) Available(ctx context.Context) bool {
	return b.inner.Available(ctx)
}

func (b *SealedBackend) Name() string {
	return "sealed-" + b.inner.Name()
}

func (b *SealedBackend) LocationURI() string {
	return b.inner.LocationURI()
}
