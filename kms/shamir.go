package kms

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/vault/shamir"
)

// MinSeedLength is the minimum length of a seal seed.
const MinSeedLength = 32

var (
	ErrLocked          = errors.New("seal seed is locked - need more shares to unlock")
	ErrAlreadyUnlocked = errors.New("seal seed is already unlocked")
	ErrMalformedShare  = errors.New("malformed seal seed share")
)

// ShamirConfig contains the sharing parameters of a seal seed.
type ShamirConfig struct {
	// Parts is the number of shares to create
	Parts int
	// Threshold is the minimum number of shares required to reconstruct the seed
	Threshold int
}

func (c ShamirConfig) validate() error {
	if c.Threshold < 2 {
		return errors.New("threshold must be at least 2")
	}
	if c.Parts < c.Threshold {
		return errors.New("total shares must be at least equal to threshold")
	}
	if c.Parts > 255 {
		return errors.New("at most 255 shares are supported")
	}
	return nil
}

// Share is one part of a split seal seed. Its last byte identifies the share.
type Share []byte

// String returns the hex encoding used in share files.
func (s Share) String() string {
	return hex.EncodeToString(s)
}

// ParseShare decodes a hex-encoded share, ignoring surrounding whitespace.
func ParseShare(s string) (Share, error) {
	data, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedShare, err)
	}
	if len(data) < MinSeedLength+1 {
		return nil, fmt.Errorf("%w: share too short", ErrMalformedShare)
	}
	return Share(data), nil
}

// SplitSealSeed splits seed into cfg.Parts shares, any cfg.Threshold of
// which reconstruct it.
func SplitSealSeed(seed []byte, cfg ShamirConfig) ([]Share, error) {
	if len(seed) < MinSeedLength {
		return nil, fmt.Errorf("seal seed must be at least %d bytes", MinSeedLength)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	parts, err := shamir.Split(seed, cfg.Parts, cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split seal seed: %w", err)
	}

	shares := make([]Share, len(parts))
	for i, p := range parts {
		shares[i] = Share(p)
	}
	return shares, nil
}

// Recovery collects shares until the seal seed can be reconstructed.
type Recovery struct {
	mu        sync.RWMutex
	threshold int
	received  map[byte]Share // keyed by share identifier
	seed      []byte
}

func NewRecovery(threshold int) *Recovery {
	return &Recovery{
		threshold: threshold,
		received:  make(map[byte]Share),
	}
}

// SubmitShare adds a share. Resubmitting a share with the same identifier
// replaces the earlier one. Once threshold distinct shares are present the
// seed is reconstructed and the shares are wiped.
func (r *Recovery) SubmitShare(share Share) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.seed != nil {
		return ErrAlreadyUnlocked
	}
	if len(share) < MinSeedLength+1 {
		return fmt.Errorf("%w: share too short", ErrMalformedShare)
	}
	for _, other := range r.received {
		if len(other) != len(share) {
			return fmt.Errorf("%w: share length %d does not match %d", ErrMalformedShare, len(share), len(other))
		}
		break
	}

	r.received[share[len(share)-1]] = append(Share(nil), share...)
	return r.tryReconstruct()
}

func (r *Recovery) tryReconstruct() error {
	if len(r.received) < r.threshold {
		return nil
	}

	parts := make([][]byte, 0, len(r.received))
	for _, share := range r.received {
		parts = append(parts, share)
	}

	seed, err := shamir.Combine(parts)
	if err != nil {
		return fmt.Errorf("failed to reconstruct seal seed: %w", err)
	}
	r.seed = seed

	for id := range r.received {
		wipeBytes(r.received[id])
	}
	r.received = make(map[byte]Share)
	return nil
}

// IsUnlocked reports whether the seed has been reconstructed.
func (r *Recovery) IsUnlocked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seed != nil
}

// Seed returns a copy of the reconstructed seed.
func (r *Recovery) Seed() ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.seed == nil {
		return nil, ErrLocked
	}
	return append([]byte(nil), r.seed...), nil
}

// RecoverSeedFromFiles reconstructs the seal seed from hex share files.
func RecoverSeedFromFiles(paths []string, threshold int) ([]byte, error) {
	recovery := NewRecovery(threshold)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read share file: %w", err)
		}
		share, err := ParseShare(string(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := recovery.SubmitShare(share); err != nil {
			if errors.Is(err, ErrAlreadyUnlocked) {
				break
			}
			return nil, err
		}
	}
	return recovery.Seed()
}

func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
