package kms

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSeed(t *testing.T) []byte {
	t.Helper()
	seed := make([]byte, 32)
	_, err := rand.Read(seed)
	require.NoError(t, err, "Failed to generate test seed")
	return seed
}

func TestSplitSealSeed(t *testing.T) {
	seed := newSeed(t)

	shares, err := SplitSealSeed(seed, ShamirConfig{Parts: 5, Threshold: 3})
	require.NoError(t, err)
	assert.Len(t, shares, 5)
	for _, share := range shares {
		assert.Len(t, share, len(seed)+1)
	}

	_, err = SplitSealSeed(seed, ShamirConfig{Parts: 5, Threshold: 6})
	assert.Error(t, err, "Should fail when threshold > total shares")

	_, err = SplitSealSeed(seed, ShamirConfig{Parts: 5, Threshold: 1})
	assert.Error(t, err, "Should fail when threshold < 2")

	_, err = SplitSealSeed(make([]byte, 16), ShamirConfig{Parts: 5, Threshold: 3})
	assert.Error(t, err, "Should fail with seed < 32 bytes")
}

func TestRecovery(t *testing.T) {
	seed := newSeed(t)
	shares, err := SplitSealSeed(seed, ShamirConfig{Parts: 5, Threshold: 3})
	require.NoError(t, err)

	recovery := NewRecovery(3)
	assert.False(t, recovery.IsUnlocked())

	require.NoError(t, recovery.SubmitShare(shares[4]))
	// the same share twice does not count towards the threshold
	require.NoError(t, recovery.SubmitShare(shares[4]))
	require.NoError(t, recovery.SubmitShare(shares[1]))
	assert.False(t, recovery.IsUnlocked())

	_, err = recovery.Seed()
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, recovery.SubmitShare(shares[2]))
	assert.True(t, recovery.IsUnlocked())

	got, err := recovery.Seed()
	require.NoError(t, err)
	assert.Equal(t, seed, got)

	assert.ErrorIs(t, recovery.SubmitShare(shares[0]), ErrAlreadyUnlocked)
}

func TestRecovery_MalformedShares(t *testing.T) {
	recovery := NewRecovery(2)
	assert.ErrorIs(t, recovery.SubmitShare(Share{1, 2, 3}), ErrMalformedShare)

	require.NoError(t, recovery.SubmitShare(make(Share, 33)))
	assert.ErrorIs(t, recovery.SubmitShare(make(Share, 40)), ErrMalformedShare)
}

func TestParseShare(t *testing.T) {
	seed := newSeed(t)
	shares, err := SplitSealSeed(seed, ShamirConfig{Parts: 2, Threshold: 2})
	require.NoError(t, err)

	parsed, err := ParseShare("  0x" + shares[0].String() + "\n")
	require.NoError(t, err)
	assert.Equal(t, shares[0], parsed)

	_, err = ParseShare("zz")
	assert.ErrorIs(t, err, ErrMalformedShare)
	_, err = ParseShare("abcd")
	assert.ErrorIs(t, err, ErrMalformedShare)
}

func TestRecoverSeedFromFiles(t *testing.T) {
	seed := newSeed(t)
	shares, err := SplitSealSeed(seed, ShamirConfig{Parts: 4, Threshold: 2})
	require.NoError(t, err)

	dir := t.TempDir()
	var paths []string
	for i, share := range shares {
		path := filepath.Join(dir, "share-"+strconv.Itoa(i)+".hex")
		require.NoError(t, os.WriteFile(path, []byte(share.String()+"\n"), 0o600))
		paths = append(paths, path)
	}

	got, err := RecoverSeedFromFiles(paths[1:3], 2)
	require.NoError(t, err)
	assert.Equal(t, seed, got)

	// extra shares past the threshold are ignored
	got, err = RecoverSeedFromFiles(paths, 2)
	require.NoError(t, err)
	assert.Equal(t, seed, got)

	_, err = RecoverSeedFromFiles(paths[:1], 2)
	assert.ErrorIs(t, err, ErrLocked)

	_, err = RecoverSeedFromFiles([]string{filepath.Join(dir, "missing")}, 2)
	assert.Error(t, err)
}
