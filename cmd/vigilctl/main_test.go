package main

import (
	"testing"
	"time"

	"github.com/ruteri/tee-vigil/interfaces"
	"github.com/ruteri/tee-vigil/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// withContext runs fn against a context parsed from args with the create
// command flags.
func withContext(t *testing.T, args []string, fn func(cCtx *cli.Context)) {
	t.Helper()
	app := &cli.App{
		Name:  "test",
		Flags: []cli.Flag{flagValue, flagValueFile, flagRevealTo, flagAnyone, flagAt, flagIn},
		Action: func(cCtx *cli.Context) error {
			fn(cCtx)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"test"}, args...)))
}

func TestRevelationTimestamp(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	withContext(t, []string{"--at", "42"}, func(cCtx *cli.Context) {
		ts, err := revelationTimestamp(cCtx, now)
		require.NoError(t, err)
		assert.Equal(t, uint64(42), ts)
	})

	withContext(t, []string{"--in", "1h"}, func(cCtx *cli.Context) {
		ts, err := revelationTimestamp(cCtx, now)
		require.NoError(t, err)
		assert.Equal(t, uint64(1_700_003_600), ts)
	})

	withContext(t, nil, func(cCtx *cli.Context) {
		_, err := revelationTimestamp(cCtx, now)
		assert.Error(t, err)
	})

	withContext(t, []string{"--at", "1", "--in", "1h"}, func(cCtx *cli.Context) {
		_, err := revelationTimestamp(cCtx, now)
		assert.Error(t, err)
	})
}

func TestRevelationSet(t *testing.T) {
	withContext(t, []string{"--anyone"}, func(cCtx *cli.Context) {
		set, err := revelationSet(cCtx)
		require.NoError(t, err)
		assert.True(t, set.IsAnyone())
	})

	a := "0x000000000000000000000000000000000000000a"
	b := "0x000000000000000000000000000000000000000b"
	withContext(t, []string{"--reveal-to", a, "--reveal-to", b}, func(cCtx *cli.Context) {
		set, err := revelationSet(cCtx)
		require.NoError(t, err)

		idA, err := interfaces.NewIdentityFromHex(a)
		require.NoError(t, err)
		idB, err := interfaces.NewIdentityFromHex(b)
		require.NoError(t, err)
		assert.True(t, set.Equal(interfaces.Entities(idA, idB)))
	})

	withContext(t, []string{"--anyone", "--reveal-to", a}, func(cCtx *cli.Context) {
		_, err := revelationSet(cCtx)
		assert.Error(t, err)
	})

	withContext(t, []string{"--reveal-to", "0x01"}, func(cCtx *cli.Context) {
		_, err := revelationSet(cCtx)
		assert.Error(t, err)
	})
}

func TestSecretValue(t *testing.T) {
	withContext(t, []string{"--value", "secret"}, func(cCtx *cli.Context) {
		value, err := secretValue(cCtx)
		require.NoError(t, err)
		assert.Equal(t, []byte("secret"), value)
	})

	withContext(t, []string{"--value", "a", "--value-file", "b"}, func(cCtx *cli.Context) {
		_, err := secretValue(cCtx)
		assert.Error(t, err)
	})
}

func TestSplitSealSeed(t *testing.T) {
	dir := t.TempDir()
	paths, err := splitSealSeed(dir, kms.ShamirConfig{Parts: 3, Threshold: 2})
	require.NoError(t, err)
	require.Len(t, paths, 3)

	seed, err := kms.RecoverSeedFromFiles(paths[1:], 2)
	require.NoError(t, err)
	again, err := kms.RecoverSeedFromFiles([]string{paths[2], paths[0]}, 2)
	require.NoError(t, err)
	assert.Equal(t, seed, again)
	assert.Len(t, seed, kms.MinSeedLength)
}
