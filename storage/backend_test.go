package storage

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ruteri/tee-vigil/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	ownerA = interfaces.Identity{19: 0x0a}
	ownerB = interfaces.Identity{19: 0x0b}
)

// testRecordBackend checks the behaviour every RecordBackend must share.
func testRecordBackend(t *testing.T, backend interfaces.RecordBackend) {
	t.Helper()
	ctx := context.Background()

	id := interfaces.SecretID{Owner: ownerA, Name: "will/and testament"}
	other := interfaces.SecretID{Owner: ownerB, Name: "will/and testament"}

	t.Run("missing record", func(t *testing.T) {
		_, err := backend.LoadRecord(ctx, id)
		assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
	})

	t.Run("save and load", func(t *testing.T) {
		rec := interfaces.Record{
			interfaces.TimestampField:     []byte{0x18, 0x2a},
			interfaces.RevelationSetField: []byte("set"),
			interfaces.ValueField:         {},
		}
		require.NoError(t, backend.SaveRecord(ctx, id, rec))

		loaded, err := backend.LoadRecord(ctx, id)
		require.NoError(t, err)
		require.Len(t, loaded, 3)
		assert.Equal(t, []byte{0x18, 0x2a}, loaded[interfaces.TimestampField])
		assert.Equal(t, []byte("set"), loaded[interfaces.RevelationSetField])
		value, ok := loaded[interfaces.ValueField]
		assert.True(t, ok, "empty values must survive a round trip")
		assert.Empty(t, value)

		_, err = backend.LoadRecord(ctx, other)
		assert.ErrorIs(t, err, interfaces.ErrRecordNotFound, "owners are separate namespaces")
	})

	t.Run("save replaces", func(t *testing.T) {
		require.NoError(t, backend.SaveRecord(ctx, id, interfaces.Record{
			interfaces.TimestampField: []byte{0x01},
		}))

		loaded, err := backend.LoadRecord(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, interfaces.Record{interfaces.TimestampField: []byte{0x01}}, loaded)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, backend.DeleteRecord(ctx, id))
		require.NoError(t, backend.DeleteRecord(ctx, id))

		_, err := backend.LoadRecord(ctx, id)
		assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
	})

	t.Run("long names", func(t *testing.T) {
		long := interfaces.SecretID{Owner: ownerA, Name: strings.Repeat("a", 4096)}
		sibling := interfaces.SecretID{Owner: ownerA, Name: strings.Repeat("a", 4095) + "b"}

		require.NoError(t, backend.SaveRecord(ctx, long, interfaces.Record{interfaces.TimestampField: []byte{0x02}}))
		require.NoError(t, backend.SaveRecord(ctx, sibling, interfaces.Record{interfaces.TimestampField: []byte{0x03}}))

		loaded, err := backend.LoadRecord(ctx, long)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x02}, loaded[interfaces.TimestampField])
		loaded, err = backend.LoadRecord(ctx, sibling)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x03}, loaded[interfaces.TimestampField])

		require.NoError(t, backend.DeleteRecord(ctx, long))
		require.NoError(t, backend.DeleteRecord(ctx, sibling))
		_, err = backend.LoadRecord(ctx, long)
		assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
	})

	t.Run("available", func(t *testing.T) {
		assert.True(t, backend.Available(ctx))
		assert.NotEmpty(t, backend.Name())
		assert.NotEmpty(t, backend.LocationURI())
	})
}

func TestMemoryBackend(t *testing.T) {
	testRecordBackend(t, NewMemoryBackend())
}

func TestMemoryBackend_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	id := interfaces.SecretID{Owner: ownerA, Name: "n"}

	rec := interfaces.Record{interfaces.ValueField: []byte("abc")}
	require.NoError(t, backend.SaveRecord(ctx, id, rec))
	rec[interfaces.ValueField][0] = 'x'

	loaded, err := backend.LoadRecord(ctx, id)
	require.NoError(t, err)
	loaded[interfaces.ValueField][1] = 'y'

	again, err := backend.LoadRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again[interfaces.ValueField])
}

func TestFileBackend(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), testLogger())
	require.NoError(t, err)
	testRecordBackend(t, backend)
}

func TestSQLiteBackend(t *testing.T) {
	backend, err := OpenSQLiteBackend(context.Background(), ":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	testRecordBackend(t, backend)
}

func TestSealedBackend(t *testing.T) {
	seed := make([]byte, 32)
	backend, err := NewSealedBackend(NewMemoryBackend(), seed)
	require.NoError(t, err)
	testRecordBackend(t, backend)
}

func TestRecordCodec_RejectsUnknownFields(t *testing.T) {
	_, err := encodeRecord(interfaces.Record{interfaces.Field('x'): []byte{1}})
	assert.Error(t, err)

	_, err = decodeRecord([]byte{0xa1, 0x61, 'x', 0x41, 0x01})
	assert.Error(t, err)

	_, err = decodeRecord([]byte("not cbor"))
	assert.Error(t, err)
}

func testSecretID() interfaces.SecretID {
	return interfaces.SecretID{Owner: ownerA, Name: "will"}
}

func TestRecordPath_FixedLength(t *testing.T) {
	_, short := recordPath(interfaces.SecretID{Owner: ownerA, Name: ""})
	_, long := recordPath(interfaces.SecretID{Owner: ownerA, Name: strings.Repeat("x", 1<<16)})
	assert.Len(t, short, 64)
	assert.Len(t, long, 64)
	assert.NotEqual(t, short, long)
}
