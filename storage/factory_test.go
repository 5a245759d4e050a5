package storage

import (
	"context"
	"testing"

	"github.com/ruteri/tee-vigil/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageBackendFactory_BackendFor(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name     string
		uri      string
		wantName string
	}{
		{name: "memory", uri: "memory://", wantName: "memory"},
		{name: "file", uri: "file://" + dir, wantName: "file-"},
		{name: "sqlite in memory", uri: "sqlite:///:memory:", wantName: "sqlite"},
		{name: "sqlite file", uri: "sqlite://" + dir + "/db/vigil.db", wantName: "sqlite"},
		{name: "redis", uri: "redis://localhost:6379/0?prefix=test:", wantName: "redis"},
		{name: "vault", uri: "vault://localhost:8200/secret/vigil?token=t", wantName: "vault-secret-vigil"},
		{name: "s3", uri: "s3://key:secret@bucket/prefix?region=eu-west-1&endpoint=http://localhost:9000", wantName: "s3-bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := interfaces.NewStorageBackendLocation(tt.uri)
			require.NoError(t, err)

			backend, err := factory.BackendFor(ctx, loc)
			require.NoError(t, err)
			assert.Contains(t, backend.Name(), tt.wantName)
		})
	}
}

func TestStorageBackendFactory_InvalidLocations(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())
	ctx := context.Background()

	_, err := interfaces.NewStorageBackendLocation("ipfs://localhost:5001")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	for _, uri := range []string{"vault://localhost:8200", "sqlite://"} {
		loc, err := interfaces.NewStorageBackendLocation(uri)
		require.NoError(t, err)
		_, err = factory.BackendFor(ctx, loc)
		assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI, uri)
	}
}

func TestStorageBackendFactory_NewTransactionalStore(t *testing.T) {
	factory := NewStorageBackendFactory(testLogger())
	ctx := context.Background()

	store, err := factory.NewTransactionalStore(ctx, "memory://", make([]byte, 32))
	require.NoError(t, err)
	assert.Equal(t, "sealed-memory", store.Name())
	assert.True(t, store.Available(ctx))

	store, err = factory.NewTransactionalStore(ctx, "memory://", nil)
	require.NoError(t, err)
	assert.Equal(t, "memory", store.Name())

	_, err = factory.NewTransactionalStore(ctx, "memory://", make([]byte, 8))
	assert.Error(t, err)
}
