package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/ruteri/tee-vigil/interfaces"
)

// StorageBackendFactory creates record backends from location URIs.
type StorageBackendFactory struct {
	log *slog.Logger
}

// NewStorageBackendFactory creates a new factory instance.
func NewStorageBackendFactory(logger *slog.Logger) *StorageBackendFactory {
	return &StorageBackendFactory{
		log: logger,
	}
}

// BackendFor creates a record backend from a location URI.
// The URI format should be [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - memory:// - In-process storage, lost on restart
//   - file:// - Local filesystem storage
//   - sqlite:// - SQLite database file
//   - redis:// - Redis server, one hash per secret
//   - vault:// - HashiCorp Vault KV v2
//   - s3:// - Amazon S3 or compatible object storage
//
// Returns an error if the URI is invalid or the scheme is unsupported.
func (sf *StorageBackendFactory) BackendFor(ctx context.Context, loc interfaces.StorageBackendLocation) (interfaces.RecordBackend, error) {
	switch loc.Scheme {
	case "memory":
		return NewMemoryBackend(), nil
	case "file":
		return sf.createFileBackend(loc)
	case "sqlite":
		return sf.createSQLiteBackend(ctx, loc)
	case "redis":
		return sf.createRedisBackend(loc)
	case "vault":
		return sf.createVaultBackend(loc)
	case "s3":
		return sf.createS3Backend(loc)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme: %s", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// createFileBackend creates a file system storage backend.
// URI format: file:///absolute/path/ or file://./relative/path/
func (sf *StorageBackendFactory) createFileBackend(loc interfaces.StorageBackendLocation) (interfaces.RecordBackend, error) {
	sf.log.Debug("Creating file backend", slog.String("uri", loc.String()))

	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI: %s", interfaces.ErrInvalidLocationURI, loc)
	}

	return NewFileBackend(filepath.Clean(path), sf.log)
}

// createSQLiteBackend opens a SQLite database.
// URI format: sqlite:///var/lib/vigil/vigil.db or sqlite:///:memory:
func (sf *StorageBackendFactory) createSQLiteBackend(ctx context.Context, loc interfaces.StorageBackendLocation) (interfaces.RecordBackend, error) {
	sf.log.Debug("Creating sqlite backend", slog.String("uri", loc.String()))

	dsn := strings.TrimPrefix(loc.Raw, loc.Scheme+"://")
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty path in sqlite URI", interfaces.ErrInvalidLocationURI)
	}
	if dsn == "/:memory:" {
		dsn = ":memory:"
	}

	return OpenSQLiteBackend(ctx, dsn, sf.log)
}

// createRedisBackend connects to a Redis server.
// URI format: redis://[user:password@]host:port/db?prefix=vigil:secret:
func (sf *StorageBackendFactory) createRedisBackend(loc interfaces.StorageBackendLocation) (interfaces.RecordBackend, error) {
	sf.log.Debug("Creating redis backend", slog.String("host", loc.Host))

	prefix := loc.GetParam("prefix")
	raw := loc.Raw
	if idx := strings.Index(raw, "?"); idx >= 0 {
		raw = raw[:idx]
	}

	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	backend := NewRedisBackend(redis.NewClient(opts), prefix, sf.log)
	backend.locationURI = fmt.Sprintf("redis://%s%s", loc.Host, loc.Path)
	return backend, nil
}

// createVaultBackend creates a Vault KV v2 backend.
// URI format: vault://host:port/mount/path?token=...&tls=true
func (sf *StorageBackendFactory) createVaultBackend(loc interfaces.StorageBackendLocation) (interfaces.RecordBackend, error) {
	sf.log.Debug("Creating Vault backend", slog.String("host", loc.Host))

	parts := strings.SplitN(strings.Trim(loc.Path, "/"), "/", 2)
	if parts[0] == "" {
		return nil, fmt.Errorf("%w: vault URI requires a mount path", interfaces.ErrInvalidLocationURI)
	}
	mountPath := parts[0]
	dataPath := ""
	if len(parts) == 2 {
		dataPath = parts[1]
	}

	scheme := "http"
	if loc.GetParamBool("tls") {
		scheme = "https"
	}

	return NewVaultBackend(fmt.Sprintf("%s://%s", scheme, loc.Host), mountPath, dataPath, loc.GetParam("token"), sf.log)
}

// createS3Backend creates an S3 or S3-compatible storage backend.
// URI format: s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/path/?region=us-west-2&endpoint=custom.s3.com
func (sf *StorageBackendFactory) createS3Backend(loc interfaces.StorageBackendLocation) (interfaces.RecordBackend, error) {
	sf.log.Debug("Creating S3 backend", slog.String("bucket", loc.Host))

	region := loc.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if loc.Auth != "" {
		accessKey, secretKey, _ = strings.Cut(loc.Auth, ":")
		sf.log.Debug("Using embedded S3 credentials")
	}

	return NewS3Backend(loc.Host, loc.Path, region, loc.GetParam("endpoint"), accessKey, secretKey, sf.log)
}

// NewTransactionalStore builds the request store for a location URI,
// optionally sealing records with sealSeed.
func (sf *StorageBackendFactory) NewTransactionalStore(ctx context.Context, uri string, sealSeed []byte) (*TxStore, error) {
	loc, err := interfaces.NewStorageBackendLocation(uri)
	if err != nil {
		return nil, err
	}

	backend, err := sf.BackendFor(ctx, loc)
	if err != nil {
		return nil, err
	}

	if len(sealSeed) > 0 {
		backend, err = NewSealedBackend(backend, sealSeed)
		if err != nil {
			return nil, err
		}
	}

	sf.log.Info("Using storage backend",
		slog.String("backend", backend.Name()),
		slog.String("location", backend.LocationURI()))

	return NewTxStore(backend, sf.log), nil
}
