package interfaces

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// SecretStore is the confidential key-value view the registry operates on.
// Within a request it is backed by a transaction.
type SecretStore interface {
	// Get returns the value stored under key or ErrRecordNotFound.
	Get(ctx context.Context, key StorageKey) ([]byte, error)

	// Insert stores value under key, replacing any previous value.
	Insert(ctx context.Context, key StorageKey, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key StorageKey) error
}

// TransactionalStore runs each request against a SecretStore with
// serializable, all-or-nothing visibility of its writes.
type TransactionalStore interface {
	// Update runs fn in a read-write transaction. Writes are applied only
	// if fn returns nil.
	Update(ctx context.Context, fn func(SecretStore) error) error

	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(SecretStore) error) error

	// Available checks if the underlying backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string
}

// Record holds every stored field of one secret. A missing map entry means
// the field record is absent.
type Record map[Field][]byte

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for f, v := range r {
		cp := make([]byte, len(v))
		copy(cp, v)
		out[f] = cp
	}
	return out
}

// RecordBackend persists one composite record per secret. Every Save and
// Delete is a single backend operation, so the fields of a secret are never
// observed partially.
type RecordBackend interface {
	// LoadRecord returns the record of id or ErrRecordNotFound.
	LoadRecord(ctx context.Context, id SecretID) (Record, error)

	// SaveRecord replaces the record of id. The record is never empty.
	SaveRecord(ctx context.Context, id SecretID, rec Record) error

	// DeleteRecord removes the record of id. Deleting an absent record is not an error.
	DeleteRecord(ctx context.Context, id SecretID) error

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}

// StorageBackendLocation represents URI for storage backend.
type StorageBackendLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   string     // Authentication info
}

// NewStorageBackendLocation creates a new storage location from a URI string with validation.
func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "memory", "file", "sqlite", "redis", "vault", "s3":
	default:
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	var auth string
	if parsed.User != nil {
		auth = parsed.User.String()
	}

	return StorageBackendLocation{
		Raw:    uri,
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   auth,
	}, nil
}

// String returns the original URI string.
func (loc StorageBackendLocation) String() string {
	return loc.Raw
}

// GetParam returns a query parameter value.
func (loc StorageBackendLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc StorageBackendLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

// Clock supplies the current time as an increasing unsigned value
// (Unix seconds for the provided implementations).
type Clock interface {
	// Now returns the current time or an error wrapping ErrClockFault.
	Now(ctx context.Context) (uint64, error)
}
