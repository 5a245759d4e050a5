package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/tee-vigil/interfaces"
)

// VaultBackend implements a record backend using HashiCorp Vault KV v2.
// Each secret is one Vault secret whose data maps field tags to base64
// field values, so a save is a single versioned write.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a new Vault storage backend authenticated with token.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "vigil")
//   - token: Vault token; when empty, VAULT_TOKEN from the environment is used
func NewVaultBackend(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultBackend, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.HttpClient = &http.Client{
		Timeout: 30 * time.Second,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", strings.TrimPrefix(strings.TrimPrefix(address, "https://"), "http://"), mountPath, dataPath),
	}, nil
}

func (b *VaultBackend) path(kind string, id interfaces.SecretID) string {
	owner, name := recordPath(id)
	if b.dataPath == "" {
		return fmt.Sprintf("%s/%s/%s/%s", b.mountPath, kind, owner, name)
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s", b.mountPath, kind, b.dataPath, owner, name)
}

// LoadRecord reads the latest version of the secret.
func (b *VaultBackend) LoadRecord(ctx context.Context, id interfaces.SecretID) (interfaces.Record, error) {
	start := time.Now()
	path := b.path("data", id)

	secret, err := b.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		b.log.Error("Failed to read from Vault",
			slog.String("path", path),
			"err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	if secret == nil || secret.Data == nil || secret.Data["data"] == nil {
		return nil, interfaces.ErrRecordNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid data format in Vault response")
	}

	rec := make(interfaces.Record, len(data))
	for tag, raw := range data {
		if len(tag) != 1 || !interfaces.Field(tag[0]).Valid() {
			return nil, fmt.Errorf("invalid field tag %q in Vault data", tag)
		}
		encoded, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("invalid content format in Vault data")
		}
		value, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid content encoding in Vault data: %w", err)
		}
		rec[interfaces.Field(tag[0])] = value
	}

	b.log.Debug("Fetched record from Vault",
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)))

	return rec, nil
}

// SaveRecord writes a new version of the secret.
func (b *VaultBackend) SaveRecord(ctx context.Context, id interfaces.SecretID, rec interfaces.Record) error {
	path := b.path("data", id)

	data := make(map[string]interface{}, len(rec))
	for f, v := range rec {
		data[string(rune(f))] = base64.StdEncoding.EncodeToString(v)
	}

	_, err := b.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"data": data,
	})
	if err != nil {
		b.log.Error("Failed to write to Vault",
			slog.String("path", path),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

// DeleteRecord removes every version and the metadata of the secret.
func (b *VaultBackend) DeleteRecord(ctx context.Context, id interfaces.SecretID) error {
	path := b.path("metadata", id)

	if _, err := b.client.Logical().DeleteWithContext(ctx, path); err != nil {
		b.log.Error("Failed to delete from Vault",
			slog.String("path", path),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

// Available checks if the Vault backend is accessible.
// It uses the health endpoint to verify that Vault is initialized and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}

	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}
