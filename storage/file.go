package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/tee-vigil/interfaces"
)

// FileBackend implements a record backend using the local file system.
// Every secret is one CBOR file under secrets/<owner>/<name>, replaced
// atomically with a temp file and rename.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a new file storage backend using the specified base directory.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "secrets"), 0700); err != nil {
		return nil, fmt.Errorf("failed to create secrets directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// LoadRecord reads the record file of a secret.
// Returns ErrRecordNotFound if the file doesn't exist.
func (b *FileBackend) LoadRecord(ctx context.Context, id interfaces.SecretID) (interfaces.Record, error) {
	filePath := b.getFilePath(id)

	data, err := os.ReadFile(filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, interfaces.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	b.log.Debug("Loaded record from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return decodeRecord(data)
}

// SaveRecord writes the record to a temp file and renames it over the
// previous version.
func (b *FileBackend) SaveRecord(ctx context.Context, id interfaces.SecretID, rec interfaces.Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	filePath := b.getFilePath(id)
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".record-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}

	b.log.Debug("Stored record in file", slog.String("path", filePath))
	return nil
}

// DeleteRecord removes the record file. A missing file is not an error.
func (b *FileBackend) DeleteRecord(ctx context.Context, id interfaces.SecretID) error {
	err := os.Remove(b.getFilePath(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// Available checks if the file backend is accessible by verifying the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) getFilePath(id interfaces.SecretID) string {
	owner, name := recordPath(id)
	return filepath.Join(b.baseDir, "secrets", owner, name+".cbor")
}
