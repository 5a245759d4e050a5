package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ruteri/tee-vigil/interfaces"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type secretRow struct {
	bun.BaseModel `bun:"table:vigil_secrets"`

	Owner     string    `bun:",pk"`
	Name      string    `bun:",pk"`
	Record    []byte    `bun:",notnull"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

// SQLiteBackend stores one row per secret holding its encoded record.
// Saves are a single upsert statement.
type SQLiteBackend struct {
	db          *bun.DB
	log         *slog.Logger
	locationURI string
}

// OpenSQLiteBackend opens (creating if needed) the database at dsn and
// ensures the schema exists.
func OpenSQLiteBackend(ctx context.Context, dsn string, log *slog.Logger) (*SQLiteBackend, error) {
	if err := ensureSQLiteDir(dsn); err != nil {
		return nil, err
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// A single connection keeps in-memory databases alive and serializes writers.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	backend, err := NewSQLiteBackend(ctx, db, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	backend.locationURI = "sqlite://" + dsn
	return backend, nil
}

// NewSQLiteBackend uses an existing bun database.
func NewSQLiteBackend(ctx context.Context, db *bun.DB, log *slog.Logger) (*SQLiteBackend, error) {
	if _, err := db.NewCreateTable().Model((*secretRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return &SQLiteBackend{
		db:          db,
		log:         log,
		locationURI: "sqlite://",
	}, nil
}

func (b *SQLiteBackend) LoadRecord(ctx context.Context, id interfaces.SecretID) (interfaces.Record, error) {
	var row secretRow
	err := b.db.NewSelect().
		Model(&row).
		Where("owner = ? AND name = ?", id.Owner.String(), id.Name).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return decodeRecord(row.Record)
}

func (b *SQLiteBackend) SaveRecord(ctx context.Context, id interfaces.SecretID, rec interfaces.Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	_, err = b.db.NewInsert().
		Model(&secretRow{Owner: id.Owner.String(), Name: id.Name, Record: data}).
		On("CONFLICT (owner, name) DO UPDATE").
		Set("record = EXCLUDED.record").
		Set("updated_at = current_timestamp").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

func (b *SQLiteBackend) DeleteRecord(ctx context.Context, id interfaces.SecretID) error {
	_, err := b.db.NewDelete().
		Model((*secretRow)(nil)).
		Where("owner = ? AND name = ?", id.Owner.String(), id.Name).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}
	return nil
}

func (b *SQLiteBackend) Available(ctx context.Context) bool {
	if err := b.db.PingContext(ctx); err != nil {
		b.log.Debug("SQLite backend unavailable", "err", err)
		return false
	}
	return true
}

func (b *SQLiteBackend) Name() string {
	return "sqlite"
}

func (b *SQLiteBackend) LocationURI() string {
	return b.locationURI
}

// Close releases the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	if path == "" || path == ":memory:" || strings.HasPrefix(path, ":memory:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create sqlite directory: %w", err)
	}
	return nil
}
