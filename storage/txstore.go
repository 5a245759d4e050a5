package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/tee-vigil/interfaces"
)

// ErrReadOnlyTransaction is returned by writes inside View.
var ErrReadOnlyTransaction = errors.New("write in read-only transaction")

// CommitObserver is notified after every commit attempt.
type CommitObserver func(backend string, duration time.Duration, err error)

// TxStore provides the field-level SecretStore on top of a RecordBackend.
// Requests are serialized by a process-wide lock. The writes of a request
// are buffered and each touched secret is persisted with one backend
// operation on commit, so a failed request leaves storage unchanged.
type TxStore struct {
	backend  interfaces.RecordBackend
	log      *slog.Logger
	observer CommitObserver

	mu sync.Mutex
}

// NewTxStore creates a transactional store over the given backend.
func NewTxStore(backend interfaces.RecordBackend, log *slog.Logger) *TxStore {
	return &TxStore{
		backend: backend,
		log:     log,
	}
}

// SetCommitObserver registers fn to be called after every commit.
func (s *TxStore) SetCommitObserver(fn CommitObserver) {
	s.observer = fn
}

// Update runs fn in a read-write transaction and commits its writes if fn
// returns nil. Any error from fn discards every write of the transaction.
func (s *TxStore) Update(ctx context.Context, fn func(interfaces.SecretStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTxn(s.backend, false)
	if err := fn(tx); err != nil {
		if len(tx.dirty) > 0 {
			s.log.Debug("Rolled back transaction", slog.Int("secrets", len(tx.dirty)), "err", err)
		}
		return err
	}

	start := time.Now()
	err := tx.commit(ctx)
	if s.observer != nil && len(tx.dirty) > 0 {
		s.observer(s.backend.Name(), time.Since(start), err)
	}
	if err != nil {
		s.log.Error("Failed to commit transaction", slog.String("backend", s.backend.Name()), "err", err)
		return err
	}
	return nil
}

// View runs fn in a read-only transaction.
func (s *TxStore) View(ctx context.Context, fn func(interfaces.SecretStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(newTxn(s.backend, true))
}

// Available checks if the underlying backend is accessible.
func (s *TxStore) Available(ctx context.Context) bool {
	return s.backend.Available(ctx)
}

// Name returns the backend identifier.
func (s *TxStore) Name() string {
	return s.backend.Name()
}

// txn is a per-request overlay. Records are loaded lazily and modified in
// place; dirty marks the secrets to persist on commit.
type txn struct {
	backend  interfaces.RecordBackend
	readOnly bool
	records  map[interfaces.SecretID]interfaces.Record
	dirty    map[interfaces.SecretID]struct{}
}

func newTxn(backend interfaces.RecordBackend, readOnly bool) *txn {
	return &txn{
		backend:  backend,
		readOnly: readOnly,
		records:  make(map[interfaces.SecretID]interfaces.Record),
		dirty:    make(map[interfaces.SecretID]struct{}),
	}
}

func (t *txn) load(ctx context.Context, id interfaces.SecretID) (interfaces.Record, error) {
	if rec, ok := t.records[id]; ok {
		return rec, nil
	}

	rec, err := t.backend.LoadRecord(ctx, id)
	switch {
	case errors.Is(err, interfaces.ErrRecordNotFound):
		rec = interfaces.Record{}
	case err != nil:
		return nil, fmt.Errorf("failed to load %s: %w", id, err)
	default:
		rec = rec.Clone()
	}

	t.records[id] = rec
	return rec, nil
}

func (t *txn) Get(ctx context.Context, key interfaces.StorageKey) ([]byte, error) {
	rec, err := t.load(ctx, key.Secret)
	if err != nil {
		return nil, err
	}

	value, ok := rec[key.Field]
	if !ok {
		return nil, interfaces.ErrRecordNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (t *txn) Insert(ctx context.Context, key interfaces.StorageKey, value []byte) error {
	if t.readOnly {
		return ErrReadOnlyTransaction
	}
	if !key.Field.Valid() {
		return fmt.Errorf("invalid field %q", byte(key.Field))
	}

	rec, err := t.load(ctx, key.Secret)
	if err != nil {
		return err
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	rec[key.Field] = stored
	t.dirty[key.Secret] = struct{}{}
	return nil
}

func (t *txn) Remove(ctx context.Context, key interfaces.StorageKey) error {
	if t.readOnly {
		return ErrReadOnlyTransaction
	}

	rec, err := t.load(ctx, key.Secret)
	if err != nil {
		return err
	}

	if _, ok := rec[key.Field]; !ok {
		return nil
	}
	delete(rec, key.Field)
	t.dirty[key.Secret] = struct{}{}
	return nil
}

func (t *txn) commit(ctx context.Context) error {
	for id := range t.dirty {
		rec := t.records[id]
		if len(rec) == 0 {
			if err := t.backend.DeleteRecord(ctx, id); err != nil {
				return fmt.Errorf("failed to delete %s: %w", id, err)
			}
			continue
		}
		if err := t.backend.SaveRecord(ctx, id, rec); err != nil {
			return fmt.Errorf("failed to save %s: %w", id, err)
		}
	}
	return nil
}
