package storage

import (
	"context"
	"sync"

	"github.com/ruteri/tee-vigil/interfaces"
)

// MemoryBackend keeps records in process memory. Contents are lost on exit.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[interfaces.SecretID]interfaces.Record
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[interfaces.SecretID]interfaces.Record),
	}
}

func (b *MemoryBackend) LoadRecord(ctx context.Context, id interfaces.SecretID) (interfaces.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.records[id]
	if !ok {
		return nil, interfaces.ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (b *MemoryBackend) SaveRecord(ctx context.Context, id interfaces.SecretID, rec interfaces.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.records[id] = rec.Clone()
	return nil
}

func (b *MemoryBackend) DeleteRecord(ctx context.Context, id interfaces.SecretID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.records, id)
	return nil
}

// Len returns the number of stored secrets.
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.records)
}

func (b *MemoryBackend) Available(ctx context.Context) bool { return true }

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) LocationURI() string { return "memory://" }
