package recordstore

import (
	"context"
	"sync"
)

type memoryRecord struct {
	data    []byte
	version int64
}

// MemoryStore keeps documents in process memory. It backs tests and
// single-node deployments without a data directory.
type MemoryStore struct {
	mutex   sync.Mutex
	records map[string]memoryRecord
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]memoryRecord{}}
}

// Load implements Store.
func (store *MemoryStore) Load(_ context.Context, key string) ([]byte, int64, error) {
	if err := validateKey(key); err != nil {
		return nil, 0, err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, found := store.records[key]
	if !found {
		return nil, 0, ErrKeyNotFound
	}
	copied := make([]byte, len(record.data))
	copy(copied, record.data)
	return copied, record.version, nil
}

// Save implements Store.
func (store *MemoryStore) Save(_ context.Context, key string, expectedVersion int64, data []byte) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	current, found := store.records[key]
	currentVersion := InitialVersion
	if found {
		currentVersion = current.version
	}
	if currentVersion != expectedVersion {
		return 0, ErrVersionConflict
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	next := currentVersion + 1
	store.records[key] = memoryRecord{data: copied, version: next}
	return next, nil
}

// Delete implements Store.
func (store *MemoryStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if _, found := store.records[key]; !found {
		return ErrKeyNotFound
	}
	delete(store.records, key)
	return nil
}
