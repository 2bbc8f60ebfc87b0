package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type fileEnvelope struct {
	Version int64           `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// FileStore persists each document as a JSON file in a single
// directory. Writes go through a temporary file and an atomic rename so
// a crash never leaves a half-written document behind.
type FileStore struct {
	directory string
	mutex     sync.Mutex
}

// NewFileStore creates the backing directory if needed.
func NewFileStore(directory string) (*FileStore, error) {
	if directory == "" {
		return nil, fmt.Errorf("recordstore directory is required")
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("create recordstore directory: %w", err)
	}
	return &FileStore{directory: directory}, nil
}

func (store *FileStore) pathFor(key string) string {
	return filepath.Join(store.directory, key+".json")
}

func (store *FileStore) readEnvelope(key string) (fileEnvelope, error) {
	raw, readErr := os.ReadFile(store.pathFor(key))
	if readErr != nil {
		if errors.Is(readErr, os.ErrNotExist) {
			return fileEnvelope{}, ErrKeyNotFound
		}
		return fileEnvelope{}, fmt.Errorf("read record %s: %w", key, readErr)
	}
	var envelope fileEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fileEnvelope{}, fmt.Errorf("decode record %s: %w", key, err)
	}
	return envelope, nil
}

// Load implements Store.
func (store *FileStore) Load(_ context.Context, key string) ([]byte, int64, error) {
	if err := validateKey(key); err != nil {
		return nil, 0, err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	envelope, err := store.readEnvelope(key)
	if err != nil {
		return nil, 0, err
	}
	return []byte(envelope.Data), envelope.Version, nil
}

// Save implements Store.
func (store *FileStore) Save(_ context.Context, key string, expectedVersion int64, data []byte) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	if !json.Valid(data) {
		return 0, fmt.Errorf("record %s is not valid JSON", key)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	currentVersion := InitialVersion
	envelope, readErr := store.readEnvelope(key)
	switch {
	case readErr == nil:
		currentVersion = envelope.Version
	case errors.Is(readErr, ErrKeyNotFound):
	default:
		return 0, readErr
	}
	if currentVersion != expectedVersion {
		return 0, ErrVersionConflict
	}

	next := currentVersion + 1
	encoded, encodeErr := json.Marshal(fileEnvelope{Version: next, Data: json.RawMessage(data)})
	if encodeErr != nil {
		return 0, fmt.Errorf("encode record %s: %w", key, encodeErr)
	}
	temporary, tempErr := os.CreateTemp(store.directory, key+".tmp-*")
	if tempErr != nil {
		return 0, fmt.Errorf("stage record %s: %w", key, tempErr)
	}
	temporaryPath := temporary.Name()
	if _, writeErr := temporary.Write(encoded); writeErr != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return 0, fmt.Errorf("write record %s: %w", key, writeErr)
	}
	if closeErr := temporary.Close(); closeErr != nil {
		os.Remove(temporaryPath)
		return 0, fmt.Errorf("flush record %s: %w", key, closeErr)
	}
	if renameErr := os.Rename(temporaryPath, store.pathFor(key)); renameErr != nil {
		os.Remove(temporaryPath)
		return 0, fmt.Errorf("commit record %s: %w", key, renameErr)
	}
	return next, nil
}

// Delete implements Store.
func (store *FileStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	removeErr := os.Remove(store.pathFor(key))
	if removeErr != nil {
		if errors.Is(removeErr, os.ErrNotExist) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("delete record %s: %w", key, removeErr)
	}
	return nil
}
