// Package recordstore persists small JSON documents under string keys
// with optimistic concurrency control. Each document carries a version
// that a writer must echo back; a stale version fails the write so the
// caller can reload and retry.
package recordstore

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations.
var (
	ErrKeyNotFound     = errors.New("recordstore.key_not_found")
	ErrVersionConflict = errors.New("recordstore.version_conflict")
	ErrInvalidKey      = errors.New("recordstore.invalid_key")
)

// InitialVersion is the expected version for creating a key that does
// not exist yet.
const InitialVersion int64 = 0

// Store reads and writes versioned documents.
type Store interface {
	// Load returns the document and its current version. A missing key
	// yields ErrKeyNotFound.
	Load(ctx context.Context, key string) (data []byte, version int64, err error)
	// Save writes the document if its stored version still equals
	// expectedVersion, returning the new version. Pass InitialVersion
	// to create a key. A mismatch yields ErrVersionConflict.
	Save(ctx context.Context, key string, expectedVersion int64, data []byte) (int64, error)
	// Delete removes a key. Deleting a missing key yields
	// ErrKeyNotFound.
	Delete(ctx context.Context, key string) error
}

func validateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	for _, character := range key {
		switch {
		case character >= 'a' && character <= 'z':
		case character >= '0' && character <= '9':
		case character == ':' || character == '-' || character == '_':
		default:
			return ErrInvalidKey
		}
	}
	return nil
}
