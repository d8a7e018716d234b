package cache

import "errors"

// ErrNotFound is returned by a Store when no value exists for a key.
var ErrNotFound = errors.New("cache: key not found")

// Store is a durable key-value backend for cache entries. Every operation
// may fail (quota, unavailable storage, corruption); callers must treat a
// Store as best-effort and degrade to memory-only caching on error.
type Store interface {
	// Get returns the raw entry bytes for key, or ErrNotFound.
	Get(key string) ([]byte, error)
	// Set writes the raw entry bytes for key, overwriting any prior value.
	Set(key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
	// Keys lists all stored keys with the given prefix.
	Keys(prefix string) ([]string, error)
}
