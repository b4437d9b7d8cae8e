// Package pebbledb backs storage.Store with a pebble database for nodes
// that keep their chain across restarts.
package pebbledb

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/geanlabs/beacon/storage"
)

// Store is a pebble-backed storage.Store.
type Store struct {
	db *pebble.DB
}

// Open opens or creates a database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrCorrupted, err)
	}
	out := append([]byte{}, value...)
	if err := closer.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrCorrupted, err)
	}
	return out, nil
}

func (s *Store) Put(key, value []byte) error {
	if err := s.db.Set(key, value, pebble.NoSync); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrCorrupted, err)
	}
	return nil
}

func (s *Store) Has(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrCorrupted, err)
	}
	if err := closer.Close(); err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrCorrupted, err)
	}
	return true, nil
}

func (s *Store) Close() error { return s.db.Close() }
