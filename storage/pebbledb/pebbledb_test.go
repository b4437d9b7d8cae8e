package pebbledb

import (
	"errors"
	"testing"

	"github.com/geanlabs/beacon/storage"
)

func TestPebbleStore(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, err := s.Get([]byte("missing")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	if err := s.Put([]byte("block"), []byte{1, 2, 3}); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get([]byte("block"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 3 || got[2] != 3 {
		t.Fatalf("value mismatch: %v", got)
	}

	ok, err := s.Has([]byte("block"))
	if err != nil || !ok {
		t.Fatal("has should report the key")
	}
	ok, err = s.Has([]byte("other"))
	if err != nil || ok {
		t.Fatal("has should not report absent keys")
	}
}
