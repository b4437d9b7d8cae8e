package memory

import (
	"errors"
	"testing"

	"github.com/geanlabs/beacon/storage"
)

func TestMemoryStore(t *testing.T) {
	s := New()

	if _, err := s.Get([]byte("missing")); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	if err := s.Put([]byte("k"), []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get([]byte("k"))
	if err != nil || string(got) != "v1" {
		t.Fatalf("get: %q, %v", got, err)
	}

	// Writes are visible to subsequent reads; overwrite replaces.
	if err := s.Put([]byte("k"), []byte("v2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = s.Get([]byte("k"))
	if string(got) != "v2" {
		t.Fatalf("overwrite not visible: %q", got)
	}

	ok, err := s.Has([]byte("k"))
	if err != nil || !ok {
		t.Fatal("has should report the key")
	}

	// Mutating a returned value must not touch the stored copy.
	got[0] = 'X'
	again, _ := s.Get([]byte("k"))
	if string(again) != "v2" {
		t.Fatal("stored value aliased by the returned slice")
	}
}
