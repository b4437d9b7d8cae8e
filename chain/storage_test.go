package chain

import (
	"testing"

	"github.com/geanlabs/beacon/storage/memory"
	"github.com/geanlabs/beacon/types"
)

func TestStorage_BlockRoundTrip(t *testing.T) {
	store := NewStorage(memory.New())

	block := &types.BeaconBlock{
		Slot:       7,
		ParentRoot: types.Root{0x01},
		StateRoot:  types.Root{0x02},
	}
	root, err := block.SigningRoot()
	if err != nil {
		t.Fatalf("root: %v", err)
	}

	if err := store.PutBlock(root, block); err != nil {
		t.Fatalf("put: %v", err)
	}

	loaded, ok, err := store.Block(root)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatal("stored block not found")
	}
	if loaded.Slot != block.Slot || loaded.ParentRoot != block.ParentRoot {
		t.Fatal("loaded block differs")
	}

	_, ok, err = store.Block(types.Root{0xff})
	if err != nil {
		t.Fatalf("get absent: %v", err)
	}
	if ok {
		t.Fatal("absent block reported present")
	}
}

func TestStorage_SlotIndex(t *testing.T) {
	store := NewStorage(memory.New())

	b1 := &types.BeaconBlock{Slot: 3, ParentRoot: types.Root{0x01}}
	b2 := &types.BeaconBlock{Slot: 3, ParentRoot: types.Root{0x02}}
	r1, _ := b1.SigningRoot()
	r2, _ := b2.SigningRoot()

	if err := store.PutBlock(r1, b1); err != nil {
		t.Fatalf("put b1: %v", err)
	}
	if err := store.PutBlock(r2, b2); err != nil {
		t.Fatalf("put b2: %v", err)
	}
	// Re-storing must not duplicate the index entry.
	if err := store.PutBlock(r1, b1); err != nil {
		t.Fatalf("re-put b1: %v", err)
	}

	roots, err := store.BlockRootsAtSlot(3)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if len(roots) != 2 {
		t.Fatalf("slot index has %d entries, want 2", len(roots))
	}
}

func TestStorage_BestJustified(t *testing.T) {
	store := NewStorage(memory.New())

	if _, ok, err := store.BestJustified(); err != nil || ok {
		t.Fatalf("fresh store checkpoint: ok=%v err=%v", ok, err)
	}

	cp := types.Checkpoint{Epoch: 9, Root: types.Root{0x0c}}
	if err := store.PutBestJustified(cp); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, ok, err := store.BestJustified()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if loaded != cp {
		t.Fatalf("checkpoint mismatch: %+v", loaded)
	}
}
