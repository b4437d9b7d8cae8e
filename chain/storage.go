// Package chain orchestrates the pure consensus core: chain storage, the
// attestation pool, and the block-processor pipeline that feeds fork
// choice.
package chain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/geanlabs/beacon/storage"
	"github.com/geanlabs/beacon/types"
)

// Key prefixes of the chain storage overlay.
var (
	blockPrefix      = []byte("block")
	blockIndexPrefix = []byte("block-index")
	checkpointKey    = []byte("checkpoint")
)

// Storage is the chain-facing facade over the flat store: blocks by root,
// block roots by slot, and the best justified checkpoint. Values replay
// from genesis.
type Storage struct {
	db storage.Store
}

// NewStorage wraps a flat store.
func NewStorage(db storage.Store) *Storage {
	return &Storage{db: db}
}

// PutBlock stores a block under its root and appends the root to the
// slot index.
func (s *Storage) PutBlock(root types.Root, block *types.BeaconBlock) error {
	data, err := block.MarshalSSZ()
	if err != nil {
		return err
	}
	if err := s.db.Put(blockKey(root), data); err != nil {
		return err
	}

	roots, err := s.BlockRootsAtSlot(block.Slot)
	if err != nil {
		return err
	}
	for _, r := range roots {
		if r == root {
			return nil
		}
	}
	roots = append(roots, root)
	encoded := make([]byte, 0, len(roots)*32)
	for _, r := range roots {
		encoded = append(encoded, r[:]...)
	}
	return s.db.Put(slotKey(block.Slot), encoded)
}

// Block loads a block by root; ok is false when absent.
func (s *Storage) Block(root types.Root) (*types.BeaconBlock, bool, error) {
	data, err := s.db.Get(blockKey(root))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var block types.BeaconBlock
	if err := block.UnmarshalSSZ(data); err != nil {
		return nil, false, fmt.Errorf("%w: block %x: %v", storage.ErrCorrupted, root[:4], err)
	}
	return &block, true, nil
}

// HasBlock reports whether a block is stored.
func (s *Storage) HasBlock(root types.Root) (bool, error) {
	return s.db.Has(blockKey(root))
}

// BlockRootsAtSlot lists the stored block roots for a slot.
func (s *Storage) BlockRootsAtSlot(slot types.Slot) ([]types.Root, error) {
	data, err := s.db.Get(slotKey(slot))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data)%32 != 0 {
		return nil, fmt.Errorf("%w: slot index for %d", storage.ErrCorrupted, slot)
	}
	roots := make([]types.Root, len(data)/32)
	for i := range roots {
		copy(roots[i][:], data[i*32:])
	}
	return roots, nil
}

// PutBestJustified persists the best justified checkpoint pointer.
func (s *Storage) PutBestJustified(cp types.Checkpoint) error {
	data, err := cp.MarshalSSZTo(nil)
	if err != nil {
		return err
	}
	return s.db.Put(checkpointKey, data)
}

// BestJustified loads the best justified checkpoint; ok is false when the
// store is fresh.
func (s *Storage) BestJustified() (types.Checkpoint, bool, error) {
	data, err := s.db.Get(checkpointKey)
	if errors.Is(err, storage.ErrNotFound) {
		return types.Checkpoint{}, false, nil
	}
	if err != nil {
		return types.Checkpoint{}, false, err
	}
	var cp types.Checkpoint
	if err := cp.UnmarshalSSZ(data); err != nil {
		return types.Checkpoint{}, false, fmt.Errorf("%w: checkpoint: %v", storage.ErrCorrupted, err)
	}
	return cp, true, nil
}

func blockKey(root types.Root) []byte {
	return append(append([]byte{}, blockPrefix...), root[:]...)
}

func slotKey(slot types.Slot) []byte {
	key := append([]byte{}, blockIndexPrefix...)
	return binary.BigEndian.AppendUint64(key, uint64(slot))
}
