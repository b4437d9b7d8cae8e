package p2p

import (
	"github.com/geanlabs/beacon/ssz"
	"github.com/geanlabs/beacon/types"
)

// Status is the handshake exchanged on new connections.
type Status struct {
	Finalized types.Checkpoint
	Head      types.Checkpoint
}

const statusSize = 80

func (s *Status) SizeSSZ() int { return statusSize }

func (s *Status) MarshalSSZ() ([]byte, error) {
	dst := make([]byte, 0, statusSize)
	var err error
	if dst, err = s.Finalized.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	return s.Head.MarshalSSZTo(dst)
}

func (s *Status) UnmarshalSSZ(buf []byte) error {
	if len(buf) != statusSize {
		return ssz.ErrSize
	}
	if err := s.Finalized.UnmarshalSSZ(buf[:40]); err != nil {
		return err
	}
	return s.Head.UnmarshalSSZ(buf[40:])
}

// BlocksByRootRequest asks a peer for blocks by their roots.
type BlocksByRootRequest struct {
	Roots []types.Root
}

func (r *BlocksByRootRequest) MarshalSSZ() ([]byte, error) {
	dst := make([]byte, 0, len(r.Roots)*32)
	for i := range r.Roots {
		dst = append(dst, r.Roots[i][:]...)
	}
	return dst, nil
}

func (r *BlocksByRootRequest) UnmarshalSSZ(buf []byte) error {
	n, err := ssz.DivideOffsets(len(buf), 32, MaxRequestBlocks)
	if err != nil {
		return err
	}
	r.Roots = make([]types.Root, n)
	for i := range r.Roots {
		copy(r.Roots[i][:], buf[i*32:])
	}
	return nil
}
