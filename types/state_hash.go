package types

import (
	"encoding/binary"

	"github.com/geanlabs/beacon/ssz"
)

// HashTreeRoot computes the state root with a fresh hasher.
func (s *BeaconState) HashTreeRoot() (Root, error) {
	return s.HashTreeRootWith(ssz.NewHasher())
}

// HashTreeRootWith computes the state root. With a cache attached only the
// subtrees above dirtied leaves are rehashed; without one the whole tree is
// hashed.
func (s *BeaconState) HashTreeRootWith(h *ssz.Hasher) (Root, error) {
	if s.hc == nil {
		return s.hashTreeRootFull(h)
	}

	var fieldErr error
	root := s.hc.top.Root(h, func(i int) Root {
		r, err := s.fieldRoot(h, i)
		if err != nil && fieldErr == nil {
			fieldErr = err
		}
		return r
	})
	if fieldErr != nil {
		return Root{}, fieldErr
	}
	return root, nil
}

// fieldRoot computes the root of one top-level field, consulting the
// per-collection caches for the heavy leaves.
func (s *BeaconState) fieldRoot(h *ssz.Hasher, field int) (Root, error) {
	switch field {
	case stateFieldGenesisTime:
		return ssz.ChunkUint64(s.GenesisTime), nil
	case stateFieldSlot:
		return ssz.ChunkUint64(uint64(s.Slot)), nil
	case stateFieldFork:
		return s.Fork.HashTreeRootWith(h)
	case stateFieldLatestBlockHeader:
		return s.LatestBlockHeader.HashTreeRootWith(h)
	case stateFieldBlockRoots:
		return s.hc.blockRoots.Root(h, func(i int) ssz.Root { return s.BlockRoots[i] }), nil
	case stateFieldStateRoots:
		return s.hc.stateRoots.Root(h, func(i int) ssz.Root { return s.StateRoots[i] }), nil
	case stateFieldHistoricalRoots:
		return rootListRoot(h, s.HistoricalRoots, HistoricalRootsLimit), nil
	case stateFieldEth1Data:
		return s.Eth1Data.HashTreeRootWith(h)
	case stateFieldEth1DataVotes:
		if err := hashList(h, len(s.Eth1DataVotes), Eth1DataVotesLimit, func(i int) (Root, error) {
			return s.Eth1DataVotes[i].HashTreeRootWith(h)
		}); err != nil {
			return Root{}, err
		}
		return h.Root(), nil
	case stateFieldEth1DepositIndex:
		return ssz.ChunkUint64(s.Eth1DepositIndex), nil
	case stateFieldValidators:
		var err error
		root := s.hc.validators.Root(h, func(i int) ssz.Root {
			r, e := s.Validators[i].HashTreeRootWith(h)
			if e != nil && err == nil {
				err = e
			}
			return r
		})
		return root, err
	case stateFieldBalances:
		return s.hc.balances.RootMix(h, func(i int) ssz.Root {
			return balanceChunk(s.Balances, i)
		}, uint64(len(s.Balances))), nil
	case stateFieldRandaoMixes:
		return s.hc.randao.Root(h, func(i int) ssz.Root { return s.RandaoMixes[i] }), nil
	case stateFieldSlashings:
		return s.hc.slashings.Root(h, func(i int) ssz.Root {
			return gweiChunk(s.Slashings, i)
		}), nil
	case stateFieldPrevAttestations:
		if err := hashList(h, len(s.PreviousEpochAttestations), EpochAttestationsLimit, func(i int) (Root, error) {
			return s.PreviousEpochAttestations[i].HashTreeRootWith(h)
		}); err != nil {
			return Root{}, err
		}
		return h.Root(), nil
	case stateFieldCurrAttestations:
		if err := hashList(h, len(s.CurrentEpochAttestations), EpochAttestationsLimit, func(i int) (Root, error) {
			return s.CurrentEpochAttestations[i].HashTreeRootWith(h)
		}); err != nil {
			return Root{}, err
		}
		return h.Root(), nil
	case stateFieldJustificationBits:
		return justificationChunk(s.JustificationBits), nil
	case stateFieldPrevJustified:
		return s.PreviousJustifiedCheckpoint.HashTreeRootWith(h)
	case stateFieldCurrJustified:
		return s.CurrentJustifiedCheckpoint.HashTreeRootWith(h)
	case stateFieldFinalized:
		return s.FinalizedCheckpoint.HashTreeRootWith(h)
	default:
		return Root{}, ssz.ErrSize
	}
}

// hashTreeRootFull hashes every field without consulting caches.
func (s *BeaconState) hashTreeRootFull(h *ssz.Hasher) (Root, error) {
	idx := h.Index()

	h.AppendUint64(s.GenesisTime)
	h.AppendUint64(uint64(s.Slot))
	if err := appendRootOf(h, s.Fork.HashTreeRootWith); err != nil {
		return Root{}, err
	}
	if err := appendRootOf(h, s.LatestBlockHeader.HashTreeRootWith); err != nil {
		return Root{}, err
	}

	h.AppendRoot(rootVectorRoot(h, s.BlockRoots))
	h.AppendRoot(rootVectorRoot(h, s.StateRoots))
	h.AppendRoot(rootListRoot(h, s.HistoricalRoots, HistoricalRootsLimit))

	if err := appendRootOf(h, s.Eth1Data.HashTreeRootWith); err != nil {
		return Root{}, err
	}
	if err := hashList(h, len(s.Eth1DataVotes), Eth1DataVotesLimit, func(i int) (Root, error) {
		return s.Eth1DataVotes[i].HashTreeRootWith(h)
	}); err != nil {
		return Root{}, err
	}
	h.AppendUint64(s.Eth1DepositIndex)

	if err := hashList(h, len(s.Validators), ValidatorRegistryLimit, func(i int) (Root, error) {
		return s.Validators[i].HashTreeRootWith(h)
	}); err != nil {
		return Root{}, err
	}

	balances := make([]uint64, len(s.Balances))
	for i, b := range s.Balances {
		balances[i] = uint64(b)
	}
	h.AppendUint64List(balances, ValidatorRegistryLimit)

	h.AppendRoot(rootVectorRoot(h, s.RandaoMixes))
	h.AppendRoot(gweiVectorRoot(h, s.Slashings))

	if err := hashList(h, len(s.PreviousEpochAttestations), EpochAttestationsLimit, func(i int) (Root, error) {
		return s.PreviousEpochAttestations[i].HashTreeRootWith(h)
	}); err != nil {
		return Root{}, err
	}
	if err := hashList(h, len(s.CurrentEpochAttestations), EpochAttestationsLimit, func(i int) (Root, error) {
		return s.CurrentEpochAttestations[i].HashTreeRootWith(h)
	}); err != nil {
		return Root{}, err
	}

	h.AppendRoot(justificationChunk(s.JustificationBits))
	if err := appendRootOf(h, s.PreviousJustifiedCheckpoint.HashTreeRootWith); err != nil {
		return Root{}, err
	}
	if err := appendRootOf(h, s.CurrentJustifiedCheckpoint.HashTreeRootWith); err != nil {
		return Root{}, err
	}
	if err := appendRootOf(h, s.FinalizedCheckpoint.HashTreeRootWith); err != nil {
		return Root{}, err
	}

	h.Merkleize(idx)
	return h.Root(), nil
}

func appendRootOf(h *ssz.Hasher, f func(*ssz.Hasher) (Root, error)) error {
	root, err := f(h)
	if err != nil {
		return err
	}
	h.AppendRoot(root)
	return nil
}

// rootVectorRoot merkleizes a ring of roots at its configured length.
func rootVectorRoot(h *ssz.Hasher, roots []Root) Root {
	idx := h.Index()
	for i := range roots {
		h.AppendRoot(roots[i])
	}
	h.Merkleize(idx)
	return h.Root()
}

// rootListRoot merkleizes a list of roots bound to limit, mixing in length.
func rootListRoot(h *ssz.Hasher, roots []Root, limit uint64) Root {
	idx := h.Index()
	for i := range roots {
		h.AppendRoot(roots[i])
	}
	h.MerkleizeWithLimit(idx, limit)
	h.MixInLength(uint64(len(roots)))
	return h.Root()
}

// gweiVectorRoot merkleizes a packed uint64 ring.
func gweiVectorRoot(h *ssz.Hasher, values []Gwei) Root {
	idx := h.Index()
	chunks := (len(values) + 3) / 4
	for i := 0; i < chunks; i++ {
		h.AppendRoot(gweiChunk(values, i))
	}
	h.Merkleize(idx)
	return h.Root()
}

// balanceChunk packs four balances into the i-th chunk.
func balanceChunk(balances []Gwei, i int) Root {
	var r Root
	for j := 0; j < 4; j++ {
		idx := i*4 + j
		if idx >= len(balances) {
			break
		}
		binary.LittleEndian.PutUint64(r[j*8:], uint64(balances[idx]))
	}
	return r
}

func gweiChunk(values []Gwei, i int) Root {
	return balanceChunk(values, i)
}

func justificationChunk(bits []byte) Root {
	var r Root
	copy(r[:], bits)
	return r
}
