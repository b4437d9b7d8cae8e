package consensus

import (
	"encoding/binary"
	"fmt"

	"github.com/geanlabs/beacon/params"
	"github.com/geanlabs/beacon/ssz"
	"github.com/geanlabs/beacon/types"
)

// ComputeEpochAtSlot returns the epoch containing slot.
func (s *Spec) ComputeEpochAtSlot(slot types.Slot) types.Epoch {
	return types.Epoch(uint64(slot) / s.Cfg.SlotsPerEpoch)
}

// ComputeStartSlotAtEpoch returns the first slot of epoch.
func (s *Spec) ComputeStartSlotAtEpoch(epoch types.Epoch) types.Slot {
	return types.Slot(uint64(epoch) * s.Cfg.SlotsPerEpoch)
}

// CurrentEpoch returns the epoch of the state's slot.
func (s *Spec) CurrentEpoch(state *types.BeaconState) types.Epoch {
	return s.ComputeEpochAtSlot(state.Slot)
}

// PreviousEpoch returns the epoch before the current one, clamped at
// genesis.
func (s *Spec) PreviousEpoch(state *types.BeaconState) types.Epoch {
	current := s.CurrentEpoch(state)
	if current <= types.Epoch(s.Cfg.GenesisEpoch) {
		return types.Epoch(s.Cfg.GenesisEpoch)
	}
	return current - 1
}

// ComputeActivationExitEpoch returns the epoch at which an entry or exit
// scheduled in epoch takes effect.
func (s *Spec) ComputeActivationExitEpoch(epoch types.Epoch) types.Epoch {
	return epoch + 1 + types.Epoch(s.Cfg.MaxSeedLookahead)
}

// GetDomain returns the 8-byte signature domain for the kind at epoch,
// combining the fork version active then.
func (s *Spec) GetDomain(state *types.BeaconState, kind params.DomainType, epoch types.Epoch) types.Domain {
	version := state.Fork.CurrentVersion
	if epoch < state.Fork.Epoch {
		version = state.Fork.PreviousVersion
	}
	return ComputeDomain(kind, version)
}

// ComputeDomain combines a domain kind with a fork version.
func ComputeDomain(kind params.DomainType, version types.Bytes4) types.Domain {
	var d types.Domain
	copy(d[:4], kind[:])
	copy(d[4:], version[:])
	return d
}

// GetRandaoMix returns the ring entry for epoch. Epochs outside the window
// (current-ring, current] fail: the ring has rotated past them.
func (s *Spec) GetRandaoMix(state *types.BeaconState, epoch types.Epoch) (types.Root, error) {
	current := s.CurrentEpoch(state)
	ring := types.Epoch(s.Cfg.EpochsPerHistoricalVector)
	if epoch > current {
		return types.Root{}, fmt.Errorf("randao mix for future epoch %d (current %d)", epoch, current)
	}
	if current >= ring && epoch <= current-ring {
		return types.Root{}, fmt.Errorf("randao mix for epoch %d rotated out (current %d)", epoch, current)
	}
	return state.RandaoMixes[uint64(epoch)%s.Cfg.EpochsPerHistoricalVector], nil
}

// randaoMixAt reads the ring without the window check; seed derivation
// indexes with an offset that wraps deliberately.
func (s *Spec) randaoMixAt(state *types.BeaconState, epoch types.Epoch) types.Root {
	return state.RandaoMixes[uint64(epoch)%s.Cfg.EpochsPerHistoricalVector]
}

// GetBlockRootAtSlot returns the block-roots ring entry for slot, bounded
// to the retained window.
func (s *Spec) GetBlockRootAtSlot(state *types.BeaconState, slot types.Slot) (types.Root, error) {
	if slot >= state.Slot || uint64(state.Slot) > uint64(slot)+s.Cfg.SlotsPerHistoricalRoot {
		return types.Root{}, fmt.Errorf("block root for slot %d out of range at state slot %d", slot, state.Slot)
	}
	return state.BlockRoots[uint64(slot)%s.Cfg.SlotsPerHistoricalRoot], nil
}

// GetBlockRoot returns the boundary block root of epoch.
func (s *Spec) GetBlockRoot(state *types.BeaconState, epoch types.Epoch) (types.Root, error) {
	return s.GetBlockRootAtSlot(state, s.ComputeStartSlotAtEpoch(epoch))
}

// GetActiveValidatorIndices lists registry indices active at epoch.
func (s *Spec) GetActiveValidatorIndices(state *types.BeaconState, epoch types.Epoch) []types.ValidatorIndex {
	indices := make([]types.ValidatorIndex, 0, len(state.Validators))
	for i := range state.Validators {
		if state.Validators[i].IsActiveAt(epoch) {
			indices = append(indices, types.ValidatorIndex(i))
		}
	}
	return indices
}

// GetTotalBalance sums effective balances, floored at one increment so
// division by the result is safe.
func (s *Spec) GetTotalBalance(state *types.BeaconState, indices []types.ValidatorIndex) types.Gwei {
	var total types.Gwei
	for _, i := range indices {
		total += state.Validators[i].EffectiveBalance
	}
	if total < types.Gwei(s.Cfg.EffectiveBalanceIncrement) {
		return types.Gwei(s.Cfg.EffectiveBalanceIncrement)
	}
	return total
}

// GetTotalActiveBalance sums the active set's effective balances.
func (s *Spec) GetTotalActiveBalance(state *types.BeaconState) types.Gwei {
	return s.GetTotalBalance(state, s.GetActiveValidatorIndices(state, s.CurrentEpoch(state)))
}

// IncreaseBalance credits a validator.
func IncreaseBalance(state *types.BeaconState, index types.ValidatorIndex, delta types.Gwei) {
	state.SetBalance(index, state.Balances[index]+delta)
}

// DecreaseBalance debits a validator, flooring at zero.
func DecreaseBalance(state *types.BeaconState, index types.ValidatorIndex, delta types.Gwei) {
	balance := state.Balances[index]
	if delta > balance {
		state.SetBalance(index, 0)
		return
	}
	state.SetBalance(index, balance-delta)
}

// GetValidatorChurnLimit bounds per-epoch activations and exits.
func (s *Spec) GetValidatorChurnLimit(state *types.BeaconState) uint64 {
	active := uint64(len(s.GetActiveValidatorIndices(state, s.CurrentEpoch(state))))
	churn := active / s.Cfg.ChurnLimitQuotient
	if churn < s.Cfg.MinPerEpochChurnLimit {
		return s.Cfg.MinPerEpochChurnLimit
	}
	return churn
}

// IntegerSqrt returns the floor square root by Newton iteration.
func IntegerSqrt(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

// hashConcat hashes the concatenation of byte slices.
func hashConcat(parts ...[]byte) types.Root {
	var buf []byte
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return ssz.Hash(buf)
}

func uint64LE(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

func uint32LE(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

// epochSigningRoot is the chunk a RANDAO reveal signs over.
func epochSigningRoot(epoch types.Epoch) types.Root {
	return ssz.ChunkUint64(uint64(epoch))
}
