package consensus

import (
	"encoding/binary"
	"fmt"

	"github.com/geanlabs/beacon/params"
	"github.com/geanlabs/beacon/types"
)

// ComputeShuffledIndex runs the swap-or-not shuffle for a single position:
// deterministic, reversible and unbiased. This follows the reference
// construction; the byte-sampled decision bit draws over the full
// (1<<(bytes*8))-1 range.
func (s *Spec) ComputeShuffledIndex(index, count uint64, seed types.Root) (uint64, error) {
	if count == 0 || index >= count {
		return 0, fmt.Errorf("shuffle index %d out of range for count %d", index, count)
	}
	for round := uint64(0); round < s.Cfg.ShuffleRoundCount; round++ {
		pivotHash := hashConcat(seed[:], []byte{byte(round)})
		pivot := binary.LittleEndian.Uint64(pivotHash[:8]) % count
		flip := (pivot + count - index) % count
		position := index
		if flip > position {
			position = flip
		}
		source := hashConcat(seed[:], []byte{byte(round)}, uint32LE(uint32(position/256)))
		b := source[(position%256)/8]
		if (b>>(position%8))&1 == 1 {
			index = flip
		}
	}
	return index, nil
}

// GetSeed derives the shuffling seed for epoch under a domain kind from the
// RANDAO ring, offset so the mix is fixed MIN_SEED_LOOKAHEAD epochs before
// use.
func (s *Spec) GetSeed(state *types.BeaconState, epoch types.Epoch, kind params.DomainType) types.Root {
	lookback := epoch + types.Epoch(s.Cfg.EpochsPerHistoricalVector) -
		types.Epoch(s.Cfg.MinSeedLookahead) - 1
	mix := s.randaoMixAt(state, lookback)
	return hashConcat(kind[:], uint64LE(uint64(epoch)), mix[:])
}

// GetCommitteeCountAtSlot scales committee count with the active set: at
// least 1, at most MAX_COMMITTEES_PER_SLOT.
func (s *Spec) GetCommitteeCountAtSlot(state *types.BeaconState, slot types.Slot) uint64 {
	epoch := s.ComputeEpochAtSlot(slot)
	active := uint64(len(s.GetActiveValidatorIndices(state, epoch)))
	count := active / s.Cfg.SlotsPerEpoch / s.Cfg.TargetCommitteeSize
	if count > s.Cfg.MaxCommitteesPerSlot {
		count = s.Cfg.MaxCommitteesPerSlot
	}
	if count < 1 {
		count = 1
	}
	return count
}

// GetBeaconCommittee returns the attesting committee for (slot, index): the
// [start, end) slice of the shuffled active set.
func (s *Spec) GetBeaconCommittee(state *types.BeaconState, slot types.Slot, index types.CommitteeIndex) ([]types.ValidatorIndex, error) {
	epoch := s.ComputeEpochAtSlot(slot)
	committeesPerSlot := s.GetCommitteeCountAtSlot(state, slot)
	if uint64(index) >= committeesPerSlot {
		return nil, fmt.Errorf("committee index %d out of range (%d per slot)", index, committeesPerSlot)
	}
	indices := s.GetActiveValidatorIndices(state, epoch)
	seed := s.GetSeed(state, epoch, params.DomainBeaconAttester)
	slotInEpoch := uint64(slot) % s.Cfg.SlotsPerEpoch
	committeeIndex := slotInEpoch*committeesPerSlot + uint64(index)
	committeeCount := committeesPerSlot * s.Cfg.SlotsPerEpoch
	return s.computeCommittee(indices, seed, committeeIndex, committeeCount)
}

// computeCommittee slices committee number index out of count committees
// over the shuffled index space.
func (s *Spec) computeCommittee(indices []types.ValidatorIndex, seed types.Root, index, count uint64) ([]types.ValidatorIndex, error) {
	n := uint64(len(indices))
	start := n * index / count
	end := n * (index + 1) / count
	committee := make([]types.ValidatorIndex, 0, end-start)
	for i := start; i < end; i++ {
		shuffled, err := s.ComputeShuffledIndex(i, n, seed)
		if err != nil {
			return nil, err
		}
		committee = append(committee, indices[shuffled])
	}
	return committee, nil
}

// GetBeaconProposerIndex samples the proposer for the state's slot,
// weighted by effective balance.
func (s *Spec) GetBeaconProposerIndex(state *types.BeaconState) (types.ValidatorIndex, error) {
	epoch := s.CurrentEpoch(state)
	proposerSeed := s.GetSeed(state, epoch, params.DomainBeaconProposer)
	seed := hashConcat(
		proposerSeed[:],
		uint64LE(uint64(state.Slot)),
	)
	indices := s.GetActiveValidatorIndices(state, epoch)
	return s.computeProposerIndex(state, indices, seed)
}

// computeProposerIndex walks shuffled candidates, accepting each with
// probability proportional to its effective balance.
func (s *Spec) computeProposerIndex(state *types.BeaconState, indices []types.ValidatorIndex, seed types.Root) (types.ValidatorIndex, error) {
	n := uint64(len(indices))
	if n == 0 {
		return 0, fmt.Errorf("%w: no active validators to propose", ErrInvariantViolation)
	}
	maxRandomByte := uint64(255)
	for i := uint64(0); ; i++ {
		shuffled, err := s.ComputeShuffledIndex(i%n, n, seed)
		if err != nil {
			return 0, err
		}
		candidate := indices[shuffled]
		randomHash := hashConcat(seed[:], uint64LE(i/32))
		randomByte := uint64(randomHash[i%32])
		effective := uint64(state.Validators[candidate].EffectiveBalance)
		if effective*maxRandomByte >= s.Cfg.MaxEffectiveBalance*randomByte {
			return candidate, nil
		}
	}
}
