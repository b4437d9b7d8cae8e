package consensus

import (
	"fmt"

	"github.com/geanlabs/beacon/params"
	"github.com/geanlabs/beacon/types"
)

// StateTransition advances a copy of prev through empty slots to the
// block's slot, applies the block, and checks the resulting state root
// against the block's commitment. prev is never mutated; on any failure the
// candidate state is discarded whole.
func (s *Spec) StateTransition(prev *types.BeaconState, block *types.BeaconBlock, validateResult bool) (*types.BeaconState, error) {
	state, err := s.ProcessSlots(prev, block.Slot)
	if err != nil {
		return nil, err
	}

	if validateResult && s.blsActive() {
		if err := s.verifyBlockSignature(state, block); err != nil {
			return nil, err
		}
	}

	if err := s.ProcessBlock(state, block); err != nil {
		return nil, err
	}

	if validateResult {
		root, err := state.HashTreeRoot()
		if err != nil {
			return nil, err
		}
		if root != block.StateRoot {
			return nil, fmt.Errorf("%w: state root mismatch: computed %x, block %x",
				ErrInvalidBlock, root, block.StateRoot)
		}
	}
	return state, nil
}

// ProcessSlots returns a copy of prev advanced through empty slots until
// its slot equals targetSlot: slot processing runs for every slot from
// prev.Slot up to targetSlot-1. Epoch processing runs at the final slot of
// each epoch before the slot increment.
func (s *Spec) ProcessSlots(prev *types.BeaconState, targetSlot types.Slot) (*types.BeaconState, error) {
	if prev.Slot > targetSlot {
		return nil, fmt.Errorf("%w: state slot %d beyond target %d", ErrInvalidBlock, prev.Slot, targetSlot)
	}
	state := prev.Copy()
	for state.Slot < targetSlot {
		if err := s.ProcessSlot(state); err != nil {
			return nil, err
		}
		if (uint64(state.Slot)+1)%s.Cfg.SlotsPerEpoch == 0 {
			if err := s.ProcessEpoch(state); err != nil {
				return nil, err
			}
		}
		state.SetSlot(state.Slot + 1)
	}
	return state, nil
}

// ProcessSlot caches the previous state root, fills the pending header's
// state root if it is still the sentinel zero, and records the header's
// signing root in the block-roots ring.
func (s *Spec) ProcessSlot(state *types.BeaconState) error {
	prevStateRoot, err := state.HashTreeRoot()
	if err != nil {
		return err
	}
	state.SetStateRootAtIndex(uint64(state.Slot)%s.Cfg.SlotsPerHistoricalRoot, prevStateRoot)

	if types.IsZeroRoot(state.LatestBlockHeader.StateRoot) {
		header := state.LatestBlockHeader
		header.StateRoot = prevStateRoot
		state.SetLatestBlockHeader(header)
	}

	prevBlockRoot, err := state.LatestBlockHeader.SigningRoot()
	if err != nil {
		return err
	}
	state.SetBlockRootAtIndex(uint64(state.Slot)%s.Cfg.SlotsPerHistoricalRoot, prevBlockRoot)
	return nil
}

// verifyBlockSignature checks the proposer's signature over the block's
// signing root.
func (s *Spec) verifyBlockSignature(state *types.BeaconState, block *types.BeaconBlock) error {
	proposer, err := s.GetBeaconProposerIndex(state)
	if err != nil {
		return err
	}
	root, err := block.SigningRoot()
	if err != nil {
		return err
	}
	domain := s.GetDomain(state, params.DomainBeaconProposer, s.ComputeEpochAtSlot(block.Slot))
	if !s.BLS.Verify(state.Validators[proposer].Pubkey, root, block.Signature, domain) {
		return fmt.Errorf("%w: proposer signature invalid", ErrInvalidBlock)
	}
	return nil
}
