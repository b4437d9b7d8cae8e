package consensus

import (
	"fmt"

	"github.com/geanlabs/beacon/params"
	"github.com/geanlabs/beacon/ssz"
	"github.com/geanlabs/beacon/types"
)

// ProcessBlock applies a block to the state in the mandatory order: header,
// RANDAO, eth1 data, then the operation groups. The caller owns the state
// copy; any error aborts the whole block.
func (s *Spec) ProcessBlock(state *types.BeaconState, block *types.BeaconBlock) error {
	if err := s.ProcessBlockHeader(state, block); err != nil {
		return err
	}
	if err := s.ProcessRandao(state, &block.Body); err != nil {
		return err
	}
	if err := s.ProcessEth1Data(state, &block.Body); err != nil {
		return err
	}
	return s.ProcessOperations(state, &block.Body)
}

// ProcessBlockHeader checks the block's slot and ancestry and stages its
// header with a zeroed state root, to be filled at the next slot boundary.
func (s *Spec) ProcessBlockHeader(state *types.BeaconState, block *types.BeaconBlock) error {
	if block.Slot != state.Slot {
		return fmt.Errorf("%w: block slot %d != state slot %d", ErrInvalidBlock, block.Slot, state.Slot)
	}
	parentRoot, err := state.LatestBlockHeader.SigningRoot()
	if err != nil {
		return err
	}
	if block.ParentRoot != parentRoot {
		return fmt.Errorf("%w: parent root mismatch: block %x, expected %x",
			ErrInvalidBlock, block.ParentRoot, parentRoot)
	}

	bodyRoot, err := block.Body.HashTreeRoot()
	if err != nil {
		return err
	}
	state.SetLatestBlockHeader(types.BeaconBlockHeader{
		Slot:       block.Slot,
		ParentRoot: block.ParentRoot,
		StateRoot:  types.Root{},
		BodyRoot:   bodyRoot,
	})

	proposer, err := s.GetBeaconProposerIndex(state)
	if err != nil {
		return err
	}
	if state.Validators[proposer].Slashed {
		return fmt.Errorf("%w: proposer %d is slashed", ErrInvalidBlock, proposer)
	}
	return nil
}

// ProcessRandao verifies the reveal against the proposer's key and XORs its
// hash into the current epoch's ring position.
func (s *Spec) ProcessRandao(state *types.BeaconState, body *types.BeaconBlockBody) error {
	epoch := s.CurrentEpoch(state)
	if s.blsActive() {
		proposer, err := s.GetBeaconProposerIndex(state)
		if err != nil {
			return err
		}
		domain := s.GetDomain(state, params.DomainRandao, epoch)
		if !s.BLS.Verify(state.Validators[proposer].Pubkey, epochSigningRoot(epoch), body.RandaoReveal, domain) {
			return fmt.Errorf("%w: randao reveal invalid", ErrInvalidBlock)
		}
	}

	mix, err := s.GetRandaoMix(state, epoch)
	if err != nil {
		return err
	}
	revealHash := ssz.Hash(body.RandaoReveal[:])
	for i := range mix {
		mix[i] ^= revealHash[i]
	}
	state.SetRandaoMixAtIndex(uint64(epoch)%s.Cfg.EpochsPerHistoricalVector, mix)
	return nil
}

// ProcessEth1Data appends the block's vote and adopts any value holding a
// strict majority of the voting window.
func (s *Spec) ProcessEth1Data(state *types.BeaconState, body *types.BeaconBlockBody) error {
	state.AppendEth1DataVote(body.Eth1Data)
	var count uint64
	for i := range state.Eth1DataVotes {
		if state.Eth1DataVotes[i] == body.Eth1Data {
			count++
		}
	}
	if count*2 > s.Cfg.SlotsPerEth1VotingPeriod {
		state.SetEth1Data(body.Eth1Data)
	}
	return nil
}

// ProcessOperations applies the operation groups in spec order, enforcing
// the per-block bounds.
func (s *Spec) ProcessOperations(state *types.BeaconState, body *types.BeaconBlockBody) error {
	if uint64(len(body.ProposerSlashings)) > s.Cfg.MaxProposerSlashings {
		return fmt.Errorf("%w: %d proposer slashings exceeds bound", ErrInvalidBlock, len(body.ProposerSlashings))
	}
	if uint64(len(body.AttesterSlashings)) > s.Cfg.MaxAttesterSlashings {
		return fmt.Errorf("%w: %d attester slashings exceeds bound", ErrInvalidBlock, len(body.AttesterSlashings))
	}
	if uint64(len(body.Attestations)) > s.Cfg.MaxAttestations {
		return fmt.Errorf("%w: %d attestations exceeds bound", ErrInvalidBlock, len(body.Attestations))
	}
	if uint64(len(body.VoluntaryExits)) > s.Cfg.MaxVoluntaryExits {
		return fmt.Errorf("%w: %d voluntary exits exceeds bound", ErrInvalidBlock, len(body.VoluntaryExits))
	}

	// Deposits are mandatory: exactly the outstanding count up to the
	// per-block maximum.
	if state.Eth1DepositIndex > state.Eth1Data.DepositCount {
		return fmt.Errorf("%w: deposit index %d beyond deposit count %d",
			ErrInvariantViolation, state.Eth1DepositIndex, state.Eth1Data.DepositCount)
	}
	expected := state.Eth1Data.DepositCount - state.Eth1DepositIndex
	if expected > s.Cfg.MaxDeposits {
		expected = s.Cfg.MaxDeposits
	}
	if uint64(len(body.Deposits)) != expected {
		return fmt.Errorf("%w: block carries %d deposits, expected %d",
			ErrInvalidBlock, len(body.Deposits), expected)
	}

	for i := range body.ProposerSlashings {
		if err := s.ProcessProposerSlashing(state, &body.ProposerSlashings[i]); err != nil {
			return err
		}
	}
	for i := range body.AttesterSlashings {
		if err := s.ProcessAttesterSlashing(state, &body.AttesterSlashings[i]); err != nil {
			return err
		}
	}
	for i := range body.Attestations {
		if err := s.ProcessAttestation(state, &body.Attestations[i]); err != nil {
			return err
		}
	}
	for i := range body.Deposits {
		if err := s.ProcessDeposit(state, &body.Deposits[i]); err != nil {
			return err
		}
	}
	for i := range body.VoluntaryExits {
		if err := s.ProcessVoluntaryExit(state, &body.VoluntaryExits[i]); err != nil {
			return err
		}
	}
	return nil
}

// ProcessProposerSlashing slashes a proposer that signed two distinct
// headers at the same slot.
func (s *Spec) ProcessProposerSlashing(state *types.BeaconState, slashing *types.ProposerSlashing) error {
	if uint64(slashing.ProposerIndex) >= uint64(len(state.Validators)) {
		return fmt.Errorf("%w: proposer slashing index %d out of registry", ErrInvalidBlock, slashing.ProposerIndex)
	}
	if slashing.Header1.Slot != slashing.Header2.Slot {
		return fmt.Errorf("%w: proposer slashing headers at different slots", ErrInvalidBlock)
	}
	root1, err := slashing.Header1.SigningRoot()
	if err != nil {
		return err
	}
	root2, err := slashing.Header2.SigningRoot()
	if err != nil {
		return err
	}
	if root1 == root2 {
		return fmt.Errorf("%w: proposer slashing headers identical", ErrInvalidBlock)
	}
	proposer := &state.Validators[slashing.ProposerIndex]
	if !IsSlashableValidator(proposer, s.CurrentEpoch(state)) {
		return fmt.Errorf("%w: proposer %d not slashable", ErrInvalidBlock, slashing.ProposerIndex)
	}
	if s.blsActive() {
		domain := s.GetDomain(state, params.DomainBeaconProposer, s.ComputeEpochAtSlot(slashing.Header1.Slot))
		if !s.BLS.Verify(proposer.Pubkey, root1, slashing.Header1.Signature, domain) ||
			!s.BLS.Verify(proposer.Pubkey, root2, slashing.Header2.Signature, domain) {
			return fmt.Errorf("%w: proposer slashing signature invalid", ErrInvalidBlock)
		}
	}
	return s.SlashValidator(state, slashing.ProposerIndex, nil)
}

// ProcessAttesterSlashing slashes every validator attesting on both sides
// of a double or surround vote.
func (s *Spec) ProcessAttesterSlashing(state *types.BeaconState, slashing *types.AttesterSlashing) error {
	a1, a2 := &slashing.Attestation1, &slashing.Attestation2
	if !IsSlashableAttestationData(&a1.Data, &a2.Data) {
		return fmt.Errorf("%w: attestations are not slashable evidence", ErrInvalidBlock)
	}
	if err := s.IsValidIndexedAttestation(state, a1); err != nil {
		return fmt.Errorf("%w: first attestation: %v", ErrInvalidBlock, err)
	}
	if err := s.IsValidIndexedAttestation(state, a2); err != nil {
		return fmt.Errorf("%w: second attestation: %v", ErrInvalidBlock, err)
	}

	epoch := s.CurrentEpoch(state)
	slashedAny := false
	for _, idx := range intersectSorted(a1.AttestingIndices, a2.AttestingIndices) {
		if IsSlashableValidator(&state.Validators[idx], epoch) {
			if err := s.SlashValidator(state, idx, nil); err != nil {
				return err
			}
			slashedAny = true
		}
	}
	if !slashedAny {
		return fmt.Errorf("%w: attester slashing slashed nobody", ErrInvalidBlock)
	}
	return nil
}

// ProcessAttestation validates committee participation and checkpoints and
// stages the attestation in the matching epoch accumulator.
func (s *Spec) ProcessAttestation(state *types.BeaconState, att *types.Attestation) error {
	data := &att.Data
	if uint64(data.Index) >= s.GetCommitteeCountAtSlot(state, data.Slot) {
		return fmt.Errorf("%w: committee index %d out of range", ErrInvalidAttestation, data.Index)
	}
	current := s.CurrentEpoch(state)
	previous := s.PreviousEpoch(state)
	if data.Target.Epoch != current && data.Target.Epoch != previous {
		return fmt.Errorf("%w: target epoch %d is neither current nor previous", ErrInvalidAttestation, data.Target.Epoch)
	}
	if data.Target.Epoch != s.ComputeEpochAtSlot(data.Slot) {
		return fmt.Errorf("%w: target epoch %d does not match slot %d", ErrInvalidAttestation, data.Target.Epoch, data.Slot)
	}
	minSlot := uint64(data.Slot) + s.Cfg.MinAttestationInclusionDelay
	maxSlot := uint64(data.Slot) + s.Cfg.SlotsPerEpoch
	if uint64(state.Slot) < minSlot || uint64(state.Slot) > maxSlot {
		return fmt.Errorf("%w: attestation for slot %d outside inclusion window at slot %d",
			ErrInvalidAttestation, data.Slot, state.Slot)
	}

	committee, err := s.GetBeaconCommittee(state, data.Slot, data.Index)
	if err != nil {
		return err
	}
	if bitlistLen(att.AggregationBits) != uint64(len(committee)) {
		return fmt.Errorf("%w: aggregation bits length %d != committee size %d",
			ErrInvalidAttestation, bitlistLen(att.AggregationBits), len(committee))
	}

	proposer, err := s.GetBeaconProposerIndex(state)
	if err != nil {
		return err
	}
	pending := types.PendingAttestation{
		AggregationBits: att.AggregationBits,
		Data:            att.Data,
		InclusionDelay:  state.Slot - data.Slot,
		ProposerIndex:   proposer,
	}

	if data.Target.Epoch == current {
		if data.Source != state.CurrentJustifiedCheckpoint {
			return fmt.Errorf("%w: source does not match current justified checkpoint", ErrInvalidAttestation)
		}
		state.AppendCurrentEpochAttestation(pending)
	} else {
		if data.Source != state.PreviousJustifiedCheckpoint {
			return fmt.Errorf("%w: source does not match previous justified checkpoint", ErrInvalidAttestation)
		}
		state.AppendPreviousEpochAttestation(pending)
	}

	indexed, err := s.GetIndexedAttestation(state, att)
	if err != nil {
		return err
	}
	return s.IsValidIndexedAttestation(state, indexed)
}

// ProcessVoluntaryExit validates and schedules a voluntary exit.
func (s *Spec) ProcessVoluntaryExit(state *types.BeaconState, exit *types.VoluntaryExit) error {
	if uint64(exit.ValidatorIndex) >= uint64(len(state.Validators)) {
		return fmt.Errorf("%w: exit for unknown validator %d", ErrInvalidBlock, exit.ValidatorIndex)
	}
	validator := &state.Validators[exit.ValidatorIndex]
	current := s.CurrentEpoch(state)
	if !validator.IsActiveAt(current) {
		return fmt.Errorf("%w: exiting validator %d not active", ErrInvalidBlock, exit.ValidatorIndex)
	}
	if validator.ExitEpoch != types.FarFutureEpoch {
		return fmt.Errorf("%w: validator %d already exiting", ErrInvalidBlock, exit.ValidatorIndex)
	}
	if current < exit.Epoch {
		return fmt.Errorf("%w: exit epoch %d not yet reached", ErrInvalidBlock, exit.Epoch)
	}
	if uint64(current) < uint64(validator.ActivationEpoch)+s.Cfg.ShardCommitteePeriod {
		return fmt.Errorf("%w: validator %d has not been active long enough", ErrInvalidBlock, exit.ValidatorIndex)
	}
	if s.blsActive() {
		root, err := exit.SigningRoot()
		if err != nil {
			return err
		}
		domain := s.GetDomain(state, params.DomainVoluntaryExit, exit.Epoch)
		if !s.BLS.Verify(validator.Pubkey, root, exit.Signature, domain) {
			return fmt.Errorf("%w: voluntary exit signature invalid", ErrInvalidBlock)
		}
	}
	s.InitiateValidatorExit(state, exit.ValidatorIndex)
	return nil
}

// intersectSorted intersects two ascending index lists.
func intersectSorted(a, b []types.ValidatorIndex) []types.ValidatorIndex {
	var out []types.ValidatorIndex
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}
