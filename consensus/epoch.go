package consensus

import (
	"fmt"
	"sort"

	"github.com/geanlabs/beacon/ssz"
	"github.com/geanlabs/beacon/types"
	"github.com/prysmaticlabs/go-bitfield"
)

// ProcessEpoch runs the per-epoch sub-transitions in spec order.
func (s *Spec) ProcessEpoch(state *types.BeaconState) error {
	if err := s.ProcessJustificationAndFinalization(state); err != nil {
		return err
	}
	if err := s.ProcessRewardsAndPenalties(state); err != nil {
		return err
	}
	if err := s.ProcessRegistryUpdates(state); err != nil {
		return err
	}
	s.ProcessSlashings(state)
	return s.ProcessFinalUpdates(state)
}

// matchingSourceAttestations returns the accumulator for epoch, which must
// be the current or previous epoch.
func (s *Spec) matchingSourceAttestations(state *types.BeaconState, epoch types.Epoch) ([]types.PendingAttestation, error) {
	switch epoch {
	case s.CurrentEpoch(state):
		return state.CurrentEpochAttestations, nil
	case s.PreviousEpoch(state):
		return state.PreviousEpochAttestations, nil
	default:
		return nil, fmt.Errorf("%w: no attestation accumulator for epoch %d", ErrInvariantViolation, epoch)
	}
}

// matchingTargetAttestations filters source attestations to those voting
// for the epoch's boundary block.
func (s *Spec) matchingTargetAttestations(state *types.BeaconState, epoch types.Epoch) ([]types.PendingAttestation, error) {
	source, err := s.matchingSourceAttestations(state, epoch)
	if err != nil {
		return nil, err
	}
	boundary, err := s.GetBlockRoot(state, epoch)
	if err != nil {
		return nil, err
	}
	var out []types.PendingAttestation
	for i := range source {
		if source[i].Data.Target.Root == boundary {
			out = append(out, source[i])
		}
	}
	return out, nil
}

// matchingHeadAttestations filters target attestations to those that also
// voted the canonical head at their slot.
func (s *Spec) matchingHeadAttestations(state *types.BeaconState, epoch types.Epoch) ([]types.PendingAttestation, error) {
	target, err := s.matchingTargetAttestations(state, epoch)
	if err != nil {
		return nil, err
	}
	var out []types.PendingAttestation
	for i := range target {
		head, err := s.GetBlockRootAtSlot(state, target[i].Data.Slot)
		if err != nil {
			return nil, err
		}
		if target[i].Data.BeaconBlockRoot == head {
			out = append(out, target[i])
		}
	}
	return out, nil
}

// unslashedAttestingIndices unions the attesters of a set of pending
// attestations, dropping slashed validators.
func (s *Spec) unslashedAttestingIndices(state *types.BeaconState, atts []types.PendingAttestation) (map[types.ValidatorIndex]struct{}, error) {
	out := make(map[types.ValidatorIndex]struct{})
	for i := range atts {
		attesters, err := s.GetAttestingIndices(state, &atts[i].Data, atts[i].AggregationBits)
		if err != nil {
			return nil, err
		}
		for _, idx := range attesters {
			if !state.Validators[idx].Slashed {
				out[idx] = struct{}{}
			}
		}
	}
	return out, nil
}

// attestingBalance sums the effective balance of the unslashed attesters.
func (s *Spec) attestingBalance(state *types.BeaconState, atts []types.PendingAttestation) (types.Gwei, error) {
	indices, err := s.unslashedAttestingIndices(state, atts)
	if err != nil {
		return 0, err
	}
	list := make([]types.ValidatorIndex, 0, len(indices))
	for idx := range indices {
		list = append(list, idx)
	}
	return s.GetTotalBalance(state, list), nil
}

// ProcessJustificationAndFinalization promotes checkpoints when a boundary
// gathers a 2/3 supermajority, then applies the finalization rules over
// the most recent four justification bits.
func (s *Spec) ProcessJustificationAndFinalization(state *types.BeaconState) error {
	current := s.CurrentEpoch(state)
	if uint64(current) <= s.Cfg.GenesisEpoch+1 {
		return nil
	}
	previous := s.PreviousEpoch(state)
	oldPrevJustified := state.PreviousJustifiedCheckpoint
	oldCurrJustified := state.CurrentJustifiedCheckpoint
	totalBalance := s.GetTotalActiveBalance(state)

	// Shift the bitmap; bit 0 tracks the epoch being judged now.
	var prevBits byte
	if len(state.JustificationBits) > 0 {
		prevBits = state.JustificationBits[0]
	}
	newBits := bitfield.Bitvector4{(prevBits << 1) & 0x0f}
	state.SetPreviousJustifiedCheckpoint(oldCurrJustified)

	prevTarget, err := s.matchingTargetAttestations(state, previous)
	if err != nil {
		return err
	}
	prevBalance, err := s.attestingBalance(state, prevTarget)
	if err != nil {
		return err
	}
	if prevBalance*3 >= totalBalance*2 {
		root, err := s.GetBlockRoot(state, previous)
		if err != nil {
			return err
		}
		state.SetCurrentJustifiedCheckpoint(types.Checkpoint{Epoch: previous, Root: root})
		newBits.SetBitAt(1, true)
	}

	currTarget, err := s.matchingTargetAttestations(state, current)
	if err != nil {
		return err
	}
	currBalance, err := s.attestingBalance(state, currTarget)
	if err != nil {
		return err
	}
	if currBalance*3 >= totalBalance*2 {
		root, err := s.GetBlockRoot(state, current)
		if err != nil {
			return err
		}
		state.SetCurrentJustifiedCheckpoint(types.Checkpoint{Epoch: current, Root: root})
		newBits.SetBitAt(0, true)
	}
	state.SetJustificationBits(newBits)

	// Finalization: a justification chain over consecutive epochs promotes
	// its source checkpoint.
	b := newBits
	if b.BitAt(1) && b.BitAt(2) && b.BitAt(3) && oldPrevJustified.Epoch+3 == current {
		state.SetFinalizedCheckpoint(oldPrevJustified)
	}
	if b.BitAt(1) && b.BitAt(2) && oldPrevJustified.Epoch+2 == current {
		state.SetFinalizedCheckpoint(oldPrevJustified)
	}
	if b.BitAt(0) && b.BitAt(1) && b.BitAt(2) && oldCurrJustified.Epoch+2 == current {
		state.SetFinalizedCheckpoint(oldCurrJustified)
	}
	if b.BitAt(0) && b.BitAt(1) && oldCurrJustified.Epoch+1 == current {
		state.SetFinalizedCheckpoint(oldCurrJustified)
	}
	return nil
}

// baseReward is the per-component reward unit for one validator.
func (s *Spec) baseReward(state *types.BeaconState, index types.ValidatorIndex, totalBalance types.Gwei) types.Gwei {
	effective := uint64(state.Validators[index].EffectiveBalance)
	return types.Gwei(effective * s.Cfg.BaseRewardFactor /
		IntegerSqrt(uint64(totalBalance)) / s.Cfg.BaseRewardsPerEpoch)
}

// eligibleIndices are the validators judged by rewards and penalties:
// active in the previous epoch, plus slashed but not yet withdrawable.
func (s *Spec) eligibleIndices(state *types.BeaconState, previous types.Epoch) []types.ValidatorIndex {
	var out []types.ValidatorIndex
	for i := range state.Validators {
		v := &state.Validators[i]
		if v.IsActiveAt(previous) || (v.Slashed && previous+1 < v.WithdrawableEpoch) {
			out = append(out, types.ValidatorIndex(i))
		}
	}
	return out
}

// attestationDeltas computes the reward and penalty vectors for the
// previous epoch's attestation performance.
func (s *Spec) attestationDeltas(state *types.BeaconState) ([]types.Gwei, []types.Gwei, error) {
	n := len(state.Validators)
	rewards := make([]types.Gwei, n)
	penalties := make([]types.Gwei, n)

	previous := s.PreviousEpoch(state)
	totalBalance := s.GetTotalActiveBalance(state)
	eligible := s.eligibleIndices(state, previous)

	sourceAtts, err := s.matchingSourceAttestations(state, previous)
	if err != nil {
		return nil, nil, err
	}
	targetAtts, err := s.matchingTargetAttestations(state, previous)
	if err != nil {
		return nil, nil, err
	}
	headAtts, err := s.matchingHeadAttestations(state, previous)
	if err != nil {
		return nil, nil, err
	}

	// Source, target and head components: attesters earn the matching
	// stake fraction, absentees pay the base reward.
	for _, atts := range [][]types.PendingAttestation{sourceAtts, targetAtts, headAtts} {
		attesters, err := s.unslashedAttestingIndices(state, atts)
		if err != nil {
			return nil, nil, err
		}
		list := make([]types.ValidatorIndex, 0, len(attesters))
		for idx := range attesters {
			list = append(list, idx)
		}
		attestingBalance := s.GetTotalBalance(state, list)
		for _, idx := range eligible {
			base := s.baseReward(state, idx, totalBalance)
			if _, ok := attesters[idx]; ok {
				rewards[idx] += base * attestingBalance / totalBalance
			} else {
				penalties[idx] += base
			}
		}
	}

	// Inclusion micro-rewards: the earliest inclusion of each attester
	// credits its proposer and scales the attester's cut by the delay.
	sourceAttesters, err := s.unslashedAttestingIndices(state, sourceAtts)
	if err != nil {
		return nil, nil, err
	}
	for idx := range sourceAttesters {
		var earliest *types.PendingAttestation
		for i := range sourceAtts {
			attesters, err := s.GetAttestingIndices(state, &sourceAtts[i].Data, sourceAtts[i].AggregationBits)
			if err != nil {
				return nil, nil, err
			}
			if !containsIndex(attesters, idx) {
				continue
			}
			if earliest == nil || sourceAtts[i].InclusionDelay < earliest.InclusionDelay {
				earliest = &sourceAtts[i]
			}
		}
		if earliest == nil {
			continue
		}
		base := s.baseReward(state, idx, totalBalance)
		proposerReward := base / types.Gwei(s.Cfg.ProposerRewardQuotient)
		rewards[earliest.ProposerIndex] += proposerReward
		maxAttesterReward := base - proposerReward
		rewards[idx] += maxAttesterReward * types.Gwei(s.Cfg.MinAttestationInclusionDelay) /
			types.Gwei(earliest.InclusionDelay)
	}

	// Inactivity leak: a long finality gap drains everyone, quadratically
	// for validators not attesting to the boundary.
	finalityDelay := uint64(previous) - uint64(state.FinalizedCheckpoint.Epoch)
	if finalityDelay > s.Cfg.MinEpochsToInactivityPenalty {
		targetAttesters, err := s.unslashedAttestingIndices(state, targetAtts)
		if err != nil {
			return nil, nil, err
		}
		for _, idx := range eligible {
			base := s.baseReward(state, idx, totalBalance)
			penalties[idx] += types.Gwei(s.Cfg.BaseRewardsPerEpoch) * base
			if _, ok := targetAttesters[idx]; !ok {
				effective := uint64(state.Validators[idx].EffectiveBalance)
				penalties[idx] += types.Gwei(effective * finalityDelay / s.Cfg.InactivityPenaltyQuotient)
			}
		}
	}
	return rewards, penalties, nil
}

// ProcessRewardsAndPenalties applies the previous epoch's attestation
// deltas. Nothing is judged in the genesis epoch.
func (s *Spec) ProcessRewardsAndPenalties(state *types.BeaconState) error {
	if uint64(s.CurrentEpoch(state)) == s.Cfg.GenesisEpoch {
		return nil
	}
	rewards, penalties, err := s.attestationDeltas(state)
	if err != nil {
		return err
	}
	for i := range state.Validators {
		idx := types.ValidatorIndex(i)
		IncreaseBalance(state, idx, rewards[i])
		DecreaseBalance(state, idx, penalties[i])
	}
	return nil
}

// ProcessRegistryUpdates promotes deposits to eligibility, ejects drained
// validators, and activates the churn-limited head of the queue.
func (s *Spec) ProcessRegistryUpdates(state *types.BeaconState) error {
	current := s.CurrentEpoch(state)
	for i := range state.Validators {
		v := &state.Validators[i]
		if v.ActivationEligibilityEpoch == types.FarFutureEpoch &&
			v.EffectiveBalance == types.Gwei(s.Cfg.MaxEffectiveBalance) {
			state.UpdateValidatorAtIndex(types.ValidatorIndex(i), func(v *types.Validator) {
				v.ActivationEligibilityEpoch = current + 1
			})
		}
		if v.IsActiveAt(current) && v.EffectiveBalance <= types.Gwei(s.Cfg.EjectionBalance) {
			s.InitiateValidatorExit(state, types.ValidatorIndex(i))
		}
	}

	// Activation queue in FIFO order of eligibility, bounded by churn.
	var queue []types.ValidatorIndex
	for i := range state.Validators {
		v := &state.Validators[i]
		if v.ActivationEligibilityEpoch != types.FarFutureEpoch &&
			v.ActivationEpoch == types.FarFutureEpoch &&
			v.ActivationEligibilityEpoch <= state.FinalizedCheckpoint.Epoch {
			queue = append(queue, types.ValidatorIndex(i))
		}
	}
	sortByEligibility(state, queue)

	churn := s.GetValidatorChurnLimit(state)
	if uint64(len(queue)) < churn {
		churn = uint64(len(queue))
	}
	activation := s.ComputeActivationExitEpoch(current)
	for _, idx := range queue[:churn] {
		state.UpdateValidatorAtIndex(idx, func(v *types.Validator) {
			v.ActivationEpoch = activation
		})
	}
	return nil
}

// ProcessSlashings applies the correlated penalty to validators halfway
// through their slashing withdrawability period.
func (s *Spec) ProcessSlashings(state *types.BeaconState) {
	epoch := s.CurrentEpoch(state)
	totalBalance := s.GetTotalActiveBalance(state)

	var sum types.Gwei
	for _, amount := range state.Slashings {
		sum += amount
	}
	scaled := sum * 3
	if scaled > totalBalance {
		scaled = totalBalance
	}

	inc := types.Gwei(s.Cfg.EffectiveBalanceIncrement)
	for i := range state.Validators {
		v := &state.Validators[i]
		if !v.Slashed || epoch+types.Epoch(s.Cfg.EpochsPerSlashingsVector/2) != v.WithdrawableEpoch {
			continue
		}
		penalty := v.EffectiveBalance / inc * scaled / totalBalance * inc
		DecreaseBalance(state, types.ValidatorIndex(i), penalty)
	}
}

// ProcessFinalUpdates rotates the rings, requantizes effective balances
// with hysteresis, archives historical roots, and swaps the attestation
// accumulators.
func (s *Spec) ProcessFinalUpdates(state *types.BeaconState) error {
	current := s.CurrentEpoch(state)
	next := current + 1

	// Eth1 vote window reset.
	if (uint64(state.Slot)+1)%s.Cfg.SlotsPerEth1VotingPeriod == 0 {
		state.ResetEth1DataVotes()
	}

	// Effective balance hysteresis against the cap.
	halfInc := types.Gwei(s.Cfg.EffectiveBalanceIncrement / 2)
	for i := range state.Validators {
		balance := state.Balances[i]
		effective := state.Validators[i].EffectiveBalance
		if balance < effective || effective+3*halfInc < balance {
			state.UpdateValidatorAtIndex(types.ValidatorIndex(i), func(v *types.Validator) {
				v.EffectiveBalance = s.quantizeBalance(balance)
			})
		}
	}

	// Slashings ring: zero the slot the next epoch will accumulate into.
	state.SetSlashingAtIndex(uint64(next)%s.Cfg.EpochsPerSlashingsVector, 0)

	// RANDAO ring: seed the next epoch with the current mix.
	mix := s.randaoMixAt(state, current)
	state.SetRandaoMixAtIndex(uint64(next)%s.Cfg.EpochsPerHistoricalVector, mix)

	// Historical accumulator: one batch per SLOTS_PER_HISTORICAL_ROOT.
	if (uint64(state.Slot)+1)%s.Cfg.SlotsPerHistoricalRoot == 0 {
		state.AppendHistoricalRoot(historicalBatchRoot(state.BlockRoots, state.StateRoots))
	}

	state.RotateEpochAttestations()
	return nil
}

// historicalBatchRoot hashes the container of the two root rings.
func historicalBatchRoot(blockRoots, stateRoots []types.Root) types.Root {
	h := ssz.NewHasher()
	idx := h.Index()
	br := h.Index()
	for i := range blockRoots {
		h.AppendRoot(blockRoots[i])
	}
	h.Merkleize(br)
	sr := h.Index()
	for i := range stateRoots {
		h.AppendRoot(stateRoots[i])
	}
	h.Merkleize(sr)
	h.Merkleize(idx)
	return h.Root()
}

func containsIndex(list []types.ValidatorIndex, idx types.ValidatorIndex) bool {
	for _, v := range list {
		if v == idx {
			return true
		}
	}
	return false
}

// sortByEligibility orders the activation queue by eligibility epoch,
// breaking ties by registry index.
func sortByEligibility(state *types.BeaconState, queue []types.ValidatorIndex) {
	sort.Slice(queue, func(i, j int) bool {
		a, b := queue[i], queue[j]
		ea := state.Validators[a].ActivationEligibilityEpoch
		eb := state.Validators[b].ActivationEligibilityEpoch
		if ea != eb {
			return ea < eb
		}
		return a < b
	})
}
