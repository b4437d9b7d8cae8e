package consensus

import (
	"github.com/geanlabs/beacon/types"
)

// InitiateValidatorExit schedules a validator's exit at the end of the
// churn-limited exit queue. Already-exiting validators are left untouched.
func (s *Spec) InitiateValidatorExit(state *types.BeaconState, index types.ValidatorIndex) {
	if state.Validators[index].ExitEpoch != types.FarFutureEpoch {
		return
	}

	// Exit queue epoch: the latest scheduled exit, at minimum the earliest
	// epoch an exit scheduled now can take effect.
	exitQueueEpoch := s.ComputeActivationExitEpoch(s.CurrentEpoch(state))
	var exitQueueChurn uint64
	for i := range state.Validators {
		exit := state.Validators[i].ExitEpoch
		if exit == types.FarFutureEpoch {
			continue
		}
		if exit > exitQueueEpoch {
			exitQueueEpoch = exit
		}
	}
	for i := range state.Validators {
		if state.Validators[i].ExitEpoch == exitQueueEpoch {
			exitQueueChurn++
		}
	}
	if exitQueueChurn >= s.GetValidatorChurnLimit(state) {
		exitQueueEpoch++
	}

	withdrawable := exitQueueEpoch + types.Epoch(s.Cfg.MinValidatorWithdrawabilityDelay)
	state.UpdateValidatorAtIndex(index, func(v *types.Validator) {
		v.ExitEpoch = exitQueueEpoch
		v.WithdrawableEpoch = withdrawable
	})
}

// SlashValidator penalises a validator, schedules its forced exit, and
// credits the whistle-blower and the including proposer.
func (s *Spec) SlashValidator(state *types.BeaconState, slashed types.ValidatorIndex, whistleblower *types.ValidatorIndex) error {
	epoch := s.CurrentEpoch(state)
	s.InitiateValidatorExit(state, slashed)

	effective := state.Validators[slashed].EffectiveBalance
	withdrawable := epoch + types.Epoch(s.Cfg.EpochsPerSlashingsVector)
	state.UpdateValidatorAtIndex(slashed, func(v *types.Validator) {
		v.Slashed = true
		if v.WithdrawableEpoch < withdrawable {
			v.WithdrawableEpoch = withdrawable
		}
	})
	slot := uint64(epoch) % s.Cfg.EpochsPerSlashingsVector
	state.SetSlashingAtIndex(slot, state.Slashings[slot]+effective)
	DecreaseBalance(state, slashed, effective/types.Gwei(s.Cfg.MinSlashingPenaltyQuotient))

	proposer, err := s.GetBeaconProposerIndex(state)
	if err != nil {
		return err
	}
	wb := proposer
	if whistleblower != nil {
		wb = *whistleblower
	}
	wbReward := effective / types.Gwei(s.Cfg.WhistleblowerRewardQuotient)
	proposerReward := wbReward / types.Gwei(s.Cfg.ProposerRewardQuotient)
	IncreaseBalance(state, proposer, proposerReward)
	IncreaseBalance(state, wb, wbReward-proposerReward)
	return nil
}
