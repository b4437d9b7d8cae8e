package consensus

import (
	"fmt"

	"github.com/geanlabs/beacon/params"
	"github.com/geanlabs/beacon/ssz"
	"github.com/geanlabs/beacon/types"
)

// ProcessDeposit verifies a deposit's Merkle branch against the state's
// eth1 deposit root and either appends a new validator or tops up an
// existing one.
func (s *Spec) ProcessDeposit(state *types.BeaconState, deposit *types.Deposit) error {
	leaf, err := deposit.Data.HashTreeRoot()
	if err != nil {
		return err
	}
	depth := s.Cfg.DepositContractTreeDepth + 1
	if !IsValidMerkleBranch(leaf, deposit.Proof[:], depth, state.Eth1DepositIndex, state.Eth1Data.DepositRoot) {
		return fmt.Errorf("%w: deposit proof invalid at index %d", ErrInvalidBlock, state.Eth1DepositIndex)
	}
	state.SetEth1DepositIndex(state.Eth1DepositIndex + 1)

	data := &deposit.Data
	for i := range state.Validators {
		if state.Validators[i].Pubkey == data.Pubkey {
			IncreaseBalance(state, types.ValidatorIndex(i), data.Amount)
			return nil
		}
	}

	// First deposit for this key. An invalid proof-of-possession skips the
	// deposit without failing the block: deposits are mandatory inputs.
	if s.blsActive() && s.Cfg.BLSVerifyProofOfPossession {
		root, err := data.SigningRoot()
		if err != nil {
			return err
		}
		domain := ComputeDomain(params.DomainDeposit, types.Bytes4{})
		if !s.BLS.Verify(data.Pubkey, root, data.Signature, domain) {
			return nil
		}
	}

	state.AppendValidator(types.Validator{
		Pubkey:                     data.Pubkey,
		WithdrawalCredentials:      data.WithdrawalCredentials,
		EffectiveBalance:           s.quantizeBalance(data.Amount),
		Slashed:                    false,
		ActivationEligibilityEpoch: s.CurrentEpoch(state) + 1,
		ActivationEpoch:            types.FarFutureEpoch,
		ExitEpoch:                  types.FarFutureEpoch,
		WithdrawableEpoch:          types.FarFutureEpoch,
	}, data.Amount)
	return nil
}

// quantizeBalance rounds a balance down to the effective-balance increment
// and caps it.
func (s *Spec) quantizeBalance(balance types.Gwei) types.Gwei {
	inc := types.Gwei(s.Cfg.EffectiveBalanceIncrement)
	quantized := balance - balance%inc
	if quantized > types.Gwei(s.Cfg.MaxEffectiveBalance) {
		return types.Gwei(s.Cfg.MaxEffectiveBalance)
	}
	return quantized
}

// IsValidMerkleBranch verifies a Merkle branch of the given depth for the
// leaf at index against root.
func IsValidMerkleBranch(leaf types.Root, branch []types.Root, depth uint64, index uint64, root types.Root) bool {
	if uint64(len(branch)) < depth {
		return false
	}
	value := leaf
	for i := uint64(0); i < depth; i++ {
		var buf [64]byte
		if (index>>i)&1 == 1 {
			copy(buf[:32], branch[i][:])
			copy(buf[32:], value[:])
		} else {
			copy(buf[:32], value[:])
			copy(buf[32:], branch[i][:])
		}
		value = ssz.Hash(buf[:])
	}
	return value == root
}
