package consensus

import (
	"github.com/geanlabs/beacon/bls"
	"github.com/geanlabs/beacon/params"
	"github.com/geanlabs/beacon/types"
	"github.com/prysmaticlabs/go-bitfield"
)

// GenesisBeaconState builds the state at slot GENESIS_SLOT from the eth1
// block that crossed the deposit threshold and the deposits collected up to
// it. The RANDAO ring is seeded from the eth1 block hash.
func (s *Spec) GenesisBeaconState(genesisTime uint64, eth1BlockHash types.Root, deposits []types.DepositData) (*types.BeaconState, error) {
	state := s.emptyState(genesisTime, eth1BlockHash)
	state.Eth1Data = types.Eth1Data{
		DepositCount: uint64(len(deposits)),
		BlockHash:    eth1BlockHash,
	}
	state.Eth1DepositIndex = uint64(len(deposits))

	for i := range deposits {
		data := &deposits[i]
		found := false
		for j := range state.Validators {
			if state.Validators[j].Pubkey == data.Pubkey {
				state.Balances[j] += data.Amount
				found = true
				break
			}
		}
		if found {
			continue
		}
		state.Validators = append(state.Validators, types.Validator{
			Pubkey:                     data.Pubkey,
			WithdrawalCredentials:      data.WithdrawalCredentials,
			EffectiveBalance:           s.quantizeBalance(data.Amount),
			ActivationEligibilityEpoch: types.FarFutureEpoch,
			ActivationEpoch:            types.FarFutureEpoch,
			ExitEpoch:                  types.FarFutureEpoch,
			WithdrawableEpoch:          types.FarFutureEpoch,
		})
		state.Balances = append(state.Balances, data.Amount)
	}

	// Genesis validators with a full stake are active immediately.
	genesisEpoch := types.Epoch(s.Cfg.GenesisEpoch)
	for i := range state.Validators {
		if state.Validators[i].EffectiveBalance == types.Gwei(s.Cfg.MaxEffectiveBalance) {
			state.Validators[i].ActivationEligibilityEpoch = genesisEpoch
			state.Validators[i].ActivationEpoch = genesisEpoch
		}
	}

	if s.Cfg.IncrementalHasher {
		state.EnableHashCache()
	}
	return state, nil
}

// InteropGenesisState builds a deterministic devnet genesis: count
// validators with keys seeded 0..count-1, each at the maximum effective
// balance.
func (s *Spec) InteropGenesisState(genesisTime uint64, eth1BlockHash types.Root, count uint64) (*types.BeaconState, error) {
	deposits := make([]types.DepositData, count)
	for i := uint64(0); i < count; i++ {
		signer := &bls.InsecureSigner{Seed: i}
		deposits[i] = types.DepositData{
			Pubkey:                signer.Pubkey(),
			WithdrawalCredentials: withdrawalCredentials(signer.Pubkey()),
			Amount:                types.Gwei(s.Cfg.MaxEffectiveBalance),
		}
	}
	return s.GenesisBeaconState(genesisTime, eth1BlockHash, deposits)
}

// GenesisBlock returns the implicit block committing to the genesis state.
func (s *Spec) GenesisBlock(state *types.BeaconState) (*types.BeaconBlock, error) {
	root, err := state.HashTreeRoot()
	if err != nil {
		return nil, err
	}
	return &types.BeaconBlock{
		Slot:      types.Slot(s.Cfg.GenesisSlot),
		StateRoot: root,
	}, nil
}

// emptyState allocates the rings and the pre-deposit genesis fields.
func (s *Spec) emptyState(genesisTime uint64, eth1BlockHash types.Root) *types.BeaconState {
	emptyBody := types.BeaconBlockBody{}
	bodyRoot, _ := emptyBody.HashTreeRoot()

	randaoMixes := make([]types.Root, s.Cfg.EpochsPerHistoricalVector)
	for i := range randaoMixes {
		randaoMixes[i] = eth1BlockHash
	}

	return &types.BeaconState{
		GenesisTime: genesisTime,
		Slot:        types.Slot(s.Cfg.GenesisSlot),
		LatestBlockHeader: types.BeaconBlockHeader{
			BodyRoot: bodyRoot,
		},
		BlockRoots:        make([]types.Root, s.Cfg.SlotsPerHistoricalRoot),
		StateRoots:        make([]types.Root, s.Cfg.SlotsPerHistoricalRoot),
		RandaoMixes:       randaoMixes,
		Slashings:         make([]types.Gwei, s.Cfg.EpochsPerSlashingsVector),
		JustificationBits: bitfield.Bitvector4{0},
	}
}

// withdrawalCredentials derives BLS-prefixed credentials from a pubkey.
func withdrawalCredentials(pubkey types.Bytes48) types.Root {
	creds := hashConcat(pubkey[:])
	creds[0] = params.BLSWithdrawalPrefix
	return creds
}
