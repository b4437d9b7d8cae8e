package consensus

import (
	"errors"
	"testing"

	"github.com/geanlabs/beacon/eth1"
	"github.com/geanlabs/beacon/types"
	"github.com/prysmaticlabs/go-bitfield"
)

// advance moves a state to slot via slot processing only.
func advance(t *testing.T, spec *Spec, state *types.BeaconState, slot types.Slot) *types.BeaconState {
	t.Helper()
	out, err := spec.ProcessSlots(state, slot)
	if err != nil {
		t.Fatalf("process slots to %d: %v", slot, err)
	}
	return out
}

// emptyBlockAt builds a valid empty block on top of state for its slot.
func emptyBlockAt(t *testing.T, spec *Spec, pre *types.BeaconState) *types.BeaconBlock {
	t.Helper()
	parentRoot, err := pre.LatestBlockHeader.SigningRoot()
	if err != nil {
		t.Fatalf("parent root: %v", err)
	}
	block := &types.BeaconBlock{
		Slot:       pre.Slot,
		ParentRoot: parentRoot,
		Body: types.BeaconBlockBody{
			Eth1Data: pre.Eth1Data,
		},
	}
	scratch := pre.Copy()
	if err := spec.ProcessBlock(scratch, block); err != nil {
		t.Fatalf("execute candidate block: %v", err)
	}
	stateRoot, err := scratch.HashTreeRoot()
	if err != nil {
		t.Fatalf("candidate state root: %v", err)
	}
	block.StateRoot = stateRoot
	return block
}

func TestProcessSlots_IdempotentAtTarget(t *testing.T) {
	spec := testSpec(t)
	state := genesisState(t, 16)

	same, err := spec.ProcessSlots(state, state.Slot)
	if err != nil {
		t.Fatalf("zero-slot processing should succeed: %v", err)
	}
	r0, _ := state.HashTreeRoot()
	r1, _ := same.HashTreeRoot()
	if r0 != r1 {
		t.Fatal("zero-slot processing must not change the state")
	}
}

func TestProcessSlots_BackwardsFails(t *testing.T) {
	spec := testSpec(t)
	state := genesisState(t, 16)
	state = advance(t, spec, state, 3)
	if _, err := spec.ProcessSlots(state, 1); err == nil {
		t.Fatal("moving backwards should fail")
	}
}

func TestProcessSlot_FillsHeaderStateRoot(t *testing.T) {
	spec := testSpec(t)
	state := genesisState(t, 16)

	if !types.IsZeroRoot(state.LatestBlockHeader.StateRoot) {
		t.Fatal("genesis header should carry the sentinel state root")
	}
	advanced := advance(t, spec, state, 1)
	if types.IsZeroRoot(advanced.LatestBlockHeader.StateRoot) {
		t.Fatal("slot processing should fill the header state root")
	}

	// Once filled the root stays put.
	rootBefore := advanced.LatestBlockHeader.StateRoot
	again := advance(t, spec, advanced, 2)
	if again.LatestBlockHeader.StateRoot != rootBefore {
		t.Fatal("filled header state root must not be rewritten")
	}
}

func TestProcessSlots_WritesHistoricalRings(t *testing.T) {
	spec := testSpec(t)
	state := genesisState(t, 16)
	advanced := advance(t, spec, state, 3)

	for slot := uint64(0); slot < 3; slot++ {
		if types.IsZeroRoot(advanced.BlockRoots[slot]) {
			t.Errorf("block-roots ring empty at slot %d", slot)
		}
		if types.IsZeroRoot(advanced.StateRoots[slot]) {
			t.Errorf("state-roots ring empty at slot %d", slot)
		}
	}
}

func TestEmptyChain_InactivityDrainsBalances(t *testing.T) {
	spec := testSpec(t)
	state := genesisState(t, 16)
	before := append([]types.Gwei{}, state.Balances...)

	drained := advance(t, spec, state, types.Slot(2*spec.Cfg.SlotsPerEpoch))

	for i, balance := range drained.Balances {
		if balance >= before[i] {
			t.Fatalf("validator %d balance did not decrease: %d -> %d", i, before[i], balance)
		}
	}
}

func TestStateTransition_EmptyBlock(t *testing.T) {
	spec := testSpec(t)
	genesis := genesisState(t, 16)

	pre := advance(t, spec, genesis, 1)
	block := emptyBlockAt(t, spec, pre)

	post, err := spec.StateTransition(genesis, block, true)
	if err != nil {
		t.Fatalf("state transition: %v", err)
	}
	if post.Slot != 1 {
		t.Fatalf("post state at slot %d, want 1", post.Slot)
	}
	if post.LatestBlockHeader.Slot != 1 {
		t.Fatal("header not staged")
	}

	// The input state stays untouched.
	if genesis.Slot != 0 {
		t.Fatal("transition mutated its input")
	}
}

func TestStateTransition_RejectsBadStateRoot(t *testing.T) {
	spec := testSpec(t)
	genesis := genesisState(t, 16)

	pre := advance(t, spec, genesis, 1)
	block := emptyBlockAt(t, spec, pre)
	block.StateRoot[0] ^= 0xff

	if _, err := spec.StateTransition(genesis, block, true); !errors.Is(err, ErrInvalidBlock) {
		t.Fatalf("want ErrInvalidBlock, got %v", err)
	}
}

func TestStateTransition_RejectsWrongParent(t *testing.T) {
	spec := testSpec(t)
	genesis := genesisState(t, 16)

	pre := advance(t, spec, genesis, 1)
	block := emptyBlockAt(t, spec, pre)
	block.ParentRoot[0] ^= 0xff

	if _, err := spec.StateTransition(genesis, block, true); !errors.Is(err, ErrInvalidBlock) {
		t.Fatalf("want ErrInvalidBlock, got %v", err)
	}
}

func TestProcessOperations_RejectsOverfullBlock(t *testing.T) {
	spec := testSpec(t)
	state := advance(t, spec, genesisState(t, 16), 1)

	body := &types.BeaconBlockBody{Eth1Data: state.Eth1Data}
	body.Attestations = make([]types.Attestation, spec.Cfg.MaxAttestations+1)
	if err := spec.ProcessOperations(state, body); !errors.Is(err, ErrInvalidBlock) {
		t.Fatalf("overfull attestation list should be invalid, got %v", err)
	}

	body = &types.BeaconBlockBody{Eth1Data: state.Eth1Data}
	body.VoluntaryExits = make([]types.VoluntaryExit, spec.Cfg.MaxVoluntaryExits+1)
	if err := spec.ProcessOperations(state, body); !errors.Is(err, ErrInvalidBlock) {
		t.Fatalf("overfull exit list should be invalid, got %v", err)
	}
}

func TestDeposit_AppendsValidator(t *testing.T) {
	spec := testSpec(t)
	state := advance(t, testSpec(t), genesisState(t, 16), 1)

	// A deposit tree with 16 placeholder leaves standing in for the genesis
	// deposits, plus one new key.
	tree := eth1.NewDepositTree(spec.Cfg.DepositContractTreeDepth)
	for i := 0; i < 16; i++ {
		var leaf types.Root
		leaf[0] = byte(i + 1)
		tree.Insert(leaf)
	}
	newDeposit := types.DepositData{
		Pubkey: types.Bytes48{0xd0, 0x0d},
		Amount: types.Gwei(spec.Cfg.MaxEffectiveBalance),
	}
	leaf, err := newDeposit.HashTreeRoot()
	if err != nil {
		t.Fatalf("deposit leaf: %v", err)
	}
	tree.Insert(leaf)

	proof, err := tree.Proof(16)
	if err != nil {
		t.Fatalf("deposit proof: %v", err)
	}

	state.SetEth1Data(types.Eth1Data{
		DepositRoot:  tree.Root(),
		DepositCount: 17,
	})
	state.SetEth1DepositIndex(16)

	deposit := &types.Deposit{Proof: proof, Data: newDeposit}
	if err := spec.ProcessDeposit(state, deposit); err != nil {
		t.Fatalf("process deposit: %v", err)
	}

	if len(state.Validators) != 17 {
		t.Fatalf("registry length %d, want 17", len(state.Validators))
	}
	added := state.Validators[16]
	if added.Pubkey != newDeposit.Pubkey {
		t.Fatal("appended validator carries the wrong key")
	}
	wantEligibility := spec.CurrentEpoch(state) + 1
	if added.ActivationEligibilityEpoch != wantEligibility {
		t.Fatalf("eligibility epoch %d, want %d", added.ActivationEligibilityEpoch, wantEligibility)
	}
	if state.Eth1DepositIndex != 17 {
		t.Fatalf("deposit index %d, want 17", state.Eth1DepositIndex)
	}
	if state.Balances[16] != newDeposit.Amount {
		t.Fatal("appended balance mismatch")
	}
}

func TestDeposit_LastIndexOfTree(t *testing.T) {
	spec := testSpec(t)
	state := genesisState(t, 8)

	tree := eth1.NewDepositTree(spec.Cfg.DepositContractTreeDepth)
	var datas []types.DepositData
	for i := 0; i < 4; i++ {
		data := types.DepositData{
			Pubkey: types.Bytes48{byte(0xe0 + i)},
			Amount: types.Gwei(spec.Cfg.MinDepositAmount),
		}
		leaf, _ := data.HashTreeRoot()
		tree.Insert(leaf)
		datas = append(datas, data)
	}

	// The deposit whose index equals deposit_count - 1.
	state.SetEth1Data(types.Eth1Data{DepositRoot: tree.Root(), DepositCount: 4})
	state.SetEth1DepositIndex(3)

	proof, err := tree.Proof(3)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if err := spec.ProcessDeposit(state, &types.Deposit{Proof: proof, Data: datas[3]}); err != nil {
		t.Fatalf("final deposit rejected: %v", err)
	}
	if state.Eth1DepositIndex != 4 {
		t.Fatalf("deposit index %d, want 4", state.Eth1DepositIndex)
	}
}

func TestDeposit_TopUpExistingValidator(t *testing.T) {
	spec := testSpec(t)
	state := genesisState(t, 8)
	existing := state.Validators[2].Pubkey
	balanceBefore := state.Balances[2]

	tree := eth1.NewDepositTree(spec.Cfg.DepositContractTreeDepth)
	data := types.DepositData{Pubkey: existing, Amount: 5}
	leaf, _ := data.HashTreeRoot()
	tree.Insert(leaf)

	state.SetEth1Data(types.Eth1Data{DepositRoot: tree.Root(), DepositCount: 1})
	state.SetEth1DepositIndex(0)

	proof, _ := tree.Proof(0)
	if err := spec.ProcessDeposit(state, &types.Deposit{Proof: proof, Data: data}); err != nil {
		t.Fatalf("top-up deposit: %v", err)
	}
	if len(state.Validators) != 8 {
		t.Fatal("top-up must not append a validator")
	}
	if state.Balances[2] != balanceBefore+5 {
		t.Fatal("top-up balance not credited")
	}
}

func TestProposerSlashing_PenalisesAndRecords(t *testing.T) {
	spec := testSpec(t)
	state := advance(t, spec, genesisState(t, 16), 1)

	var p types.ValidatorIndex = 7
	effective := state.Validators[p].EffectiveBalance
	balanceBefore := state.Balances[p]

	proposer, err := spec.GetBeaconProposerIndex(state)
	if err != nil {
		t.Fatalf("proposer: %v", err)
	}
	proposerBefore := state.Balances[proposer]

	var parent types.Root
	for i := range parent {
		parent[i] = 0xaa
	}
	header1 := types.BeaconBlockHeader{Slot: 1, ParentRoot: parent, BodyRoot: types.Root{0x01}}
	header2 := types.BeaconBlockHeader{Slot: 1, ParentRoot: parent, BodyRoot: types.Root{0x02}}

	slashing := &types.ProposerSlashing{ProposerIndex: p, Header1: header1, Header2: header2}
	if err := spec.ProcessProposerSlashing(state, slashing); err != nil {
		t.Fatalf("process proposer slashing: %v", err)
	}

	if !state.Validators[p].Slashed {
		t.Fatal("proposer not marked slashed")
	}
	penalty := effective / types.Gwei(spec.Cfg.MinSlashingPenaltyQuotient)
	// The slashed proposer also earns slices of the whistle-blower reward
	// when it doubles as the block proposer, so check the debit exactly
	// when the roles differ.
	if p != proposer {
		if state.Balances[p] != balanceBefore-penalty {
			t.Fatalf("slashed balance %d, want %d", state.Balances[p], balanceBefore-penalty)
		}
		wbReward := effective / types.Gwei(spec.Cfg.WhistleblowerRewardQuotient)
		if state.Balances[proposer] != proposerBefore+wbReward {
			t.Fatalf("whistle-blower credit %d, want %d",
				state.Balances[proposer]-proposerBefore, wbReward)
		}
	}

	slot := uint64(spec.CurrentEpoch(state)) % spec.Cfg.EpochsPerSlashingsVector
	if state.Slashings[slot] != effective {
		t.Fatalf("slashings ring %d, want %d", state.Slashings[slot], effective)
	}
	// Withdrawability is pushed at least a full slashings period out; the
	// exit queue may already have scheduled it later.
	floor := spec.CurrentEpoch(state) + types.Epoch(spec.Cfg.EpochsPerSlashingsVector)
	if state.Validators[p].WithdrawableEpoch < floor {
		t.Fatalf("withdrawable epoch %d below slashing floor %d", state.Validators[p].WithdrawableEpoch, floor)
	}
}

func TestProposerSlashing_RejectsIdenticalHeaders(t *testing.T) {
	spec := testSpec(t)
	state := advance(t, spec, genesisState(t, 16), 1)

	header := types.BeaconBlockHeader{Slot: 1, BodyRoot: types.Root{0x01}}
	slashing := &types.ProposerSlashing{ProposerIndex: 2, Header1: header, Header2: header}
	if err := spec.ProcessProposerSlashing(state, slashing); !errors.Is(err, ErrInvalidBlock) {
		t.Fatalf("identical headers should be invalid, got %v", err)
	}
}

func TestAttesterSlashing_ReducesAggregateBalance(t *testing.T) {
	spec := testSpec(t)
	state := advance(t, spec, genesisState(t, 16), 1)

	data1 := types.AttestationData{
		Slot:   0,
		Target: types.Checkpoint{Epoch: 0, Root: types.Root{0x01}},
	}
	data2 := types.AttestationData{
		Slot:   0,
		Target: types.Checkpoint{Epoch: 0, Root: types.Root{0x02}},
	}
	slashing := &types.AttesterSlashing{
		Attestation1: types.IndexedAttestation{AttestingIndices: []types.ValidatorIndex{1, 2, 3}, Data: data1},
		Attestation2: types.IndexedAttestation{AttestingIndices: []types.ValidatorIndex{2, 3, 4}, Data: data2},
	}

	totalBefore := totalBalance(state)
	if err := spec.ProcessAttesterSlashing(state, slashing); err != nil {
		t.Fatalf("process attester slashing: %v", err)
	}

	for _, idx := range []types.ValidatorIndex{2, 3} {
		if !state.Validators[idx].Slashed {
			t.Fatalf("validator %d in the intersection not slashed", idx)
		}
	}
	for _, idx := range []types.ValidatorIndex{1, 4} {
		if state.Validators[idx].Slashed {
			t.Fatalf("validator %d outside the intersection slashed", idx)
		}
	}
	if totalBalance(state) >= totalBefore {
		t.Fatal("slashing must strictly decrease the aggregate balance")
	}

	// Replaying the same evidence slashes nobody new.
	if err := spec.ProcessAttesterSlashing(state, slashing); !errors.Is(err, ErrInvalidBlock) {
		t.Fatalf("replayed slashing should be invalid, got %v", err)
	}
}

func TestVoluntaryExit(t *testing.T) {
	cfg := *testSpec(t).Cfg
	cfg.ShardCommitteePeriod = 0
	spec := NewSpec(&cfg)
	state := advance(t, spec, genesisState(t, 16), 1)

	exit := &types.VoluntaryExit{Epoch: 0, ValidatorIndex: 3}
	if err := spec.ProcessVoluntaryExit(state, exit); err != nil {
		t.Fatalf("voluntary exit: %v", err)
	}
	if state.Validators[3].ExitEpoch == types.FarFutureEpoch {
		t.Fatal("exit not scheduled")
	}

	// A second exit for the same validator is invalid.
	if err := spec.ProcessVoluntaryExit(state, exit); !errors.Is(err, ErrInvalidBlock) {
		t.Fatalf("double exit should be invalid, got %v", err)
	}
}

func TestVoluntaryExit_TooEarly(t *testing.T) {
	spec := testSpec(t)
	state := advance(t, spec, genesisState(t, 16), 1)

	// Minimal config demands SHARD_COMMITTEE_PERIOD epochs of activity.
	exit := &types.VoluntaryExit{Epoch: 0, ValidatorIndex: 3}
	if err := spec.ProcessVoluntaryExit(state, exit); !errors.Is(err, ErrInvalidBlock) {
		t.Fatalf("early exit should be invalid, got %v", err)
	}
}

func TestJustification_TwoThirdsBoundary(t *testing.T) {
	spec := testSpec(t)

	justifiedWith := func(t *testing.T, committees int) bool {
		t.Helper()
		// Last slot of epoch 2: the point epoch processing judges epoch 1
		// as the previous epoch.
		state := advance(t, spec, genesisState(t, 16), types.Slot(3*spec.Cfg.SlotsPerEpoch-1))

		boundary, err := spec.GetBlockRoot(state, 1)
		if err != nil {
			t.Fatalf("boundary root: %v", err)
		}
		// One two-member committee per slot in the previous epoch; each
		// fully attesting committee adds 2/16 of the stake.
		start := spec.ComputeStartSlotAtEpoch(1)
		for c := 0; c < committees; c++ {
			slot := start + types.Slot(c)
			committee, err := spec.GetBeaconCommittee(state, slot, 0)
			if err != nil {
				t.Fatalf("committee: %v", err)
			}
			bits := bitfield.NewBitlist(uint64(len(committee)))
			for i := range committee {
				bits.SetBitAt(uint64(i), true)
			}
			state.AppendPreviousEpochAttestation(types.PendingAttestation{
				AggregationBits: bits,
				Data: types.AttestationData{
					Slot:   slot,
					Target: types.Checkpoint{Epoch: 1, Root: boundary},
					Source: state.PreviousJustifiedCheckpoint,
				},
				InclusionDelay: 1,
			})
		}

		if err := spec.ProcessJustificationAndFinalization(state); err != nil {
			t.Fatalf("justification: %v", err)
		}
		return state.CurrentJustifiedCheckpoint.Epoch == 1
	}

	// 6 committees = 12/16 of stake >= 2/3: justified.
	if !justifiedWith(t, 6) {
		t.Error("12/16 attesting stake should justify")
	}
	// 5 committees = 10/16 of stake < 2/3: not justified.
	if justifiedWith(t, 5) {
		t.Error("10/16 attesting stake must not justify")
	}
}

func TestFinalUpdates_RotatesRingsAndAccumulators(t *testing.T) {
	spec := testSpec(t)
	state := advance(t, spec, genesisState(t, 16), types.Slot(spec.Cfg.SlotsPerEpoch-1))

	state.AppendCurrentEpochAttestation(types.PendingAttestation{
		AggregationBits: bitfield.NewBitlist(2),
		Data:            types.AttestationData{Slot: 1},
		InclusionDelay:  1,
	})
	if err := spec.ProcessFinalUpdates(state); err != nil {
		t.Fatalf("final updates: %v", err)
	}

	if len(state.CurrentEpochAttestations) != 0 {
		t.Fatal("current accumulator not cleared")
	}
	if len(state.PreviousEpochAttestations) != 1 {
		t.Fatal("attestations not rotated to previous")
	}

	next := uint64(spec.CurrentEpoch(state)) + 1
	mix := state.RandaoMixes[next%spec.Cfg.EpochsPerHistoricalVector]
	if types.IsZeroRoot(mix) {
		t.Fatal("next epoch RANDAO slot not seeded")
	}
}

func TestEffectiveBalanceHysteresis(t *testing.T) {
	spec := testSpec(t)
	state := genesisState(t, 8)

	inc := types.Gwei(spec.Cfg.EffectiveBalanceIncrement)
	// Balance slipping below effective triggers a requantize.
	state.SetBalance(0, state.Validators[0].EffectiveBalance-1)
	// A small overshoot stays inside the hysteresis band.
	state.SetBalance(1, state.Validators[1].EffectiveBalance+inc)

	if err := spec.ProcessFinalUpdates(state); err != nil {
		t.Fatalf("final updates: %v", err)
	}

	if state.Validators[0].EffectiveBalance >= types.Gwei(spec.Cfg.MaxEffectiveBalance) {
		t.Fatal("dropped balance should reduce the effective balance")
	}
	if state.Validators[1].EffectiveBalance != types.Gwei(spec.Cfg.MaxEffectiveBalance) {
		t.Fatal("in-band balance must keep its effective balance")
	}
}

func TestRegistryUpdates_EjectsDrainedValidator(t *testing.T) {
	spec := testSpec(t)
	state := genesisState(t, 16)

	state.UpdateValidatorAtIndex(4, func(v *types.Validator) {
		v.EffectiveBalance = types.Gwei(spec.Cfg.EjectionBalance)
	})
	if err := spec.ProcessRegistryUpdates(state); err != nil {
		t.Fatalf("registry updates: %v", err)
	}
	if state.Validators[4].ExitEpoch == types.FarFutureEpoch {
		t.Fatal("drained validator not scheduled for ejection")
	}
}

func totalBalance(state *types.BeaconState) types.Gwei {
	var sum types.Gwei
	for _, b := range state.Balances {
		sum += b
	}
	return sum
}
