package consensus

import (
	"testing"

	"github.com/geanlabs/beacon/params"
	"github.com/geanlabs/beacon/ssz"
	"github.com/geanlabs/beacon/types"
)

func testSpec(t *testing.T) *Spec {
	t.Helper()
	return NewSpec(params.Minimal())
}

func genesisState(t *testing.T, validators uint64) *types.BeaconState {
	t.Helper()
	spec := testSpec(t)
	var eth1Hash types.Root
	for i := range eth1Hash {
		eth1Hash[i] = 0x42
	}
	state, err := spec.InteropGenesisState(0, eth1Hash, validators)
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return state
}

func TestIntegerSqrt(t *testing.T) {
	cases := []struct{ in, out uint64 }{
		{0, 0}, {1, 1}, {2, 1}, {3, 1}, {4, 2}, {8, 2}, {9, 3},
		{15, 3}, {16, 4}, {1 << 40, 1 << 20}, {(1 << 40) - 1, (1 << 20) - 1},
	}
	for _, c := range cases {
		if got := IntegerSqrt(c.in); got != c.out {
			t.Errorf("IntegerSqrt(%d) = %d, want %d", c.in, got, c.out)
		}
	}
}

func TestComputeEpochAtSlot(t *testing.T) {
	spec := testSpec(t)
	if spec.ComputeEpochAtSlot(0) != 0 {
		t.Error("slot 0 should be epoch 0")
	}
	if spec.ComputeEpochAtSlot(types.Slot(spec.Cfg.SlotsPerEpoch)) != 1 {
		t.Error("first slot of epoch 1 miscomputed")
	}
	if spec.ComputeEpochAtSlot(types.Slot(spec.Cfg.SlotsPerEpoch-1)) != 0 {
		t.Error("last slot of epoch 0 miscomputed")
	}
}

func TestShuffledIndex_IsPermutation(t *testing.T) {
	spec := testSpec(t)
	seed := ssz.Hash([]byte("shuffle seed"))

	const n = 37
	seen := make(map[uint64]bool, n)
	for i := uint64(0); i < n; i++ {
		out, err := spec.ComputeShuffledIndex(i, n, seed)
		if err != nil {
			t.Fatalf("shuffle %d: %v", i, err)
		}
		if out >= n {
			t.Fatalf("shuffled index %d out of range", out)
		}
		if seen[out] {
			t.Fatalf("shuffle repeated output %d", out)
		}
		seen[out] = true
	}
}

func TestShuffledIndex_Deterministic(t *testing.T) {
	spec := testSpec(t)
	seed := ssz.Hash([]byte("determinism"))
	for i := uint64(0); i < 16; i++ {
		a, err := spec.ComputeShuffledIndex(i, 16, seed)
		if err != nil {
			t.Fatalf("shuffle: %v", err)
		}
		b, _ := spec.ComputeShuffledIndex(i, 16, seed)
		if a != b {
			t.Fatalf("shuffle of %d not deterministic", i)
		}
	}
}

func TestShuffledIndex_SingleElement(t *testing.T) {
	spec := testSpec(t)
	seed := ssz.Hash([]byte("n=1"))
	out, err := spec.ComputeShuffledIndex(0, 1, seed)
	if err != nil {
		t.Fatalf("shuffle: %v", err)
	}
	if out != 0 {
		t.Fatalf("n=1 shuffle must be identity, got %d", out)
	}
	if _, err := spec.ComputeShuffledIndex(1, 1, seed); err == nil {
		t.Fatal("out-of-range index should fail")
	}
}

func TestBeaconCommittee_Disjointness(t *testing.T) {
	spec := testSpec(t)
	state := genesisState(t, 16)

	epochStart := spec.ComputeStartSlotAtEpoch(0)
	seen := make(map[types.ValidatorIndex]bool)
	total := 0
	for s := uint64(0); s < spec.Cfg.SlotsPerEpoch; s++ {
		slot := epochStart + types.Slot(s)
		committees := spec.GetCommitteeCountAtSlot(state, slot)
		for idx := uint64(0); idx < committees; idx++ {
			committee, err := spec.GetBeaconCommittee(state, slot, types.CommitteeIndex(idx))
			if err != nil {
				t.Fatalf("committee (%d,%d): %v", slot, idx, err)
			}
			for _, member := range committee {
				if seen[member] {
					t.Fatalf("validator %d in two committees", member)
				}
				seen[member] = true
				total++
			}
		}
	}
	if total != 16 {
		t.Fatalf("committees covered %d validators, want 16", total)
	}
}

func TestGetRandaoMix_Bounds(t *testing.T) {
	spec := testSpec(t)
	state := genesisState(t, 8)

	if _, err := spec.GetRandaoMix(state, 0); err != nil {
		t.Fatalf("current epoch mix should be available: %v", err)
	}
	if _, err := spec.GetRandaoMix(state, 5); err == nil {
		t.Fatal("future epoch mix should fail")
	}
}

func TestGetDomain_CombinesKindAndVersion(t *testing.T) {
	spec := testSpec(t)
	state := genesisState(t, 8)
	state.Fork = types.Fork{
		PreviousVersion: types.Bytes4{0, 0, 0, 1},
		CurrentVersion:  types.Bytes4{0, 0, 0, 2},
		Epoch:           10,
	}

	before := spec.GetDomain(state, params.DomainRandao, 5)
	after := spec.GetDomain(state, params.DomainRandao, 10)
	if before == after {
		t.Fatal("domains across the fork boundary should differ")
	}
	if before[0] != params.DomainRandao[0] {
		t.Fatal("domain should start with the kind tag")
	}
	if before[7] != 1 || after[7] != 2 {
		t.Fatal("domain should end with the fork version")
	}
}

func TestChurnLimit(t *testing.T) {
	spec := testSpec(t)
	state := genesisState(t, 16)
	if got := spec.GetValidatorChurnLimit(state); got != spec.Cfg.MinPerEpochChurnLimit {
		t.Fatalf("small registry churn = %d, want the floor %d", got, spec.Cfg.MinPerEpochChurnLimit)
	}
}

func TestSlashableAttestationData(t *testing.T) {
	base := types.AttestationData{
		Slot:   8,
		Target: types.Checkpoint{Epoch: 1},
		Source: types.Checkpoint{Epoch: 0},
	}

	double := base
	double.BeaconBlockRoot = types.Root{0xff}
	if !IsSlashableAttestationData(&base, &double) {
		t.Error("double vote not detected")
	}

	surrounding := types.AttestationData{
		Source: types.Checkpoint{Epoch: 0},
		Target: types.Checkpoint{Epoch: 4},
	}
	surrounded := types.AttestationData{
		Source: types.Checkpoint{Epoch: 1},
		Target: types.Checkpoint{Epoch: 3},
	}
	if !IsSlashableAttestationData(&surrounding, &surrounded) {
		t.Error("surround vote not detected")
	}
	if IsSlashableAttestationData(&surrounded, &surrounding) {
		t.Error("reverse surround should not be slashable")
	}
	if IsSlashableAttestationData(&base, &base) {
		t.Error("identical data is not slashable")
	}
}

func TestMerkleBranch(t *testing.T) {
	leafA := ssz.Hash([]byte("a"))
	leafB := ssz.Hash([]byte("b"))
	root := hashConcat(leafA[:], leafB[:])

	if !IsValidMerkleBranch(leafA, []types.Root{leafB}, 1, 0, root) {
		t.Error("left leaf branch should verify")
	}
	if !IsValidMerkleBranch(leafB, []types.Root{leafA}, 1, 1, root) {
		t.Error("right leaf branch should verify")
	}
	if IsValidMerkleBranch(leafA, []types.Root{leafB}, 1, 1, root) {
		t.Error("wrong index should fail")
	}
}
