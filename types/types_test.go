package types

import (
	"bytes"
	"testing"

	"github.com/geanlabs/beacon/ssz"
	"github.com/prysmaticlabs/go-bitfield"
)

func sampleAttestation() *Attestation {
	bits := bitfield.NewBitlist(4)
	bits.SetBitAt(1, true)
	bits.SetBitAt(2, true)
	att := &Attestation{
		AggregationBits: bits,
		Data: AttestationData{
			Slot:            9,
			Index:           1,
			BeaconBlockRoot: Root{0x01},
			Source:          Checkpoint{Epoch: 0, Root: Root{0x02}},
			Target:          Checkpoint{Epoch: 1, Root: Root{0x03}},
		},
	}
	for i := range att.Signature {
		att.Signature[i] = byte(i)
	}
	return att
}

func TestAttestation_RoundTrip(t *testing.T) {
	att := sampleAttestation()
	encoded, err := att.MarshalSSZ()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Attestation
	if err := decoded.UnmarshalSSZ(encoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Data != att.Data {
		t.Fatalf("data mismatch: %+v vs %+v", decoded.Data, att.Data)
	}
	if !bytes.Equal(decoded.AggregationBits, att.AggregationBits) {
		t.Fatal("aggregation bits mismatch")
	}
	if decoded.Signature != att.Signature {
		t.Fatal("signature mismatch")
	}
}

func TestBlock_RoundTripWithOperations(t *testing.T) {
	header := BeaconBlockHeader{Slot: 3, ParentRoot: Root{0xaa}, BodyRoot: Root{0xbb}}
	block := &BeaconBlock{
		Slot:       4,
		ParentRoot: Root{0x11},
		StateRoot:  Root{0x22},
		Body: BeaconBlockBody{
			Eth1Data: Eth1Data{DepositRoot: Root{0x33}, DepositCount: 7, BlockHash: Root{0x44}},
			ProposerSlashings: []ProposerSlashing{
				{ProposerIndex: 2, Header1: header, Header2: BeaconBlockHeader{Slot: 3, BodyRoot: Root{0xcc}}},
			},
			AttesterSlashings: []AttesterSlashing{
				{
					Attestation1: IndexedAttestation{AttestingIndices: []ValidatorIndex{1, 2}, Data: sampleAttestation().Data},
					Attestation2: IndexedAttestation{AttestingIndices: []ValidatorIndex{2, 3}, Data: sampleAttestation().Data},
				},
			},
			Attestations:   []Attestation{*sampleAttestation()},
			VoluntaryExits: []VoluntaryExit{{Epoch: 1, ValidatorIndex: 5}},
		},
	}

	encoded, err := block.MarshalSSZ()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(encoded) != block.SizeSSZ() {
		t.Fatalf("SizeSSZ %d != encoded length %d", block.SizeSSZ(), len(encoded))
	}

	var decoded BeaconBlock
	if err := decoded.UnmarshalSSZ(encoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	reencoded, err := decoded.MarshalSSZ()
	if err != nil {
		t.Fatalf("re-marshal: %v", err)
	}
	if !bytes.Equal(encoded, reencoded) {
		t.Fatal("decode/encode is not a fixed point")
	}
	if decoded.Slot != block.Slot || decoded.ParentRoot != block.ParentRoot {
		t.Fatal("header fields mismatch")
	}
	if len(decoded.Body.ProposerSlashings) != 1 || len(decoded.Body.AttesterSlashings) != 1 ||
		len(decoded.Body.Attestations) != 1 || len(decoded.Body.VoluntaryExits) != 1 {
		t.Fatal("operation counts mismatch")
	}
}

func TestSigningRoot_DropsTrailingSignature(t *testing.T) {
	header := &BeaconBlockHeader{
		Slot:       12,
		ParentRoot: Root{0x01},
		StateRoot:  Root{0x02},
		BodyRoot:   Root{0x03},
	}
	for i := range header.Signature {
		header.Signature[i] = 0xee
	}

	got, err := header.SigningRoot()
	if err != nil {
		t.Fatalf("signing root: %v", err)
	}

	// The prefix-of-fields hash computed by hand over the four fields.
	h := ssz.NewHasher()
	idx := h.Index()
	h.AppendUint64(12)
	h.AppendRoot(header.ParentRoot)
	h.AppendRoot(header.StateRoot)
	h.AppendRoot(header.BodyRoot)
	h.Merkleize(idx)
	want := h.Root()

	if got != want {
		t.Fatalf("signing root should elide the signature: %x vs %x", got, want)
	}

	// The signature must not influence the signing root.
	unsigned := *header
	unsigned.Signature = Bytes96{}
	unsignedRoot, _ := unsigned.SigningRoot()
	if unsignedRoot != got {
		t.Fatal("signature leaked into signing root")
	}

	full, _ := header.HashTreeRoot()
	if full == got {
		t.Fatal("full root should differ from signing root")
	}
}

func TestBlockAndHeaderSigningRootsAgree(t *testing.T) {
	block := &BeaconBlock{Slot: 5, ParentRoot: Root{0x09}, StateRoot: Root{0x0a}}
	header, err := block.Header()
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	blockRoot, _ := block.SigningRoot()
	headerRoot, _ := header.SigningRoot()
	if blockRoot != headerRoot {
		t.Fatalf("block and header signing roots must agree: %x vs %x", blockRoot, headerRoot)
	}
}

func TestState_RoundTrip(t *testing.T) {
	state := testState(8)
	state.HistoricalRoots = []Root{{0x77}}
	state.Eth1DataVotes = []Eth1Data{{DepositCount: 3}}
	state.CurrentEpochAttestations = []PendingAttestation{
		{
			AggregationBits: bitfield.NewBitlist(2),
			Data:            sampleAttestation().Data,
			InclusionDelay:  1,
			ProposerIndex:   4,
		},
	}

	encoded, err := state.MarshalSSZ()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(encoded) != state.SizeSSZ() {
		t.Fatalf("SizeSSZ %d != encoded length %d", state.SizeSSZ(), len(encoded))
	}

	var decoded BeaconState
	sizes := RingSizes{
		SlotsPerHistoricalRoot:    uint64(len(state.BlockRoots)),
		EpochsPerHistoricalVector: uint64(len(state.RandaoMixes)),
		EpochsPerSlashingsVector:  uint64(len(state.Slashings)),
	}
	if err := decoded.UnmarshalSSZWith(sizes, encoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	reencoded, err := decoded.MarshalSSZ()
	if err != nil {
		t.Fatalf("re-marshal: %v", err)
	}
	if !bytes.Equal(encoded, reencoded) {
		t.Fatal("state decode/encode is not a fixed point")
	}

	r1, err := state.HashTreeRoot()
	if err != nil {
		t.Fatalf("hash original: %v", err)
	}
	r2, err := decoded.HashTreeRoot()
	if err != nil {
		t.Fatalf("hash decoded: %v", err)
	}
	if r1 != r2 {
		t.Fatal("round trip changed the state root")
	}
}

func TestState_IncrementalMatchesFull(t *testing.T) {
	state := testState(16)
	state.EnableHashCache()

	full := testState(16)

	r1, err := state.HashTreeRoot()
	if err != nil {
		t.Fatalf("cached hash: %v", err)
	}
	r2, err := full.HashTreeRoot()
	if err != nil {
		t.Fatalf("full hash: %v", err)
	}
	if r1 != r2 {
		t.Fatal("cached and full state roots differ")
	}

	// A batch of mutations through the setters.
	state.SetSlot(9)
	full.Slot = 9
	state.SetBalance(3, 777)
	full.Balances[3] = 777
	state.UpdateValidatorAtIndex(5, func(v *Validator) { v.Slashed = true })
	full.Validators[5].Slashed = true
	state.SetRandaoMixAtIndex(2, Root{0x99})
	full.RandaoMixes[2] = Root{0x99}
	state.AppendValidator(Validator{EffectiveBalance: 1}, 1)
	full.Validators = append(full.Validators, Validator{EffectiveBalance: 1})
	full.Balances = append(full.Balances, 1)

	r1, err = state.HashTreeRoot()
	if err != nil {
		t.Fatalf("cached hash: %v", err)
	}
	r2, err = full.HashTreeRoot()
	if err != nil {
		t.Fatalf("full hash: %v", err)
	}
	if r1 != r2 {
		t.Fatal("cached root diverged from full recomputation after mutations")
	}
}

func TestState_CopyForksCache(t *testing.T) {
	state := testState(8)
	state.EnableHashCache()
	r0, _ := state.HashTreeRoot()

	cp := state.Copy()
	cp.SetBalance(0, 1)

	r1, _ := cp.HashTreeRoot()
	if r1 == r0 {
		t.Fatal("copy mutation should change the copy's root")
	}
	r2, _ := state.HashTreeRoot()
	if r2 != r0 {
		t.Fatal("copy mutation must not disturb the original")
	}
}

// testState builds a small self-consistent state without the consensus
// package (kept independent to avoid an import cycle in tests).
func testState(validators int) *BeaconState {
	state := &BeaconState{
		GenesisTime:       1000,
		Slot:              5,
		Fork:              Fork{CurrentVersion: Bytes4{0, 0, 0, 1}},
		LatestBlockHeader: BeaconBlockHeader{Slot: 4, BodyRoot: Root{0x05}},
		BlockRoots:        make([]Root, 64),
		StateRoots:        make([]Root, 64),
		Eth1Data:          Eth1Data{DepositCount: uint64(validators)},
		Eth1DepositIndex:  uint64(validators),
		RandaoMixes:       make([]Root, 64),
		Slashings:         make([]Gwei, 64),
		JustificationBits: bitfield.Bitvector4{0},
	}
	for i := 0; i < validators; i++ {
		var pk Bytes48
		pk[0] = byte(i + 1)
		state.Validators = append(state.Validators, Validator{
			Pubkey:                     pk,
			EffectiveBalance:           32000000000,
			ActivationEligibilityEpoch: 0,
			ActivationEpoch:            0,
			ExitEpoch:                  FarFutureEpoch,
			WithdrawableEpoch:          FarFutureEpoch,
		})
		state.Balances = append(state.Balances, 32000000000)
	}
	return state
}
