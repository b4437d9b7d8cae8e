package types

import (
	"github.com/geanlabs/beacon/ssz"
	"github.com/prysmaticlabs/go-bitfield"
)

// BeaconState is the central aggregate of the chain. Fields are exported in
// declaration order of BeaconStateSchema; mutation must go through the
// setters below so the incremental hash cache stays coherent. A state
// produced by Copy shares no mutable structure with its parent.
type BeaconState struct {
	GenesisTime       uint64
	Slot              Slot
	Fork              Fork
	LatestBlockHeader BeaconBlockHeader

	BlockRoots      []Root
	StateRoots      []Root
	HistoricalRoots []Root

	Eth1Data         Eth1Data
	Eth1DataVotes    []Eth1Data
	Eth1DepositIndex uint64

	Validators []Validator
	Balances   []Gwei

	RandaoMixes []Root
	Slashings   []Gwei

	PreviousEpochAttestations []PendingAttestation
	CurrentEpochAttestations  []PendingAttestation

	JustificationBits           bitfield.Bitvector4
	PreviousJustifiedCheckpoint Checkpoint
	CurrentJustifiedCheckpoint  Checkpoint
	FinalizedCheckpoint         Checkpoint

	hc *stateCaches
}

// stateCaches holds the incremental merkle caches: one over the top-level
// field roots and one per heavy leaf collection.
type stateCaches struct {
	top        *ssz.Cache
	validators *ssz.Cache
	balances   *ssz.Cache
	blockRoots *ssz.Cache
	stateRoots *ssz.Cache
	randao     *ssz.Cache
	slashings  *ssz.Cache
}

func (c *stateCaches) fork() *stateCaches {
	return &stateCaches{
		top:        c.top.Fork(),
		validators: c.validators.Fork(),
		balances:   c.balances.Fork(),
		blockRoots: c.blockRoots.Fork(),
		stateRoots: c.stateRoots.Fork(),
		randao:     c.randao.Fork(),
		slashings:  c.slashings.Fork(),
	}
}

// EnableHashCache attaches incremental merkle caches to the state. Every
// leaf starts dirty, so the first root computation hashes the full tree and
// later ones touch only mutated subtrees.
func (s *BeaconState) EnableHashCache() {
	hc := &stateCaches{
		top:        ssz.NewCache(stateFieldCount, false),
		validators: ssz.NewCache(ValidatorRegistryLimit, true),
		balances:   ssz.NewCache(ValidatorRegistryLimit/4, true),
		blockRoots: ssz.NewCache(uint64(len(s.BlockRoots)), false),
		stateRoots: ssz.NewCache(uint64(len(s.StateRoots)), false),
		randao:     ssz.NewCache(uint64(len(s.RandaoMixes)), false),
		slashings:  ssz.NewCache(uint64((len(s.Slashings)+3)/4), false),
	}
	// Resizing from empty marks every leaf dirty.
	hc.top.Resize(stateFieldCount)
	hc.validators.Resize(len(s.Validators))
	hc.balances.Resize((len(s.Balances) + 3) / 4)
	hc.blockRoots.Resize(len(s.BlockRoots))
	hc.stateRoots.Resize(len(s.StateRoots))
	hc.randao.Resize(len(s.RandaoMixes))
	hc.slashings.Resize((len(s.Slashings) + 3) / 4)
	s.hc = hc
}

// HasHashCache reports whether the incremental hasher is attached.
func (s *BeaconState) HasHashCache() bool { return s.hc != nil }

// Copy returns a deep copy. The hash cache is forked: the copy starts from
// the same final root and diverges independently under mutation.
func (s *BeaconState) Copy() *BeaconState {
	cp := *s
	cp.BlockRoots = append([]Root{}, s.BlockRoots...)
	cp.StateRoots = append([]Root{}, s.StateRoots...)
	cp.HistoricalRoots = append([]Root{}, s.HistoricalRoots...)
	cp.Eth1DataVotes = append([]Eth1Data{}, s.Eth1DataVotes...)
	cp.Validators = append([]Validator{}, s.Validators...)
	cp.Balances = append([]Gwei{}, s.Balances...)
	cp.RandaoMixes = append([]Root{}, s.RandaoMixes...)
	cp.Slashings = append([]Gwei{}, s.Slashings...)
	cp.PreviousEpochAttestations = copyPending(s.PreviousEpochAttestations)
	cp.CurrentEpochAttestations = copyPending(s.CurrentEpochAttestations)
	cp.JustificationBits = bitfield.Bitvector4(append([]byte{}, s.JustificationBits...))
	if s.hc != nil {
		cp.hc = s.hc.fork()
	}
	return &cp
}

func copyPending(atts []PendingAttestation) []PendingAttestation {
	cp := make([]PendingAttestation, len(atts))
	for i := range atts {
		cp[i] = atts[i]
		cp[i].AggregationBits = bitfield.Bitlist(append([]byte{}, atts[i].AggregationBits...))
	}
	return cp
}

func (s *BeaconState) markDirty(field int) {
	if s.hc != nil {
		s.hc.top.Invalidate(field)
	}
}

// --- Setters. Each keeps the dirty sets coherent. ---

func (s *BeaconState) SetSlot(slot Slot) {
	s.Slot = slot
	s.markDirty(stateFieldSlot)
}

func (s *BeaconState) SetGenesisTime(t uint64) {
	s.GenesisTime = t
	s.markDirty(stateFieldGenesisTime)
}

func (s *BeaconState) SetFork(f Fork) {
	s.Fork = f
	s.markDirty(stateFieldFork)
}

func (s *BeaconState) SetLatestBlockHeader(h BeaconBlockHeader) {
	s.LatestBlockHeader = h
	s.markDirty(stateFieldLatestBlockHeader)
}

func (s *BeaconState) SetBlockRootAtIndex(i uint64, r Root) {
	s.BlockRoots[i] = r
	if s.hc != nil {
		s.hc.blockRoots.Invalidate(int(i))
	}
	s.markDirty(stateFieldBlockRoots)
}

func (s *BeaconState) SetStateRootAtIndex(i uint64, r Root) {
	s.StateRoots[i] = r
	if s.hc != nil {
		s.hc.stateRoots.Invalidate(int(i))
	}
	s.markDirty(stateFieldStateRoots)
}

func (s *BeaconState) AppendHistoricalRoot(r Root) {
	s.HistoricalRoots = append(s.HistoricalRoots, r)
	s.markDirty(stateFieldHistoricalRoots)
}

func (s *BeaconState) SetEth1Data(e Eth1Data) {
	s.Eth1Data = e
	s.markDirty(stateFieldEth1Data)
}

func (s *BeaconState) AppendEth1DataVote(e Eth1Data) {
	s.Eth1DataVotes = append(s.Eth1DataVotes, e)
	s.markDirty(stateFieldEth1DataVotes)
}

func (s *BeaconState) ResetEth1DataVotes() {
	s.Eth1DataVotes = nil
	s.markDirty(stateFieldEth1DataVotes)
}

func (s *BeaconState) SetEth1DepositIndex(v uint64) {
	s.Eth1DepositIndex = v
	s.markDirty(stateFieldEth1DepositIndex)
}

// AppendValidator adds a registry entry together with its balance slot.
func (s *BeaconState) AppendValidator(v Validator, balance Gwei) {
	s.Validators = append(s.Validators, v)
	s.Balances = append(s.Balances, balance)
	if s.hc != nil {
		s.hc.validators.Resize(len(s.Validators))
		s.hc.balances.Invalidate((len(s.Balances) - 1) / 4)
		s.hc.balances.Resize((len(s.Balances) + 3) / 4)
	}
	s.markDirty(stateFieldValidators)
	s.markDirty(stateFieldBalances)
}

// UpdateValidatorAtIndex applies fn to one registry entry.
func (s *BeaconState) UpdateValidatorAtIndex(i ValidatorIndex, fn func(v *Validator)) {
	fn(&s.Validators[i])
	if s.hc != nil {
		s.hc.validators.Invalidate(int(i))
	}
	s.markDirty(stateFieldValidators)
}

func (s *BeaconState) SetBalance(i ValidatorIndex, b Gwei) {
	s.Balances[i] = b
	if s.hc != nil {
		s.hc.balances.Invalidate(int(i) / 4)
	}
	s.markDirty(stateFieldBalances)
}

func (s *BeaconState) SetRandaoMixAtIndex(i uint64, r Root) {
	s.RandaoMixes[i] = r
	if s.hc != nil {
		s.hc.randao.Invalidate(int(i))
	}
	s.markDirty(stateFieldRandaoMixes)
}

func (s *BeaconState) SetSlashingAtIndex(i uint64, g Gwei) {
	s.Slashings[i] = g
	if s.hc != nil {
		s.hc.slashings.Invalidate(int(i) / 4)
	}
	s.markDirty(stateFieldSlashings)
}

func (s *BeaconState) AppendPreviousEpochAttestation(p PendingAttestation) {
	s.PreviousEpochAttestations = append(s.PreviousEpochAttestations, p)
	s.markDirty(stateFieldPrevAttestations)
}

func (s *BeaconState) AppendCurrentEpochAttestation(p PendingAttestation) {
	s.CurrentEpochAttestations = append(s.CurrentEpochAttestations, p)
	s.markDirty(stateFieldCurrAttestations)
}

// RotateEpochAttestations moves the current-epoch accumulator into the
// previous-epoch slot at the epoch boundary.
func (s *BeaconState) RotateEpochAttestations() {
	s.PreviousEpochAttestations = s.CurrentEpochAttestations
	s.CurrentEpochAttestations = nil
	s.markDirty(stateFieldPrevAttestations)
	s.markDirty(stateFieldCurrAttestations)
}

func (s *BeaconState) SetJustificationBits(bits bitfield.Bitvector4) {
	s.JustificationBits = bits
	s.markDirty(stateFieldJustificationBits)
}

func (s *BeaconState) SetPreviousJustifiedCheckpoint(c Checkpoint) {
	s.PreviousJustifiedCheckpoint = c
	s.markDirty(stateFieldPrevJustified)
}

func (s *BeaconState) SetCurrentJustifiedCheckpoint(c Checkpoint) {
	s.CurrentJustifiedCheckpoint = c
	s.markDirty(stateFieldCurrJustified)
}

func (s *BeaconState) SetFinalizedCheckpoint(c Checkpoint) {
	s.FinalizedCheckpoint = c
	s.markDirty(stateFieldFinalized)
}
