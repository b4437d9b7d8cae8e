package types

import (
	"github.com/prysmaticlabs/go-bitfield"
)

// Fork carries the version pair a network transitions between.
type Fork struct {
	PreviousVersion Bytes4
	CurrentVersion  Bytes4
	Epoch           Epoch
}

// Checkpoint marks a potentially canonical epoch boundary. A zero root
// denotes genesis or an unknown boundary block.
type Checkpoint struct {
	Epoch Epoch
	Root  Root
}

// Validator is one registry entry. Entries are append-only; only the
// effective balance, the slashed flag and the epoch fields mutate during
// the state transition.
type Validator struct {
	Pubkey                     Bytes48
	WithdrawalCredentials      Root
	EffectiveBalance           Gwei
	Slashed                    bool
	ActivationEligibilityEpoch Epoch
	ActivationEpoch            Epoch
	ExitEpoch                  Epoch
	WithdrawableEpoch          Epoch
}

// IsActiveAt reports whether the validator is in the active set at epoch.
func (v *Validator) IsActiveAt(epoch Epoch) bool {
	return v.ActivationEpoch <= epoch && epoch < v.ExitEpoch
}

// AttestationData is the vote content shared by every attester of a
// committee.
type AttestationData struct {
	Slot            Slot
	Index           CommitteeIndex
	BeaconBlockRoot Root
	Source          Checkpoint
	Target          Checkpoint
}

// Attestation aggregates committee signatures over one AttestationData.
// Set bits of AggregationBits identify the participating committee members.
type Attestation struct {
	AggregationBits bitfield.Bitlist
	Data            AttestationData
	Signature       Bytes96
}

// PendingAttestation is an on-chain attestation record kept until epoch
// processing consumes it.
type PendingAttestation struct {
	AggregationBits bitfield.Bitlist
	Data            AttestationData
	InclusionDelay  Slot
	ProposerIndex   ValidatorIndex
}

// IndexedAttestation lists the attesting validators explicitly, sorted
// ascending.
type IndexedAttestation struct {
	AttestingIndices []ValidatorIndex
	Data             AttestationData
	Signature        Bytes96
}

// Eth1Data is a vote for the external chain's deposit tree snapshot.
type Eth1Data struct {
	DepositRoot  Root
	DepositCount uint64
	BlockHash    Root
}

// DepositData is the content a depositor signs.
type DepositData struct {
	Pubkey                Bytes48
	WithdrawalCredentials Root
	Amount                Gwei
	Signature             Bytes96
}

// Deposit pairs deposit data with its Merkle branch into the eth1 deposit
// tree rooted at the state's deposit root.
type Deposit struct {
	Proof [DepositProofLength]Root
	Data  DepositData
}

// BeaconBlockHeader summarizes a block without its body. The trailing
// signature is elided from the signing root.
type BeaconBlockHeader struct {
	Slot       Slot
	ParentRoot Root
	StateRoot  Root
	BodyRoot   Root
	Signature  Bytes96
}

// ProposerSlashing evidences two conflicting headers by one proposer at
// one slot.
type ProposerSlashing struct {
	ProposerIndex ValidatorIndex
	Header1       BeaconBlockHeader
	Header2       BeaconBlockHeader
}

// AttesterSlashing evidences a double or surround vote.
type AttesterSlashing struct {
	Attestation1 IndexedAttestation
	Attestation2 IndexedAttestation
}

// VoluntaryExit is a validator's signed request to leave the active set.
type VoluntaryExit struct {
	Epoch          Epoch
	ValidatorIndex ValidatorIndex
	Signature      Bytes96
}

// BeaconBlockBody carries the operations a block commits to.
type BeaconBlockBody struct {
	RandaoReveal      Bytes96
	Eth1Data          Eth1Data
	ProposerSlashings []ProposerSlashing
	AttesterSlashings []AttesterSlashing
	Attestations      []Attestation
	Deposits          []Deposit
	VoluntaryExits    []VoluntaryExit
}

// BeaconBlock is immutable after construction. The trailing signature is
// elided from the signing root.
type BeaconBlock struct {
	Slot       Slot
	ParentRoot Root
	StateRoot  Root
	Body       BeaconBlockBody
	Signature  Bytes96
}

// Header returns the block's header with the body collapsed to its root.
func (b *BeaconBlock) Header() (BeaconBlockHeader, error) {
	bodyRoot, err := b.Body.HashTreeRoot()
	if err != nil {
		return BeaconBlockHeader{}, err
	}
	return BeaconBlockHeader{
		Slot:       b.Slot,
		ParentRoot: b.ParentRoot,
		StateRoot:  b.StateRoot,
		BodyRoot:   bodyRoot,
		Signature:  b.Signature,
	}, nil
}
