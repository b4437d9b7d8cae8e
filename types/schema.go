package types

import "github.com/geanlabs/beacon/ssz"

// Schema descriptors for every container, registered as data at package
// construction. They record field order, kinds and limits alongside the
// hand-written codec; the encoding, hashing and signing-root methods and
// the incremental state caches do not read them.
var (
	ForkSchema = ssz.TContainer(
		ssz.F("previous_version", ssz.TBytes(4)),
		ssz.F("current_version", ssz.TBytes(4)),
		ssz.F("epoch", ssz.TUint64()),
	)

	CheckpointSchema = ssz.TContainer(
		ssz.F("epoch", ssz.TUint64()),
		ssz.F("root", ssz.TBytes(32)),
	)

	ValidatorSchema = ssz.TContainer(
		ssz.F("pubkey", ssz.TBytes(48)),
		ssz.F("withdrawal_credentials", ssz.TBytes(32)),
		ssz.F("effective_balance", ssz.TUint64()),
		ssz.F("slashed", ssz.TBool()),
		ssz.F("activation_eligibility_epoch", ssz.TUint64()),
		ssz.F("activation_epoch", ssz.TUint64()),
		ssz.F("exit_epoch", ssz.TUint64()),
		ssz.F("withdrawable_epoch", ssz.TUint64()),
	)

	AttestationDataSchema = ssz.TContainer(
		ssz.F("slot", ssz.TUint64()),
		ssz.F("index", ssz.TUint64()),
		ssz.F("beacon_block_root", ssz.TBytes(32)),
		ssz.F("source", CheckpointSchema),
		ssz.F("target", CheckpointSchema),
	)

	AttestationSchema = ssz.TContainer(
		ssz.F("aggregation_bits", ssz.TBitlist(MaxValidatorsPerCommittee)),
		ssz.F("data", AttestationDataSchema),
		ssz.F("signature", ssz.TBytes(96)),
	)

	PendingAttestationSchema = ssz.TContainer(
		ssz.F("aggregation_bits", ssz.TBitlist(MaxValidatorsPerCommittee)),
		ssz.F("data", AttestationDataSchema),
		ssz.F("inclusion_delay", ssz.TUint64()),
		ssz.F("proposer_index", ssz.TUint64()),
	)

	IndexedAttestationSchema = ssz.TContainer(
		ssz.F("attesting_indices", ssz.TList(ssz.TUint64(), MaxValidatorsPerCommittee)),
		ssz.F("data", AttestationDataSchema),
		ssz.F("signature", ssz.TBytes(96)),
	)

	Eth1DataSchema = ssz.TContainer(
		ssz.F("deposit_root", ssz.TBytes(32)),
		ssz.F("deposit_count", ssz.TUint64()),
		ssz.F("block_hash", ssz.TBytes(32)),
	)

	DepositDataSchema = ssz.TContainer(
		ssz.F("pubkey", ssz.TBytes(48)),
		ssz.F("withdrawal_credentials", ssz.TBytes(32)),
		ssz.F("amount", ssz.TUint64()),
		ssz.F("signature", ssz.TBytes(96)),
	)

	DepositSchema = ssz.TContainer(
		ssz.F("proof", ssz.TVector(ssz.TBytes(32), DepositProofLength)),
		ssz.F("data", DepositDataSchema),
	)

	BeaconBlockHeaderSchema = ssz.TContainer(
		ssz.F("slot", ssz.TUint64()),
		ssz.F("parent_root", ssz.TBytes(32)),
		ssz.F("state_root", ssz.TBytes(32)),
		ssz.F("body_root", ssz.TBytes(32)),
		ssz.F("signature", ssz.TBytes(96)),
	)

	ProposerSlashingSchema = ssz.TContainer(
		ssz.F("proposer_index", ssz.TUint64()),
		ssz.F("header_1", BeaconBlockHeaderSchema),
		ssz.F("header_2", BeaconBlockHeaderSchema),
	)

	AttesterSlashingSchema = ssz.TContainer(
		ssz.F("attestation_1", IndexedAttestationSchema),
		ssz.F("attestation_2", IndexedAttestationSchema),
	)

	VoluntaryExitSchema = ssz.TContainer(
		ssz.F("epoch", ssz.TUint64()),
		ssz.F("validator_index", ssz.TUint64()),
		ssz.F("signature", ssz.TBytes(96)),
	)

	BeaconBlockBodySchema = ssz.TContainer(
		ssz.F("randao_reveal", ssz.TBytes(96)),
		ssz.F("eth1_data", Eth1DataSchema),
		ssz.F("proposer_slashings", ssz.TList(ProposerSlashingSchema, MaxProposerSlashings)),
		ssz.F("attester_slashings", ssz.TList(AttesterSlashingSchema, MaxAttesterSlashings)),
		ssz.F("attestations", ssz.TList(AttestationSchema, MaxAttestations)),
		ssz.F("deposits", ssz.TList(DepositSchema, MaxDeposits)),
		ssz.F("voluntary_exits", ssz.TList(VoluntaryExitSchema, MaxVoluntaryExits)),
	)

	BeaconBlockSchema = ssz.TContainer(
		ssz.F("slot", ssz.TUint64()),
		ssz.F("parent_root", ssz.TBytes(32)),
		ssz.F("state_root", ssz.TBytes(32)),
		ssz.F("body", BeaconBlockBodySchema),
		ssz.F("signature", ssz.TBytes(96)),
	)

	BeaconStateSchema = ssz.TContainer(
		ssz.F("genesis_time", ssz.TUint64()),
		ssz.F("slot", ssz.TUint64()),
		ssz.F("fork", ForkSchema),
		ssz.F("latest_block_header", BeaconBlockHeaderSchema),
		ssz.F("block_roots", ssz.TVector(ssz.TBytes(32), 0)),
		ssz.F("state_roots", ssz.TVector(ssz.TBytes(32), 0)),
		ssz.F("historical_roots", ssz.TList(ssz.TBytes(32), HistoricalRootsLimit)),
		ssz.F("eth1_data", Eth1DataSchema),
		ssz.F("eth1_data_votes", ssz.TList(Eth1DataSchema, Eth1DataVotesLimit)),
		ssz.F("eth1_deposit_index", ssz.TUint64()),
		ssz.F("validators", ssz.TList(ValidatorSchema, ValidatorRegistryLimit)),
		ssz.F("balances", ssz.TList(ssz.TUint64(), ValidatorRegistryLimit)),
		ssz.F("randao_mixes", ssz.TVector(ssz.TBytes(32), 0)),
		ssz.F("slashings", ssz.TVector(ssz.TUint64(), 0)),
		ssz.F("previous_epoch_attestations", ssz.TList(PendingAttestationSchema, EpochAttestationsLimit)),
		ssz.F("current_epoch_attestations", ssz.TList(PendingAttestationSchema, EpochAttestationsLimit)),
		ssz.F("justification_bits", ssz.TBitvector(4)),
		ssz.F("previous_justified_checkpoint", CheckpointSchema),
		ssz.F("current_justified_checkpoint", CheckpointSchema),
		ssz.F("finalized_checkpoint", CheckpointSchema),
	)
)

// State field positions, used by the incremental cache to mark dirty
// top-level leaves. Order follows BeaconStateSchema.
const (
	stateFieldGenesisTime = iota
	stateFieldSlot
	stateFieldFork
	stateFieldLatestBlockHeader
	stateFieldBlockRoots
	stateFieldStateRoots
	stateFieldHistoricalRoots
	stateFieldEth1Data
	stateFieldEth1DataVotes
	stateFieldEth1DepositIndex
	stateFieldValidators
	stateFieldBalances
	stateFieldRandaoMixes
	stateFieldSlashings
	stateFieldPrevAttestations
	stateFieldCurrAttestations
	stateFieldJustificationBits
	stateFieldPrevJustified
	stateFieldCurrJustified
	stateFieldFinalized
	stateFieldCount
)
