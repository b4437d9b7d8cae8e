// Package params holds the spec constants that parameterise the consensus
// functions. Constants are carried as a plain record so helpers stay free of
// globals and tests can run against the minimal preset.
package params

// DomainType is a 4-byte signature domain tag.
type DomainType [4]byte

// Signature domains.
var (
	DomainBeaconProposer = DomainType{0x00, 0x00, 0x00, 0x00}
	DomainBeaconAttester = DomainType{0x01, 0x00, 0x00, 0x00}
	DomainRandao         = DomainType{0x02, 0x00, 0x00, 0x00}
	DomainDeposit        = DomainType{0x03, 0x00, 0x00, 0x00}
	DomainVoluntaryExit  = DomainType{0x04, 0x00, 0x00, 0x00}
)

// FarFutureEpoch is the sentinel value for unset validator epoch fields.
const FarFutureEpoch = ^uint64(0)

// BLSWithdrawalPrefix tags withdrawal credentials derived from a BLS key.
const BLSWithdrawalPrefix byte = 0x00

// SpecConfig is the full set of chain constants. Values differ per network;
// the field surface is fixed.
type SpecConfig struct {
	// Time
	SecondsPerSlot uint64 `yaml:"SECONDS_PER_SLOT"`
	SlotsPerEpoch  uint64 `yaml:"SLOTS_PER_EPOCH"`
	GenesisSlot    uint64 `yaml:"GENESIS_SLOT"`
	GenesisEpoch   uint64 `yaml:"GENESIS_EPOCH"`

	// State list lengths
	SlotsPerHistoricalRoot    uint64 `yaml:"SLOTS_PER_HISTORICAL_ROOT"`
	EpochsPerHistoricalVector uint64 `yaml:"EPOCHS_PER_HISTORICAL_VECTOR"`
	EpochsPerSlashingsVector  uint64 `yaml:"EPOCHS_PER_SLASHINGS_VECTOR"`
	HistoricalRootsLimit      uint64 `yaml:"HISTORICAL_ROOTS_LIMIT"`
	ValidatorRegistryLimit    uint64 `yaml:"VALIDATOR_REGISTRY_LIMIT"`
	SlotsPerEth1VotingPeriod  uint64 `yaml:"SLOTS_PER_ETH1_VOTING_PERIOD"`

	// Shuffling and committees
	ShuffleRoundCount         uint64 `yaml:"SHUFFLE_ROUND_COUNT"`
	MaxCommitteesPerSlot      uint64 `yaml:"MAX_COMMITTEES_PER_SLOT"`
	TargetCommitteeSize       uint64 `yaml:"TARGET_COMMITTEE_SIZE"`
	MaxValidatorsPerCommittee uint64 `yaml:"MAX_VALIDATORS_PER_COMMITTEE"`
	MinSeedLookahead          uint64 `yaml:"MIN_SEED_LOOKAHEAD"`
	MaxSeedLookahead          uint64 `yaml:"MAX_SEED_LOOKAHEAD"`

	// Validator lifecycle
	MinPerEpochChurnLimit            uint64 `yaml:"MIN_PER_EPOCH_CHURN_LIMIT"`
	ChurnLimitQuotient               uint64 `yaml:"CHURN_LIMIT_QUOTIENT"`
	ShardCommitteePeriod             uint64 `yaml:"SHARD_COMMITTEE_PERIOD"`
	MinValidatorWithdrawabilityDelay uint64 `yaml:"MIN_VALIDATOR_WITHDRAWABILITY_DELAY"`

	// Rewards and penalties
	BaseRewardFactor             uint64 `yaml:"BASE_REWARD_FACTOR"`
	BaseRewardsPerEpoch          uint64 `yaml:"BASE_REWARDS_PER_EPOCH"`
	ProposerRewardQuotient       uint64 `yaml:"PROPOSER_REWARD_QUOTIENT"`
	WhistleblowerRewardQuotient  uint64 `yaml:"WHISTLEBLOWER_REWARD_QUOTIENT"`
	InactivityPenaltyQuotient    uint64 `yaml:"INACTIVITY_PENALTY_QUOTIENT"`
	MinSlashingPenaltyQuotient   uint64 `yaml:"MIN_SLASHING_PENALTY_QUOTIENT"`
	MinEpochsToInactivityPenalty uint64 `yaml:"MIN_EPOCHS_TO_INACTIVITY_PENALTY"`
	MinAttestationInclusionDelay uint64 `yaml:"MIN_ATTESTATION_INCLUSION_DELAY"`

	// Gwei values
	MinDepositAmount          uint64 `yaml:"MIN_DEPOSIT_AMOUNT"`
	MaxEffectiveBalance       uint64 `yaml:"MAX_EFFECTIVE_BALANCE"`
	EffectiveBalanceIncrement uint64 `yaml:"EFFECTIVE_BALANCE_INCREMENT"`
	EjectionBalance           uint64 `yaml:"EJECTION_BALANCE"`

	// Deposit contract
	DepositContractTreeDepth uint64 `yaml:"DEPOSIT_CONTRACT_TREE_DEPTH"`

	// Max operations per block
	MaxProposerSlashings uint64 `yaml:"MAX_PROPOSER_SLASHINGS"`
	MaxAttesterSlashings uint64 `yaml:"MAX_ATTESTER_SLASHINGS"`
	MaxAttestations      uint64 `yaml:"MAX_ATTESTATIONS"`
	MaxDeposits          uint64 `yaml:"MAX_DEPOSITS"`
	MaxVoluntaryExits    uint64 `yaml:"MAX_VOLUNTARY_EXITS"`

	// Options
	BLSVerify                  bool `yaml:"BLS_VERIFY"`
	BLSVerifyProofOfPossession bool `yaml:"BLS_VERIFY_PROOF_OF_POSSESSION"`
	IncrementalHasher          bool `yaml:"INCREMENTAL_HASHER"`
	CacheSizeEntries           int  `yaml:"CACHE_SIZE_ENTRIES"`
}

// Mainnet returns the mainnet constant set.
func Mainnet() *SpecConfig {
	return &SpecConfig{
		SecondsPerSlot: 12,
		SlotsPerEpoch:  32,
		GenesisSlot:    0,
		GenesisEpoch:   0,

		SlotsPerHistoricalRoot:    8192,
		EpochsPerHistoricalVector: 65536,
		EpochsPerSlashingsVector:  8192,
		HistoricalRootsLimit:      16777216,
		ValidatorRegistryLimit:    1099511627776,
		SlotsPerEth1VotingPeriod:  1024,

		ShuffleRoundCount:         90,
		MaxCommitteesPerSlot:      64,
		TargetCommitteeSize:       128,
		MaxValidatorsPerCommittee: 2048,
		MinSeedLookahead:          1,
		MaxSeedLookahead:          4,

		MinPerEpochChurnLimit:            4,
		ChurnLimitQuotient:               65536,
		ShardCommitteePeriod:             256,
		MinValidatorWithdrawabilityDelay: 256,

		BaseRewardFactor:             64,
		BaseRewardsPerEpoch:          4,
		ProposerRewardQuotient:       8,
		WhistleblowerRewardQuotient:  512,
		InactivityPenaltyQuotient:    33554432,
		MinSlashingPenaltyQuotient:   32,
		MinEpochsToInactivityPenalty: 4,
		MinAttestationInclusionDelay: 1,

		MinDepositAmount:          1000000000,
		MaxEffectiveBalance:       32000000000,
		EffectiveBalanceIncrement: 1000000000,
		EjectionBalance:           16000000000,

		DepositContractTreeDepth: 32,

		MaxProposerSlashings: 16,
		MaxAttesterSlashings: 1,
		MaxAttestations:      128,
		MaxDeposits:          16,
		MaxVoluntaryExits:    16,

		BLSVerify:                  true,
		BLSVerifyProofOfPossession: false,
		IncrementalHasher:          true,
		CacheSizeEntries:           64,
	}
}

// Minimal returns the reduced constant set used by tests and interop runs.
func Minimal() *SpecConfig {
	cfg := Mainnet()
	cfg.SecondsPerSlot = 6
	cfg.SlotsPerEpoch = 8
	cfg.SlotsPerHistoricalRoot = 64
	cfg.EpochsPerHistoricalVector = 64
	cfg.EpochsPerSlashingsVector = 64
	cfg.SlotsPerEth1VotingPeriod = 16
	cfg.ShuffleRoundCount = 10
	cfg.MaxCommitteesPerSlot = 4
	cfg.TargetCommitteeSize = 4
	cfg.ChurnLimitQuotient = 32
	cfg.ShardCommitteePeriod = 64
	cfg.BLSVerify = false
	return cfg
}
