// Package types defines the consensus containers and their SSZ encoding.
package types

import (
	"encoding/hex"

	"github.com/geanlabs/beacon/ssz"
)

// Primitive types.
type Slot uint64
type Epoch uint64
type Gwei uint64
type ValidatorIndex uint64
type CommitteeIndex uint64

// Root is a 32-byte tree-hash digest.
type Root = ssz.Root

// Bytes4 is a fork version or domain type tag.
type Bytes4 [4]byte

// Bytes48 is a BLS public key.
type Bytes48 [48]byte

// Bytes96 is a BLS signature.
type Bytes96 [96]byte

// Domain is the 8-byte signature domain: domain type followed by the fork
// version active at the epoch being signed over.
type Domain [8]byte

// FarFutureEpoch is the sentinel for unset validator epoch fields.
const FarFutureEpoch = Epoch(^uint64(0))

// DepositProofLength is the deposit branch length: tree depth plus the
// level that mixes in the leaf count.
const DepositProofLength = 33

// SSZ list bounds. These are serialization constants, fixed across
// networks; the per-network operation limits live in params.
const (
	ValidatorRegistryLimit    = uint64(1) << 40
	HistoricalRootsLimit      = uint64(1) << 24
	Eth1DataVotesLimit        = uint64(1024)
	EpochAttestationsLimit    = uint64(4096)
	MaxProposerSlashings      = uint64(16)
	MaxAttesterSlashings      = uint64(2)
	MaxAttestations           = uint64(128)
	MaxDeposits               = uint64(16)
	MaxVoluntaryExits         = uint64(16)
	MaxValidatorsPerCommittee = uint64(2048)
)

// IsZeroRoot reports whether r is the all-zero root.
func IsZeroRoot(r Root) bool { return r == Root{} }

// ShortRoot returns the first four bytes of a root as hex, for logs.
func ShortRoot(r Root) string {
	return hex.EncodeToString(r[:4])
}

// CompareRoots orders two roots lexicographically: 1 if a > b, -1 if a < b,
// 0 if equal.
func CompareRoots(a, b Root) int {
	for i := 0; i < 32; i++ {
		if a[i] > b[i] {
			return 1
		}
		if a[i] < b[i] {
			return -1
		}
	}
	return 0
}
