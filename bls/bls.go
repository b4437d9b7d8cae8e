// Package bls is the signature collaborator boundary. The consensus core
// treats signing as opaque: verification is routed through a Verifier so
// interop and test runs can switch it off wholesale.
package bls

import (
	"crypto/sha256"

	"github.com/geanlabs/beacon/types"
)

// Verifier checks BLS signatures. The consensus functions pick the verify
// calls; the backend decides what a valid signature is.
type Verifier interface {
	// Verify checks a single signature over message under domain.
	Verify(pubkey types.Bytes48, message types.Root, signature types.Bytes96, domain types.Domain) bool
	// VerifyMultiple checks an aggregate signature where each pubkey signed
	// its own message.
	VerifyMultiple(pubkeys []types.Bytes48, messages []types.Root, signature types.Bytes96, domain types.Domain) bool
	// AggregatePubkeys folds committee keys for aggregate verification.
	AggregatePubkeys(pubkeys []types.Bytes48) types.Bytes48
}

// InsecureVerifier accepts every signature. Used when the bls_verify option
// is off: interop devnets and the deterministic test suites.
type InsecureVerifier struct{}

func (InsecureVerifier) Verify(types.Bytes48, types.Root, types.Bytes96, types.Domain) bool {
	return true
}

func (InsecureVerifier) VerifyMultiple([]types.Bytes48, []types.Root, types.Bytes96, types.Domain) bool {
	return true
}

func (InsecureVerifier) AggregatePubkeys(pubkeys []types.Bytes48) types.Bytes48 {
	// XOR fold keeps aggregation deterministic without real pairing math.
	var agg types.Bytes48
	for _, pk := range pubkeys {
		for i := range agg {
			agg[i] ^= pk[i]
		}
	}
	return agg
}

// Signer produces signatures for a local validator key.
type Signer interface {
	Sign(message types.Root, domain types.Domain) types.Bytes96
	Pubkey() types.Bytes48
}

// InsecureSigner derives a deterministic pseudo-signature from the key seed,
// the message and the domain. It pairs with InsecureVerifier.
type InsecureSigner struct {
	Seed uint64
}

func (s *InsecureSigner) Pubkey() types.Bytes48 {
	var pk types.Bytes48
	sum := sha256.Sum256([]byte{
		byte(s.Seed), byte(s.Seed >> 8), byte(s.Seed >> 16), byte(s.Seed >> 24),
		byte(s.Seed >> 32), byte(s.Seed >> 40), byte(s.Seed >> 48), byte(s.Seed >> 56),
	})
	copy(pk[:], sum[:])
	copy(pk[32:], sum[:16])
	return pk
}

func (s *InsecureSigner) Sign(message types.Root, domain types.Domain) types.Bytes96 {
	pk := s.Pubkey()
	var buf []byte
	buf = append(buf, pk[:]...)
	buf = append(buf, message[:]...)
	buf = append(buf, domain[:]...)
	sum := sha256.Sum256(buf)
	var sig types.Bytes96
	copy(sig[:], sum[:])
	copy(sig[32:], sum[:])
	copy(sig[64:], sum[:])
	return sig
}
