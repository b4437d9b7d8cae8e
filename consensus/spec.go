// Package consensus implements the spec helpers and the beacon state
// transition: pure functions from (state, input) to a new state. The input
// state is never mutated; every transition works on a copy, so a failed
// block leaves no partial effects.
package consensus

import (
	"github.com/geanlabs/beacon/bls"
	"github.com/geanlabs/beacon/params"
)

// Spec bundles the chain constants with the signature backend. All helpers
// and transition functions hang off this record; there is no global
// configuration.
type Spec struct {
	Cfg *params.SpecConfig
	BLS bls.Verifier
}

// NewSpec builds a Spec with the deterministic insecure backend. Nodes that
// carry a real pairing library wire it through NewSpecWithVerifier.
func NewSpec(cfg *params.SpecConfig) *Spec {
	return &Spec{Cfg: cfg, BLS: bls.InsecureVerifier{}}
}

// NewSpecWithVerifier builds a Spec around an external signature backend.
func NewSpecWithVerifier(cfg *params.SpecConfig, verifier bls.Verifier) *Spec {
	return &Spec{Cfg: cfg, BLS: verifier}
}

// blsActive reports whether signature checks are enforced.
func (s *Spec) blsActive() bool { return s.Cfg.BLSVerify }
