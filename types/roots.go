package types

import "github.com/geanlabs/beacon/ssz"

// Standalone root helpers over a fresh hasher. Hot paths share a hasher via
// the *With variants instead.

func (f *Fork) HashTreeRoot() (Root, error)               { return rootOf(f.HashTreeRootWith) }
func (c *Checkpoint) HashTreeRoot() (Root, error)         { return rootOf(c.HashTreeRootWith) }
func (v *Validator) HashTreeRoot() (Root, error)          { return rootOf(v.HashTreeRootWith) }
func (d *AttestationData) HashTreeRoot() (Root, error)    { return rootOf(d.HashTreeRootWith) }
func (a *Attestation) HashTreeRoot() (Root, error)        { return rootOf(a.HashTreeRootWith) }
func (p *PendingAttestation) HashTreeRoot() (Root, error) { return rootOf(p.HashTreeRootWith) }
func (a *IndexedAttestation) HashTreeRoot() (Root, error) { return rootOf(a.HashTreeRootWith) }
func (e *Eth1Data) HashTreeRoot() (Root, error)           { return rootOf(e.HashTreeRootWith) }
func (d *DepositData) HashTreeRoot() (Root, error)        { return rootOf(d.HashTreeRootWith) }
func (d *Deposit) HashTreeRoot() (Root, error)            { return rootOf(d.HashTreeRootWith) }
func (b *BeaconBlockHeader) HashTreeRoot() (Root, error)  { return rootOf(b.HashTreeRootWith) }
func (p *ProposerSlashing) HashTreeRoot() (Root, error)   { return rootOf(p.HashTreeRootWith) }
func (a *AttesterSlashing) HashTreeRoot() (Root, error)   { return rootOf(a.HashTreeRootWith) }
func (e *VoluntaryExit) HashTreeRoot() (Root, error)      { return rootOf(e.HashTreeRootWith) }
func (b *BeaconBlockBody) HashTreeRoot() (Root, error)    { return rootOf(b.HashTreeRootWith) }
func (b *BeaconBlock) HashTreeRoot() (Root, error)        { return rootOf(b.HashTreeRootWith) }

func (d *DepositData) SigningRoot() (Root, error)       { return rootOf(d.SigningRootWith) }
func (b *BeaconBlockHeader) SigningRoot() (Root, error) { return rootOf(b.SigningRootWith) }
func (e *VoluntaryExit) SigningRoot() (Root, error)     { return rootOf(e.SigningRootWith) }
func (b *BeaconBlock) SigningRoot() (Root, error)       { return rootOf(b.SigningRootWith) }

func rootOf(f func(h *ssz.Hasher) (Root, error)) (Root, error) {
	return f(ssz.NewHasher())
}
