package types

import "github.com/geanlabs/beacon/ssz"

// Tree-hash methods. Every composite pushes its field roots onto a shared
// hasher and merkleizes its region; signed containers expose a signing root
// that elides the trailing signature field.

func (f *Fork) HashTreeRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	h.AppendBytes(f.PreviousVersion[:])
	h.AppendBytes(f.CurrentVersion[:])
	h.AppendUint64(uint64(f.Epoch))
	h.Merkleize(idx)
	return h.Root(), nil
}

func (c *Checkpoint) HashTreeRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	h.AppendUint64(uint64(c.Epoch))
	h.AppendRoot(c.Root)
	h.Merkleize(idx)
	return h.Root(), nil
}

func (v *Validator) HashTreeRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	h.AppendBytes(v.Pubkey[:])
	h.AppendRoot(v.WithdrawalCredentials)
	h.AppendUint64(uint64(v.EffectiveBalance))
	h.AppendBool(v.Slashed)
	h.AppendUint64(uint64(v.ActivationEligibilityEpoch))
	h.AppendUint64(uint64(v.ActivationEpoch))
	h.AppendUint64(uint64(v.ExitEpoch))
	h.AppendUint64(uint64(v.WithdrawableEpoch))
	h.Merkleize(idx)
	return h.Root(), nil
}

func (d *AttestationData) HashTreeRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	h.AppendUint64(uint64(d.Slot))
	h.AppendUint64(uint64(d.Index))
	h.AppendRoot(d.BeaconBlockRoot)
	src, err := d.Source.HashTreeRootWith(h)
	if err != nil {
		return Root{}, err
	}
	h.AppendRoot(src)
	tgt, err := d.Target.HashTreeRootWith(h)
	if err != nil {
		return Root{}, err
	}
	h.AppendRoot(tgt)
	h.Merkleize(idx)
	return h.Root(), nil
}

func (a *Attestation) HashTreeRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	h.AppendBitlist(a.AggregationBits, MaxValidatorsPerCommittee)
	root, err := a.Data.HashTreeRootWith(h)
	if err != nil {
		return Root{}, err
	}
	h.AppendRoot(root)
	h.AppendBytes(a.Signature[:])
	h.Merkleize(idx)
	return h.Root(), nil
}

func (p *PendingAttestation) HashTreeRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	h.AppendBitlist(p.AggregationBits, MaxValidatorsPerCommittee)
	root, err := p.Data.HashTreeRootWith(h)
	if err != nil {
		return Root{}, err
	}
	h.AppendRoot(root)
	h.AppendUint64(uint64(p.InclusionDelay))
	h.AppendUint64(uint64(p.ProposerIndex))
	h.Merkleize(idx)
	return h.Root(), nil
}

func (a *IndexedAttestation) HashTreeRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	indices := make([]uint64, len(a.AttestingIndices))
	for i, v := range a.AttestingIndices {
		indices[i] = uint64(v)
	}
	h.AppendUint64List(indices, MaxValidatorsPerCommittee)
	root, err := a.Data.HashTreeRootWith(h)
	if err != nil {
		return Root{}, err
	}
	h.AppendRoot(root)
	h.AppendBytes(a.Signature[:])
	h.Merkleize(idx)
	return h.Root(), nil
}

func (e *Eth1Data) HashTreeRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	h.AppendRoot(e.DepositRoot)
	h.AppendUint64(e.DepositCount)
	h.AppendRoot(e.BlockHash)
	h.Merkleize(idx)
	return h.Root(), nil
}

func (d *DepositData) HashTreeRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	h.AppendBytes(d.Pubkey[:])
	h.AppendRoot(d.WithdrawalCredentials)
	h.AppendUint64(uint64(d.Amount))
	h.AppendBytes(d.Signature[:])
	h.Merkleize(idx)
	return h.Root(), nil
}

// SigningRootWith elides the trailing signature.
func (d *DepositData) SigningRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	h.AppendBytes(d.Pubkey[:])
	h.AppendRoot(d.WithdrawalCredentials)
	h.AppendUint64(uint64(d.Amount))
	h.Merkleize(idx)
	return h.Root(), nil
}

func (d *Deposit) HashTreeRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	vec := h.Index()
	for i := range d.Proof {
		h.AppendRoot(d.Proof[i])
	}
	h.Merkleize(vec)
	root, err := d.Data.HashTreeRootWith(h)
	if err != nil {
		return Root{}, err
	}
	h.AppendRoot(root)
	h.Merkleize(idx)
	return h.Root(), nil
}

func (b *BeaconBlockHeader) HashTreeRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	h.AppendUint64(uint64(b.Slot))
	h.AppendRoot(b.ParentRoot)
	h.AppendRoot(b.StateRoot)
	h.AppendRoot(b.BodyRoot)
	h.AppendBytes(b.Signature[:])
	h.Merkleize(idx)
	return h.Root(), nil
}

// SigningRootWith elides the trailing signature.
func (b *BeaconBlockHeader) SigningRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	h.AppendUint64(uint64(b.Slot))
	h.AppendRoot(b.ParentRoot)
	h.AppendRoot(b.StateRoot)
	h.AppendRoot(b.BodyRoot)
	h.Merkleize(idx)
	return h.Root(), nil
}

func (p *ProposerSlashing) HashTreeRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	h.AppendUint64(uint64(p.ProposerIndex))
	r1, err := p.Header1.HashTreeRootWith(h)
	if err != nil {
		return Root{}, err
	}
	h.AppendRoot(r1)
	r2, err := p.Header2.HashTreeRootWith(h)
	if err != nil {
		return Root{}, err
	}
	h.AppendRoot(r2)
	h.Merkleize(idx)
	return h.Root(), nil
}

func (a *AttesterSlashing) HashTreeRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	r1, err := a.Attestation1.HashTreeRootWith(h)
	if err != nil {
		return Root{}, err
	}
	h.AppendRoot(r1)
	r2, err := a.Attestation2.HashTreeRootWith(h)
	if err != nil {
		return Root{}, err
	}
	h.AppendRoot(r2)
	h.Merkleize(idx)
	return h.Root(), nil
}

func (e *VoluntaryExit) HashTreeRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	h.AppendUint64(uint64(e.Epoch))
	h.AppendUint64(uint64(e.ValidatorIndex))
	h.AppendBytes(e.Signature[:])
	h.Merkleize(idx)
	return h.Root(), nil
}

// SigningRootWith elides the trailing signature.
func (e *VoluntaryExit) SigningRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	h.AppendUint64(uint64(e.Epoch))
	h.AppendUint64(uint64(e.ValidatorIndex))
	h.Merkleize(idx)
	return h.Root(), nil
}

func (b *BeaconBlockBody) HashTreeRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	h.AppendBytes(b.RandaoReveal[:])
	root, err := b.Eth1Data.HashTreeRootWith(h)
	if err != nil {
		return Root{}, err
	}
	h.AppendRoot(root)

	if err := hashList(h, len(b.ProposerSlashings), MaxProposerSlashings, func(i int) (Root, error) {
		return b.ProposerSlashings[i].HashTreeRootWith(h)
	}); err != nil {
		return Root{}, err
	}
	if err := hashList(h, len(b.AttesterSlashings), MaxAttesterSlashings, func(i int) (Root, error) {
		return b.AttesterSlashings[i].HashTreeRootWith(h)
	}); err != nil {
		return Root{}, err
	}
	if err := hashList(h, len(b.Attestations), MaxAttestations, func(i int) (Root, error) {
		return b.Attestations[i].HashTreeRootWith(h)
	}); err != nil {
		return Root{}, err
	}
	if err := hashList(h, len(b.Deposits), MaxDeposits, func(i int) (Root, error) {
		return b.Deposits[i].HashTreeRootWith(h)
	}); err != nil {
		return Root{}, err
	}
	if err := hashList(h, len(b.VoluntaryExits), MaxVoluntaryExits, func(i int) (Root, error) {
		return b.VoluntaryExits[i].HashTreeRootWith(h)
	}); err != nil {
		return Root{}, err
	}

	h.Merkleize(idx)
	return h.Root(), nil
}

func (b *BeaconBlock) HashTreeRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	h.AppendUint64(uint64(b.Slot))
	h.AppendRoot(b.ParentRoot)
	h.AppendRoot(b.StateRoot)
	root, err := b.Body.HashTreeRootWith(h)
	if err != nil {
		return Root{}, err
	}
	h.AppendRoot(root)
	h.AppendBytes(b.Signature[:])
	h.Merkleize(idx)
	return h.Root(), nil
}

// SigningRootWith elides the trailing signature.
func (b *BeaconBlock) SigningRootWith(h *ssz.Hasher) (Root, error) {
	idx := h.Index()
	h.AppendUint64(uint64(b.Slot))
	h.AppendRoot(b.ParentRoot)
	h.AppendRoot(b.StateRoot)
	root, err := b.Body.HashTreeRootWith(h)
	if err != nil {
		return Root{}, err
	}
	h.AppendRoot(root)
	h.Merkleize(idx)
	return h.Root(), nil
}

// hashList pushes the mixed-in root of a list of composite elements.
func hashList(h *ssz.Hasher, n int, limit uint64, elem func(i int) (Root, error)) error {
	idx := h.Index()
	for i := 0; i < n; i++ {
		root, err := elem(i)
		if err != nil {
			return err
		}
		h.AppendRoot(root)
	}
	h.MerkleizeWithLimit(idx, limit)
	h.MixInLength(uint64(n))
	return nil
}
