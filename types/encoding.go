package types

import (
	"github.com/geanlabs/beacon/ssz"
	"github.com/prysmaticlabs/go-bitfield"
)

// Serialized widths of the fixed-size containers.
const (
	forkSize             = 16
	checkpointSize       = 40
	validatorSize        = 121
	attestationDataSize  = 128
	eth1DataSize         = 72
	depositDataSize      = 184
	depositSize          = DepositProofLength*32 + depositDataSize
	headerSize           = 200
	proposerSlashingSize = 8 + 2*headerSize
	voluntaryExitSize    = 112

	attestationFixed        = 4 + attestationDataSize + 96
	pendingAttestationFixed = 4 + attestationDataSize + 8 + 8
	indexedAttestationFixed = 4 + attestationDataSize + 96
	bodyFixed               = 96 + eth1DataSize + 5*4
	blockFixed              = 8 + 32 + 32 + 4 + 96
)

// --- Fork ---

func (f *Fork) SizeSSZ() int { return forkSize }

func (f *Fork) MarshalSSZTo(dst []byte) ([]byte, error) {
	dst = append(dst, f.PreviousVersion[:]...)
	dst = append(dst, f.CurrentVersion[:]...)
	dst = ssz.MarshalUint64(dst, uint64(f.Epoch))
	return dst, nil
}

func (f *Fork) UnmarshalSSZ(buf []byte) error {
	if len(buf) != forkSize {
		return ssz.ErrSize
	}
	copy(f.PreviousVersion[:], buf[0:4])
	copy(f.CurrentVersion[:], buf[4:8])
	f.Epoch = Epoch(ssz.UnmarshalUint64(buf[8:16]))
	return nil
}

// --- Checkpoint ---

func (c *Checkpoint) SizeSSZ() int { return checkpointSize }

func (c *Checkpoint) MarshalSSZTo(dst []byte) ([]byte, error) {
	dst = ssz.MarshalUint64(dst, uint64(c.Epoch))
	dst = append(dst, c.Root[:]...)
	return dst, nil
}

func (c *Checkpoint) UnmarshalSSZ(buf []byte) error {
	if len(buf) != checkpointSize {
		return ssz.ErrSize
	}
	c.Epoch = Epoch(ssz.UnmarshalUint64(buf[0:8]))
	copy(c.Root[:], buf[8:40])
	return nil
}

// --- Validator ---

func (v *Validator) SizeSSZ() int { return validatorSize }

func (v *Validator) MarshalSSZTo(dst []byte) ([]byte, error) {
	dst = append(dst, v.Pubkey[:]...)
	dst = append(dst, v.WithdrawalCredentials[:]...)
	dst = ssz.MarshalUint64(dst, uint64(v.EffectiveBalance))
	dst = ssz.MarshalBool(dst, v.Slashed)
	dst = ssz.MarshalUint64(dst, uint64(v.ActivationEligibilityEpoch))
	dst = ssz.MarshalUint64(dst, uint64(v.ActivationEpoch))
	dst = ssz.MarshalUint64(dst, uint64(v.ExitEpoch))
	dst = ssz.MarshalUint64(dst, uint64(v.WithdrawableEpoch))
	return dst, nil
}

func (v *Validator) UnmarshalSSZ(buf []byte) error {
	if len(buf) != validatorSize {
		return ssz.ErrSize
	}
	copy(v.Pubkey[:], buf[0:48])
	copy(v.WithdrawalCredentials[:], buf[48:80])
	v.EffectiveBalance = Gwei(ssz.UnmarshalUint64(buf[80:88]))
	v.Slashed = ssz.UnmarshalBool(buf[88:89])
	v.ActivationEligibilityEpoch = Epoch(ssz.UnmarshalUint64(buf[89:97]))
	v.ActivationEpoch = Epoch(ssz.UnmarshalUint64(buf[97:105]))
	v.ExitEpoch = Epoch(ssz.UnmarshalUint64(buf[105:113]))
	v.WithdrawableEpoch = Epoch(ssz.UnmarshalUint64(buf[113:121]))
	return nil
}

// --- AttestationData ---

func (d *AttestationData) SizeSSZ() int { return attestationDataSize }

func (d *AttestationData) MarshalSSZTo(dst []byte) ([]byte, error) {
	dst = ssz.MarshalUint64(dst, uint64(d.Slot))
	dst = ssz.MarshalUint64(dst, uint64(d.Index))
	dst = append(dst, d.BeaconBlockRoot[:]...)
	var err error
	if dst, err = d.Source.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	return d.Target.MarshalSSZTo(dst)
}

func (d *AttestationData) UnmarshalSSZ(buf []byte) error {
	if len(buf) != attestationDataSize {
		return ssz.ErrSize
	}
	d.Slot = Slot(ssz.UnmarshalUint64(buf[0:8]))
	d.Index = CommitteeIndex(ssz.UnmarshalUint64(buf[8:16]))
	copy(d.BeaconBlockRoot[:], buf[16:48])
	if err := d.Source.UnmarshalSSZ(buf[48:88]); err != nil {
		return err
	}
	return d.Target.UnmarshalSSZ(buf[88:128])
}

// --- Attestation ---

func (a *Attestation) SizeSSZ() int {
	return attestationFixed + len(a.AggregationBits)
}

func (a *Attestation) MarshalSSZ() ([]byte, error) {
	return a.MarshalSSZTo(make([]byte, 0, a.SizeSSZ()))
}

func (a *Attestation) MarshalSSZTo(dst []byte) ([]byte, error) {
	dst = ssz.WriteOffset(dst, attestationFixed)
	var err error
	if dst, err = a.Data.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	dst = append(dst, a.Signature[:]...)
	dst = append(dst, a.AggregationBits...)
	return dst, nil
}

func (a *Attestation) UnmarshalSSZ(buf []byte) error {
	if len(buf) < attestationFixed {
		return ssz.ErrSize
	}
	off, err := ssz.ReadOffset(buf, 0, attestationFixed, len(buf))
	if err != nil {
		return err
	}
	if off != attestationFixed {
		return ssz.ErrOffset
	}
	if err := a.Data.UnmarshalSSZ(buf[4 : 4+attestationDataSize]); err != nil {
		return err
	}
	copy(a.Signature[:], buf[4+attestationDataSize:attestationFixed])
	bits := buf[off:]
	if err := ssz.ValidateBitlist(bits, MaxValidatorsPerCommittee); err != nil {
		return err
	}
	a.AggregationBits = bitfield.Bitlist(append([]byte{}, bits...))
	return nil
}

// --- PendingAttestation ---

func (p *PendingAttestation) SizeSSZ() int {
	return pendingAttestationFixed + len(p.AggregationBits)
}

func (p *PendingAttestation) MarshalSSZTo(dst []byte) ([]byte, error) {
	dst = ssz.WriteOffset(dst, pendingAttestationFixed)
	var err error
	if dst, err = p.Data.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	dst = ssz.MarshalUint64(dst, uint64(p.InclusionDelay))
	dst = ssz.MarshalUint64(dst, uint64(p.ProposerIndex))
	dst = append(dst, p.AggregationBits...)
	return dst, nil
}

func (p *PendingAttestation) UnmarshalSSZ(buf []byte) error {
	if len(buf) < pendingAttestationFixed {
		return ssz.ErrSize
	}
	off, err := ssz.ReadOffset(buf, 0, pendingAttestationFixed, len(buf))
	if err != nil {
		return err
	}
	if off != pendingAttestationFixed {
		return ssz.ErrOffset
	}
	if err := p.Data.UnmarshalSSZ(buf[4 : 4+attestationDataSize]); err != nil {
		return err
	}
	pos := 4 + attestationDataSize
	p.InclusionDelay = Slot(ssz.UnmarshalUint64(buf[pos : pos+8]))
	p.ProposerIndex = ValidatorIndex(ssz.UnmarshalUint64(buf[pos+8 : pos+16]))
	bits := buf[off:]
	if err := ssz.ValidateBitlist(bits, MaxValidatorsPerCommittee); err != nil {
		return err
	}
	p.AggregationBits = bitfield.Bitlist(append([]byte{}, bits...))
	return nil
}

// --- IndexedAttestation ---

func (a *IndexedAttestation) SizeSSZ() int {
	return indexedAttestationFixed + 8*len(a.AttestingIndices)
}

func (a *IndexedAttestation) MarshalSSZTo(dst []byte) ([]byte, error) {
	dst = ssz.WriteOffset(dst, indexedAttestationFixed)
	var err error
	if dst, err = a.Data.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	dst = append(dst, a.Signature[:]...)
	for _, idx := range a.AttestingIndices {
		dst = ssz.MarshalUint64(dst, uint64(idx))
	}
	return dst, nil
}

func (a *IndexedAttestation) UnmarshalSSZ(buf []byte) error {
	if len(buf) < indexedAttestationFixed {
		return ssz.ErrSize
	}
	off, err := ssz.ReadOffset(buf, 0, indexedAttestationFixed, len(buf))
	if err != nil {
		return err
	}
	if off != indexedAttestationFixed {
		return ssz.ErrOffset
	}
	if err := a.Data.UnmarshalSSZ(buf[4 : 4+attestationDataSize]); err != nil {
		return err
	}
	copy(a.Signature[:], buf[4+attestationDataSize:indexedAttestationFixed])
	n, err := ssz.DivideOffsets(len(buf)-off, 8, MaxValidatorsPerCommittee)
	if err != nil {
		return err
	}
	a.AttestingIndices = make([]ValidatorIndex, n)
	for i := 0; i < n; i++ {
		a.AttestingIndices[i] = ValidatorIndex(ssz.UnmarshalUint64(buf[off+i*8:]))
	}
	return nil
}

// --- Eth1Data ---

func (e *Eth1Data) SizeSSZ() int { return eth1DataSize }

func (e *Eth1Data) MarshalSSZTo(dst []byte) ([]byte, error) {
	dst = append(dst, e.DepositRoot[:]...)
	dst = ssz.MarshalUint64(dst, e.DepositCount)
	dst = append(dst, e.BlockHash[:]...)
	return dst, nil
}

func (e *Eth1Data) UnmarshalSSZ(buf []byte) error {
	if len(buf) != eth1DataSize {
		return ssz.ErrSize
	}
	copy(e.DepositRoot[:], buf[0:32])
	e.DepositCount = ssz.UnmarshalUint64(buf[32:40])
	copy(e.BlockHash[:], buf[40:72])
	return nil
}

// --- DepositData ---

func (d *DepositData) SizeSSZ() int { return depositDataSize }

func (d *DepositData) MarshalSSZTo(dst []byte) ([]byte, error) {
	dst = append(dst, d.Pubkey[:]...)
	dst = append(dst, d.WithdrawalCredentials[:]...)
	dst = ssz.MarshalUint64(dst, uint64(d.Amount))
	dst = append(dst, d.Signature[:]...)
	return dst, nil
}

func (d *DepositData) UnmarshalSSZ(buf []byte) error {
	if len(buf) != depositDataSize {
		return ssz.ErrSize
	}
	copy(d.Pubkey[:], buf[0:48])
	copy(d.WithdrawalCredentials[:], buf[48:80])
	d.Amount = Gwei(ssz.UnmarshalUint64(buf[80:88]))
	copy(d.Signature[:], buf[88:184])
	return nil
}

// --- Deposit ---

func (d *Deposit) SizeSSZ() int { return depositSize }

func (d *Deposit) MarshalSSZTo(dst []byte) ([]byte, error) {
	for i := range d.Proof {
		dst = append(dst, d.Proof[i][:]...)
	}
	return d.Data.MarshalSSZTo(dst)
}

func (d *Deposit) UnmarshalSSZ(buf []byte) error {
	if len(buf) != depositSize {
		return ssz.ErrSize
	}
	for i := range d.Proof {
		copy(d.Proof[i][:], buf[i*32:])
	}
	return d.Data.UnmarshalSSZ(buf[DepositProofLength*32:])
}

// --- BeaconBlockHeader ---

func (b *BeaconBlockHeader) SizeSSZ() int { return headerSize }

func (b *BeaconBlockHeader) MarshalSSZTo(dst []byte) ([]byte, error) {
	dst = ssz.MarshalUint64(dst, uint64(b.Slot))
	dst = append(dst, b.ParentRoot[:]...)
	dst = append(dst, b.StateRoot[:]...)
	dst = append(dst, b.BodyRoot[:]...)
	dst = append(dst, b.Signature[:]...)
	return dst, nil
}

func (b *BeaconBlockHeader) UnmarshalSSZ(buf []byte) error {
	if len(buf) != headerSize {
		return ssz.ErrSize
	}
	b.Slot = Slot(ssz.UnmarshalUint64(buf[0:8]))
	copy(b.ParentRoot[:], buf[8:40])
	copy(b.StateRoot[:], buf[40:72])
	copy(b.BodyRoot[:], buf[72:104])
	copy(b.Signature[:], buf[104:200])
	return nil
}

// --- ProposerSlashing ---

func (p *ProposerSlashing) SizeSSZ() int { return proposerSlashingSize }

func (p *ProposerSlashing) MarshalSSZTo(dst []byte) ([]byte, error) {
	dst = ssz.MarshalUint64(dst, uint64(p.ProposerIndex))
	var err error
	if dst, err = p.Header1.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	return p.Header2.MarshalSSZTo(dst)
}

func (p *ProposerSlashing) UnmarshalSSZ(buf []byte) error {
	if len(buf) != proposerSlashingSize {
		return ssz.ErrSize
	}
	p.ProposerIndex = ValidatorIndex(ssz.UnmarshalUint64(buf[0:8]))
	if err := p.Header1.UnmarshalSSZ(buf[8 : 8+headerSize]); err != nil {
		return err
	}
	return p.Header2.UnmarshalSSZ(buf[8+headerSize:])
}

// --- AttesterSlashing ---

func (a *AttesterSlashing) SizeSSZ() int {
	return 8 + a.Attestation1.SizeSSZ() + a.Attestation2.SizeSSZ()
}

func (a *AttesterSlashing) MarshalSSZTo(dst []byte) ([]byte, error) {
	size1 := a.Attestation1.SizeSSZ()
	dst = ssz.WriteOffset(dst, 8)
	dst = ssz.WriteOffset(dst, 8+size1)
	var err error
	if dst, err = a.Attestation1.MarshalSSZTo(dst); err != nil {
		return nil, err
	}
	return a.Attestation2.MarshalSSZTo(dst)
}

func (a *AttesterSlashing) UnmarshalSSZ(buf []byte) error {
	if len(buf) < 8 {
		return ssz.ErrSize
	}
	off1, err := ssz.ReadOffset(buf, 0, 8, len(buf))
	if err != nil {
		return err
	}
	off2, err := ssz.ReadOffset(buf, 4, off1, len(buf))
	if err != nil {
		return err
	}
	if err := a.Attestation1.UnmarshalSSZ(buf[off1:off2]); err != nil {
		return err
	}
	return a.Attestation2.UnmarshalSSZ(buf[off2:])
}

// --- VoluntaryExit ---

func (e *VoluntaryExit) SizeSSZ() int { return voluntaryExitSize }

func (e *VoluntaryExit) MarshalSSZTo(dst []byte) ([]byte, error) {
	dst = ssz.MarshalUint64(dst, uint64(e.Epoch))
	dst = ssz.MarshalUint64(dst, uint64(e.ValidatorIndex))
	dst = append(dst, e.Signature[:]...)
	return dst, nil
}

func (e *VoluntaryExit) UnmarshalSSZ(buf []byte) error {
	if len(buf) != voluntaryExitSize {
		return ssz.ErrSize
	}
	e.Epoch = Epoch(ssz.UnmarshalUint64(buf[0:8]))
	e.ValidatorIndex = ValidatorIndex(ssz.UnmarshalUint64(buf[8:16]))
	copy(e.Signature[:], buf[16:112])
	return nil
}

// --- BeaconBlockBody ---

func (b *BeaconBlockBody) SizeSSZ() int {
	size := bodyFixed
	size += len(b.ProposerSlashings) * proposerSlashingSize
	for i := range b.AttesterSlashings {
		size += 4 + b.AttesterSlashings[i].SizeSSZ()
	}
	for i := range b.Attestations {
		size += 4 + b.Attestations[i].SizeSSZ()
	}
	size += len(b.Deposits) * depositSize
	size += len(b.VoluntaryExits) * voluntaryExitSize
	return size
}

func (b *BeaconBlockBody) MarshalSSZTo(dst []byte) ([]byte, error) {
	dst = append(dst, b.RandaoReveal[:]...)
	var err error
	if dst, err = b.Eth1Data.MarshalSSZTo(dst); err != nil {
		return nil, err
	}

	offset := bodyFixed
	dst = ssz.WriteOffset(dst, offset)
	offset += len(b.ProposerSlashings) * proposerSlashingSize
	dst = ssz.WriteOffset(dst, offset)
	for i := range b.AttesterSlashings {
		offset += 4 + b.AttesterSlashings[i].SizeSSZ()
	}
	dst = ssz.WriteOffset(dst, offset)
	for i := range b.Attestations {
		offset += 4 + b.Attestations[i].SizeSSZ()
	}
	dst = ssz.WriteOffset(dst, offset)
	offset += len(b.Deposits) * depositSize
	dst = ssz.WriteOffset(dst, offset)

	for i := range b.ProposerSlashings {
		if dst, err = b.ProposerSlashings[i].MarshalSSZTo(dst); err != nil {
			return nil, err
		}
	}
	if dst, err = marshalOffsetList(dst, len(b.AttesterSlashings), func(i int) int {
		return b.AttesterSlashings[i].SizeSSZ()
	}, func(d []byte, i int) ([]byte, error) {
		return b.AttesterSlashings[i].MarshalSSZTo(d)
	}); err != nil {
		return nil, err
	}
	if dst, err = marshalOffsetList(dst, len(b.Attestations), func(i int) int {
		return b.Attestations[i].SizeSSZ()
	}, func(d []byte, i int) ([]byte, error) {
		return b.Attestations[i].MarshalSSZTo(d)
	}); err != nil {
		return nil, err
	}
	for i := range b.Deposits {
		if dst, err = b.Deposits[i].MarshalSSZTo(dst); err != nil {
			return nil, err
		}
	}
	for i := range b.VoluntaryExits {
		if dst, err = b.VoluntaryExits[i].MarshalSSZTo(dst); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func (b *BeaconBlockBody) UnmarshalSSZ(buf []byte) error {
	if len(buf) < bodyFixed {
		return ssz.ErrSize
	}
	copy(b.RandaoReveal[:], buf[0:96])
	if err := b.Eth1Data.UnmarshalSSZ(buf[96 : 96+eth1DataSize]); err != nil {
		return err
	}

	pos := 96 + eth1DataSize
	offsets := make([]int, 5)
	prev := bodyFixed
	for i := range offsets {
		off, err := ssz.ReadOffset(buf, pos+i*4, prev, len(buf))
		if err != nil {
			return err
		}
		offsets[i] = off
		prev = off
	}
	bounds := append(offsets, len(buf))

	// Proposer slashings: fixed-size elements.
	region := buf[bounds[0]:bounds[1]]
	n, err := ssz.DivideOffsets(len(region), proposerSlashingSize, MaxProposerSlashings)
	if err != nil {
		return err
	}
	b.ProposerSlashings = make([]ProposerSlashing, n)
	for i := 0; i < n; i++ {
		if err := b.ProposerSlashings[i].UnmarshalSSZ(region[i*proposerSlashingSize : (i+1)*proposerSlashingSize]); err != nil {
			return err
		}
	}

	// Attester slashings: variable-size elements behind inner offsets.
	if err := unmarshalOffsetList(buf[bounds[1]:bounds[2]], MaxAttesterSlashings, func(n int) {
		b.AttesterSlashings = make([]AttesterSlashing, n)
	}, func(i int, chunk []byte) error {
		return b.AttesterSlashings[i].UnmarshalSSZ(chunk)
	}); err != nil {
		return err
	}

	// Attestations: variable-size elements behind inner offsets.
	if err := unmarshalOffsetList(buf[bounds[2]:bounds[3]], MaxAttestations, func(n int) {
		b.Attestations = make([]Attestation, n)
	}, func(i int, chunk []byte) error {
		return b.Attestations[i].UnmarshalSSZ(chunk)
	}); err != nil {
		return err
	}

	// Deposits: fixed-size elements.
	region = buf[bounds[3]:bounds[4]]
	n, err = ssz.DivideOffsets(len(region), depositSize, MaxDeposits)
	if err != nil {
		return err
	}
	b.Deposits = make([]Deposit, n)
	for i := 0; i < n; i++ {
		if err := b.Deposits[i].UnmarshalSSZ(region[i*depositSize : (i+1)*depositSize]); err != nil {
			return err
		}
	}

	// Voluntary exits: fixed-size elements.
	region = buf[bounds[4]:bounds[5]]
	n, err = ssz.DivideOffsets(len(region), voluntaryExitSize, MaxVoluntaryExits)
	if err != nil {
		return err
	}
	b.VoluntaryExits = make([]VoluntaryExit, n)
	for i := 0; i < n; i++ {
		if err := b.VoluntaryExits[i].UnmarshalSSZ(region[i*voluntaryExitSize : (i+1)*voluntaryExitSize]); err != nil {
			return err
		}
	}
	return nil
}

// --- BeaconBlock ---

func (b *BeaconBlock) SizeSSZ() int {
	return blockFixed + b.Body.SizeSSZ()
}

func (b *BeaconBlock) MarshalSSZ() ([]byte, error) {
	return b.MarshalSSZTo(make([]byte, 0, b.SizeSSZ()))
}

func (b *BeaconBlock) MarshalSSZTo(dst []byte) ([]byte, error) {
	dst = ssz.MarshalUint64(dst, uint64(b.Slot))
	dst = append(dst, b.ParentRoot[:]...)
	dst = append(dst, b.StateRoot[:]...)
	dst = ssz.WriteOffset(dst, blockFixed)
	dst = append(dst, b.Signature[:]...)
	return b.Body.MarshalSSZTo(dst)
}

func (b *BeaconBlock) UnmarshalSSZ(buf []byte) error {
	if len(buf) < blockFixed {
		return ssz.ErrSize
	}
	b.Slot = Slot(ssz.UnmarshalUint64(buf[0:8]))
	copy(b.ParentRoot[:], buf[8:40])
	copy(b.StateRoot[:], buf[40:72])
	off, err := ssz.ReadOffset(buf, 72, blockFixed, len(buf))
	if err != nil {
		return err
	}
	if off != blockFixed {
		return ssz.ErrOffset
	}
	copy(b.Signature[:], buf[76:172])
	return b.Body.UnmarshalSSZ(buf[off:])
}

// marshalOffsetList writes the inner offset table of a variable-size element
// list followed by the element payloads.
func marshalOffsetList(dst []byte, n int, size func(i int) int, marshal func(dst []byte, i int) ([]byte, error)) ([]byte, error) {
	offset := n * 4
	for i := 0; i < n; i++ {
		dst = ssz.WriteOffset(dst, offset)
		offset += size(i)
	}
	var err error
	for i := 0; i < n; i++ {
		if dst, err = marshal(dst, i); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

// unmarshalOffsetList splits a variable-size element list at its inner
// offset table. The element count is recovered from the first offset.
func unmarshalOffsetList(buf []byte, maxLength uint64, alloc func(n int), decode func(i int, chunk []byte) error) error {
	if len(buf) == 0 {
		alloc(0)
		return nil
	}
	if len(buf) < 4 {
		return ssz.ErrSize
	}
	first, err := ssz.ReadOffset(buf, 0, 0, len(buf))
	if err != nil {
		return err
	}
	n, err := ssz.DivideOffsets(first, 4, maxLength)
	if err != nil {
		return err
	}
	offsets := make([]int, n+1)
	offsets[0] = first
	prev := first
	for i := 1; i < n; i++ {
		off, err := ssz.ReadOffset(buf, i*4, prev, len(buf))
		if err != nil {
			return err
		}
		offsets[i] = off
		prev = off
	}
	offsets[n] = len(buf)
	alloc(n)
	for i := 0; i < n; i++ {
		if err := decode(i, buf[offsets[i]:offsets[i+1]]); err != nil {
			return err
		}
	}
	return nil
}
