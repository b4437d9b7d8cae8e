package consensus

import (
	"fmt"
	"sort"

	"github.com/geanlabs/beacon/params"
	"github.com/geanlabs/beacon/types"
)

// GetAttestingIndices resolves an aggregation bitfield against the
// committee for (data.Slot, data.Index). The bitfield length must equal
// the committee size.
func (s *Spec) GetAttestingIndices(state *types.BeaconState, data *types.AttestationData, bits []byte) ([]types.ValidatorIndex, error) {
	committee, err := s.GetBeaconCommittee(state, data.Slot, data.Index)
	if err != nil {
		return nil, err
	}
	if bitlistLen(bits) != uint64(len(committee)) {
		return nil, fmt.Errorf("%w: aggregation bits length %d != committee size %d",
			ErrInvalidAttestation, bitlistLen(bits), len(committee))
	}
	var attesters []types.ValidatorIndex
	for i, member := range committee {
		if bitAt(bits, uint64(i)) {
			attesters = append(attesters, member)
		}
	}
	sort.Slice(attesters, func(i, j int) bool { return attesters[i] < attesters[j] })
	return attesters, nil
}

// GetIndexedAttestation converts an aggregate attestation to its indexed
// form for signature verification and slashing evidence.
func (s *Spec) GetIndexedAttestation(state *types.BeaconState, att *types.Attestation) (*types.IndexedAttestation, error) {
	attesters, err := s.GetAttestingIndices(state, &att.Data, att.AggregationBits)
	if err != nil {
		return nil, err
	}
	return &types.IndexedAttestation{
		AttestingIndices: attesters,
		Data:             att.Data,
		Signature:        att.Signature,
	}, nil
}

// IsValidIndexedAttestation checks ordering, bounds and the aggregate
// signature of an indexed attestation.
func (s *Spec) IsValidIndexedAttestation(state *types.BeaconState, att *types.IndexedAttestation) error {
	indices := att.AttestingIndices
	if len(indices) == 0 {
		return fmt.Errorf("%w: empty attesting set", ErrInvalidAttestation)
	}
	if uint64(len(indices)) > s.Cfg.MaxValidatorsPerCommittee {
		return fmt.Errorf("%w: %d attesters exceeds committee bound", ErrInvalidAttestation, len(indices))
	}
	for i := 1; i < len(indices); i++ {
		if indices[i-1] >= indices[i] {
			return fmt.Errorf("%w: attesting indices not sorted and unique", ErrInvalidAttestation)
		}
	}
	for _, idx := range indices {
		if uint64(idx) >= uint64(len(state.Validators)) {
			return fmt.Errorf("%w: attesting index %d out of registry", ErrInvalidAttestation, idx)
		}
	}
	if !s.blsActive() {
		return nil
	}
	pubkeys := make([]types.Bytes48, len(indices))
	for i, idx := range indices {
		pubkeys[i] = state.Validators[idx].Pubkey
	}
	root, err := att.Data.HashTreeRoot()
	if err != nil {
		return err
	}
	domain := s.GetDomain(state, params.DomainBeaconAttester, att.Data.Target.Epoch)
	if !s.BLS.Verify(s.BLS.AggregatePubkeys(pubkeys), root, att.Signature, domain) {
		return fmt.Errorf("%w: aggregate signature invalid", ErrInvalidAttestation)
	}
	return nil
}

// IsSlashableAttestationData reports a double vote (same target, different
// data) or a surround vote.
func IsSlashableAttestationData(a, b *types.AttestationData) bool {
	double := *a != *b && a.Target.Epoch == b.Target.Epoch
	surround := a.Source.Epoch < b.Source.Epoch && b.Target.Epoch < a.Target.Epoch
	return double || surround
}

// IsSlashableValidator reports whether the validator can be slashed at
// epoch.
func IsSlashableValidator(v *types.Validator, epoch types.Epoch) bool {
	return !v.Slashed && v.ActivationEpoch <= epoch && epoch < v.WithdrawableEpoch
}

// bitlistLen returns the semantic length of an SSZ bitlist.
func bitlistLen(bits []byte) uint64 {
	if len(bits) == 0 {
		return 0
	}
	last := bits[len(bits)-1]
	if last == 0 {
		return 0
	}
	msb := 7
	for last>>uint(msb)&1 == 0 {
		msb--
	}
	return uint64(len(bits)-1)*8 + uint64(msb)
}

// bitAt reads bit i of a bitlist payload.
func bitAt(bits []byte, i uint64) bool {
	return bits[i/8]&(1<<(i%8)) != 0
}
