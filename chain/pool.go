package chain

import (
	"sync"

	"github.com/geanlabs/beacon/consensus"
	"github.com/geanlabs/beacon/types"
)

// AttestationPool stages attestations by target epoch until a proposer
// packs them. Attestations referencing a block the node has not applied
// yet wait in a side queue keyed by that root and are flushed when the
// block lands.
type AttestationPool struct {
	mu sync.Mutex

	byEpoch map[types.Epoch][]*types.Attestation
	noBlock map[types.Root][]*types.Attestation
}

// NewAttestationPool creates an empty pool.
func NewAttestationPool() *AttestationPool {
	return &AttestationPool{
		byEpoch: make(map[types.Epoch][]*types.Attestation),
		noBlock: make(map[types.Root][]*types.Attestation),
	}
}

// Add stages an attestation. knownBlock reports whether the attested block
// root has been applied; unknown roots park the attestation.
func (p *AttestationPool) Add(att *types.Attestation, knownBlock bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !knownBlock {
		root := att.Data.BeaconBlockRoot
		p.noBlock[root] = append(p.noBlock[root], att)
		return
	}
	p.add(att)
	attestationsPooledCounter.Inc()
}

func (p *AttestationPool) add(att *types.Attestation) {
	epoch := att.Data.Target.Epoch
	p.byEpoch[epoch] = append(p.byEpoch[epoch], att)
}

// Tick discards epochs older than one below current.
func (p *AttestationPool) Tick(current types.Epoch) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for epoch, atts := range p.byEpoch {
		if epoch+1 < current {
			attestationsDroppedCounter.Add(float64(len(atts)))
			delete(p.byEpoch, epoch)
		}
	}
	for root, atts := range p.noBlock {
		kept := atts[:0]
		for _, att := range atts {
			if att.Data.Target.Epoch+1 >= current {
				kept = append(kept, att)
			} else {
				attestationsDroppedCounter.Inc()
			}
		}
		if len(kept) == 0 {
			delete(p.noBlock, root)
			continue
		}
		p.noBlock[root] = kept
	}
}

// FlushBlock moves the no-block-root bucket for root into the main pool
// and returns the flushed attestations for republication.
func (p *AttestationPool) FlushBlock(root types.Root) []*types.Attestation {
	p.mu.Lock()
	defer p.mu.Unlock()
	atts := p.noBlock[root]
	delete(p.noBlock, root)
	for _, att := range atts {
		p.add(att)
		attestationsPooledCounter.Inc()
	}
	return atts
}

// ProposerAttestations returns the pool's attestations worth including on
// top of the candidate state: those not already covered by on-chain bits
// and that the state accepts, capped at the per-block bound.
func (p *AttestationPool) ProposerAttestations(spec *consensus.Spec, candidate *types.BeaconState) []*types.Attestation {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*types.Attestation
	scratch := candidate.Copy()
	for _, atts := range p.byEpoch {
		for _, att := range atts {
			if uint64(len(out)) >= spec.Cfg.MaxAttestations {
				return out
			}
			if coveredOnChain(candidate, att) {
				continue
			}
			if err := spec.ProcessAttestation(scratch, att); err != nil {
				continue
			}
			out = append(out, att)
		}
	}
	return out
}

// coveredOnChain reports whether the attestation's bits are a subset of
// the bits already recorded for the same data in the state.
func coveredOnChain(state *types.BeaconState, att *types.Attestation) bool {
	var onchain []byte
	accumulate := func(pending []types.PendingAttestation) {
		for i := range pending {
			if pending[i].Data != att.Data {
				continue
			}
			bits := pending[i].AggregationBits
			if onchain == nil {
				onchain = make([]byte, len(bits))
			}
			for j := 0; j < len(bits) && j < len(onchain); j++ {
				onchain[j] |= bits[j]
			}
		}
	}
	accumulate(state.CurrentEpochAttestations)
	accumulate(state.PreviousEpochAttestations)
	if onchain == nil {
		return false
	}
	if len(att.AggregationBits) != len(onchain) {
		return false
	}
	for j := range att.AggregationBits {
		if att.AggregationBits[j]&^onchain[j] != 0 {
			return false
		}
	}
	return true
}
