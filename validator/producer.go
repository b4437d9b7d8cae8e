// Package validator implements the duties of a locally keyed validator:
// proposing blocks packed from the attestation pool and producing
// attestations for its committee assignments.
package validator

import (
	"fmt"
	"log/slog"

	"github.com/geanlabs/beacon/bls"
	"github.com/geanlabs/beacon/chain"
	"github.com/geanlabs/beacon/consensus"
	"github.com/geanlabs/beacon/eth1"
	"github.com/geanlabs/beacon/params"
	"github.com/geanlabs/beacon/ssz"
	"github.com/geanlabs/beacon/types"
	"github.com/prysmaticlabs/go-bitfield"
)

// Producer builds blocks and attestations on top of the pipeline's head.
type Producer struct {
	spec     *consensus.Spec
	pipeline *chain.Pipeline
	pool     *chain.AttestationPool
	deposits eth1.DepositSource // optional
	signer   bls.Signer
	index    types.ValidatorIndex
	logger   *slog.Logger
}

// NewProducer wires a producer for one validator index.
func NewProducer(spec *consensus.Spec, pipeline *chain.Pipeline, pool *chain.AttestationPool, deposits eth1.DepositSource, signer bls.Signer, index types.ValidatorIndex, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		spec:     spec,
		pipeline: pipeline,
		pool:     pool,
		deposits: deposits,
		signer:   signer,
		index:    index,
		logger:   logger,
	}
}

// IsProposer reports whether this validator proposes at slot on top of the
// current head.
func (p *Producer) IsProposer(slot types.Slot) (bool, error) {
	_, headState, err := p.pipeline.HeadState()
	if err != nil {
		return false, err
	}
	pre, err := p.spec.ProcessSlots(headState, slot)
	if err != nil {
		return false, err
	}
	proposer, err := p.spec.GetBeaconProposerIndex(pre)
	if err != nil {
		return false, err
	}
	return proposer == p.index, nil
}

// ProposeBlock assembles, executes and signs a block for slot on top of
// the current head.
func (p *Producer) ProposeBlock(slot types.Slot) (*types.BeaconBlock, error) {
	headRoot, headState, err := p.pipeline.HeadState()
	if err != nil {
		return nil, err
	}
	pre, err := p.spec.ProcessSlots(headState, slot)
	if err != nil {
		return nil, err
	}

	proposer, err := p.spec.GetBeaconProposerIndex(pre)
	if err != nil {
		return nil, err
	}
	if proposer != p.index {
		return nil, fmt.Errorf("validator %d is not the proposer for slot %d (expected %d)",
			p.index, slot, proposer)
	}

	epoch := p.spec.ComputeEpochAtSlot(slot)
	randaoDomain := p.spec.GetDomain(pre, params.DomainRandao, epoch)
	body := types.BeaconBlockBody{
		RandaoReveal: p.signer.Sign(ssz.ChunkUint64(uint64(epoch)), randaoDomain),
		Eth1Data:     pre.Eth1Data,
		Attestations: dereference(p.pool.ProposerAttestations(p.spec, pre)),
	}

	deposits, err := p.outstandingDeposits(pre)
	if err != nil {
		return nil, err
	}
	body.Deposits = deposits

	block := &types.BeaconBlock{
		Slot:       slot,
		ParentRoot: headRoot,
		Body:       body,
	}

	// Execute against a scratch copy to compute the state-root commitment.
	scratch := pre.Copy()
	if err := p.spec.ProcessBlock(scratch, block); err != nil {
		return nil, fmt.Errorf("candidate block rejected: %w", err)
	}
	stateRoot, err := scratch.HashTreeRoot()
	if err != nil {
		return nil, err
	}
	block.StateRoot = stateRoot

	signingRoot, err := block.SigningRoot()
	if err != nil {
		return nil, err
	}
	proposerDomain := p.spec.GetDomain(pre, params.DomainBeaconProposer, epoch)
	block.Signature = p.signer.Sign(signingRoot, proposerDomain)

	p.logger.Info("produced block",
		"slot", slot,
		"attestations", len(body.Attestations),
		"deposits", len(body.Deposits),
	)
	return block, nil
}

// outstandingDeposits pulls the deposits the state transition will demand
// for the next block.
func (p *Producer) outstandingDeposits(pre *types.BeaconState) ([]types.Deposit, error) {
	if pre.Eth1Data.DepositCount <= pre.Eth1DepositIndex {
		return nil, nil
	}
	expected := pre.Eth1Data.DepositCount - pre.Eth1DepositIndex
	if expected > p.spec.Cfg.MaxDeposits {
		expected = p.spec.Cfg.MaxDeposits
	}
	if p.deposits == nil {
		return nil, fmt.Errorf("%d deposits outstanding but no deposit source", expected)
	}
	return p.deposits.DepositsUpTo(pre.Eth1DepositIndex, pre.Eth1DepositIndex+expected)
}

// ProduceAttestation builds this validator's vote for slot, if it sits in
// a committee there.
func (p *Producer) ProduceAttestation(slot types.Slot) (*types.Attestation, error) {
	headRoot, headState, err := p.pipeline.HeadState()
	if err != nil {
		return nil, err
	}
	state := headState
	if state.Slot < slot {
		state, err = p.spec.ProcessSlots(headState, slot)
		if err != nil {
			return nil, err
		}
	}

	epoch := p.spec.ComputeEpochAtSlot(slot)
	committees := p.spec.GetCommitteeCountAtSlot(state, slot)
	for idx := uint64(0); idx < committees; idx++ {
		committee, err := p.spec.GetBeaconCommittee(state, slot, types.CommitteeIndex(idx))
		if err != nil {
			return nil, err
		}
		position := -1
		for i, member := range committee {
			if member == p.index {
				position = i
				break
			}
		}
		if position < 0 {
			continue
		}

		targetRoot := headRoot
		boundarySlot := p.spec.ComputeStartSlotAtEpoch(epoch)
		if boundarySlot < state.Slot {
			if root, err := p.spec.GetBlockRootAtSlot(state, boundarySlot); err == nil {
				targetRoot = root
			}
		}

		data := types.AttestationData{
			Slot:            slot,
			Index:           types.CommitteeIndex(idx),
			BeaconBlockRoot: headRoot,
			Source:          state.CurrentJustifiedCheckpoint,
			Target:          types.Checkpoint{Epoch: epoch, Root: targetRoot},
		}
		bits := bitfield.NewBitlist(uint64(len(committee)))
		bits.SetBitAt(uint64(position), true)

		root, err := data.HashTreeRoot()
		if err != nil {
			return nil, err
		}
		domain := p.spec.GetDomain(state, params.DomainBeaconAttester, epoch)
		return &types.Attestation{
			AggregationBits: bits,
			Data:            data,
			Signature:       p.signer.Sign(root, domain),
		}, nil
	}
	return nil, nil
}

func dereference(atts []*types.Attestation) []types.Attestation {
	out := make([]types.Attestation, len(atts))
	for i, att := range atts {
		out[i] = *att
	}
	return out
}
