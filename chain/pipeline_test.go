package chain

import (
	"context"
	"testing"
	"time"

	"github.com/geanlabs/beacon/clock"
	"github.com/geanlabs/beacon/consensus"
	"github.com/geanlabs/beacon/params"
	"github.com/geanlabs/beacon/storage/memory"
	"github.com/geanlabs/beacon/types"
)

// testPipeline builds a pipeline over an in-memory store with a pinned
// wall clock well past genesis.
func testPipeline(t *testing.T) (*Pipeline, *consensus.Spec, *types.BeaconState) {
	t.Helper()
	spec := consensus.NewSpec(params.Minimal())

	var eth1Hash types.Root
	for i := range eth1Hash {
		eth1Hash[i] = 0x42
	}
	genesis, err := spec.InteropGenesisState(0, eth1Hash, 16)
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	genesisBlock, err := spec.GenesisBlock(genesis)
	if err != nil {
		t.Fatalf("genesis block: %v", err)
	}

	clk := clock.NewWithTimeFunc(0, spec.Cfg.SecondsPerSlot, func() time.Time {
		return time.Unix(1_000_000, 0)
	})

	p, err := NewPipeline(Config{
		Spec:  spec,
		Store: NewStorage(memory.New()),
		Clock: clk,
		Pool:  NewAttestationPool(),
	}, genesisBlock, genesis)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	p.Start(context.Background())
	t.Cleanup(p.Stop)
	return p, spec, genesis
}

// blockOnTopOf builds a valid empty block at slot on top of parent state.
func blockOnTopOf(t *testing.T, spec *consensus.Spec, parent *types.BeaconState, slot types.Slot) *types.BeaconBlock {
	t.Helper()
	pre, err := spec.ProcessSlots(parent, slot)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	parentRoot, err := pre.LatestBlockHeader.SigningRoot()
	if err != nil {
		t.Fatalf("parent root: %v", err)
	}
	block := &types.BeaconBlock{
		Slot:       slot,
		ParentRoot: parentRoot,
		Body:       types.BeaconBlockBody{Eth1Data: pre.Eth1Data},
	}
	scratch := pre.Copy()
	if err := spec.ProcessBlock(scratch, block); err != nil {
		t.Fatalf("execute block: %v", err)
	}
	stateRoot, err := scratch.HashTreeRoot()
	if err != nil {
		t.Fatalf("state root: %v", err)
	}
	block.StateRoot = stateRoot
	return block
}

// waitForStatus polls until the block reaches status or the deadline hits.
func waitForStatus(t *testing.T, p *Pipeline, root types.Root, want BlockStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st, ok := p.Status(root); ok && st == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	st, ok := p.Status(root)
	t.Fatalf("block %x never reached status %d (now %d, known %v)", root[:4], want, st, ok)
}

func TestPipeline_AppliesValidBlock(t *testing.T) {
	p, spec, genesis := testPipeline(t)

	block := blockOnTopOf(t, spec, genesis, 1)
	root, _ := block.SigningRoot()

	sub := p.SubscribeObservedState()
	p.SubmitBlock(block)
	waitForStatus(t, p, root, StatusApplied)

	select {
	case obs := <-sub:
		if obs.HeadRoot != root {
			t.Fatalf("observed head %x, want %x", obs.HeadRoot[:4], root[:4])
		}
		if obs.State == nil || obs.State.Slot != 1 {
			t.Fatal("observed state snapshot missing or at wrong slot")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no observed state published")
	}
}

func TestPipeline_RejectsBadStateRoot(t *testing.T) {
	p, spec, genesis := testPipeline(t)

	block := blockOnTopOf(t, spec, genesis, 1)
	block.StateRoot[0] ^= 0xff
	root, _ := block.SigningRoot()

	p.SubmitBlock(block)
	waitForStatus(t, p, root, StatusRejected)

	if p.Err() != nil {
		t.Fatalf("invalid block must not kill the pipeline: %v", p.Err())
	}
}

func TestPipeline_ParksUnknownParent(t *testing.T) {
	p, spec, genesis := testPipeline(t)

	// A grandchild whose parent the pipeline has never seen.
	child := blockOnTopOf(t, spec, genesis, 1)
	post, err := spec.StateTransition(genesis, child, true)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	grandchild := blockOnTopOf(t, spec, post, 2)
	gcRoot, _ := grandchild.SigningRoot()

	p.SubmitBlock(grandchild)
	waitForStatus(t, p, gcRoot, StatusWaitingParent)

	// Delivering the parent releases the waiter.
	p.SubmitBlock(child)
	waitForStatus(t, p, gcRoot, StatusApplied)
}

func TestPipeline_ParksFutureBlock(t *testing.T) {
	p, spec, genesis := testPipeline(t)

	// The pinned clock sits at slot time/seconds-per-slot; far beyond it.
	farFuture := types.Slot(1_000_000)
	block := blockOnTopOf(t, spec, genesis, 2)
	block.Slot = farFuture
	root, _ := block.SigningRoot()

	p.SubmitBlock(block)
	waitForStatus(t, p, root, StatusWaitingPayload)
}

func TestPipeline_DuplicateBlockIsIgnored(t *testing.T) {
	p, spec, genesis := testPipeline(t)

	block := blockOnTopOf(t, spec, genesis, 1)
	root, _ := block.SigningRoot()

	p.SubmitBlock(block)
	waitForStatus(t, p, root, StatusApplied)
	p.SubmitBlock(block)

	// Still applied; the duplicate is dropped without a status change.
	time.Sleep(50 * time.Millisecond)
	if st, _ := p.Status(root); st != StatusApplied {
		t.Fatalf("duplicate submission changed status to %d", st)
	}
}

func TestPipeline_HeadFollowsSmallerRootOnTie(t *testing.T) {
	p, spec, genesis := testPipeline(t)

	// Two competing blocks at slot 1 with different bodies (the body has
	// no graffiti field, so vary the eth1 block hash).
	b1 := blockOnTopOf(t, spec, genesis, 1)

	pre, _ := spec.ProcessSlots(genesis, 1)
	parentRoot, _ := pre.LatestBlockHeader.SigningRoot()
	b2 := &types.BeaconBlock{
		Slot:       1,
		ParentRoot: parentRoot,
		Body: types.BeaconBlockBody{
			Eth1Data: types.Eth1Data{
				DepositCount: pre.Eth1Data.DepositCount,
				BlockHash:    types.Root{0x99},
			},
		},
	}
	scratch := pre.Copy()
	if err := spec.ProcessBlock(scratch, b2); err != nil {
		t.Fatalf("execute sibling: %v", err)
	}
	b2.StateRoot, _ = scratch.HashTreeRoot()

	r1, _ := b1.SigningRoot()
	r2, _ := b2.SigningRoot()

	p.SubmitBlock(b1)
	p.SubmitBlock(b2)
	waitForStatus(t, p, r1, StatusApplied)
	waitForStatus(t, p, r2, StatusApplied)

	head, _, err := p.HeadState()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	want := r1
	if types.CompareRoots(r2, r1) < 0 {
		want = r2
	}
	if head != want {
		t.Fatalf("tie head %x, want the smaller root %x", head[:4], want[:4])
	}
}
