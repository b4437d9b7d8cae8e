package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/geanlabs/beacon/clock"
	"github.com/geanlabs/beacon/consensus"
	"github.com/geanlabs/beacon/forkchoice"
	"github.com/geanlabs/beacon/storage"
	"github.com/geanlabs/beacon/types"
)

// BlockStatus tracks a block through the processor.
type BlockStatus int

const (
	StatusQueued BlockStatus = iota
	StatusWaitingParent
	StatusWaitingPayload
	StatusVerifying
	StatusApplied
	StatusRejected
)

// ObservedState is the immutable snapshot published after every applied
// block and head update.
type ObservedState struct {
	HeadRoot  types.Root
	HeadSlot  types.Slot
	Justified types.Checkpoint
	Finalized types.Checkpoint
	State     *types.BeaconState
}

// ParentFetcher requests a missing block from the network. Delivery comes
// back through SubmitBlock; cancelling the context abandons the request.
type ParentFetcher interface {
	FetchBlock(ctx context.Context, root types.Root)
}

// fetchDeadline bounds an outstanding parent request.
const fetchDeadline = 20 * time.Second

// pendingBlock is a block parked for a missing parent or a future slot.
type pendingBlock struct {
	root     types.Root
	block    *types.BeaconBlock
	deadline time.Time
	cancel   context.CancelFunc
}

type message struct {
	block *types.BeaconBlock
	att   *types.Attestation
	tick  bool
}

// Pipeline is the single-threaded block processor. One goroutine consumes
// the ordered message queue; the consensus core it drives is pure, so
// every accepted block is applied whole or not at all.
type Pipeline struct {
	spec    *consensus.Spec
	store   *Storage
	fc      *forkchoice.Store
	pool    *AttestationPool
	clk     *clock.SlotClock
	fetcher ParentFetcher
	logger  *slog.Logger

	states *lru.Cache[types.Root, *types.BeaconState]

	msgs chan message

	stMu          sync.RWMutex
	statuses      map[types.Root]BlockStatus
	waitingParent map[types.Root][]*pendingBlock
	waitingSlot   []*pendingBlock
	anchorRoot    types.Root

	subMu       sync.Mutex
	subscribers []chan ObservedState

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Config wires the pipeline's collaborators.
type Config struct {
	Spec    *consensus.Spec
	Store   *Storage
	Clock   *clock.SlotClock
	Pool    *AttestationPool
	Fetcher ParentFetcher
	Logger  *slog.Logger
}

// NewPipeline builds a pipeline anchored at the given block and state
// (genesis, or a checkpoint on restart).
func NewPipeline(cfg Config, anchorBlock *types.BeaconBlock, anchorState *types.BeaconState) (*Pipeline, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	anchorRoot, err := anchorBlock.SigningRoot()
	if err != nil {
		return nil, err
	}

	cacheSize := cfg.Spec.Cfg.CacheSizeEntries
	if cacheSize <= 0 {
		cacheSize = 64
	}
	states, err := lru.New[types.Root, *types.BeaconState](cacheSize)
	if err != nil {
		return nil, err
	}

	justified := anchorState.CurrentJustifiedCheckpoint
	if justified.Root == (types.Root{}) {
		justified = types.Checkpoint{Epoch: anchorState.CurrentJustifiedCheckpoint.Epoch, Root: anchorRoot}
	}

	p := &Pipeline{
		spec:          cfg.Spec,
		store:         cfg.Store,
		fc:            forkchoice.NewStore(anchorRoot, anchorBlock.Slot, justified),
		pool:          cfg.Pool,
		clk:           cfg.Clock,
		fetcher:       cfg.Fetcher,
		logger:        logger,
		states:        states,
		msgs:          make(chan message, 1024),
		statuses:      make(map[types.Root]BlockStatus),
		waitingParent: make(map[types.Root][]*pendingBlock),
		anchorRoot:    anchorRoot,
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})

	if err := p.store.PutBlock(anchorRoot, anchorBlock); err != nil {
		return nil, err
	}
	p.states.Add(anchorRoot, anchorState)
	p.setStatus(anchorRoot, StatusApplied)
	p.fc.SetBalances(balanceView(anchorState))
	return p, nil
}

// Start launches the processing loop. Cancelling ctx stops it.
func (p *Pipeline) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			p.cancel()
		case <-p.ctx.Done():
		}
	}()
	go p.run()
}

// Stop terminates the loop and waits for it.
func (p *Pipeline) Stop() {
	p.cancel()
	<-p.done
}

// Err returns the fatal error that terminated the loop, if any.
func (p *Pipeline) Err() error { return p.err }

// SubmitBlock enqueues a block in arrival order.
func (p *Pipeline) SubmitBlock(block *types.BeaconBlock) {
	select {
	case p.msgs <- message{block: block}:
	case <-p.ctx.Done():
	}
}

// SubmitAttestation enqueues an attestation in arrival order.
func (p *Pipeline) SubmitAttestation(att *types.Attestation) {
	select {
	case p.msgs <- message{att: att}:
	case <-p.ctx.Done():
	}
}

// Tick enqueues a clock tick.
func (p *Pipeline) Tick() {
	select {
	case p.msgs <- message{tick: true}:
	case <-p.ctx.Done():
	}
}

// SubscribeObservedState registers a consumer of head snapshots.
func (p *Pipeline) SubscribeObservedState() <-chan ObservedState {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	ch := make(chan ObservedState, 16)
	p.subscribers = append(p.subscribers, ch)
	return ch
}

// HeadState returns the post-state of the current head.
func (p *Pipeline) HeadState() (types.Root, *types.BeaconState, error) {
	head, err := p.fc.Head()
	if err != nil {
		return types.Root{}, nil, err
	}
	state, err := p.stateByRoot(head)
	if err != nil {
		return types.Root{}, nil, err
	}
	return head, state, nil
}

// Status reports a block's pipeline status.
func (p *Pipeline) Status(root types.Root) (BlockStatus, bool) {
	p.stMu.RLock()
	defer p.stMu.RUnlock()
	st, ok := p.statuses[root]
	return st, ok
}

func (p *Pipeline) setStatus(root types.Root, st BlockStatus) {
	p.stMu.Lock()
	p.statuses[root] = st
	p.stMu.Unlock()
}

func (p *Pipeline) status(root types.Root) BlockStatus {
	p.stMu.RLock()
	defer p.stMu.RUnlock()
	return p.statuses[root]
}

func (p *Pipeline) run() {
	defer close(p.done)
	for {
		select {
		case <-p.ctx.Done():
			return
		case msg := <-p.msgs:
			var err error
			switch {
			case msg.block != nil:
				err = p.handleBlock(msg.block)
			case msg.att != nil:
				err = p.handleAttestation(msg.att)
			case msg.tick:
				err = p.handleTick()
			}
			if err != nil {
				// Only invariant violations and storage failures escape the
				// handlers; both are fatal to the pipeline task.
				p.err = err
				p.logger.Error("pipeline terminated", "error", err)
				p.cancel()
				return
			}
		}
	}
}

// handleBlock drives one block through the status machine.
func (p *Pipeline) handleBlock(block *types.BeaconBlock) error {
	root, err := block.SigningRoot()
	if err != nil {
		blocksRejectedCounter.Inc()
		return nil
	}
	if st, ok := p.Status(root); ok && (st == StatusApplied || st == StatusRejected) {
		return nil
	}
	p.setStatus(root, StatusQueued)

	// Future blocks wait for their slot.
	if p.clk != nil && p.clk.IsFuture(block.Slot) {
		p.setStatus(root, StatusWaitingPayload)
		p.waitingSlot = append(p.waitingSlot, &pendingBlock{root: root, block: block})
		blocksWaitingCounter.Inc()
		p.logger.Info("block parked", "root", types.ShortRoot(root), "reason", consensus.ErrFutureSlot)
		return nil
	}

	// Blocks with an unknown parent wait for a sync response.
	parentApplied := p.status(block.ParentRoot) == StatusApplied
	if !parentApplied {
		stored, err := p.store.HasBlock(block.ParentRoot)
		if err != nil {
			return err
		}
		parentApplied = stored
	}
	if !parentApplied {
		p.parkForParent(root, block)
		return nil
	}

	return p.verify(root, block)
}

// parkForParent registers a watcher for the missing parent and asks the
// fetcher for it with a deadline.
func (p *Pipeline) parkForParent(root types.Root, block *types.BeaconBlock) {
	p.setStatus(root, StatusWaitingParent)
	pend := &pendingBlock{
		root:     root,
		block:    block,
		deadline: time.Now().Add(fetchDeadline),
	}
	if p.fetcher != nil {
		ctx, cancel := context.WithDeadline(p.ctx, pend.deadline)
		pend.cancel = cancel
		p.fetcher.FetchBlock(ctx, block.ParentRoot)
	}
	p.waitingParent[block.ParentRoot] = append(p.waitingParent[block.ParentRoot], pend)
	blocksWaitingCounter.Inc()
	p.logger.Info("block waiting for parent",
		"root", types.ShortRoot(root),
		"parent", types.ShortRoot(block.ParentRoot),
	)
}

// verify runs the state transition and applies or rejects the block.
func (p *Pipeline) verify(root types.Root, block *types.BeaconBlock) error {
	p.setStatus(root, StatusVerifying)

	parentState, err := p.stateByRoot(block.ParentRoot)
	if err != nil {
		if errors.Is(err, storage.ErrCorrupted) {
			return err
		}
		p.reject(root, err)
		return nil
	}

	postState, err := p.spec.StateTransition(parentState, block, true)
	if err != nil {
		if errors.Is(err, consensus.ErrInvariantViolation) {
			return err
		}
		p.reject(root, err)
		return nil
	}

	return p.apply(root, block, postState)
}

// apply indexes an accepted block, feeds fork choice, flushes waiters and
// publishes the new observed state.
func (p *Pipeline) apply(root types.Root, block *types.BeaconBlock, postState *types.BeaconState) error {
	if err := p.store.PutBlock(root, block); err != nil {
		return err
	}
	p.states.Add(root, postState)
	p.setStatus(root, StatusApplied)
	blocksAppliedCounter.Inc()

	p.fc.AddBlock(root, block.Slot, block.ParentRoot)
	for i := range block.Body.Attestations {
		p.recordVotes(postState, &block.Body.Attestations[i])
	}

	// Advance the justified checkpoint when the new state knows a better
	// one, and refresh the balance view the vote weights use.
	if postState.CurrentJustifiedCheckpoint.Epoch > p.fc.Justified().Epoch {
		p.fc.SetJustified(postState.CurrentJustifiedCheckpoint)
		p.fc.SetBalances(balanceView(postState))
		if err := p.store.PutBestJustified(postState.CurrentJustifiedCheckpoint); err != nil {
			return err
		}
	}

	p.logger.Info("block applied",
		"slot", block.Slot,
		"root", types.ShortRoot(root),
	)

	// Re-inject parked attestations and children waiting on this block.
	for _, att := range p.pool.FlushBlock(root) {
		p.recordVotes(postState, att)
	}
	waiters := p.waitingParent[root]
	delete(p.waitingParent, root)
	for _, pend := range waiters {
		if pend.cancel != nil {
			pend.cancel()
		}
		if err := p.verify(pend.root, pend.block); err != nil {
			return err
		}
	}

	return p.publishObserved()
}

// reject drops a block and transitively rejects its parked descendants.
func (p *Pipeline) reject(root types.Root, cause error) {
	p.setStatus(root, StatusRejected)
	blocksRejectedCounter.Inc()
	// Reasons stay at INFO; peers must not learn why.
	p.logger.Info("block rejected", "root", types.ShortRoot(root), "error", cause)

	waiters := p.waitingParent[root]
	delete(p.waitingParent, root)
	for _, pend := range waiters {
		if pend.cancel != nil {
			pend.cancel()
		}
		p.reject(pend.root, fmt.Errorf("parent rejected"))
	}
}

// handleAttestation stages a gossiped attestation and records its vote.
func (p *Pipeline) handleAttestation(att *types.Attestation) error {
	target := att.Data.BeaconBlockRoot
	known := p.status(target) == StatusApplied
	if !known {
		stored, err := p.store.HasBlock(target)
		if err != nil {
			return err
		}
		known = stored
	}
	p.pool.Add(att, known)
	if !known {
		return nil
	}
	state, err := p.stateByRoot(att.Data.BeaconBlockRoot)
	if err != nil {
		attestationsDroppedCounter.Inc()
		p.logger.Info("attestation dropped", "error", err)
		return nil
	}
	p.recordVotes(state, att)
	return p.publishObserved()
}

// recordVotes resolves the attesting committee and updates the latest
// attestation map.
func (p *Pipeline) recordVotes(state *types.BeaconState, att *types.Attestation) {
	attesters, err := p.spec.GetAttestingIndices(state, &att.Data, att.AggregationBits)
	if err != nil {
		attestationsDroppedCounter.Inc()
		return
	}
	for _, idx := range attesters {
		p.fc.ProcessAttestation(idx, att.Data.BeaconBlockRoot, att.Data.Target.Epoch)
	}
}

// handleTick expires stale parent waits, releases matured future blocks
// and ages the pool.
func (p *Pipeline) handleTick() error {
	now := time.Now()

	// Expire parent requests past their deadline.
	for parent, waiters := range p.waitingParent {
		kept := waiters[:0]
		for _, pend := range waiters {
			if now.After(pend.deadline) {
				if pend.cancel != nil {
					pend.cancel()
				}
				p.reject(pend.root, fmt.Errorf("parent %x not provided in time", parent[:4]))
				continue
			}
			kept = append(kept, pend)
		}
		if len(kept) == 0 {
			delete(p.waitingParent, parent)
			continue
		}
		p.waitingParent[parent] = kept
	}

	// Release future blocks whose slot has arrived.
	var still []*pendingBlock
	for _, pend := range p.waitingSlot {
		if p.clk != nil && p.clk.IsFuture(pend.block.Slot) {
			still = append(still, pend)
			continue
		}
		if err := p.handleBlock(pend.block); err != nil {
			return err
		}
	}
	p.waitingSlot = still

	if p.clk != nil {
		epoch := p.spec.ComputeEpochAtSlot(p.clk.CurrentSlot())
		p.pool.Tick(epoch)
	}
	return nil
}

// stateByRoot returns the post-state for a block root, replaying stored
// blocks from the nearest cached ancestor on a cache miss.
func (p *Pipeline) stateByRoot(root types.Root) (*types.BeaconState, error) {
	if state, ok := p.states.Get(root); ok {
		return state, nil
	}

	// Walk back through stored blocks to a cached state.
	var path []*types.BeaconBlock
	cursor := root
	var base *types.BeaconState
	for {
		block, ok, err := p.store.Block(cursor)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %x", consensus.ErrUnknownParent, cursor[:4])
		}
		path = append(path, block)
		if state, ok := p.states.Get(block.ParentRoot); ok {
			base = state
			break
		}
		if cursor == p.anchorRoot {
			return nil, fmt.Errorf("%w: no state to replay %x from", consensus.ErrUnknownParent, root[:4])
		}
		cursor = block.ParentRoot
	}

	state := base
	for i := len(path) - 1; i >= 0; i-- {
		var err error
		state, err = p.spec.StateTransition(state, path[i], false)
		if err != nil {
			return nil, fmt.Errorf("%w: replay failed: %v", consensus.ErrInvariantViolation, err)
		}
	}
	p.states.Add(root, state)
	return state, nil
}

// publishObserved snapshots the head and fans it out to subscribers.
func (p *Pipeline) publishObserved() error {
	head, err := p.fc.Head()
	if err != nil {
		return fmt.Errorf("%w: head: %v", consensus.ErrInvariantViolation, err)
	}
	state, err := p.stateByRoot(head)
	if err != nil {
		return fmt.Errorf("%w: head state: %v", consensus.ErrInvariantViolation, err)
	}
	obs := ObservedState{
		HeadRoot:  head,
		HeadSlot:  state.Slot,
		Justified: state.CurrentJustifiedCheckpoint,
		Finalized: state.FinalizedCheckpoint,
		State:     state.Copy(),
	}
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for _, ch := range p.subscribers {
		select {
		case ch <- obs:
		default:
			// Slow subscribers miss snapshots rather than stall the loop.
		}
	}
	return nil
}

// balanceView extracts the effective balances fork choice weights votes
// with.
func balanceView(state *types.BeaconState) map[types.ValidatorIndex]types.Gwei {
	out := make(map[types.ValidatorIndex]types.Gwei, len(state.Validators))
	for i := range state.Validators {
		out[types.ValidatorIndex(i)] = state.Validators[i].EffectiveBalance
	}
	return out
}
