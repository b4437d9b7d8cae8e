package forkchoice

import (
	"sync"

	"github.com/geanlabs/beacon/types"
)

// Store tracks the inputs to the head finder: the block tree, each
// validator's latest attestation, the justified checkpoint, and effective
// balances at the justified state. The pipeline owns the store; readers get
// value snapshots.
type Store struct {
	mu sync.RWMutex

	blocks    map[types.Root]Node
	votes     map[types.ValidatorIndex]Vote
	balances  map[types.ValidatorIndex]types.Gwei
	justified types.Checkpoint
}

// NewStore seeds the tree with the anchor block (genesis or a finalized
// restart point).
func NewStore(anchorRoot types.Root, anchorSlot types.Slot, justified types.Checkpoint) *Store {
	return &Store{
		blocks:    map[types.Root]Node{anchorRoot: {Slot: anchorSlot}},
		votes:     make(map[types.ValidatorIndex]Vote),
		balances:  make(map[types.ValidatorIndex]types.Gwei),
		justified: justified,
	}
}

// AddBlock indexes a block for ancestry walks.
func (s *Store) AddBlock(root types.Root, slot types.Slot, parent types.Root) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[root] = Node{Slot: slot, ParentRoot: parent}
}

// HasBlock reports whether root is indexed.
func (s *Store) HasBlock(root types.Root) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[root]
	return ok
}

// ProcessAttestation records a validator's vote, keeping only the most
// recent target per validator.
func (s *Store) ProcessAttestation(validator types.ValidatorIndex, target types.Root, epoch types.Epoch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.votes[validator]; ok && prev.Epoch >= epoch {
		return
	}
	s.votes[validator] = Vote{Root: target, Epoch: epoch}
}

// SetJustified moves the walk's starting checkpoint.
func (s *Store) SetJustified(cp types.Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.justified = cp
}

// Justified returns the current starting checkpoint.
func (s *Store) Justified() types.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.justified
}

// SetBalances replaces the effective-balance view used for vote weighting.
func (s *Store) SetBalances(balances map[types.ValidatorIndex]types.Gwei) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances = balances
}

// Head runs the weighted walk from the justified block.
func (s *Store) Head() (types.Root, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return GetHead(s.blocks, s.justified.Root, s.votes, s.balances)
}

// Ancestor returns root's ancestor at or below slot.
func (s *Store) Ancestor(root types.Root, slot types.Slot) (types.Root, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return GetAncestor(s.blocks, root, slot)
}
