// Package forkchoice implements the latest-vote-weighted LMD GHOST head
// finder: a walk down the block tree from the justified block, choosing at
// each fork the child backed by the most attesting balance.
package forkchoice

import "github.com/geanlabs/beacon/types"

// Node is the fork-choice view of a block: enough to walk ancestry.
type Node struct {
	Slot       types.Slot
	ParentRoot types.Root
}

// Vote is a validator's most recent attestation target.
type Vote struct {
	Root  types.Root
	Epoch types.Epoch
}

// GetHead walks the tree from the justified root. Only children with a
// slot strictly greater than the justified block's slot are candidates; a
// weight tie breaks to the lexicographically smallest child root. The walk
// is deterministic for identical inputs.
func GetHead(
	blocks map[types.Root]Node,
	justifiedRoot types.Root,
	latestVotes map[types.ValidatorIndex]Vote,
	balances map[types.ValidatorIndex]types.Gwei,
) (types.Root, error) {
	justified, ok := blocks[justifiedRoot]
	if !ok {
		return types.Root{}, ErrUnknownJustified
	}

	// Children index over the candidate subgraph.
	children := make(map[types.Root][]types.Root)
	for root, node := range blocks {
		if node.Slot > justified.Slot {
			children[node.ParentRoot] = append(children[node.ParentRoot], root)
		}
	}

	// Weight per block: attesting balance of validators whose latest vote
	// has the block as an ancestor, accumulated by parent-walk.
	weights := make(map[types.Root]types.Gwei)
	for validator, vote := range latestVotes {
		if _, ok := blocks[vote.Root]; !ok {
			continue
		}
		balance := balances[validator]
		root := vote.Root
		for blocks[root].Slot > justified.Slot {
			weights[root] += balance
			root = blocks[root].ParentRoot
		}
	}

	head := justifiedRoot
	for {
		candidates := children[head]
		if len(candidates) == 0 {
			return head, nil
		}
		best := candidates[0]
		for _, child := range candidates[1:] {
			w, bw := weights[child], weights[best]
			if w > bw || (w == bw && types.CompareRoots(child, best) < 0) {
				best = child
			}
		}
		head = best
	}
}

// GetAncestor walks parents from root until at or below slot.
func GetAncestor(blocks map[types.Root]Node, root types.Root, slot types.Slot) (types.Root, error) {
	node, ok := blocks[root]
	if !ok {
		return types.Root{}, ErrUnknownBlock
	}
	for node.Slot > slot {
		root = node.ParentRoot
		node, ok = blocks[root]
		if !ok {
			return types.Root{}, ErrUnknownBlock
		}
	}
	return root, nil
}
